// Command keygen generates a fresh symmetric key and prints its portable
// base64 encoding, ready to be used as the encryptionKey configuration
// option of the identity store.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/dmitrijs2005/identitystore/internal/cryptox"
)

func main() {

	bits := flag.Int("bits", 256, "key length in bits (128, 192, or 256)")
	flag.Parse()

	key, err := cryptox.GenerateKey(*bits)
	if err != nil {
		log.Fatalf("%v", err)
	}

	fmt.Println(cryptox.EncodeKey(key))
}
