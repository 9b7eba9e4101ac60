package cryptox

import (
	"crypto/rand"
	"math/big"
)

const (
	passwordAlnum   = "abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	passwordSymbols = "!@#$%^&*()-_=+"
)

// RandomPassword generates a password of the given length containing at
// least minNonAlnum symbol characters, for use by password reset.
func RandomPassword(length, minNonAlnum int) string {
	if length < 1 {
		length = 1
	}
	if minNonAlnum > length {
		minNonAlnum = length
	}

	buf := make([]byte, length)
	for i := range buf {
		if i < minNonAlnum {
			buf[i] = passwordSymbols[randIndex(len(passwordSymbols))]
		} else {
			buf[i] = passwordAlnum[randIndex(len(passwordAlnum))]
		}
	}

	// Fisher-Yates so the symbols are not clustered at the front.
	for i := len(buf) - 1; i > 0; i-- {
		j := randIndex(i + 1)
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf)
}

func randIndex(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic(err)
	}
	return int(v.Int64())
}
