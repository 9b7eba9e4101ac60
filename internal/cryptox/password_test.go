package cryptox

import "testing"

func countNonAlnum(s string) int {
	n := 0
	for _, r := range s {
		if !('a' <= r && r <= 'z' || 'A' <= r && r <= 'Z' || '0' <= r && r <= '9') {
			n++
		}
	}
	return n
}

func TestRandomPassword_LengthAndSymbols(t *testing.T) {
	for i := 0; i < 10; i++ {
		p := RandomPassword(14, 3)
		if len(p) != 14 {
			t.Fatalf("expected length 14, got %d (%q)", len(p), p)
		}
		if got := countNonAlnum(p); got < 3 {
			t.Fatalf("expected at least 3 symbols, got %d (%q)", got, p)
		}
	}
}

func TestRandomPassword_MinimumsClamped(t *testing.T) {
	p := RandomPassword(0, 5)
	if len(p) != 1 {
		t.Fatalf("expected clamped length 1, got %d", len(p))
	}
}

func TestRandomPassword_NonDeterministic(t *testing.T) {
	if RandomPassword(20, 2) == RandomPassword(20, 2) {
		t.Fatalf("two generated passwords are identical")
	}
}
