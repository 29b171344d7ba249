package link

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	tokenAlphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	minTokenLength  = 7
	defaultTokenLen = 10
)

var alphabetSize = big.NewInt(int64(len(tokenAlphabet)))

// generateToken draws n characters uniformly from the 62-character alphabet.
// Lengths below the minimum are raised to it.
func generateToken(n int) (string, error) {
	if n < minTokenLength {
		n = minTokenLength
	}
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", fmt.Errorf("generate token: %w", err)
		}
		out[i] = tokenAlphabet[idx.Int64()]
	}
	return string(out), nil
}
