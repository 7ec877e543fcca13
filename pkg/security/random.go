package security

import (
	"crypto/rand"
	"errors"
)

const randomAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// RandomString returns length characters from [a-z0-9]. Object keys for
// uploads use it as a collision-resistant suffix.
func RandomString(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("length must be positive")
	}
	// 252 is the largest multiple of 36 below 256; higher bytes are redrawn
	// so every character is equally likely.
	const limit = 252
	out := make([]byte, 0, length)
	buf := make([]byte, length)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, randomAlphabet[int(b)%len(randomAlphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}
