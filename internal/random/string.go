package random

import "crypto/rand"

// letters has exactly 64 entries so a byte masked to 6 bits indexes it without
// bias.
const letters = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-_"

// Generator returns a function producing random strings of length n, for
// passing to things that need fresh keys.
func Generator(n int) func() (string, error) {
	return func() (string, error) {
		return String(n)
	}
}

// String returns a random URL-safe string of length n using crypto/rand.
func String(n int) (string, error) {
	bytes := make([]byte, n)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	for i, b := range bytes {
		bytes[i] = letters[b&63]
	}
	return string(bytes), nil
}
