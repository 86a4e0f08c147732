package utils

import (
	"crypto/rand"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// HashPassword hashes a plain password using bcrypt.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPassword compares plain password with hashed password.
func CheckPassword(plain, hashed string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
	return err == nil
}

// GenerateActivationCode returns a 12-character uppercase alphanumeric code.
func GenerateActivationCode() string {
	return randomString(12)
}

// GenerateTransactionID returns a transaction reference like TXN-ABC123....
func GenerateTransactionID() string {
	return "TXN-" + randomString(16)
}

func randomString(n int) string {
	out := make([]byte, n)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails when the platform entropy source is
			// broken; fall back to a fixed character rather than panic.
			out[i] = codeAlphabet[0]
			continue
		}
		out[i] = codeAlphabet[idx.Int64()]
	}
	return string(out)
}
