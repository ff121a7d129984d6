package tool

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

// GeneratePortalID returns an 8-digit numeric portal login identifier.
// The first digit is never zero so the ID survives lossy integer handling
// in downstream systems.
func GeneratePortalID() (string, error) {
	first, err := rand.Int(rand.Reader, big.NewInt(9))
	if err != nil {
		return "", fmt.Errorf("generate portal id: %w", err)
	}
	rest, err := rand.Int(rand.Reader, big.NewInt(10_000_000))
	if err != nil {
		return "", fmt.Errorf("generate portal id: %w", err)
	}
	return fmt.Sprintf("%d%07d", first.Int64()+1, rest.Int64()), nil
}

// GeneratePIN returns a 6-digit numeric PIN, zero-padded.
func GeneratePIN() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate pin: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// HashPIN hashes a PIN with bcrypt at the default cost.
func HashPIN(pin string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash pin: %w", err)
	}
	return string(h), nil
}

// CheckPIN reports whether pin matches the bcrypt hash.
func CheckPIN(hash, pin string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) == nil
}
