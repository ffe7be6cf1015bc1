// Package utils provides small helpers shared across the cache layer,
// primarily cryptographically secure ID generation for lock tokens and
// sliding-window nonces.
package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// GenerateRandomID generates a cryptographically secure random hex ID.
//
// Creates a random ID of the specified length using crypto/rand. The
// resulting string contains hexadecimal characters (0-9, a-f). Each byte
// produces 2 hex characters, so length/2 bytes are generated; for odd
// lengths the result is 1 character shorter.
func GenerateRandomID(length int) (string, error) {
	bytes := make([]byte, length/2)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// GenerateLockToken generates an opaque token identifying a lock holder.
//
// The token is a 32-character random hex string. A holder may only release
// a lock while the stored token still matches the one it was issued.
func GenerateLockToken() (string, error) {
	token, err := GenerateRandomID(32)
	if err != nil {
		return "", fmt.Errorf("failed to generate lock token: %w", err)
	}
	return token, nil
}

// GenerateNonce generates a short random hex nonce. Used to keep
// sliding-window rate limit members unique when two requests share a
// timestamp.
func GenerateNonce() (string, error) {
	return GenerateRandomID(12)
}

// MustGenerateNonce generates a nonce or panics on failure.
//
// Nonce generation only fails when the system random number generator is
// broken, which is not a recoverable condition.
func MustGenerateNonce() string {
	nonce, err := GenerateNonce()
	if err != nil {
		panic(fmt.Sprintf("failed to generate nonce: %v", err))
	}
	return nonce
}
