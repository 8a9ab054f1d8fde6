package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainSnapshot = "crab/snapshot/v1"
	DomainInstance = "crab/instance/v1"
	DomainPayment  = "crab/payment/v1"
	DomainComp     = "crab/comp/v1"
	DomainCommand  = "crab/command/v1"
)

// checksumLength is the number of hex characters kept for snapshot checksums.
const checksumLength = 16

// HashWithDomain computes SHA256(domain + 0x00 + data) as lowercase hex.
// The null separator prevents domain/data boundary ambiguity.
func HashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Hash marshals v canonically and hashes it under domain.
func Hash(domain string, v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", domain, err)
	}
	return HashWithDomain(domain, data), nil
}

// ShortHash is Hash truncated to a checksum-sized prefix.
func ShortHash(domain string, v any) (string, error) {
	full, err := Hash(domain, v)
	if err != nil {
		return "", err
	}
	return full[:checksumLength], nil
}

// DeriveID returns a stable identifier for the n-th entity a command creates.
// Retrying a command with the same id yields the same identifiers.
func DeriveID(domain, commandID string, n int) string {
	data, err := Marshal(map[string]any{
		"command_id": commandID,
		"n":          n,
	})
	if err != nil {
		// Only strings and ints are marshaled above.
		panic(fmt.Sprintf("DeriveID: %v", err))
	}
	return HashWithDomain(domain, data)[:24]
}
