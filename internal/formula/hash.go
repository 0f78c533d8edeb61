package formula

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-derived identity.
// The version suffix allows migrating the algorithm later.
const (
	DomainFormula = "lens/formula/v1"
	DomainSlice   = "lens/slice/v1"
	DomainQuery   = "lens/query/v1"
)

// HashWithDomain computes SHA-256 over domain + 0x00 + data.
// The null byte separator prevents domain/data boundary ambiguity.
func HashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// HashCanonical hashes the canonical encoding of a structural value.
func HashCanonical(domain string, v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", domain, err)
	}
	return HashWithDomain(domain, canonical), nil
}

// Hash returns the structural identity of n. Equal hashes mean
// interchangeable subtrees.
func Hash(n Node) string {
	h, err := HashCanonical(DomainFormula, Encode(n))
	if err != nil {
		// Encode never produces non-canonical values.
		panic(err)
	}
	return h
}

// Equal reports whether a and b are structurally identical.
func Equal(a, b Node) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return Hash(a) == Hash(b)
}
