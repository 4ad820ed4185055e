package common

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// FingerprintPrefix starts the fingerprint line of generated files.
const FingerprintPrefix = "// aotkit:fingerprint "

// Fingerprint hashes the JSON encoding of v with BLAKE2b-256. Equal scan
// results give equal fingerprints, so a stale generated file can be detected
// without rendering it again.
func Fingerprint(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode: %w", err)
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
