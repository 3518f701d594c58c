package roster

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// fingerprintDomain separates roster hashes from any other SHA-256 use.
// The version suffix allows the encoding to change later.
const fingerprintDomain = "rollcall/roster/v1"

// Fingerprint identifies a roster by content: SHA-256 over the domain, a
// 0x00 separator and the JSON encoding of records in order. Two rosters
// with the same members in a different order have different fingerprints.
func Fingerprint(records []Record) (string, error) {
	if records == nil {
		records = []Record{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("fingerprint roster: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(fingerprintDomain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}
