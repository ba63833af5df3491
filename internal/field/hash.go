package field

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainJournal separates journal entry ids from any other hash use.
const DomainJournal = "stagehand/journal/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// JournalID computes the content-addressed id of a journal entry.
// The same unit, sequence, operation, row and patch always produce the same
// id.
func JournalID(unit string, seq int64, op, table string, rowID int64, patch Patch) (string, error) {
	obj := map[string]any{
		"unit":   unit,
		"seq":    seq,
		"op":     op,
		"table":  table,
		"row_id": rowID,
	}
	if patch != nil {
		obj["patch"] = patch
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("JournalID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainJournal, canonical), nil
}
