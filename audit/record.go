package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// Record is one hash-chained audit entry. Canonical
// field order within the JSON form matches exactly:
// sequence, timestamp_utc, prev_hash, event_kind, details, integrity.
type Record struct {
	Sequence uint64 `json:"sequence"`
	TimestampUTC string `json:"timestamp_utc"`
	PrevHash string `json:"prev_hash"`
	EventKind string `json:"event_kind"`
	Details map[string]interface{} `json:"details"`
	Integrity string `json:"integrity"`
}

// canonicalForm returns the deterministic byte form of r used both to
// compute its own integrity field and to compute the prev_hash the next
// record chains from. It omits Integrity itself (which is derived from
// this form), and serializes Details with sorted keys via json.Marshal's
// own map-key-sorting guarantee.
func (r Record) canonicalForm() ([]byte, error) {
	type canonical struct {
		Sequence uint64 `json:"sequence"`
		TimestampUTC string `json:"timestamp_utc"`
		PrevHash string `json:"prev_hash"`
		EventKind string `json:"event_kind"`
		Details map[string]interface{} `json:"details"`
	}
	return json.Marshal(canonical{r.Sequence, r.TimestampUTC, r.PrevHash, r.EventKind, r.Details})
}

// hashRecord computes SHA-256 over r's canonical form.
func hashRecord(r Record) (string, error) {
	b, err := r.canonicalForm()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return fmt.Sprintf("%x", sum), nil
}

// hmacRecord computes HMAC-SHA256 over r's canonical form, keyed by key.
func hmacRecord(r Record, key []byte) (string, error) {
	b, err := r.canonicalForm()
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(b)
	return fmt.Sprintf("%x", mac.Sum(nil)), nil
}
