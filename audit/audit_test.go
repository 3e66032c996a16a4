package audit

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	records []Record
}

func (m *memStore) Append(r Record) error          { m.records = append(m.records, r); return nil }
func (m *memStore) All() ([]Record, error)         { return append([]Record(nil), m.records...), nil }
func (m *memStore) Rotate(lastHash string) error   { return nil }
func (m *memStore) SizeBytes() (int64, error)      { return 0, nil }

func TestVerifyIntactAfterLegitimateRecords(t *testing.T) {
	log, err := New(&memStore{})
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		_, err := log.Record("test.event", map[string]interface{}{"i": i})
		require.NoError(t, err)
	}

	result, err := log.Verify()
	require.NoError(t, err)
	assert.True(t, result.Intact)
}

func TestVerifyDetectsTamperingAtSequence(t *testing.T) {
	store := &memStore{}
	log, err := New(store)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_, err := log.Record("test.event", map[string]interface{}{"i": i})
		require.NoError(t, err)
	}

	// Tamper with record 5's details directly in the backing store.
	store.records[5].Details["i"] = 999999

	result, err := log.Verify()
	require.NoError(t, err)
	assert.False(t, result.Intact)
	assert.Equal(t, uint64(5), result.BrokenAt)
}

func TestSequenceNumbersMonotonic(t *testing.T) {
	log, err := New(&memStore{})
	require.NoError(t, err)

	seq1, err := log.Record("a", nil)
	require.NoError(t, err)
	seq2, err := log.Record("b", nil)
	require.NoError(t, err)
	assert.Equal(t, seq1+1, seq2)
}

func TestHMACKeying(t *testing.T) {
	log, err := New(&memStore{}, WithHMACKey([]byte("secret")))
	require.NoError(t, err)

	_, err = log.Record("a", nil)
	require.NoError(t, err)

	result, err := log.Verify()
	require.NoError(t, err)
	assert.True(t, result.Intact)
}

func TestFileStoreRoundTripAndRotation(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, 5)
	require.NoError(t, err)

	log, err := New(store, WithRotation(1, 5)) // rotate aggressively for the test
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		_, err := log.Record("test.event", map[string]interface{}{"i": i})
		require.NoError(t, err)
	}

	result, err := log.Verify()
	require.NoError(t, err)
	assert.True(t, result.Intact)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}

func TestCanonicalFieldOrder(t *testing.T) {
	r := Record{Sequence: 1, TimestampUTC: "t", PrevHash: "p", EventKind: "k", Details: map[string]interface{}{"a": 1}, Integrity: "i"}
	b, err := json.Marshal(r)
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &m))

	// field order in the canonical form is checked structurally via the
	// json struct tag order declared on Record; here we just assert the
	// full set of fields round-trips.
	for _, field := range []string{"sequence", "timestamp_utc", "prev_hash", "event_kind", "details", "integrity"} {
		_, ok := m[field]
		assert.True(t, ok, "missing field %s", field)
	}
}
