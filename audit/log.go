// Package audit implements a tamper-evident, hash-chained audit log: an
// append-only record store where each record's integrity field covers
// every prior field, and each record's prev_hash points at the previous
// record's integrity field, so any mutation of history breaks the chain.
package audit

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

// VerifyResult is the outcome of replaying the chain.
type VerifyResult struct {
	Intact   bool
	BrokenAt uint64 // only meaningful if !Intact
}

// Store is the durable backing a Log writes to and reads from. A
// file-backed implementation lives in rotate.go; tests may use an
// in-memory Store.
type Store interface {
	Append(r Record) error
	All() ([]Record, error)
	// Rotate starts a new underlying file. lastHash is the integrity field
	// of the last record written so far: the genesis back-reference for
	// the new file.
	Rotate(lastHash string) error
	SizeBytes() (int64, error)
}

// Log is the hash-chained audit log. Writers are serialized by mu;
// ordering across concurrent callers is by arrival at that serialization
// point.
type Log struct {
	mu       sync.Mutex
	store    Store
	hmacKey  []byte // nil disables HMAC keying; a plain hash is used instead
	lastHash string
	nextSeq  uint64
	clock    clock.Clock
	maxBytes int64
	kept     int // number of rotated files to retain (informational; Store enforces it)
}

// Option configures a new Log.
type Option func(*Log)

// WithHMACKey enables HMAC-SHA256 keying of every record's integrity
// field instead of a plain hash.
func WithHMACKey(key []byte) Option {
	return func(l *Log) { l.hmacKey = key }
}

// WithClock injects a clock, primarily for deterministic tests.
func WithClock(c clock.Clock) Option {
	return func(l *Log) { l.clock = c }
}

// WithRotation sets the byte threshold at which Record triggers an
// automatic Rotate. keep is recorded on the Log for reference only; how
// many rotated files survive is decided by the Store (for FileStore, the
// retain argument of NewFileStore).
func WithRotation(maxBytes int64, keep int) Option {
	return func(l *Log) { l.maxBytes = maxBytes; l.kept = keep }
}

func New(store Store, opts ...Option) (*Log, error) {
	l := &Log{store: store, clock: clock.New(), maxBytes: 10 * 1024 * 1024, kept: 5}
	for _, opt := range opts {
		opt(l)
	}

	existing, err := store.All()
	if err != nil {
		return nil, fmt.Errorf("loading existing audit records: %w", err)
	}
	if len(existing) > 0 {
		last := existing[len(existing)-1]
		l.lastHash = last.Integrity
		l.nextSeq = last.Sequence + 1
	}
	return l, nil
}

// Record appends a new entry and returns its sequence number.
func (l *Log) Record(eventKind string, details map[string]interface{}) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r := Record{
		Sequence:     l.nextSeq,
		TimestampUTC: l.clock.Now().UTC().Format(time.RFC3339Nano),
		PrevHash:     l.lastHash,
		EventKind:    eventKind,
		Details:      withCorrelationID(details),
	}

	integrity, err := l.integrityFor(r)
	if err != nil {
		return 0, fmt.Errorf("computing integrity field: %w", err)
	}
	r.Integrity = integrity

	if err := l.store.Append(r); err != nil {
		return 0, fmt.Errorf("appending audit record: %w", err)
	}

	l.lastHash = r.Integrity
	l.nextSeq++

	if l.maxBytes > 0 {
		if size, err := l.store.SizeBytes(); err == nil && size >= l.maxBytes {
			_ = l.rotateLocked()
		}
	}

	return r.Sequence, nil
}

func (l *Log) integrityFor(r Record) (string, error) {
	if l.hmacKey != nil {
		return hmacRecord(r, l.hmacKey)
	}
	return hashRecord(r)
}

func withCorrelationID(details map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(details)+1)
	for k, v := range details {
		out[k] = v
	}
	if _, ok := out["correlation_id"]; !ok {
		out["correlation_id"] = uuid.NewString()
	}
	return out
}

// Rotate starts a new file, chaining it to the current file via the
// genesis back-reference.
func (l *Log) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rotateLocked()
}

func (l *Log) rotateLocked() error {
	return l.store.Rotate(l.lastHash)
}

// Verify replays the entire chain and reports whether it is intact, or
// the sequence number at which it first breaks.
func (l *Log) Verify() (VerifyResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.store.All()
	if err != nil {
		return VerifyResult{}, err
	}

	prevHash := ""
	if len(records) > 0 && records[0].Sequence > 0 {
		// Retention has dropped the files holding earlier records; the
		// oldest retained record's back-reference anchors the replay.
		prevHash = records[0].PrevHash
	}
	for _, r := range records {
		if r.PrevHash != prevHash {
			return VerifyResult{Intact: false, BrokenAt: r.Sequence}, nil
		}
		want, err := l.integrityFor(Record{
			Sequence: r.Sequence, TimestampUTC: r.TimestampUTC, PrevHash: r.PrevHash,
			EventKind: r.EventKind, Details: r.Details,
		})
		if err != nil {
			return VerifyResult{}, err
		}
		if want != r.Integrity {
			return VerifyResult{Intact: false, BrokenAt: r.Sequence}, nil
		}
		prevHash = r.Integrity
	}
	return VerifyResult{Intact: true}, nil
}

// Since returns every record with sequence >= seq.
func (l *Log) Since(seq uint64) ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	all, err := l.store.All()
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0)
	for _, r := range all {
		if r.Sequence >= seq {
			out = append(out, r)
		}
	}
	return out, nil
}

// EventsOfKind filters the log to a single event_kind.
func (l *Log) EventsOfKind(kind string) ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	all, err := l.store.All()
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0)
	for _, r := range all {
		if r.EventKind == kind {
			out = append(out, r)
		}
	}
	return out, nil
}
