// Package cache implements the code cache: a fingerprint->compiled-
// artifact store with at-most-one-concurrent-build-per-fingerprint,
// on-disk persistence surviving process restart, and a process-lifetime
// negative cache for compile failures.
package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"
)

// ArtifactKind distinguishes the two shapes a Compiled Artifact can take.
type ArtifactKind int

const (
	KindCompiled ArtifactKind = iota
	KindInterpreted
)

// Artifact is the code cache's value type.
type Artifact struct {
	Language    string
	Fingerprint string
	Kind        ArtifactKind

	// Compiled languages (cpp, rust, csharp).
	LibraryPath string
	Symbol      string

	// Interpreted languages (python, javascript): an opaque compiled
	// handle plus an identifier for the executor instance that produced
	// it, since such handles are confined to their producing executor.
	Handle            interface{}
	ProducingExecutor string

	CreatedAt  time.Time
	SourceSize int
	ABIVersion int
}

// BuildFunc compiles source for language from scratch. It is invoked at
// most once per fingerprint concurrently.
type BuildFunc func(ctx context.Context, language, canonicalSource string) (Artifact, error)

// Cache is the fingerprint-keyed code cache.
type Cache struct {
	group    singleflight.Group
	manifest ManifestStore
	metrics  *Metrics

	mu         sync.Mutex
	negative   map[string]error // process-lifetime only, never persisted
	precheck   map[uint64]string // xxhash(language,source,abiVersion) -> fingerprint
	abiVersion int
}

func New(manifest ManifestStore, abiVersion int, metrics *Metrics) *Cache {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Cache{manifest: manifest, negative: map[string]error{}, precheck: map[uint64]string{}, abiVersion: abiVersion, metrics: metrics}
}

// Canonicalize normalizes source text so that cache_key(s,L)==cache_key(s',L)
// iff canonicalize(s)==canonicalize(s'): normalize line endings and strip
// trailing whitespace per line, since those differences never change
// program behavior for any supported language.
func Canonicalize(source string) string {
	lines := strings.Split(strings.ReplaceAll(source, "\r\n", "\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	return strings.Join(lines, "\n")
}

// Fingerprint computes the cache key: SHA-256 over
// (language, canonicalized_source, abi_version).
func Fingerprint(language, source string, abiVersion int) string {
	canon := Canonicalize(source)
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%d", language, canon, abiVersion)
	return fmt.Sprintf("%x", h.Sum(nil))
}

// precheckHash computes a fast, non-cryptographic hash used to
// short-circuit the common case of "this exact source object was already
// looked up in this process" before paying for a fresh SHA-256. It never
// substitutes for the SHA-256 fingerprint itself, which remains the
// persisted cache key; Cache.precheck only memoizes the hash->fingerprint
// mapping so a repeat lookup of the same (language, source, abiVersion)
// skips recomputing the SHA-256.
func precheckHash(language, source string, abiVersion int) uint64 {
	h := xxhash.New()
	fmt.Fprintf(h, "%s\x00%s\x00%d", language, source, abiVersion)
	return h.Sum64()
}

// fingerprintOf returns the cache fingerprint for (language, source),
// consulting c.precheck first so that repeated lookups of byte-identical
// source text skip the SHA-256 recompute. Like any 64-bit hash index this
// trusts xxhash to not collide across the sources a process actually
// sees; it is a hot-path shortcut, not a security boundary.
func (c *Cache) fingerprintOf(language, source string) string {
	ph := precheckHash(language, source, c.abiVersion)
	c.mu.Lock()
	fp, ok := c.precheck[ph]
	c.mu.Unlock()
	if ok {
		return fp
	}
	fp = Fingerprint(language, source, c.abiVersion)
	c.mu.Lock()
	c.precheck[ph] = fp
	c.mu.Unlock()
	return fp
}

// GetOrBuild returns the cached artifact for (language, source) if one
// exists and is valid, else builds exactly one artifact for that
// fingerprint even under concurrent callers, and caches compile failures
// negatively for the remaining process lifetime.
func (c *Cache) GetOrBuild(ctx context.Context, language, source string, build BuildFunc) (Artifact, error) {
	fp := c.fingerprintOf(language, source)

	c.mu.Lock()
	if err, failed := c.negative[fp]; failed {
		c.mu.Unlock()
		c.metrics.RecordHit(language, true)
		return Artifact{}, err
	}
	c.mu.Unlock()

	if art, ok, err := c.manifest.Load(fp, c.abiVersion); err != nil {
		return Artifact{}, err
	} else if ok {
		c.metrics.RecordHit(language, false)
		return art, nil
	}

	v, err, _ := c.group.Do(fp, func() (interface{}, error) {
		start := time.Now()
		art, buildErr := build(ctx, language, Canonicalize(source))
		c.metrics.ObserveCompile(language, time.Since(start))
		if buildErr != nil {
			c.mu.Lock()
			c.negative[fp] = buildErr
			c.mu.Unlock()
			c.metrics.RecordMiss(language, true)
			return Artifact{}, buildErr
		}
		art.Fingerprint = fp
		art.ABIVersion = c.abiVersion
		art.CreatedAt = time.Now()
		art.SourceSize = len(source)
		if saveErr := c.manifest.Save(art); saveErr != nil {
			return Artifact{}, saveErr
		}
		c.metrics.RecordMiss(language, false)
		return art, nil
	})
	if err != nil {
		return Artifact{}, err
	}
	return v.(Artifact), nil
}

// Sweep evicts every cached artifact.
func (c *Cache) Sweep() error {
	c.mu.Lock()
	c.negative = map[string]error{}
	c.mu.Unlock()
	return c.manifest.Clear()
}

// EvictLRU enforces a byte budget by evicting least-recently-used
// artifacts until the budget is satisfied.
func (c *Cache) EvictLRU(maxBytes int64) error {
	return c.manifest.EvictLRU(maxBytes)
}
