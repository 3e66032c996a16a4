package sandbox

import (
	"fmt"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// checkPathAllowed canonicalizes target (resolving symlinks where
// possible) and requires the canonical path to match at least one glob
// pattern in cfg.AllowedPaths. An empty allow list denies everything.
func checkPathAllowed(cfg Config, target string) error {
	if cfg.Level == Unrestricted {
		return nil
	}
	canon, err := canonicalize(target)
	if err != nil {
		return fmt.Errorf("cannot canonicalize path %q: %w", target, err)
	}
	for _, pattern := range cfg.AllowedPaths {
		ok, err := doublestar.PathMatch(pattern, canon)
		if err == nil && ok {
			return nil
		}
		// Also allow the pattern to match as a path prefix for the common
		// "/tmp/**" style entries when PathMatch's glob semantics don't
		// directly apply (e.g. the target is exactly "/tmp").
		if prefix, matched := globPrefix(pattern); matched && isUnderPrefix(canon, prefix) {
			return nil
		}
	}
	return fmt.Errorf("path %q is not within any allowed path", canon)
}

// globPrefix extracts the literal directory prefix from a "dir/**"
// pattern, so that the directory itself (not just its descendants)
// is considered allowed.
func globPrefix(pattern string) (string, bool) {
	const suffix = "/**"
	if len(pattern) > len(suffix) && pattern[len(pattern)-len(suffix):] == suffix {
		return pattern[:len(pattern)-len(suffix)], true
	}
	return "", false
}

func isUnderPrefix(path, prefix string) bool {
	rel, err := filepath.Rel(prefix, path)
	if err != nil {
		return false
	}
	return rel == "." || (len(rel) > 0 && rel[0] != '.')
}

// canonicalize resolves target to an absolute, symlink-free path. If the
// path does not yet exist (e.g. a file about to be created), it resolves
// as much of the path as exists and joins the remainder, matching the
// common "canonicalize the existing ancestor, then append" approach used
// for write-target validation.
func canonicalize(target string) (string, error) {
	abs, err := filepath.Abs(target)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return resolved, nil
	}
	// Path (or an ancestor) doesn't exist yet: walk up until we find an
	// ancestor that does, resolve that, and re-append the rest.
	dir := filepath.Dir(abs)
	base := filepath.Base(abs)
	for dir != "/" && dir != "." {
		if resolvedDir, derr := filepath.EvalSymlinks(dir); derr == nil {
			return filepath.Join(resolvedDir, base), nil
		}
		base = filepath.Join(filepath.Base(dir), base)
		dir = filepath.Dir(dir)
	}
	return abs, nil
}
