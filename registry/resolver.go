package registry

import (
	"fmt"

	"golang.org/x/mod/module"
)

// ModuleResolver resolves a module identifier to its source tree root.
// Relative-path resolution is deliberately unsupported: this resolver
// requires every identifier to be a fully-resolved module path, validated
// the same way Go validates module paths, and rejects anything else
// outright rather than attempting relative resolution.
type ModuleResolver struct {
	roots map[string]string // validated module path -> filesystem/content root
}

func NewModuleResolver() *ModuleResolver {
	return &ModuleResolver{roots: map[string]string{}}
}

// Register associates a fully-resolved module path with a root. It
// rejects paths that are not valid module identifiers (module.CheckPath),
// which in particular rejects any relative form ("./foo", "../foo").
func (r *ModuleResolver) Register(modulePath, root string) error {
	if err := module.CheckPath(modulePath); err != nil {
		return fmt.Errorf("not a fully-resolved module identifier: %w", err)
	}
	r.roots[modulePath] = root
	return nil
}

// Resolve returns the root registered for modulePath, or an error if it
// is not a valid module identifier or has not been registered.
func (r *ModuleResolver) Resolve(modulePath string) (string, error) {
	if err := module.CheckPath(modulePath); err != nil {
		return "", fmt.Errorf("not a fully-resolved module identifier: %w", err)
	}
	root, ok := r.roots[modulePath]
	if !ok {
		return "", fmt.Errorf("unresolved module: %s", modulePath)
	}
	return root, nil
}
