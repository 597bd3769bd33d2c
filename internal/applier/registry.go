package applier

import (
	"context"
	"sort"
	"strings"
)

// ReloadFunc reloads one named unit.
type ReloadFunc func(ctx context.Context, unit string) error

// PrefixRegistry maps live-tree path prefixes to unit names. The longest
// matching prefix wins, so internal/unit/sub can belong to a different unit
// than internal/unit.
type PrefixRegistry struct {
	prefixes map[string]string
	reload   ReloadFunc
}

// NewPrefixRegistry builds a registry from a prefix-to-unit map and a reload
// hook.
func NewPrefixRegistry(prefixes map[string]string, reload ReloadFunc) *PrefixRegistry {
	return &PrefixRegistry{prefixes: prefixes, reload: reload}
}

// Lookup returns the unit owning the longest prefix of targetPath.
func (r *PrefixRegistry) Lookup(targetPath string) (string, bool) {
	keys := make([]string, 0, len(r.prefixes))
	for prefix := range r.prefixes {
		keys = append(keys, prefix)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })

	for _, prefix := range keys {
		if targetPath == prefix || strings.HasPrefix(targetPath, prefix+"/") {
			return r.prefixes[prefix], true
		}
	}
	return "", false
}

// Reload invokes the reload hook.
func (r *PrefixRegistry) Reload(ctx context.Context, unit string) error {
	if r.reload == nil {
		return nil
	}
	return r.reload(ctx, unit)
}
