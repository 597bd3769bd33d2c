package model

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// PatchID is the unique identifier for a patch set: <unix_ms>-<rand8hex>
type PatchID string

// NewPatchID generates a new unique patch set ID.
func NewPatchID() PatchID {
	ts := time.Now().UnixMilli()
	var randBytes [4]byte
	if _, err := rand.Read(randBytes[:]); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return PatchID(fmt.Sprintf("%013d-%s", ts, hex.EncodeToString(randBytes[:])))
}

// ShortID returns the first 8 characters for display.
func (id PatchID) ShortID() string {
	s := string(id)
	if len(s) >= 8 {
		return s[:8]
	}
	return s
}

// String returns the full patch ID as string.
func (id PatchID) String() string {
	return string(id)
}

// PatchSet is the atomic unit of proposed change: whole-file contents keyed
// by relative target path. A path never appears in both NewFiles and
// ModifiedFiles. Immutable once classified.
type PatchSet struct {
	ID            PatchID           `json:"id"`
	Description   string            `json:"description,omitempty"`
	NewFiles      map[string]string `json:"new_files,omitempty"`
	ModifiedFiles map[string]string `json:"modified_files,omitempty"`
	// TestFiles carries accompanying test code to execute in the sandbox.
	// Test files are materialized in the sandbox but never written to the
	// live tree.
	TestFiles map[string]string `json:"test_files,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Validate checks the patch set invariants: at least one file, clean relative
// paths, and no path present in both maps.
func (p *PatchSet) Validate() error {
	if len(p.NewFiles) == 0 && len(p.ModifiedFiles) == 0 {
		return fmt.Errorf("patch set %s contains no files", p.ID)
	}
	for path := range p.NewFiles {
		if err := validateRelPath(path); err != nil {
			return err
		}
		if _, dup := p.ModifiedFiles[path]; dup {
			return fmt.Errorf("path %s appears in both new and modified sets", path)
		}
	}
	for path := range p.ModifiedFiles {
		if err := validateRelPath(path); err != nil {
			return err
		}
	}
	for path := range p.TestFiles {
		if err := validateRelPath(path); err != nil {
			return err
		}
	}
	return nil
}

// Paths returns every live-tree target path in the patch set, sorted.
func (p *PatchSet) Paths() []string {
	paths := make([]string, 0, len(p.NewFiles)+len(p.ModifiedFiles))
	for path := range p.NewFiles {
		paths = append(paths, path)
	}
	for path := range p.ModifiedFiles {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Content returns the proposed content for a target path.
func (p *PatchSet) Content(path string) (string, bool) {
	if c, ok := p.NewFiles[path]; ok {
		return c, true
	}
	c, ok := p.ModifiedFiles[path]
	return c, ok
}

// IsNew reports whether the path is introduced by this patch set.
func (p *PatchSet) IsNew(path string) bool {
	_, ok := p.NewFiles[path]
	return ok
}

func validateRelPath(path string) error {
	if path == "" {
		return fmt.Errorf("empty target path")
	}
	if filepath.IsAbs(path) {
		return fmt.Errorf("target path must be relative: %s", path)
	}
	clean := filepath.ToSlash(filepath.Clean(path))
	if clean != filepath.ToSlash(path) {
		return fmt.Errorf("target path must be clean: %s", path)
	}
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("target path escapes the live tree: %s", path)
	}
	return nil
}
