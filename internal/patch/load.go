// Package patch builds patch sets from proposal material: either a staging
// directory holding whole proposed files, or a unified diff applied against
// the live tree.
package patch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/crucible-project/crucible/pkg/model"
)

// LoadDir builds a patch set from a staging directory whose layout mirrors
// the live tree. Each staged file becomes new or modified depending on
// whether the path exists under liveRoot; _test.go files ride along as
// sandbox-only test files.
func LoadDir(stagingDir, liveRoot, description string) (*model.PatchSet, error) {
	patch := &model.PatchSet{
		ID:            model.NewPatchID(),
		Description:   description,
		NewFiles:      make(map[string]string),
		ModifiedFiles: make(map[string]string),
		TestFiles:     make(map[string]string),
		CreatedAt:     time.Now().UTC(),
	}

	err := filepath.WalkDir(stagingDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(stagingDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read staged file %s: %w", rel, err)
		}

		if strings.HasSuffix(rel, "_test.go") {
			patch.TestFiles[rel] = string(content)
			return nil
		}

		if _, err := os.Stat(filepath.Join(liveRoot, filepath.FromSlash(rel))); err == nil {
			patch.ModifiedFiles[rel] = string(content)
		} else if os.IsNotExist(err) {
			patch.NewFiles[rel] = string(content)
		} else {
			return fmt.Errorf("stat live file %s: %w", rel, err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk staging dir: %w", err)
	}

	if err := patch.Validate(); err != nil {
		return nil, err
	}
	return patch, nil
}
