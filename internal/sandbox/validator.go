// Package sandbox validates proposed patch sets in an isolated copy of the
// live tree. Nothing the sandbox does can touch live files; the worst
// possible outcome of validation is a failed report.
package sandbox

import (
	"context"
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/crucible-project/crucible/pkg/config"
	"github.com/crucible-project/crucible/pkg/fsutil"
	"github.com/crucible-project/crucible/pkg/model"
)

// Validator materializes patch sets into throwaway sandboxes and runs the
// validation steps: parse, import resolution, lint, tests.
type Validator struct {
	liveRoot string
	cfg      config.SandboxConfig
}

// NewValidator creates a validator for the live tree rooted at liveRoot.
func NewValidator(liveRoot string, cfg config.SandboxConfig) *Validator {
	return &Validator{liveRoot: liveRoot, cfg: cfg}
}

// Validate runs the full validation sequence against a sandbox copy.
// The sandbox directory is removed on every exit path.
func (v *Validator) Validate(ctx context.Context, patch *model.PatchSet) (*model.ValidationResult, error) {
	start := time.Now()
	result := &model.ValidationResult{Pass: true}

	dir, err := os.MkdirTemp("", "crucible-sandbox-*")
	if err != nil {
		return nil, fmt.Errorf("create sandbox: %w", err)
	}
	defer os.RemoveAll(dir)

	if err := v.materialize(dir, patch); err != nil {
		return nil, fmt.Errorf("materialize sandbox: %w", err)
	}

	goFiles := sandboxGoFiles(patch)
	result.FilesChecked = len(goFiles)

	// A parse failure blocks the patch but only skips later steps for the
	// broken file; the remaining files still get the full sequence.
	parsed := v.parseStep(result, dir, goFiles)

	if err := v.importStep(ctx, result, dir, parsed); err != nil {
		return nil, err
	}

	v.lintStep(ctx, result, dir)

	if len(patch.TestFiles) > 0 {
		v.testStep(ctx, result, dir)
	}

	result.Duration = time.Since(start)
	return result, nil
}

// materialize copies the live tree into the sandbox, skipping state and VCS
// directories, then overlays the patch set's proposed and test files.
func (v *Validator) materialize(dir string, patch *model.PatchSet) error {
	err := filepath.WalkDir(v.liveRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(v.liveRoot, path)
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if rel != "." && (name == ".crucible" || name == ".git") {
				return filepath.SkipDir
			}
			return nil
		}
		return fsutil.CopyFile(path, filepath.Join(dir, rel), 0644)
	})
	if err != nil {
		return fmt.Errorf("copy live tree: %w", err)
	}

	overlay := func(files map[string]string) error {
		for rel, content := range files {
			dst := filepath.Join(dir, filepath.FromSlash(rel))
			if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
				return fmt.Errorf("create sandbox dir: %w", err)
			}
			if err := os.WriteFile(dst, []byte(content), 0644); err != nil {
				return fmt.Errorf("write sandbox file %s: %w", rel, err)
			}
		}
		return nil
	}
	if err := overlay(patch.NewFiles); err != nil {
		return err
	}
	if err := overlay(patch.ModifiedFiles); err != nil {
		return err
	}
	return overlay(patch.TestFiles)
}

// parseStep parses every patched Go file in parallel, declarations and
// bodies included, and records each broken file as a blocking error.
// Returns the import sets of the files that parsed.
func (v *Validator) parseStep(result *model.ValidationResult, dir string, goFiles []string) map[string][]string {
	type parseOutcome struct {
		imports []string
		err     error
	}
	outcomes := make([]parseOutcome, len(goFiles))

	var g errgroup.Group
	for i, rel := range goFiles {
		i, rel := i, rel
		g.Go(func() error {
			fset := token.NewFileSet()
			file, err := parser.ParseFile(fset, filepath.Join(dir, filepath.FromSlash(rel)), nil,
				parser.SkipObjectResolution|parser.AllErrors)
			if err != nil {
				outcomes[i] = parseOutcome{err: err}
				return nil
			}
			var imports []string
			for _, imp := range file.Imports {
				imports = append(imports, strings.Trim(imp.Path.Value, `"`))
			}
			outcomes[i] = parseOutcome{imports: imports}
			return nil
		})
	}
	g.Wait()

	parsed := make(map[string][]string)
	for i, rel := range goFiles {
		if outcomes[i].err != nil {
			result.AddError("parse", rel, outcomes[i].err.Error())
			continue
		}
		parsed[rel] = outcomes[i].imports
	}
	return parsed
}

// sandboxGoFiles returns every Go file the patch set introduces into the
// sandbox, including sandbox-only test files, sorted.
func sandboxGoFiles(patch *model.PatchSet) []string {
	var files []string
	for _, rel := range patch.Paths() {
		if strings.HasSuffix(rel, ".go") {
			files = append(files, rel)
		}
	}
	for rel := range patch.TestFiles {
		if strings.HasSuffix(rel, ".go") {
			files = append(files, rel)
		}
	}
	sort.Strings(files)
	return files
}
