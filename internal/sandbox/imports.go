package sandbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/mod/modfile"

	"github.com/crucible-project/crucible/pkg/model"
)

// importStep checks that every import of the patched files resolves to the
// standard library, the sandbox module itself, or a declared requirement.
// Unresolved imports get one bounded remediation attempt before becoming
// blocking errors.
func (v *Validator) importStep(ctx context.Context, result *model.ValidationResult, dir string, parsed map[string][]string) error {
	mod, err := readModFile(dir)
	if err != nil {
		return err
	}
	if mod == nil {
		// Not a module; nothing to resolve against.
		return nil
	}

	missing := v.missingImports(mod, parsed)
	if len(missing) == 0 {
		return nil
	}

	if len(v.cfg.RemediateCommand) > 0 {
		// One attempt, never a loop.
		args := append([]string(nil), v.cfg.RemediateCommand[1:]...)
		args = append(args, missing...)
		if _, err := runCommand(ctx, dir, v.cfg.RemediateCommand[0], args...); err != nil {
			result.AddWarning("remediate", "", fmt.Sprintf("dependency remediation failed: %v", err))
		} else if mod, err = readModFile(dir); err != nil {
			return err
		} else {
			still := v.missingImports(mod, parsed)
			for _, imp := range missing {
				if !contains(still, imp) {
					result.Remediated = append(result.Remediated, imp)
				}
			}
			missing = still
		}
	}

	for _, imp := range missing {
		for rel, imports := range parsed {
			if contains(imports, imp) {
				result.AddError("imports", rel, fmt.Sprintf("import %s is not provided by the module or its requirements", imp))
				break
			}
		}
	}
	return nil
}

// missingImports returns the imports not satisfied by the standard library,
// the module path, or its requirements, sorted.
func (v *Validator) missingImports(mod *modfile.File, parsed map[string][]string) []string {
	modPath := ""
	if mod.Module != nil {
		modPath = mod.Module.Mod.Path
	}

	seen := make(map[string]bool)
	var missing []string
	for _, imports := range parsed {
		for _, imp := range imports {
			if seen[imp] {
				continue
			}
			seen[imp] = true
			if isStdlibImport(imp) {
				continue
			}
			if modPath != "" && (imp == modPath || strings.HasPrefix(imp, modPath+"/")) {
				continue
			}
			if satisfiedByRequire(mod, imp) {
				continue
			}
			missing = append(missing, imp)
		}
	}
	sort.Strings(missing)
	return missing
}

func satisfiedByRequire(mod *modfile.File, imp string) bool {
	for _, req := range mod.Require {
		p := req.Mod.Path
		if imp == p || strings.HasPrefix(imp, p+"/") {
			return true
		}
	}
	return false
}

// isStdlibImport uses the import path shape: standard library paths have no
// dot in their first element.
func isStdlibImport(imp string) bool {
	first := imp
	if idx := strings.IndexByte(imp, '/'); idx >= 0 {
		first = imp[:idx]
	}
	return !strings.Contains(first, ".")
}

func readModFile(dir string) (*modfile.File, error) {
	data, err := os.ReadFile(filepath.Join(dir, "go.mod"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read sandbox go.mod: %w", err)
	}
	mod, err := modfile.Parse("go.mod", data, nil)
	if err != nil {
		return nil, fmt.Errorf("parse sandbox go.mod: %w", err)
	}
	return mod, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
