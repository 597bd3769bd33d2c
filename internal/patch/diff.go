package patch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/crucible-project/crucible/pkg/errclass"
	"github.com/crucible-project/crucible/pkg/model"
)

const devNull = "/dev/null"

// LoadUnifiedDiff parses a unified diff and applies its hunks against the
// live tree to produce whole-file proposed content. File deletions are
// rejected; a patch set only carries content to write.
func LoadUnifiedDiff(data []byte, liveRoot, description string) (*model.PatchSet, error) {
	fileDiffs, err := diff.ParseMultiFileDiff(data)
	if err != nil {
		return nil, fmt.Errorf("parse unified diff: %w", err)
	}
	if len(fileDiffs) == 0 {
		return nil, fmt.Errorf("diff contains no files")
	}

	patch := &model.PatchSet{
		ID:            model.NewPatchID(),
		Description:   description,
		NewFiles:      make(map[string]string),
		ModifiedFiles: make(map[string]string),
		CreatedAt:     time.Now().UTC(),
	}

	for _, fd := range fileDiffs {
		if fd.NewName == devNull {
			return nil, errclass.ErrPatchConflict.WithMessagef(
				"diff deletes %s: deletions are not supported", stripPrefix(fd.OrigName))
		}
		rel := stripPrefix(fd.NewName)

		if fd.OrigName == devNull {
			content, err := applyHunks("", fd.Hunks)
			if err != nil {
				return nil, fmt.Errorf("apply hunks to new file %s: %w", rel, err)
			}
			patch.NewFiles[rel] = content
			continue
		}

		orig, err := os.ReadFile(filepath.Join(liveRoot, filepath.FromSlash(rel)))
		if err != nil {
			if os.IsNotExist(err) {
				return nil, errclass.ErrPatchConflict.WithMessagef(
					"diff modifies %s but the file does not exist", rel)
			}
			return nil, fmt.Errorf("read live file %s: %w", rel, err)
		}

		content, err := applyHunks(string(orig), fd.Hunks)
		if err != nil {
			return nil, fmt.Errorf("apply hunks to %s: %w", rel, err)
		}
		patch.ModifiedFiles[rel] = content
	}

	if err := patch.Validate(); err != nil {
		return nil, err
	}
	return patch, nil
}

// stripPrefix drops the conventional a/ or b/ diff prefix.
func stripPrefix(name string) string {
	if strings.HasPrefix(name, "a/") || strings.HasPrefix(name, "b/") {
		return name[2:]
	}
	return name
}

// applyHunks reconstructs the full after-content from the original content
// and the diff hunks. Context and removed lines must match the original;
// comparison ignores line-ending presence so a hunk touching the last line
// of a file still applies.
func applyHunks(orig string, hunks []*diff.Hunk) (string, error) {
	origLines := splitLines(orig)

	var out []string
	cursor := 0 // next unconsumed original line, 0-based

	for _, hunk := range hunks {
		start := int(hunk.OrigStartLine) - 1
		if hunk.OrigLines == 0 {
			// Pure insertion hunk; OrigStartLine names the line after which
			// to insert.
			start = int(hunk.OrigStartLine)
		}
		if start < cursor || start > len(origLines) {
			return "", errclass.ErrPatchConflict.WithMessagef(
				"hunk at line %d does not fit the file", hunk.OrigStartLine)
		}

		out = append(out, origLines[cursor:start]...)
		cursor = start

		for _, line := range splitLines(string(hunk.Body)) {
			var marker byte
			var text string
			switch {
			case line == "" || line == "\n":
				// Blank context line with the leading space trimmed.
				marker, text = ' ', "\n"
			default:
				marker, text = line[0], line[1:]
			}

			switch marker {
			case ' ':
				if cursor >= len(origLines) || chomp(origLines[cursor]) != chomp(text) {
					return "", errclass.ErrPatchConflict.WithMessagef(
						"context mismatch at line %d", cursor+1)
				}
				out = append(out, origLines[cursor])
				cursor++
			case '-':
				if cursor >= len(origLines) || chomp(origLines[cursor]) != chomp(text) {
					return "", errclass.ErrPatchConflict.WithMessagef(
						"removed line mismatch at line %d", cursor+1)
				}
				cursor++
			case '+':
				if !strings.HasSuffix(text, "\n") {
					text += "\n"
				}
				out = append(out, text)
			case '\\':
				// "\ No newline at end of file"
				if n := len(out); n > 0 {
					out[n-1] = chomp(out[n-1])
				}
			default:
				return "", errclass.ErrPatchConflict.WithMessagef(
					"malformed hunk line %q", line)
			}
		}
	}

	out = append(out, origLines[cursor:]...)
	return strings.Join(out, ""), nil
}

func chomp(s string) string {
	return strings.TrimSuffix(s, "\n")
}

// splitLines splits keeping the trailing newline on each line, like the
// diff body format expects.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	var lines []string
	for {
		idx := strings.IndexByte(s, '\n')
		if idx < 0 {
			lines = append(lines, s)
			return lines
		}
		lines = append(lines, s[:idx+1])
		s = s[idx+1:]
		if s == "" {
			return lines
		}
	}
}
