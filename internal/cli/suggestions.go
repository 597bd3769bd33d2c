package cli

import (
	"fmt"
	"strings"

	"github.com/crucible-project/crucible/pkg/color"
	"github.com/crucible-project/crucible/pkg/model"
)

// suggestPatches provides helpful suggestions when a patch is not found.
// Returns a formatted suggestion string.
func suggestPatches(query string, states []*model.PipelineState) string {
	var suggestions []string
	for _, state := range states {
		if len(suggestions) >= 3 {
			break
		}
		id := string(state.PatchID)
		if strings.Contains(id, query) {
			suggestion := color.PatchID(state.PatchID.ShortID())
			if state.PatchSet != nil && state.PatchSet.Description != "" {
				suggestion += fmt.Sprintf(" (%s)", color.Dim(state.PatchSet.Description))
			}
			suggestions = append(suggestions, suggestion)
		}
	}

	if len(suggestions) > 0 {
		hint := "Did you mean"
		if len(suggestions) > 1 {
			hint += " one of"
		}
		return fmt.Sprintf("%s: %s?", hint, strings.Join(suggestions, ", "))
	}

	return fmt.Sprintf("Run %s to see submitted patch sets.", color.Code("crucible list"))
}

// formatPatchNotFoundError formats a patch not found error with suggestions.
func formatPatchNotFoundError(query string, states []*model.PipelineState) string {
	var sb strings.Builder

	sb.WriteString(color.Error(fmt.Sprintf("patch '%s' not found", query)))
	sb.WriteString("\n")
	sb.WriteString(color.Dim("  " + suggestPatches(query, states)))

	return sb.String()
}

// formatNotInitializedError formats an error when no pipeline state tree is
// found in any parent directory.
func formatNotInitializedError() string {
	var sb strings.Builder

	sb.WriteString(color.Error("no pipeline state tree found (or any parent)"))
	sb.WriteString("\n")
	sb.WriteString(color.Dim(fmt.Sprintf("  Run %s to set one up.", color.Code("crucible init"))))

	return sb.String()
}
