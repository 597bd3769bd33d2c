package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/crucible-project/crucible/internal/coordinator"
	"github.com/crucible-project/crucible/internal/store"
	"github.com/crucible-project/crucible/pkg/color"
	"github.com/crucible-project/crucible/pkg/config"
	"github.com/crucible-project/crucible/pkg/model"
)

// requireStore discovers the state tree from CWD and returns it, or exits
// with error.
func requireStore() *store.Store {
	cwd, err := os.Getwd()
	if err != nil {
		fmtErr("cannot get current directory: %v", err)
		os.Exit(1)
	}
	st, err := store.Discover(cwd)
	if err != nil {
		fmt.Fprintln(os.Stderr, formatNotInitializedError())
		os.Exit(1)
	}
	return st
}

// requireCoordinator wires a coordinator over the discovered store with the
// configuration loaded from .crucible/config.yaml.
func requireCoordinator() (*store.Store, *coordinator.Coordinator) {
	st := requireStore()
	cfg, err := config.Load(st.Root)
	if err != nil {
		fmtErr("load configuration: %v", err)
		os.Exit(1)
	}
	return st, coordinator.New(st, cfg, coordinator.Options{})
}

// resolvePatchID matches a full or shortened patch ID against the persisted
// pipeline states, or exits with suggestions.
func resolvePatchID(coord *coordinator.Coordinator, query string) model.PatchID {
	states, err := coord.List()
	if err != nil {
		fmtErr("list pipeline states: %v", err)
		os.Exit(1)
	}

	var matches []model.PatchID
	for _, state := range states {
		id := string(state.PatchID)
		if id == query || strings.HasPrefix(id, query) || state.PatchID.ShortID() == query {
			matches = append(matches, state.PatchID)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0]
	case 0:
		fmt.Fprintln(os.Stderr, formatPatchNotFoundError(query, states))
		os.Exit(1)
	default:
		fmtErr("patch ID %q is ambiguous (%d matches)", query, len(matches))
		os.Exit(1)
	}
	return ""
}

// resolveVersionID matches a full or shortened checkpoint version ID against
// the ledger for a target path, or exits.
func resolveVersionID(coord *coordinator.Coordinator, targetPath, query string) model.VersionID {
	checkpoints, err := coord.Ledger().List(targetPath)
	if err != nil {
		fmtErr("list checkpoints: %v", err)
		os.Exit(1)
	}

	var matches []model.VersionID
	for _, cp := range checkpoints {
		id := string(cp.VersionID)
		if id == query || strings.HasPrefix(id, query) {
			matches = append(matches, cp.VersionID)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0]
	case 0:
		fmtErr("no checkpoint %q for %s", query, targetPath)
		os.Exit(1)
	default:
		fmtErr("version ID %q is ambiguous (%d matches)", query, len(matches))
		os.Exit(1)
	}
	return ""
}

func fmtErr(format string, args ...any) {
	// Colorize the error prefix
	prefix := "crucible: "
	if color.Enabled() {
		prefix = color.Error("crucible:") + " "
	}
	fmt.Fprintf(os.Stderr, prefix+format+"\n", args...)
}
