package coordinator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/crucible-project/crucible/pkg/errclass"
	"github.com/crucible-project/crucible/pkg/fsutil"
	"github.com/crucible-project/crucible/pkg/model"
)

func (c *Coordinator) statePath(patchID model.PatchID) string {
	return filepath.Join(c.store.PipelineDir(), string(patchID)+".json")
}

func (c *Coordinator) saveState(state *model.PipelineState) error {
	state.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal pipeline state: %w", err)
	}
	if err := os.MkdirAll(c.store.PipelineDir(), 0755); err != nil {
		return fmt.Errorf("create pipeline dir: %w", err)
	}
	return fsutil.AtomicWrite(c.statePath(state.PatchID), data, 0644)
}

func (c *Coordinator) loadState(patchID model.PatchID) (*model.PipelineState, error) {
	data, err := os.ReadFile(c.statePath(patchID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errclass.ErrStateInvalid.WithMessagef(
				"no pipeline state for patch %s", patchID.ShortID())
		}
		return nil, fmt.Errorf("read pipeline state: %w", err)
	}
	var state model.PipelineState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, errclass.ErrMetaCorrupt.WithMessagef(
			"parse pipeline state %s: %v", patchID.ShortID(), err)
	}
	return &state, nil
}

func listStates(dir string) ([]*model.PipelineState, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read pipeline dir: %w", err)
	}

	var states []*model.PipelineState
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read pipeline state %s: %w", entry.Name(), err)
		}
		var state model.PipelineState
		if err := json.Unmarshal(data, &state); err != nil {
			return nil, errclass.ErrMetaCorrupt.WithMessagef(
				"parse pipeline state %s: %v", entry.Name(), err)
		}
		states = append(states, &state)
	}
	sort.Slice(states, func(i, j int) bool {
		return states[i].CreatedAt.Before(states[j].CreatedAt)
	})
	return states, nil
}
