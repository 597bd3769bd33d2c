package applier

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/crucible-project/crucible/pkg/fsutil"
	"github.com/crucible-project/crucible/pkg/model"
)

// writeIntent records the in-progress apply before the first live write.
func (a *Applier) writeIntent(patch *model.PatchSet) error {
	intent := &model.ApplyIntent{
		PatchID:     patch.ID,
		TargetPaths: patch.Paths(),
		StartedAt:   time.Now().UTC(),
	}
	data, err := json.MarshalIndent(intent, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal apply intent: %w", err)
	}
	if err := os.MkdirAll(a.intentsDir, 0755); err != nil {
		return fmt.Errorf("create intents dir: %w", err)
	}
	return fsutil.AtomicWrite(a.intentPath(patch.ID), data, 0644)
}

func (a *Applier) clearIntent(id model.PatchID) error {
	err := os.Remove(a.intentPath(id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove apply intent: %w", err)
	}
	return nil
}

func (a *Applier) intentPath(id model.PatchID) string {
	return filepath.Join(a.intentsDir, string(id)+".json")
}

// PendingIntents lists leftover apply intents, oldest first. A non-empty
// list means a previous apply crashed mid-write.
func PendingIntents(intentsDir string) ([]*model.ApplyIntent, error) {
	entries, err := os.ReadDir(intentsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read intents dir: %w", err)
	}

	var intents []*model.ApplyIntent
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(intentsDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read intent %s: %w", entry.Name(), err)
		}
		var intent model.ApplyIntent
		if err := json.Unmarshal(data, &intent); err != nil {
			return nil, fmt.Errorf("parse intent %s: %w", entry.Name(), err)
		}
		intents = append(intents, &intent)
	}
	return intents, nil
}
