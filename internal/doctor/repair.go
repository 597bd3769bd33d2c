package doctor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/crucible-project/crucible/pkg/model"
)

// RepairAction describes an available repair.
type RepairAction struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// RepairResult reports the outcome of one repair action.
type RepairResult struct {
	Action  string `json:"action"`
	Success bool   `json:"success"`
	Cleaned int    `json:"cleaned"`
	Message string `json:"message,omitempty"`
}

// ListRepairActions returns the repairs this doctor can perform.
func (d *Doctor) ListRepairActions() []RepairAction {
	return []RepairAction{
		{ID: "clean_tmp", Description: "remove orphan atomic-write temp files"},
		{ID: "clean_intents", Description: "remove stale apply intent files"},
		{ID: "clean_locks", Description: "remove expired target-path locks"},
	}
}

// Repair executes the named repair actions in order. Unknown actions are
// reported as failures without aborting the rest.
func (d *Doctor) Repair(actions []string) ([]RepairResult, error) {
	var results []RepairResult
	for _, action := range actions {
		switch action {
		case "clean_tmp":
			results = append(results, d.cleanTmp())
		case "clean_intents":
			results = append(results, d.cleanIntents())
		case "clean_locks":
			results = append(results, d.cleanExpiredLocks())
		default:
			results = append(results, RepairResult{
				Action:  action,
				Success: false,
				Message: fmt.Sprintf("unknown repair action: %s", action),
			})
		}
	}
	return results, nil
}

func (d *Doctor) cleanTmp() RepairResult {
	result := RepairResult{Action: "clean_tmp", Success: true}
	filepath.Walk(d.store.Root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if strings.HasPrefix(info.Name(), ".crucible-tmp-") {
			if rmErr := os.RemoveAll(path); rmErr == nil {
				result.Cleaned++
			}
			if info.IsDir() {
				return filepath.SkipDir
			}
		}
		return nil
	})
	result.Message = fmt.Sprintf("removed %d temp file(s)", result.Cleaned)
	return result
}

func (d *Doctor) cleanIntents() RepairResult {
	result := RepairResult{Action: "clean_intents", Success: true}
	entries, err := os.ReadDir(d.store.IntentsDir())
	if err != nil {
		if os.IsNotExist(err) {
			result.Message = "no intents directory"
			return result
		}
		result.Success = false
		result.Message = err.Error()
		return result
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if err := os.Remove(filepath.Join(d.store.IntentsDir(), entry.Name())); err == nil {
			result.Cleaned++
		}
	}
	result.Message = fmt.Sprintf("removed %d intent file(s)", result.Cleaned)
	return result
}

func (d *Doctor) cleanExpiredLocks() RepairResult {
	result := RepairResult{Action: "clean_locks", Success: true}
	entries, err := os.ReadDir(d.store.LocksDir())
	if err != nil {
		if os.IsNotExist(err) {
			result.Message = "no locks directory"
			return result
		}
		result.Success = false
		result.Message = err.Error()
		return result
	}
	now := time.Now()
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".lock.json") {
			continue
		}
		path := filepath.Join(d.store.LocksDir(), entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var rec model.LockRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			continue // held locks stay, only parseable expired ones go
		}
		if rec.IsExpired(now) {
			if err := os.Remove(path); err == nil {
				result.Cleaned++
			}
		}
	}
	result.Message = fmt.Sprintf("removed %d expired lock(s)", result.Cleaned)
	return result
}
