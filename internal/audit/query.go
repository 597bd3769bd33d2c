package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/crucible-project/crucible/pkg/model"
)

// Filter selects a subset of audit records. Zero values match everything.
type Filter struct {
	PatchID     model.PatchID
	Action      model.AuditAction
	TargetPath  string
	Since       time.Time
	Until       time.Time
	SuccessOnly bool
	FailedOnly  bool
}

func (f Filter) matches(rec *model.AuditRecord) bool {
	if f.PatchID != "" && rec.PatchID != f.PatchID {
		return false
	}
	if f.Action != "" && rec.Action != f.Action {
		return false
	}
	if f.TargetPath != "" {
		found := false
		for _, p := range rec.TargetPaths {
			if p == f.TargetPath {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.Since.IsZero() && rec.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && rec.Timestamp.After(f.Until) {
		return false
	}
	if f.SuccessOnly && !rec.Success {
		return false
	}
	if f.FailedOnly && rec.Success {
		return false
	}
	return true
}

// ReadAll returns every record in the log in append order. A missing log
// file yields an empty slice.
func (a *FileAppender) ReadAll() ([]*model.AuditRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.readAllLocked()
}

func (a *FileAppender) readAllLocked() ([]*model.AuditRecord, error) {
	file, err := os.Open(a.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer file.Close()

	var records []*model.AuditRecord
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordSize)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		var rec model.AuditRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("parse audit record at line %d: %w", lineNum, err)
		}
		records = append(records, &rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan audit log: %w", err)
	}
	return records, nil
}

// Query returns the most recent records matching the filter, newest first.
// A limit of 0 means no limit.
func (a *FileAppender) Query(filter Filter, limit int) ([]*model.AuditRecord, error) {
	records, err := a.ReadAll()
	if err != nil {
		return nil, err
	}

	var matched []*model.AuditRecord
	for i := len(records) - 1; i >= 0; i-- {
		if filter.matches(records[i]) {
			matched = append(matched, records[i])
			if limit > 0 && len(matched) >= limit {
				break
			}
		}
	}
	return matched, nil
}
