// Package audit maintains the append-only, tamper-evident record of every
// modification attempt. Records are hash-chained JSONL lines; no code path
// exists to update or delete a written record, and a write failure is always
// surfaced to the caller because an unrecorded modification is unacceptable.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/crucible-project/crucible/pkg/errclass"
	"github.com/crucible-project/crucible/pkg/jsonutil"
	"github.com/crucible-project/crucible/pkg/model"
)

// Entry is the caller-supplied part of an audit record; the appender fills
// in the timestamp and the hash chain.
type Entry struct {
	Action         model.AuditAction
	TargetPaths    []string
	PatchID        model.PatchID
	ApprovalID     model.PatchID
	Classification *model.RiskClassification
	BeforeHashes   map[string]model.HashValue
	AfterHashes    map[string]model.HashValue
	Approver       string
	Success        bool
	Error          string
	Details        map[string]any
}

// FileAppender appends audit records to a JSONL file with a hash chain.
type FileAppender struct {
	path string
	mu   sync.Mutex
}

// NewFileAppender creates a new FileAppender.
func NewFileAppender(path string) *FileAppender {
	return &FileAppender{path: path}
}

// Record appends a new audit record and returns its hash. Errors are never
// swallowed here; the caller decides how fatal an unrecorded attempt is.
func (a *FileAppender) Record(entry Entry) (model.HashValue, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(a.path), 0755); err != nil {
		return "", errclass.ErrAuditWrite.WithMessagef("create audit dir: %v", err)
	}

	file, err := os.OpenFile(a.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return "", errclass.ErrAuditWrite.WithMessagef("open audit log: %v", err)
	}
	defer file.Close()

	// Exclusive flock guards against a second process appending concurrently.
	if err := lockFile(file); err != nil {
		return "", errclass.ErrAuditWrite.WithMessagef("flock audit log: %v", err)
	}
	defer unlockFile(file)

	prevHash, err := a.lastRecordHashLocked(file)
	if err != nil {
		return "", errclass.ErrAuditWrite.WithMessagef("get last record hash: %v", err)
	}

	record := &model.AuditRecord{
		Timestamp:      time.Now().UTC(),
		Action:         entry.Action,
		TargetPaths:    entry.TargetPaths,
		PatchID:        entry.PatchID,
		ApprovalID:     entry.ApprovalID,
		Classification: entry.Classification,
		BeforeHashes:   entry.BeforeHashes,
		AfterHashes:    entry.AfterHashes,
		Approver:       entry.Approver,
		Success:        entry.Success,
		Error:          entry.Error,
		Details:        entry.Details,
		PrevHash:       prevHash,
	}

	recordHash, err := computeRecordHash(record)
	if err != nil {
		return "", errclass.ErrAuditWrite.WithMessagef("compute record hash: %v", err)
	}
	record.RecordHash = recordHash

	line, err := json.Marshal(record)
	if err != nil {
		return "", errclass.ErrAuditWrite.WithMessagef("marshal audit record: %v", err)
	}

	if _, err := file.Seek(0, 2); err != nil {
		return "", errclass.ErrAuditWrite.WithMessagef("seek to end: %v", err)
	}
	if _, err := file.Write(append(line, '\n')); err != nil {
		return "", errclass.ErrAuditWrite.WithMessagef("write audit record: %v", err)
	}
	if err := file.Sync(); err != nil {
		return "", errclass.ErrAuditWrite.WithMessagef("sync audit log: %v", err)
	}

	return recordHash, nil
}

// GetLastRecordHash returns the hash of the last record in the log.
func (a *FileAppender) GetLastRecordHash() (model.HashValue, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	file, err := os.Open(a.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("open audit log: %w", err)
	}
	defer file.Close()

	return a.lastRecordHashLocked(file)
}

func (a *FileAppender) lastRecordHashLocked(file *os.File) (model.HashValue, error) {
	if _, err := file.Seek(0, 0); err != nil {
		return "", fmt.Errorf("seek to start: %w", err)
	}

	var lastHash model.HashValue
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordSize)
	for scanner.Scan() {
		var record model.AuditRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue // skip malformed lines
		}
		lastHash = record.RecordHash
	}

	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan audit log: %w", err)
	}
	return lastHash, nil
}

// maxRecordSize bounds a single JSONL line; classifications and hash maps
// stay far below this.
const maxRecordSize = 4 * 1024 * 1024

func computeRecordHash(record *model.AuditRecord) (model.HashValue, error) {
	// Copy without RecordHash for hash computation.
	hashRecord := *record
	hashRecord.RecordHash = ""

	data, err := jsonutil.CanonicalMarshal(&hashRecord)
	if err != nil {
		return "", fmt.Errorf("canonical marshal: %w", err)
	}

	hash := sha256.Sum256(data)
	return model.HashValue(hex.EncodeToString(hash[:])), nil
}
