package model

import "time"

// VersionID uniquely identifies one checkpoint.
type VersionID string

// ShortID returns the first 8 characters for display.
func (id VersionID) ShortID() string {
	s := string(id)
	if len(s) >= 8 {
		return s[:8]
	}
	return s
}

// Checkpoint is a recorded, hashed backup of a file's content at a point in
// time. The backup lives under .crucible/checkpoints/<target-path>/ mirroring
// the live tree; the metadata sits beside it with a checksum over its own
// canonical JSON so rollback correctness is independently verifiable.
type Checkpoint struct {
	VersionID    VersionID `json:"version_id"`
	TargetPath   string    `json:"target_path"`
	BackupPath   string    `json:"backup_path"`
	ContentHash  HashValue `json:"content_hash"`
	Stable       bool      `json:"stable"`
	Reason       string    `json:"reason,omitempty"`
	Automatic    bool      `json:"automatic,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	MetaChecksum HashValue `json:"meta_checksum,omitempty"`
	// Missing marks a checkpoint of a path that did not exist when it was
	// taken; restoring it removes the live file.
	Missing bool `json:"missing,omitempty"`
}

// RestoreResult reports the outcome of a checkpoint restore.
type RestoreResult struct {
	VersionID       VersionID `json:"version_id"`
	TargetPath      string    `json:"target_path"`
	RestoredHash    HashValue `json:"restored_hash"`
	PreRollbackID   VersionID `json:"pre_rollback_id,omitempty"`
	Automatic       bool      `json:"automatic,omitempty"`
	RestoredAt      time.Time `json:"restored_at"`
	HashVerified    bool      `json:"hash_verified"`
	LiveFileRemoved bool      `json:"live_file_removed,omitempty"`
}
