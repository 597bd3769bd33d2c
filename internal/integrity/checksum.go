// Package integrity provides content hashing and metadata checksums for
// checkpoints and audit records.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/crucible-project/crucible/pkg/jsonutil"
	"github.com/crucible-project/crucible/pkg/model"
)

// ComputeContentHash computes the SHA-256 hash of raw content.
func ComputeContentHash(data []byte) model.HashValue {
	hash := sha256.Sum256(data)
	return model.HashValue(hex.EncodeToString(hash[:]))
}

// ComputeFileHash computes the SHA-256 hash of a file's content without
// loading it whole into memory.
func ComputeFileHash(path string) (model.HashValue, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open for hash: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return model.HashValue(hex.EncodeToString(h.Sum(nil))), nil
}

// ComputeCheckpointChecksum computes the SHA-256 checksum of a checkpoint's
// metadata over canonical JSON. Excludes: meta_checksum itself.
func ComputeCheckpointChecksum(cp *model.Checkpoint) (model.HashValue, error) {
	// Copy with the excluded field zeroed.
	checksumCp := &model.Checkpoint{
		VersionID:   cp.VersionID,
		TargetPath:  cp.TargetPath,
		BackupPath:  cp.BackupPath,
		ContentHash: cp.ContentHash,
		Stable:      cp.Stable,
		Reason:      cp.Reason,
		Automatic:   cp.Automatic,
		CreatedAt:   cp.CreatedAt,
		Missing:     cp.Missing,
		// MetaChecksum: excluded
	}

	data, err := jsonutil.CanonicalMarshal(checksumCp)
	if err != nil {
		return "", fmt.Errorf("canonical marshal checkpoint: %w", err)
	}

	hash := sha256.Sum256(data)
	return model.HashValue(hex.EncodeToString(hash[:])), nil
}

// VerifyCheckpoint recomputes the metadata checksum and compares it to the
// recorded one. A mismatch means the metadata was altered after recording.
func VerifyCheckpoint(cp *model.Checkpoint) (bool, error) {
	computed, err := ComputeCheckpointChecksum(cp)
	if err != nil {
		return false, err
	}
	return computed == cp.MetaChecksum, nil
}
