package audit

import (
	"fmt"

	"github.com/crucible-project/crucible/pkg/errclass"
)

// VerifyResult reports the outcome of a chain verification pass.
type VerifyResult struct {
	RecordsChecked int      `json:"records_checked"`
	Valid          bool     `json:"valid"`
	Problems       []string `json:"problems,omitempty"`
}

// VerifyChain recomputes every record hash and checks the prev-hash linkage
// from the first record forward. Any mismatch means the log was modified
// after the fact.
func (a *FileAppender) VerifyChain() (*VerifyResult, error) {
	records, err := a.ReadAll()
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{Valid: true}
	var prevHash string
	for i, rec := range records {
		result.RecordsChecked++

		if string(rec.PrevHash) != prevHash {
			result.Valid = false
			result.Problems = append(result.Problems, fmt.Sprintf(
				"record %d: prev_hash mismatch: expected %q, got %q", i, prevHash, rec.PrevHash))
		}

		expected, err := computeRecordHash(rec)
		if err != nil {
			return nil, fmt.Errorf("recompute hash for record %d: %w", i, err)
		}
		if rec.RecordHash != expected {
			result.Valid = false
			result.Problems = append(result.Problems, fmt.Sprintf(
				"record %d: record_hash mismatch: content was altered", i))
		}

		prevHash = string(rec.RecordHash)
	}

	if !result.Valid {
		return result, errclass.ErrAuditChainBroken.WithMessagef(
			"%d problem(s) found in %d records", len(result.Problems), result.RecordsChecked)
	}
	return result, nil
}
