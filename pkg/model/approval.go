package model

import "time"

// ApprovalRequest is stored at .crucible/approvals/<patch-id>.json.
// It survives process restarts so a request outlives a crash between
// proposal and confirmation.
type ApprovalRequest struct {
	PatchID        PatchID            `json:"patch_id"`
	Classification RiskClassification `json:"classification"`
	Description    string             `json:"description,omitempty"`
	Status         ApprovalStatus     `json:"status"`
	RequiredPhrase string             `json:"required_phrase"`
	CreatedAt      time.Time          `json:"created_at"`
	ResolvedAt     *time.Time         `json:"resolved_at,omitempty"`
	ResolvedBy     string             `json:"resolved_by,omitempty"`
	DenyReason     string             `json:"deny_reason,omitempty"`
}

// Resolved reports whether the request has left the pending state.
func (r *ApprovalRequest) Resolved() bool {
	return r.Status != ApprovalPending
}

// Verdict is the outcome of a phrase verification attempt.
type Verdict struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}
