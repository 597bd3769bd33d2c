package model

import "time"

// AuditAction identifies the kind of auditable event.
type AuditAction string

const (
	ActionClassify        AuditAction = "classify"
	ActionApprovalRequest AuditAction = "approval_request"
	ActionApprovalGrant   AuditAction = "approval_grant"
	ActionApprovalDeny    AuditAction = "approval_deny"
	ActionValidate        AuditAction = "validate"
	ActionApply           AuditAction = "apply"
	ActionRollback        AuditAction = "rollback"
	ActionAutoRollback    AuditAction = "auto_rollback"
	ActionPrune           AuditAction = "prune"
	ActionCommit          AuditAction = "commit"
)

// AuditRecord is a single line in the append-only audit log (JSONL format).
// Records are chained: each carries the hash of its predecessor, so any
// update or delete against an existing record breaks the chain.
type AuditRecord struct {
	Timestamp      time.Time            `json:"timestamp"`
	Action         AuditAction          `json:"action"`
	TargetPaths    []string             `json:"target_paths,omitempty"`
	PatchID        PatchID              `json:"patch_id,omitempty"`
	ApprovalID     PatchID              `json:"approval_id,omitempty"`
	Classification *RiskClassification  `json:"classification,omitempty"`
	BeforeHashes   map[string]HashValue `json:"before_hashes,omitempty"`
	AfterHashes    map[string]HashValue `json:"after_hashes,omitempty"`
	Approver       string               `json:"approver,omitempty"`
	Success        bool                 `json:"success"`
	Error          string               `json:"error,omitempty"`
	Details        map[string]any       `json:"details,omitempty"`
	PrevHash       HashValue            `json:"prev_hash"`
	RecordHash     HashValue            `json:"record_hash"`
}
