package model

// HashValue is a SHA-256 hash stored as hex string.
type HashValue string

// RiskTier is the ordered risk classification assigned to a proposed change.
type RiskTier string

const (
	TierSafe      RiskTier = "SAFE"
	TierCaution   RiskTier = "CAUTION"
	TierSensitive RiskTier = "SENSITIVE"
	TierCritical  RiskTier = "CRITICAL"
)

var tierRank = map[RiskTier]int{
	TierSafe:      0,
	TierCaution:   1,
	TierSensitive: 2,
	TierCritical:  3,
}

// Rank returns the tier's position in the strict total order
// SAFE < CAUTION < SENSITIVE < CRITICAL. Unknown tiers rank above CRITICAL
// so a corrupted value can never loosen a gate.
func (t RiskTier) Rank() int {
	if r, ok := tierRank[t]; ok {
		return r
	}
	return tierRank[TierCritical] + 1
}

// Compare returns -1, 0 or 1 ordering t against other.
func (t RiskTier) Compare(other RiskTier) int {
	switch {
	case t.Rank() < other.Rank():
		return -1
	case t.Rank() > other.Rank():
		return 1
	default:
		return 0
	}
}

// RequiresApproval reports whether the tier needs an operator confirmation
// phrase before the pipeline may proceed. Only SAFE is auto-approved.
func (t RiskTier) RequiresApproval() bool {
	return t.Rank() > tierRank[TierSafe]
}

// Valid reports whether t is one of the four known tiers.
func (t RiskTier) Valid() bool {
	_, ok := tierRank[t]
	return ok
}

// AllTiers lists the tiers in ascending order.
func AllTiers() []RiskTier {
	return []RiskTier{TierSafe, TierCaution, TierSensitive, TierCritical}
}

// ApprovalStatus is the lifecycle state of an approval request.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalDenied   ApprovalStatus = "denied"
)

// Stage is a state of the modification pipeline for one patch set.
type Stage string

const (
	StageClassified       Stage = "classified"
	StageAwaitingApproval Stage = "awaiting_approval"
	StageAutoApproved     Stage = "auto_approved"
	StageApproved         Stage = "approved"
	StageValidated        Stage = "validated"
	StageApplied          Stage = "applied"
	StageLogged           Stage = "logged"
	StageDenied           Stage = "denied"
	StageValidationFailed Stage = "validation_failed"
	StageApplyFailed      Stage = "apply_failed"
)

// Terminal reports whether the stage ends the pipeline run for its patch set.
// Terminal failure stages still get exactly one audit record.
func (s Stage) Terminal() bool {
	switch s {
	case StageLogged, StageDenied, StageValidationFailed, StageApplyFailed:
		return true
	}
	return false
}

// Failed reports whether the stage is a terminal failure.
func (s Stage) Failed() bool {
	switch s {
	case StageDenied, StageValidationFailed, StageApplyFailed:
		return true
	}
	return false
}

// LockState represents the current state of a target-path lock.
type LockState string

const (
	LockStateHeld    LockState = "held"
	LockStateExpired LockState = "expired"
	LockStateFree    LockState = "free"
)
