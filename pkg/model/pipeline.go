package model

import "time"

// PipelineState is the coordinator's persisted state for one in-flight patch
// set, stored at .crucible/pipeline/<patch-id>.json. It carries enough to
// resume after a process restart between proposal and confirmation.
type PipelineState struct {
	PatchID          PatchID               `json:"patch_id"`
	Stage            Stage                 `json:"stage"`
	PatchSet         *PatchSet             `json:"patch_set"`
	Classification   *RiskClassification   `json:"classification,omitempty"`
	ValidationResult *ValidationResult     `json:"validation_result,omitempty"`
	RequiredPhrase   string                `json:"required_phrase,omitempty"`
	Approver         string                `json:"approver,omitempty"`
	TouchedVersions  map[string]VersionID  `json:"touched_versions,omitempty"`
	Error            string                `json:"error,omitempty"`
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
}

// ApplyResult reports the outcome of one apply call.
type ApplyResult struct {
	FilesModified []string `json:"files_modified,omitempty"`
	UnitsReloaded []string `json:"units_reloaded,omitempty"`
	Success       bool     `json:"success"`
	RolledBack    bool     `json:"rolled_back,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// ApplyIntent tracks an in-progress apply for crash recovery. Written before
// the first live write, removed after the last; a leftover intent means a
// crash mid-apply.
type ApplyIntent struct {
	PatchID     PatchID   `json:"patch_id"`
	TargetPaths []string  `json:"target_paths"`
	StartedAt   time.Time `json:"started_at"`
}
