package model

import "time"

// ValidationIssue is a single finding from a sandbox validation step.
type ValidationIssue struct {
	File     string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`
	Step     string `json:"step"`
	Message  string `json:"message"`
	Blocking bool   `json:"blocking"`
}

// ValidationResult is the complete sandbox verdict for one patch set.
// Produced once per sandbox run; never mutated afterward.
type ValidationResult struct {
	Pass         bool              `json:"pass"`
	Errors       []ValidationIssue `json:"errors,omitempty"`
	Warnings     []ValidationIssue `json:"warnings,omitempty"`
	FilesChecked int               `json:"files_checked"`
	TestsRun     int               `json:"tests_run"`
	TestsPassed  int               `json:"tests_passed"`
	TestsFailed  int               `json:"tests_failed"`
	CoveragePct  float64           `json:"coverage_pct,omitempty"`
	// Remediated lists module paths installed by the bounded
	// dependency-remediation step.
	Remediated []string      `json:"remediated,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// AddError appends a blocking issue and clears the pass flag.
func (r *ValidationResult) AddError(step, file, message string) {
	r.Errors = append(r.Errors, ValidationIssue{File: file, Step: step, Message: message, Blocking: true})
	r.Pass = false
}

// AddWarning appends a non-blocking issue.
func (r *ValidationResult) AddWarning(step, file, message string) {
	r.Warnings = append(r.Warnings, ValidationIssue{File: file, Step: step, Message: message})
}
