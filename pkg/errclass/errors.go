package errclass

import "fmt"

// PipelineError is a stable, machine-readable error class.
type PipelineError struct {
	Code    string
	Message string
}

func (e *PipelineError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PipelineError) Is(target error) bool {
	t, ok := target.(*PipelineError)
	return ok && e.Code == t.Code
}

// WithMessage returns a new PipelineError with the same Code but a specific message.
func (e *PipelineError) WithMessage(msg string) *PipelineError {
	return &PipelineError{Code: e.Code, Message: msg}
}

// WithMessagef returns a new PipelineError with a formatted message.
func (e *PipelineError) WithMessagef(format string, args ...any) *PipelineError {
	return &PipelineError{Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

// All stable error classes.
var (
	ErrNameInvalid        = &PipelineError{Code: "E_NAME_INVALID"}
	ErrPathEscape         = &PipelineError{Code: "E_PATH_ESCAPE"}
	ErrPatchConflict      = &PipelineError{Code: "E_PATCH_CONFLICT"}
	ErrParseFailure       = &PipelineError{Code: "E_PARSE_FAILURE"}
	ErrValidationFailed   = &PipelineError{Code: "E_VALIDATION_FAILED"}
	ErrApprovalRequired   = &PipelineError{Code: "E_APPROVAL_REQUIRED"}
	ErrApprovalDenied     = &PipelineError{Code: "E_APPROVAL_DENIED"}
	ErrPhraseMismatch     = &PipelineError{Code: "E_PHRASE_MISMATCH"}
	ErrApprovalNotFound   = &PipelineError{Code: "E_APPROVAL_NOT_FOUND"}
	ErrApplyFailed        = &PipelineError{Code: "E_APPLY_FAILED"}
	ErrAuditWrite         = &PipelineError{Code: "E_AUDIT_WRITE"}
	ErrAuditChainBroken   = &PipelineError{Code: "E_AUDIT_CHAIN_BROKEN"}
	ErrHashMismatch       = &PipelineError{Code: "E_HASH_MISMATCH"}
	ErrCheckpointNotFound = &PipelineError{Code: "E_CHECKPOINT_NOT_FOUND"}
	ErrNoStableVersion    = &PipelineError{Code: "E_NO_STABLE_VERSION"}
	ErrLockConflict       = &PipelineError{Code: "E_LOCK_CONFLICT"}
	ErrLockExpired        = &PipelineError{Code: "E_LOCK_EXPIRED"}
	ErrLockNotHeld        = &PipelineError{Code: "E_LOCK_NOT_HELD"}
	ErrFencingMismatch    = &PipelineError{Code: "E_FENCING_MISMATCH"}
	ErrStateInvalid       = &PipelineError{Code: "E_STATE_INVALID"}
	ErrMetaCorrupt        = &PipelineError{Code: "E_META_CORRUPT"}
)
