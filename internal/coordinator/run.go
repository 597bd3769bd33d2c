package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/crucible-project/crucible/internal/audit"
	"github.com/crucible-project/crucible/pkg/errclass"
	"github.com/crucible-project/crucible/pkg/model"
)

// run drives an approved pipeline state through validation, apply and the
// final record. Every transition is persisted before the next step starts.
func (c *Coordinator) run(ctx context.Context, state *model.PipelineState) (*model.PipelineState, error) {
	if state.Stage == model.StageAutoApproved || state.Stage == model.StageApproved {
		if err := c.validate(ctx, state); err != nil {
			return state, err
		}
	}
	if state.Stage == model.StageValidated {
		if err := c.apply(ctx, state); err != nil {
			return state, err
		}
	}
	if state.Stage == model.StageApplied {
		if err := c.finalize(ctx, state); err != nil {
			return state, err
		}
	}
	return state, nil
}

func (c *Coordinator) validate(ctx context.Context, state *model.PipelineState) error {
	result, err := c.validator.Validate(ctx, state.PatchSet)
	if err != nil {
		return fmt.Errorf("sandbox validation: %w", err)
	}
	state.ValidationResult = result

	if _, err := c.trail.Record(audit.Entry{
		Action:         model.ActionValidate,
		TargetPaths:    state.PatchSet.Paths(),
		PatchID:        state.PatchID,
		Classification: state.Classification,
		Success:        result.Pass,
		Details: map[string]any{
			"files_checked": result.FilesChecked,
			"tests_run":     result.TestsRun,
			"tests_failed":  result.TestsFailed,
		},
	}); err != nil {
		return err
	}

	if !result.Pass {
		state.Stage = model.StageValidationFailed
		state.Error = validationSummary(result)
		if err := c.saveState(state); err != nil {
			return err
		}
		c.log.Warn("validation failed", map[string]any{
			"patch_id": state.PatchID.ShortID(), "errors": len(result.Errors)})
		c.notify(c.hooks.SendValidationFailed(c.store.InstallID, c.store.Root,
			state.PatchID.String(), state.Error, false))
		return errclass.ErrValidationFailed.WithMessage(state.Error)
	}

	state.Stage = model.StageValidated
	return c.saveState(state)
}

func (c *Coordinator) apply(ctx context.Context, state *model.PipelineState) error {
	paths := state.PatchSet.Paths()
	beforeHashes := c.liveHashes(paths)

	result, touched, applyErr := c.applier.Apply(ctx, state.PatchSet)
	afterHashes := c.liveHashes(paths)

	entry := audit.Entry{
		Action:         model.ActionApply,
		TargetPaths:    paths,
		PatchID:        state.PatchID,
		ApprovalID:     state.PatchID,
		Classification: state.Classification,
		BeforeHashes:   beforeHashes,
		AfterHashes:    afterHashes,
		Approver:       state.Approver,
		Success:        applyErr == nil,
	}
	if applyErr != nil {
		entry.Error = applyErr.Error()
	}
	if _, err := c.trail.Record(entry); err != nil {
		return err
	}

	if applyErr != nil {
		if result != nil && result.RolledBack {
			if _, err := c.trail.Record(audit.Entry{
				Action:      model.ActionAutoRollback,
				TargetPaths: paths,
				PatchID:     state.PatchID,
				Success:     true,
			}); err != nil {
				return err
			}
		}
		state.Stage = model.StageApplyFailed
		state.Error = applyErr.Error()
		if err := c.saveState(state); err != nil {
			return err
		}
		c.notify(c.hooks.SendApplyFailed(c.store.InstallID, c.store.Root,
			state.PatchID.String(), applyErr.Error(), result != nil && result.RolledBack, false))
		return applyErr
	}

	state.TouchedVersions = touched
	state.Stage = model.StageApplied
	if err := c.saveState(state); err != nil {
		return err
	}
	c.log.Info("patch applied", map[string]any{
		"patch_id": state.PatchID.ShortID(),
		"files":    len(result.FilesModified),
		"units":    len(result.UnitsReloaded),
	})
	c.notify(c.hooks.SendPatchApplied(c.store.InstallID, c.store.Root,
		state.PatchID.String(), string(state.Classification.Tier), len(result.FilesModified), false))
	return nil
}

// finalize marks the new content stable, hands the patch to the commit sink
// and closes the pipeline record.
func (c *Coordinator) finalize(ctx context.Context, state *model.PipelineState) error {
	for _, path := range state.PatchSet.Paths() {
		cp, err := c.ledger.Checkpoint(path, "post-apply "+state.PatchID.ShortID(), true)
		if err != nil {
			return fmt.Errorf("checkpoint applied content: %w", err)
		}
		if err := c.ledger.MarkStable(path, cp.VersionID); err != nil {
			return fmt.Errorf("mark stable: %w", err)
		}
	}

	if c.commit != nil {
		if err := c.commit.Commit(ctx, state.PatchSet, state.TouchedVersions); err != nil {
			// A failed commit does not undo the apply; the pipeline record
			// keeps the failure visible.
			if _, recErr := c.trail.Record(audit.Entry{
				Action:      model.ActionCommit,
				TargetPaths: state.PatchSet.Paths(),
				PatchID:     state.PatchID,
				Success:     false,
				Error:       err.Error(),
			}); recErr != nil {
				return recErr
			}
			c.log.ErrorErr("commit sink failed", err, map[string]any{
				"patch_id": state.PatchID.ShortID()})
		} else {
			if _, err := c.trail.Record(audit.Entry{
				Action:      model.ActionCommit,
				TargetPaths: state.PatchSet.Paths(),
				PatchID:     state.PatchID,
				Success:     true,
			}); err != nil {
				return err
			}
			// Committed content makes old stable backups redundant.
			for _, path := range state.PatchSet.Paths() {
				if _, err := c.ledger.PruneStable(path, time.Now()); err != nil {
					c.log.Warn("prune stable checkpoints", map[string]any{
						"path": path, "error": err.Error()})
				}
			}
		}
	}

	if err := c.gate.Clear(state.PatchID); err != nil {
		return err
	}

	state.Stage = model.StageLogged
	return c.saveState(state)
}

func validationSummary(result *model.ValidationResult) string {
	if len(result.Errors) == 0 {
		return "validation failed"
	}
	first := result.Errors[0]
	if len(result.Errors) == 1 {
		return fmt.Sprintf("%s: %s", first.Step, first.Message)
	}
	return fmt.Sprintf("%s: %s (and %d more)", first.Step, first.Message, len(result.Errors)-1)
}
