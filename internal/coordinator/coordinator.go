// Package coordinator sequences the modification pipeline: classify, gate,
// validate, apply, record. Pipeline state is persisted on every transition
// so a patch set submitted before a crash can be confirmed after it.
package coordinator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/crucible-project/crucible/internal/applier"
	"github.com/crucible-project/crucible/internal/approval"
	"github.com/crucible-project/crucible/internal/audit"
	"github.com/crucible-project/crucible/internal/integrity"
	"github.com/crucible-project/crucible/internal/ledger"
	"github.com/crucible-project/crucible/internal/lock"
	"github.com/crucible-project/crucible/internal/risk"
	"github.com/crucible-project/crucible/internal/sandbox"
	"github.com/crucible-project/crucible/internal/store"
	"github.com/crucible-project/crucible/pkg/config"
	"github.com/crucible-project/crucible/pkg/errclass"
	"github.com/crucible-project/crucible/pkg/logging"
	"github.com/crucible-project/crucible/pkg/model"
	"github.com/crucible-project/crucible/pkg/webhook"
)

// CommitSink receives successfully applied patch sets, typically to commit
// them to version control. A nil sink skips the step.
type CommitSink interface {
	Commit(ctx context.Context, patch *model.PatchSet, touched map[string]model.VersionID) error
}

// Coordinator drives patch sets through the pipeline stages.
type Coordinator struct {
	store      *store.Store
	cfg        *config.Config
	classifier *risk.Classifier
	gate       *approval.Gate
	validator  *sandbox.Validator
	applier    *applier.Applier
	ledger     *ledger.Ledger
	trail      *audit.FileAppender
	commit     CommitSink
	hooks      *webhook.Client
	log        *logging.Logger
}

// Options carries the optional collaborators.
type Options struct {
	// Registry reloads runtime units after their files change.
	Registry applier.UnitRegistry
	// Commit runs after a fully successful apply.
	Commit CommitSink
	// Logger defaults to a logger at the configured level.
	Logger *logging.Logger
}

// New wires a coordinator over an initialized state tree.
func New(st *store.Store, cfg *config.Config, opts Options) *Coordinator {
	led := ledger.NewLedger(st.CheckpointsDir(), st.Root, cfg.Retention)
	locks := lock.NewManager(st.LocksDir(), model.LockPolicy{})
	log := opts.Logger
	if log == nil {
		log = logging.NewLogger(logging.Level(cfg.Logging.Level))
	}
	return &Coordinator{
		store:      st,
		cfg:        cfg,
		classifier: risk.NewClassifier(cfg.Risk),
		gate:       approval.NewGate(st.ApprovalsDir(), cfg.Approval),
		validator:  sandbox.NewValidator(st.Root, cfg.Sandbox),
		applier:    applier.New(st.Root, st.IntentsDir(), led, locks, opts.Registry),
		ledger:     led,
		trail:      audit.NewFileAppender(st.AuditLogPath()),
		commit:     opts.Commit,
		hooks:      webhook.NewClient(cfg.Webhooks),
		log:        log,
	}
}

// notify logs a failed hook delivery. Hooks are best-effort and never
// change the pipeline outcome.
func (c *Coordinator) notify(err error) {
	if err != nil {
		c.log.Warn("webhook delivery failed", map[string]any{"error": err.Error()})
	}
}

// Ledger exposes the coordinator's version ledger for checkpoint commands.
func (c *Coordinator) Ledger() *ledger.Ledger { return c.ledger }

// Trail exposes the audit appender for history and verification commands.
func (c *Coordinator) Trail() *audit.FileAppender { return c.trail }

// Gate exposes the approval gate for listing pending requests.
func (c *Coordinator) Gate() *approval.Gate { return c.gate }

// Classifier exposes the risk classifier for dry-run classification.
func (c *Coordinator) Classifier() *risk.Classifier { return c.classifier }

// Submit runs the pipeline for a new patch set. SAFE patch sets run to
// completion; anything riskier stops at awaiting_approval and reports the
// phrase the approver must type to Confirm.
func (c *Coordinator) Submit(ctx context.Context, patch *model.PatchSet) (*model.PipelineState, error) {
	if err := patch.Validate(); err != nil {
		return nil, errclass.ErrPatchConflict.WithMessage(err.Error())
	}

	classification, err := c.classifier.Classify(patch, c.store.Root)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}

	// The classification is recorded before anything else may happen.
	if _, err := c.trail.Record(audit.Entry{
		Action:         model.ActionClassify,
		TargetPaths:    patch.Paths(),
		PatchID:        patch.ID,
		Classification: classification,
		Success:        true,
	}); err != nil {
		return nil, err
	}

	state := newState(patch, classification)
	if err := c.saveState(state); err != nil {
		return nil, err
	}

	req, err := c.gate.RequestApproval(patch, classification)
	if err != nil {
		return nil, err
	}

	if req.Status == model.ApprovalApproved {
		state.Stage = model.StageAutoApproved
		if err := c.saveState(state); err != nil {
			return nil, err
		}
		c.log.Info("patch auto-approved", map[string]any{
			"patch_id": patch.ID.ShortID(), "tier": classification.Tier})
		return c.run(ctx, state)
	}

	if _, err := c.trail.Record(audit.Entry{
		Action:         model.ActionApprovalRequest,
		TargetPaths:    patch.Paths(),
		PatchID:        patch.ID,
		ApprovalID:     patch.ID,
		Classification: classification,
		Success:        true,
	}); err != nil {
		return nil, err
	}

	state.Stage = model.StageAwaitingApproval
	state.RequiredPhrase = req.RequiredPhrase
	if err := c.saveState(state); err != nil {
		return nil, err
	}
	c.log.Info("patch awaiting approval", map[string]any{
		"patch_id": patch.ID.ShortID(), "tier": classification.Tier})
	c.notify(c.hooks.SendApprovalRequested(c.store.InstallID, c.store.Root,
		patch.ID.String(), string(classification.Tier), patch.Description, false))
	return state, nil
}

// Confirm verifies the approval phrase and, on success, runs the rest of
// the pipeline. A mismatched phrase leaves the request pending.
func (c *Coordinator) Confirm(ctx context.Context, patchID model.PatchID, phrase, approver string) (*model.PipelineState, error) {
	state, err := c.loadState(patchID)
	if err != nil {
		return nil, err
	}
	if state.Stage != model.StageAwaitingApproval {
		return nil, errclass.ErrStateInvalid.WithMessagef(
			"patch %s is at stage %s, not awaiting approval", patchID.ShortID(), state.Stage)
	}

	if _, err := c.gate.Verify(patchID, phrase, approver); err != nil {
		return nil, err
	}

	if _, err := c.trail.Record(audit.Entry{
		Action:         model.ActionApprovalGrant,
		TargetPaths:    state.PatchSet.Paths(),
		PatchID:        patchID,
		ApprovalID:     patchID,
		Classification: state.Classification,
		Approver:       approver,
		Success:        true,
	}); err != nil {
		return nil, err
	}

	state.Stage = model.StageApproved
	state.Approver = approver
	if err := c.saveState(state); err != nil {
		return nil, err
	}
	c.notify(c.hooks.SendApprovalGranted(c.store.InstallID, c.store.Root,
		patchID.String(), approver, false))
	return c.run(ctx, state)
}

// Deny rejects a pending patch set. Denial is terminal.
func (c *Coordinator) Deny(ctx context.Context, patchID model.PatchID, reason, approver string) (*model.PipelineState, error) {
	state, err := c.loadState(patchID)
	if err != nil {
		return nil, err
	}
	if state.Stage.Terminal() {
		return nil, errclass.ErrStateInvalid.WithMessagef(
			"patch %s already reached stage %s", patchID.ShortID(), state.Stage)
	}

	if err := c.gate.Deny(patchID, reason, approver); err != nil {
		return nil, err
	}

	if _, err := c.trail.Record(audit.Entry{
		Action:         model.ActionApprovalDeny,
		TargetPaths:    state.PatchSet.Paths(),
		PatchID:        patchID,
		ApprovalID:     patchID,
		Classification: state.Classification,
		Approver:       approver,
		Success:        true,
		Details:        map[string]any{"reason": reason},
	}); err != nil {
		return nil, err
	}

	state.Stage = model.StageDenied
	state.Error = reason
	if err := c.saveState(state); err != nil {
		return nil, err
	}
	c.notify(c.hooks.SendApprovalDenied(c.store.InstallID, c.store.Root,
		patchID.String(), reason, false))
	return state, nil
}

// Resume continues a pipeline interrupted after approval: a crash between
// approval and apply leaves the state at approved or validated.
func (c *Coordinator) Resume(ctx context.Context, patchID model.PatchID) (*model.PipelineState, error) {
	state, err := c.loadState(patchID)
	if err != nil {
		return nil, err
	}
	switch state.Stage {
	case model.StageAutoApproved, model.StageApproved, model.StageValidated, model.StageApplied:
		return c.run(ctx, state)
	case model.StageAwaitingApproval:
		return nil, errclass.ErrApprovalRequired.WithMessagef(
			"patch %s is awaiting approval; confirm it with the required phrase", patchID.ShortID())
	default:
		return nil, errclass.ErrStateInvalid.WithMessagef(
			"patch %s at stage %s cannot resume", patchID.ShortID(), state.Stage)
	}
}

// Status returns the persisted pipeline state for a patch set.
func (c *Coordinator) Status(patchID model.PatchID) (*model.PipelineState, error) {
	return c.loadState(patchID)
}

// List returns every persisted pipeline state, oldest first.
func (c *Coordinator) List() ([]*model.PipelineState, error) {
	return listStates(c.store.PipelineDir())
}

// Rollback restores every file the applied patch set touched to its
// pre-apply checkpoint and records the rollback.
func (c *Coordinator) Rollback(ctx context.Context, patchID model.PatchID) ([]*model.RestoreResult, error) {
	state, err := c.loadState(patchID)
	if err != nil {
		return nil, err
	}
	if len(state.TouchedVersions) == 0 {
		return nil, errclass.ErrStateInvalid.WithMessagef(
			"patch %s has no applied versions to roll back", patchID.ShortID())
	}

	// Restore in reverse path order so nested files come back before the
	// directories above them, matching the applier's own rollback.
	paths := make([]string, 0, len(state.TouchedVersions))
	for path := range state.TouchedVersions {
		paths = append(paths, path)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(paths)))

	var results []*model.RestoreResult
	for _, path := range paths {
		res, err := c.ledger.Restore(path, state.TouchedVersions[path], false)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}

	if _, err := c.trail.Record(audit.Entry{
		Action:      model.ActionRollback,
		TargetPaths: paths,
		PatchID:     patchID,
		Success:     true,
	}); err != nil {
		return results, err
	}
	c.notify(c.hooks.SendRolledBack(c.store.InstallID, c.store.Root,
		patchID.String(), len(results), false))
	return results, nil
}

func newState(patch *model.PatchSet, classification *model.RiskClassification) *model.PipelineState {
	now := classification.ClassifiedAt
	return &model.PipelineState{
		PatchID:        patch.ID,
		Stage:          model.StageClassified,
		PatchSet:       patch,
		Classification: classification,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (c *Coordinator) liveHashes(paths []string) map[string]model.HashValue {
	hashes := make(map[string]model.HashValue, len(paths))
	for _, path := range paths {
		livePath := filepath.Join(c.store.Root, filepath.FromSlash(path))
		if _, err := os.Stat(livePath); os.IsNotExist(err) {
			continue
		}
		h, err := integrity.ComputeFileHash(livePath)
		if err != nil {
			continue
		}
		hashes[path] = h
	}
	return hashes
}
