package crucible

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/crucible-project/crucible/internal/applier"
	"github.com/crucible-project/crucible/internal/audit"
	"github.com/crucible-project/crucible/internal/coordinator"
	"github.com/crucible-project/crucible/internal/patch"
	"github.com/crucible-project/crucible/internal/store"
	"github.com/crucible-project/crucible/pkg/config"
	"github.com/crucible-project/crucible/pkg/logging"
	"github.com/crucible-project/crucible/pkg/model"
)

// Client provides high-level pipeline operations on a governed source tree.
type Client struct {
	store *store.Store
	cfg   *config.Config
	coord *coordinator.Coordinator
}

// Options configures a Client's optional collaborators.
type Options struct {
	// Registry reloads runtime units after their files change. Nil skips
	// reloads.
	Registry applier.UnitRegistry
	// Commit receives each fully applied patch set, typically to commit it
	// to version control. Nil skips the step.
	Commit coordinator.CommitSink
	// Logger defaults to a logger at the configured level.
	Logger *logging.Logger
}

// Init initializes a pipeline state tree at the given path.
func Init(path string, opts Options) (*Client, error) {
	st, err := store.Init(path)
	if err != nil {
		return nil, fmt.Errorf("crucible init: %w", err)
	}
	return open(st, opts)
}

// Open opens an existing pipeline state tree at or above the given path.
func Open(path string) (*Client, error) {
	return OpenWith(path, Options{})
}

// OpenWith opens an existing pipeline state tree with explicit options.
func OpenWith(path string, opts Options) (*Client, error) {
	st, err := store.Discover(path)
	if err != nil {
		return nil, fmt.Errorf("crucible open: %w", err)
	}
	return open(st, opts)
}

// OpenOrInit opens an existing state tree, or initializes a new one if none
// exists. This is the recommended entry point for agent-runtime integration.
func OpenOrInit(path string, opts Options) (*Client, error) {
	stateDir := filepath.Join(path, store.StateDirName)
	if info, err := os.Stat(stateDir); err == nil && info.IsDir() {
		return OpenWith(path, opts)
	}
	return Init(path, opts)
}

func open(st *store.Store, opts Options) (*Client, error) {
	cfg, err := config.Load(st.Root)
	if err != nil {
		return nil, err
	}
	coord := coordinator.New(st, cfg, coordinator.Options{
		Registry: opts.Registry,
		Commit:   opts.Commit,
		Logger:   opts.Logger,
	})
	return &Client{store: st, cfg: cfg, coord: coord}, nil
}

// SubmitDir loads a patch set from a staging directory mirroring the live
// tree layout and submits it to the pipeline.
func (c *Client) SubmitDir(ctx context.Context, stagingDir, description string) (*model.PipelineState, error) {
	pset, err := patch.LoadDir(stagingDir, c.store.Root, description)
	if err != nil {
		return nil, err
	}
	return c.coord.Submit(ctx, pset)
}

// SubmitDiff parses a unified diff against the live tree and submits the
// resulting patch set.
func (c *Client) SubmitDiff(ctx context.Context, diff []byte, description string) (*model.PipelineState, error) {
	pset, err := patch.LoadUnifiedDiff(diff, c.store.Root, description)
	if err != nil {
		return nil, err
	}
	return c.coord.Submit(ctx, pset)
}

// Submit runs an already constructed patch set through the pipeline.
func (c *Client) Submit(ctx context.Context, pset *model.PatchSet) (*model.PipelineState, error) {
	return c.coord.Submit(ctx, pset)
}

// Confirm verifies the approval phrase for a pending patch set and, on
// success, runs the rest of the pipeline.
func (c *Client) Confirm(ctx context.Context, patchID model.PatchID, phrase, approver string) (*model.PipelineState, error) {
	return c.coord.Confirm(ctx, patchID, phrase, approver)
}

// Deny rejects a pending patch set. Denial is terminal.
func (c *Client) Deny(ctx context.Context, patchID model.PatchID, reason, approver string) (*model.PipelineState, error) {
	return c.coord.Deny(ctx, patchID, reason, approver)
}

// Resume continues a pipeline interrupted after approval.
func (c *Client) Resume(ctx context.Context, patchID model.PatchID) (*model.PipelineState, error) {
	return c.coord.Resume(ctx, patchID)
}

// Status returns the persisted pipeline state for a patch set.
func (c *Client) Status(patchID model.PatchID) (*model.PipelineState, error) {
	return c.coord.Status(patchID)
}

// List returns every persisted pipeline state, oldest first.
func (c *Client) List() ([]*model.PipelineState, error) {
	return c.coord.List()
}

// Pending returns approval requests still awaiting a phrase, oldest first.
func (c *Client) Pending() ([]*model.ApprovalRequest, error) {
	return c.coord.Gate().Pending()
}

// Classify runs the risk classifier against a patch set without starting
// the pipeline. Nothing is persisted.
func (c *Client) Classify(pset *model.PatchSet) (*model.RiskClassification, error) {
	return c.coord.Classifier().Classify(pset, c.store.Root)
}

// Rollback restores every file an applied patch set touched to its
// pre-apply checkpoint.
func (c *Client) Rollback(ctx context.Context, patchID model.PatchID) ([]*model.RestoreResult, error) {
	return c.coord.Rollback(ctx, patchID)
}

// RestoreLastStable restores one target path to its last stable checkpoint.
func (c *Client) RestoreLastStable(targetPath string) (*model.RestoreResult, error) {
	return c.coord.Ledger().RestoreLastStable(targetPath, false)
}

// History queries the audit trail, newest first. Pass limit <= 0 for all
// records.
func (c *Client) History(filter audit.Filter, limit int) ([]*model.AuditRecord, error) {
	return c.coord.Trail().Query(filter, limit)
}

// VerifyAudit re-verifies the audit trail hash chain.
func (c *Client) VerifyAudit() (*audit.VerifyResult, error) {
	return c.coord.Trail().VerifyChain()
}

// Root returns the absolute path to the governed tree root.
func (c *Client) Root() string {
	return c.store.Root
}

// InstallID returns the unique identifier written at init time.
func (c *Client) InstallID() string {
	return c.store.InstallID
}
