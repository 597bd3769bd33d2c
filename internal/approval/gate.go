// Package approval gates risky patch sets behind explicit, phrase-confirmed
// human consent. Requests are durable JSON files so a pending request
// survives a crash between proposal and confirmation.
package approval

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/crucible-project/crucible/pkg/config"
	"github.com/crucible-project/crucible/pkg/errclass"
	"github.com/crucible-project/crucible/pkg/fsutil"
	"github.com/crucible-project/crucible/pkg/model"
)

// Gate manages approval requests under .crucible/approvals/.
type Gate struct {
	approvalsDir string
	phrases      config.ApprovalConfig
}

// NewGate creates an approval gate storing requests in approvalsDir.
func NewGate(approvalsDir string, phrases config.ApprovalConfig) *Gate {
	return &Gate{approvalsDir: approvalsDir, phrases: phrases}
}

// RequestApproval files a new request for the classified patch set. SAFE
// patch sets auto-approve and return an empty phrase; every other tier
// returns the phrase the approver must type.
func (g *Gate) RequestApproval(patch *model.PatchSet, classification *model.RiskClassification) (*model.ApprovalRequest, error) {
	req := &model.ApprovalRequest{
		PatchID:        patch.ID,
		Classification: *classification,
		Description:    patch.Description,
		Status:         model.ApprovalPending,
		CreatedAt:      time.Now().UTC(),
	}

	if !classification.Tier.RequiresApproval() {
		now := time.Now().UTC()
		req.Status = model.ApprovalApproved
		req.ResolvedAt = &now
		req.ResolvedBy = "auto"
	} else {
		req.RequiredPhrase = g.phrases.Phrase(classification.Tier)
		if req.RequiredPhrase == "" {
			return nil, errclass.ErrStateInvalid.WithMessagef(
				"no approval phrase configured for tier %s", classification.Tier)
		}
	}

	if err := g.writeRequest(req); err != nil {
		return nil, err
	}
	return req, nil
}

// Verify matches the typed phrase against the request's own required phrase.
// Matching is a case-insensitive substring check; the phrase for one tier
// never satisfies a request at another tier because phrases are distinct.
func (g *Gate) Verify(patchID model.PatchID, typedPhrase, approver string) (*model.Verdict, error) {
	req, err := g.Get(patchID)
	if err != nil {
		return nil, err
	}

	if req.Status == model.ApprovalDenied {
		return &model.Verdict{Approved: false, Reason: "request was denied"},
			errclass.ErrApprovalDenied.WithMessagef("patch %s was denied", patchID.ShortID())
	}
	if req.Status == model.ApprovalApproved {
		return &model.Verdict{Approved: true, Reason: "already approved"}, nil
	}

	if !strings.Contains(strings.ToLower(typedPhrase), strings.ToLower(req.RequiredPhrase)) {
		return &model.Verdict{Approved: false, Reason: "phrase does not match"},
			errclass.ErrPhraseMismatch.WithMessagef(
				"expected phrase for tier %s", req.Classification.Tier)
	}

	now := time.Now().UTC()
	req.Status = model.ApprovalApproved
	req.ResolvedAt = &now
	req.ResolvedBy = approver
	if err := g.writeRequest(req); err != nil {
		return nil, err
	}
	return &model.Verdict{Approved: true}, nil
}

// Deny marks a pending request as denied. Denying an already denied request
// is a no-op.
func (g *Gate) Deny(patchID model.PatchID, reason, approver string) error {
	req, err := g.Get(patchID)
	if err != nil {
		return err
	}
	if req.Status == model.ApprovalDenied {
		return nil
	}
	if req.Status == model.ApprovalApproved {
		return errclass.ErrStateInvalid.WithMessagef(
			"patch %s is already approved", patchID.ShortID())
	}

	now := time.Now().UTC()
	req.Status = model.ApprovalDenied
	req.ResolvedAt = &now
	req.ResolvedBy = approver
	req.DenyReason = reason
	return g.writeRequest(req)
}

// Get loads a request by patch ID.
func (g *Gate) Get(patchID model.PatchID) (*model.ApprovalRequest, error) {
	data, err := os.ReadFile(g.requestPath(patchID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errclass.ErrApprovalNotFound.WithMessagef(
				"no approval request for patch %s", patchID.ShortID())
		}
		return nil, fmt.Errorf("read approval request: %w", err)
	}
	var req model.ApprovalRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, errclass.ErrMetaCorrupt.WithMessagef(
			"parse approval request %s: %v", patchID.ShortID(), err)
	}
	return &req, nil
}

// Pending lists all unresolved requests, oldest first.
func (g *Gate) Pending() ([]*model.ApprovalRequest, error) {
	entries, err := os.ReadDir(g.approvalsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read approvals dir: %w", err)
	}

	var pending []*model.ApprovalRequest
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		id := model.PatchID(strings.TrimSuffix(entry.Name(), ".json"))
		req, err := g.Get(id)
		if err != nil {
			return nil, err
		}
		if !req.Resolved() {
			pending = append(pending, req)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	return pending, nil
}

// Clear removes a request file. Clearing a missing request is a no-op.
func (g *Gate) Clear(patchID model.PatchID) error {
	err := os.Remove(g.requestPath(patchID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove approval request: %w", err)
	}
	return nil
}

func (g *Gate) requestPath(patchID model.PatchID) string {
	return filepath.Join(g.approvalsDir, string(patchID)+".json")
}

func (g *Gate) writeRequest(req *model.ApprovalRequest) error {
	if err := os.MkdirAll(g.approvalsDir, 0755); err != nil {
		return fmt.Errorf("create approvals dir: %w", err)
	}
	data, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal approval request: %w", err)
	}
	return fsutil.AtomicWrite(g.requestPath(req.PatchID), data, 0644)
}
