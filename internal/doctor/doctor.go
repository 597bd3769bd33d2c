// Package doctor runs health checks over the pipeline state tree and
// reports anything that needs operator attention.
package doctor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/crucible-project/crucible/internal/applier"
	"github.com/crucible-project/crucible/internal/audit"
	"github.com/crucible-project/crucible/internal/integrity"
	"github.com/crucible-project/crucible/internal/ledger"
	"github.com/crucible-project/crucible/internal/store"
	"github.com/crucible-project/crucible/pkg/config"
	"github.com/crucible-project/crucible/pkg/model"
	"github.com/crucible-project/crucible/pkg/progress"
)

// Finding represents a detected issue.
type Finding struct {
	Category    string `json:"category"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Path        string `json:"path,omitempty"`
}

// Result contains doctor check results.
type Result struct {
	Healthy  bool      `json:"healthy"`
	Findings []Finding `json:"findings"`
}

// Doctor performs pipeline state health checks.
type Doctor struct {
	store    *store.Store
	cfg      *config.Config
	progress progress.Callback
}

// NewDoctor creates a new doctor over an initialized store.
func NewDoctor(st *store.Store, cfg *config.Config) *Doctor {
	return &Doctor{store: st, cfg: cfg, progress: progress.Noop}
}

// SetProgress installs a callback for the strict integrity sweep, which can
// take a while on trees with long checkpoint histories.
func (d *Doctor) SetProgress(cb progress.Callback) {
	if cb == nil {
		cb = progress.Noop
	}
	d.progress = cb
}

// Check runs all diagnostic checks. Strict mode adds the expensive
// integrity checks: full audit chain verification and checkpoint
// metadata validation.
func (d *Doctor) Check(strict bool) (*Result, error) {
	result := &Result{Healthy: true}

	d.checkFormatVersion(result)
	d.checkStaleIntents(result)
	d.checkExpiredLocks(result)
	d.checkOrphanTmp(result)

	if strict {
		d.checkAuditChain(result)
		d.checkCheckpointIntegrity(result)
	}

	return result, nil
}

func (d *Doctor) checkFormatVersion(result *Result) {
	versionPath := filepath.Join(d.store.StateDir(), store.FormatVersionFile)
	data, err := os.ReadFile(versionPath)
	if err != nil {
		result.Findings = append(result.Findings, Finding{
			Category:    "format",
			Description: "format_version file missing or unreadable",
			Severity:    "critical",
			Path:        versionPath,
		})
		result.Healthy = false
		return
	}

	var version int
	fmt.Sscanf(string(data), "%d", &version)
	if version > store.FormatVersion {
		result.Findings = append(result.Findings, Finding{
			Category:    "format",
			Description: fmt.Sprintf("format version %d > supported %d", version, store.FormatVersion),
			Severity:    "critical",
		})
		result.Healthy = false
	}
}

// checkStaleIntents reports apply intents left behind by a crashed apply.
// Each one names a patch whose live writes may be incomplete.
func (d *Doctor) checkStaleIntents(result *Result) {
	intents, err := applier.PendingIntents(d.store.IntentsDir())
	if err != nil {
		result.Findings = append(result.Findings, Finding{
			Category:    "intent",
			Description: fmt.Sprintf("cannot list apply intents: %v", err),
			Severity:    "error",
		})
		return
	}

	for _, intent := range intents {
		result.Findings = append(result.Findings, Finding{
			Category: "intent",
			Description: fmt.Sprintf("stale apply intent for patch %s (started %s), run rollback or resume",
				intent.PatchID.ShortID(), intent.StartedAt.Format(time.RFC3339)),
			Severity: "warning",
			Path:     filepath.Join(d.store.IntentsDir(), string(intent.PatchID)+".json"),
		})
	}
}

func (d *Doctor) checkExpiredLocks(result *Result) {
	entries, err := os.ReadDir(d.store.LocksDir())
	if err != nil {
		return // directory doesn't exist, that's fine
	}

	now := time.Now()
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".lock.json") {
			continue
		}
		path := filepath.Join(d.store.LocksDir(), entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var rec model.LockRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			result.Findings = append(result.Findings, Finding{
				Category:    "lock",
				Description: fmt.Sprintf("unparseable lock file: %s", entry.Name()),
				Severity:    "warning",
				Path:        path,
			})
			continue
		}
		if rec.IsExpired(now) {
			result.Findings = append(result.Findings, Finding{
				Category: "lock",
				Description: fmt.Sprintf("expired lock on %s (since %s)",
					rec.TargetPath, rec.ExpiresAt.Format(time.RFC3339)),
				Severity: "info",
				Path:     path,
			})
		}
	}
}

// checkAuditChain re-verifies the full hash chain. A broken chain means the
// log was edited after the fact.
func (d *Doctor) checkAuditChain(result *Result) {
	trail := audit.NewFileAppender(d.store.AuditLogPath())
	verify, err := trail.VerifyChain()
	if verify == nil {
		result.Findings = append(result.Findings, Finding{
			Category:    "audit",
			Description: fmt.Sprintf("audit verification failed: %v", err),
			Severity:    "error",
		})
		return
	}
	for _, problem := range verify.Problems {
		result.Findings = append(result.Findings, Finding{
			Category:    "audit",
			Description: problem,
			Severity:    "critical",
		})
		result.Healthy = false
	}
}

func (d *Doctor) checkCheckpointIntegrity(result *Result) {
	led := ledger.NewLedger(d.store.CheckpointsDir(), d.store.Root, d.cfg.Retention)
	paths, err := led.TrackedPaths()
	if err != nil {
		result.Findings = append(result.Findings, Finding{
			Category:    "checkpoint",
			Description: fmt.Sprintf("cannot list tracked paths: %v", err),
			Severity:    "error",
		})
		return
	}

	for i, path := range paths {
		d.progress("verify checkpoints", i+1, len(paths), path)
		checkpoints, err := led.List(path)
		if err != nil {
			result.Findings = append(result.Findings, Finding{
				Category:    "checkpoint",
				Description: fmt.Sprintf("cannot list checkpoints for %s: %v", path, err),
				Severity:    "error",
				Path:        path,
			})
			continue
		}
		for _, cp := range checkpoints {
			// Get re-verifies the metadata checksum.
			if _, err := led.Get(path, cp.VersionID); err != nil {
				result.Findings = append(result.Findings, Finding{
					Category:    "checkpoint",
					Description: fmt.Sprintf("checkpoint %s for %s: %v", cp.VersionID.ShortID(), path, err),
					Severity:    "critical",
					Path:        path,
				})
				result.Healthy = false
				continue
			}
			if cp.Missing {
				continue
			}
			content, err := os.ReadFile(cp.BackupPath)
			if err != nil {
				result.Findings = append(result.Findings, Finding{
					Category:    "checkpoint",
					Description: fmt.Sprintf("checkpoint %s for %s: backup unreadable: %v", cp.VersionID.ShortID(), path, err),
					Severity:    "critical",
					Path:        cp.BackupPath,
				})
				result.Healthy = false
				continue
			}
			if got := integrity.ComputeContentHash(content); got != cp.ContentHash {
				result.Findings = append(result.Findings, Finding{
					Category:    "checkpoint",
					Description: fmt.Sprintf("checkpoint %s for %s: backup content hash mismatch", cp.VersionID.ShortID(), path),
					Severity:    "critical",
					Path:        cp.BackupPath,
				})
				result.Healthy = false
			}
		}
	}
}

func (d *Doctor) checkOrphanTmp(result *Result) {
	// AtomicWrite temp files survive only if a write crashed mid-flight.
	filepath.Walk(d.store.Root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		name := info.Name()
		if strings.HasPrefix(name, ".crucible-tmp-") {
			result.Findings = append(result.Findings, Finding{
				Category:    "tmp",
				Description: fmt.Sprintf("orphan temp file: %s", name),
				Severity:    "info",
				Path:        path,
			})
		}
		return nil
	})
}
