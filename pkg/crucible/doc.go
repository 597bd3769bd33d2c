// Package crucible provides a high-level library API for the
// self-modification safety pipeline.
//
// This package is the primary integration point for external consumers such
// as an agent runtime that proposes changes to its own source tree. It wraps
// internal packages into a clean, stable public API.
//
// # Concurrency Safety
//
// Pipeline operations are filesystem-based and follow these rules:
//
//   - Submit(), Confirm() and Rollback() serialize on per-target-path locks;
//     two patches touching the same file can never interleave, and a second
//     apply against a locked path fails fast.
//
//   - Multiple Client instances for DIFFERENT trees are fully independent
//     and safe to use concurrently.
//
//   - Read-only operations (Status, List, History, VerifyAudit) are safe at
//     any time.
//
// # Recommended Usage Pattern (agent runtime)
//
//	client, err := crucible.OpenOrInit(treeRoot, crucible.Options{
//	    Registry: registry, // reloads units whose files changed
//	})
//	state, err := client.SubmitDir(ctx, stagingDir, "add retry to fetcher")
//	if state.Stage == model.StageAwaitingApproval {
//	    // surface state.RequiredPhrase to a human, then:
//	    state, err = client.Confirm(ctx, state.PatchID, typedPhrase, "operator")
//	}
package crucible
