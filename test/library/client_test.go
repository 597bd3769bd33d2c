package library_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/crucible-project/crucible/internal/audit"
	"github.com/crucible-project/crucible/pkg/crucible"
	"github.com/crucible-project/crucible/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const greetSource = "package unit\n\nfunc Greet() string {\n\treturn \"hello\"\n}\n"
const greetDocumented = "package unit\n\n// Greet returns a greeting.\nfunc Greet() string {\n\treturn \"hello\"\n}\n"

func writeTree(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func readTree(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func TestInit_CreatesStateTree(t *testing.T) {
	dir := t.TempDir()

	client, err := crucible.Init(dir, crucible.Options{})
	require.NoError(t, err)
	require.NotNil(t, client)

	assert.DirExists(t, filepath.Join(dir, ".crucible"))
	assert.NotEmpty(t, client.InstallID())
	assert.Equal(t, dir, client.Root())
}

func TestOpen_OpensExistingTree(t *testing.T) {
	dir := t.TempDir()

	original, err := crucible.Init(dir, crucible.Options{})
	require.NoError(t, err)

	opened, err := crucible.Open(dir)
	require.NoError(t, err)
	assert.Equal(t, original.Root(), opened.Root())
	assert.Equal(t, original.InstallID(), opened.InstallID())
}

func TestOpen_FailsWithoutTree(t *testing.T) {
	_, err := crucible.Open(t.TempDir())
	assert.Error(t, err)
}

func TestOpenOrInit_InitializesWhenMissing(t *testing.T) {
	dir := t.TempDir()

	client, err := crucible.OpenOrInit(dir, crucible.Options{})
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(dir, ".crucible"))
	assert.NotEmpty(t, client.InstallID())
}

func TestOpenOrInit_OpensWhenExists(t *testing.T) {
	dir := t.TempDir()

	first, err := crucible.Init(dir, crucible.Options{})
	require.NoError(t, err)

	second, err := crucible.OpenOrInit(dir, crucible.Options{})
	require.NoError(t, err)
	assert.Equal(t, first.InstallID(), second.InstallID())
}

func TestSubmitDir_SafeChangeRunsToCompletion(t *testing.T) {
	dir := t.TempDir()
	client, err := crucible.Init(dir, crucible.Options{})
	require.NoError(t, err)

	writeTree(t, dir, "internal/unit/unit.go", greetSource)

	staging := t.TempDir()
	writeTree(t, staging, "internal/unit/unit.go", greetDocumented)

	ctx := context.Background()
	state, err := client.SubmitDir(ctx, staging, "document greeting")
	require.NoError(t, err)

	assert.Equal(t, model.StageLogged, state.Stage)
	assert.Equal(t, model.TierSafe, state.Classification.Tier)
	assert.Equal(t, greetDocumented, readTree(t, dir, "internal/unit/unit.go"))
}

func TestSubmitDiff_AppliesHunksAgainstLiveTree(t *testing.T) {
	dir := t.TempDir()
	client, err := crucible.Init(dir, crucible.Options{})
	require.NoError(t, err)

	writeTree(t, dir, "internal/unit/unit.go", greetSource)

	diff := []byte("--- a/internal/unit/unit.go\n" +
		"+++ b/internal/unit/unit.go\n" +
		"@@ -1,5 +1,6 @@\n" +
		" package unit\n" +
		" \n" +
		"+// Greet returns a greeting.\n" +
		" func Greet() string {\n" +
		" \treturn \"hello\"\n" +
		" }\n")

	state, err := client.SubmitDiff(context.Background(), diff, "document greeting")
	require.NoError(t, err)
	assert.Equal(t, model.StageLogged, state.Stage)
	assert.Contains(t, readTree(t, dir, "internal/unit/unit.go"), "// Greet returns a greeting.")
}

func TestSubmitDir_RiskyChangeAwaitsApproval(t *testing.T) {
	dir := t.TempDir()
	client, err := crucible.Init(dir, crucible.Options{})
	require.NoError(t, err)

	staging := t.TempDir()
	writeTree(t, staging, "internal/auth/keys.go",
		"package auth\n\nvar signingKey = \"private_key placeholder\"\n")

	ctx := context.Background()
	state, err := client.SubmitDir(ctx, staging, "rotate signing key")
	require.NoError(t, err)

	assert.Equal(t, model.StageAwaitingApproval, state.Stage)
	assert.NotEmpty(t, state.RequiredPhrase)

	pending, err := client.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, state.PatchID, pending[0].PatchID)

	// Untouched until confirmation
	_, statErr := os.Stat(filepath.Join(dir, "internal", "auth", "keys.go"))
	assert.True(t, os.IsNotExist(statErr))

	state, err = client.Confirm(ctx, state.PatchID, state.RequiredPhrase, "alex")
	require.NoError(t, err)
	assert.Equal(t, model.StageLogged, state.Stage)
	assert.Equal(t, "alex", state.Approver)
	assert.Contains(t, readTree(t, dir, "internal/auth/keys.go"), "signingKey")
}

func TestDeny_StopsPipeline(t *testing.T) {
	dir := t.TempDir()
	client, err := crucible.Init(dir, crucible.Options{})
	require.NoError(t, err)

	staging := t.TempDir()
	writeTree(t, staging, "internal/auth/keys.go",
		"package auth\n\nvar signingKey = \"private_key placeholder\"\n")

	ctx := context.Background()
	state, err := client.SubmitDir(ctx, staging, "rotate signing key")
	require.NoError(t, err)

	denied, err := client.Deny(ctx, state.PatchID, "not during release week", "alex")
	require.NoError(t, err)
	assert.Equal(t, model.StageDenied, denied.Stage)

	_, statErr := os.Stat(filepath.Join(dir, "internal", "auth", "keys.go"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestClassify_DryRunLeavesNoState(t *testing.T) {
	dir := t.TempDir()
	client, err := crucible.Init(dir, crucible.Options{})
	require.NoError(t, err)

	pset := &model.PatchSet{
		ID:       model.NewPatchID(),
		NewFiles: map[string]string{"internal/auth/keys.go": "package auth\n\nvar token = \"api_key placeholder\"\n"},
	}
	classification, err := client.Classify(pset)
	require.NoError(t, err)
	assert.True(t, classification.Tier.RequiresApproval())

	states, err := client.List()
	require.NoError(t, err)
	assert.Empty(t, states)
}

func TestRollback_RestoresPreApplyContent(t *testing.T) {
	dir := t.TempDir()
	client, err := crucible.Init(dir, crucible.Options{})
	require.NoError(t, err)

	writeTree(t, dir, "internal/unit/unit.go", greetSource)

	staging := t.TempDir()
	writeTree(t, staging, "internal/unit/unit.go", greetDocumented)

	ctx := context.Background()
	state, err := client.SubmitDir(ctx, staging, "document greeting")
	require.NoError(t, err)
	require.Equal(t, model.StageLogged, state.Stage)

	results, err := client.Rollback(ctx, state.PatchID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, greetSource, readTree(t, dir, "internal/unit/unit.go"))
}

func TestRestoreLastStable_RevertsManualEdit(t *testing.T) {
	dir := t.TempDir()
	client, err := crucible.Init(dir, crucible.Options{})
	require.NoError(t, err)

	writeTree(t, dir, "internal/unit/unit.go", greetSource)

	staging := t.TempDir()
	writeTree(t, staging, "internal/unit/unit.go", greetDocumented)

	ctx := context.Background()
	state, err := client.SubmitDir(ctx, staging, "document greeting")
	require.NoError(t, err)
	require.Equal(t, model.StageLogged, state.Stage)

	// Corrupt the live file outside the pipeline
	writeTree(t, dir, "internal/unit/unit.go", "garbage")

	res, err := client.RestoreLastStable("internal/unit/unit.go")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, greetDocumented, readTree(t, dir, "internal/unit/unit.go"))
}

func TestHistoryAndVerify_AfterFullRun(t *testing.T) {
	dir := t.TempDir()
	client, err := crucible.Init(dir, crucible.Options{})
	require.NoError(t, err)

	writeTree(t, dir, "internal/unit/unit.go", greetSource)

	staging := t.TempDir()
	writeTree(t, staging, "internal/unit/unit.go", greetDocumented)

	ctx := context.Background()
	state, err := client.SubmitDir(ctx, staging, "document greeting")
	require.NoError(t, err)
	require.Equal(t, model.StageLogged, state.Stage)

	history, err := client.History(audit.Filter{}, 0)
	require.NoError(t, err)
	require.NotEmpty(t, history)
	// Newest first
	assert.Equal(t, model.ActionApply, history[0].Action)

	applies, err := client.History(audit.Filter{Action: model.ActionApply}, 0)
	require.NoError(t, err)
	require.Len(t, applies, 1)
	assert.Equal(t, state.PatchID, applies[0].PatchID)

	result, err := client.VerifyAudit()
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.Valid)
	assert.Zero(t, len(result.Problems))
}

func TestFullLifecycle_SubmitConfirmRollbackVerify(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	// 1. Open or initialize, the agent-runtime entry point
	client, err := crucible.OpenOrInit(dir, crucible.Options{})
	require.NoError(t, err)

	// 2. Live code the agent wants to change
	writeTree(t, dir, "internal/fetch/fetch.go",
		"package fetch\n\nfunc Get(addr string) (string, error) {\n\treturn \"\", nil\n}\n")

	// 3. Staged change pulling in the network: needs a human
	staging := t.TempDir()
	writeTree(t, staging, "internal/fetch/fetch.go",
		"package fetch\n\nimport \"net\"\n\nfunc Get(addr string) (string, error) {\n\tconn, err := net.Dial(\"tcp\", addr)\n\tif err != nil {\n\t\treturn \"\", err\n\t}\n\tdefer conn.Close()\n\treturn conn.RemoteAddr().String(), nil\n}\n")

	state, err := client.SubmitDir(ctx, staging, "implement fetch over tcp")
	require.NoError(t, err)
	require.Equal(t, model.StageAwaitingApproval, state.Stage)

	// 4. Human confirms with the exact phrase
	state, err = client.Confirm(ctx, state.PatchID, state.RequiredPhrase, "alex")
	require.NoError(t, err)
	require.Equal(t, model.StageLogged, state.Stage)
	assert.Contains(t, readTree(t, dir, "internal/fetch/fetch.go"), "net.Dial")

	// 5. Change misbehaves in production, roll it back
	results, err := client.Rollback(ctx, state.PatchID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NotContains(t, readTree(t, dir, "internal/fetch/fetch.go"), "net.Dial")

	// 6. The whole story survives in a clean audit chain
	verify, err := client.VerifyAudit()
	require.NoError(t, err)
	assert.True(t, verify.Valid)

	history, err := client.History(audit.Filter{PatchID: state.PatchID}, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, history)
}
