package patch_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/crucible-project/crucible/internal/patch"
	"github.com/crucible-project/crucible/pkg/errclass"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoadDir_SplitsNewModifiedAndTests(t *testing.T) {
	liveRoot := t.TempDir()
	staging := t.TempDir()

	writeFile(t, liveRoot, "internal/unit/unit.go", "package unit\n")
	writeFile(t, staging, "internal/unit/unit.go", "package unit\n\nfunc Added() {}\n")
	writeFile(t, staging, "internal/unit/extra.go", "package unit\n\nfunc Extra() {}\n")
	writeFile(t, staging, "internal/unit/unit_test.go", "package unit\n\nimport \"testing\"\n\nfunc TestAdded(t *testing.T) {}\n")

	p, err := patch.LoadDir(staging, liveRoot, "add helper")
	require.NoError(t, err)

	assert.Equal(t, "add helper", p.Description)
	assert.Contains(t, p.ModifiedFiles, "internal/unit/unit.go")
	assert.Contains(t, p.NewFiles, "internal/unit/extra.go")
	assert.Contains(t, p.TestFiles, "internal/unit/unit_test.go")
	assert.NotContains(t, p.NewFiles, "internal/unit/unit_test.go")
	assert.False(t, p.CreatedAt.IsZero())
}

func TestLoadDir_EmptyStagingRejected(t *testing.T) {
	_, err := patch.LoadDir(t.TempDir(), t.TempDir(), "")
	require.Error(t, err)
}

const modifyDiff = `--- a/internal/unit/unit.go
+++ b/internal/unit/unit.go
@@ -1,5 +1,5 @@
 package unit

 func Greet() string {
-	return "hello"
+	return "hi"
 }
`

func TestLoadUnifiedDiff_ModifiesExistingFile(t *testing.T) {
	liveRoot := t.TempDir()
	writeFile(t, liveRoot, "internal/unit/unit.go",
		"package unit\n\nfunc Greet() string {\n\treturn \"hello\"\n}\n")

	p, err := patch.LoadUnifiedDiff([]byte(modifyDiff), liveRoot, "reword greeting")
	require.NoError(t, err)

	got := p.ModifiedFiles["internal/unit/unit.go"]
	assert.Equal(t, "package unit\n\nfunc Greet() string {\n\treturn \"hi\"\n}\n", got)
}

const newFileDiff = `--- /dev/null
+++ b/internal/unit/extra.go
@@ -0,0 +1,3 @@
+package unit
+
+func Extra() {}
`

func TestLoadUnifiedDiff_CreatesNewFile(t *testing.T) {
	p, err := patch.LoadUnifiedDiff([]byte(newFileDiff), t.TempDir(), "")
	require.NoError(t, err)

	assert.Equal(t, "package unit\n\nfunc Extra() {}\n", p.NewFiles["internal/unit/extra.go"])
}

const deleteDiff = `--- a/internal/unit/unit.go
+++ /dev/null
@@ -1,1 +0,0 @@
-package unit
`

func TestLoadUnifiedDiff_DeletionRejected(t *testing.T) {
	liveRoot := t.TempDir()
	writeFile(t, liveRoot, "internal/unit/unit.go", "package unit\n")

	_, err := patch.LoadUnifiedDiff([]byte(deleteDiff), liveRoot, "")
	require.ErrorIs(t, err, errclass.ErrPatchConflict)
}

func TestLoadUnifiedDiff_ContextMismatchRejected(t *testing.T) {
	liveRoot := t.TempDir()
	writeFile(t, liveRoot, "internal/unit/unit.go",
		"package unit\n\nfunc Greet() string {\n\treturn \"goodbye\"\n}\n")

	_, err := patch.LoadUnifiedDiff([]byte(modifyDiff), liveRoot, "")
	require.ErrorIs(t, err, errclass.ErrPatchConflict)
}

func TestLoadUnifiedDiff_MissingFileRejected(t *testing.T) {
	_, err := patch.LoadUnifiedDiff([]byte(modifyDiff), t.TempDir(), "")
	require.ErrorIs(t, err, errclass.ErrPatchConflict)
}
