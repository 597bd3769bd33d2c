//go:build conformance

package conformance

import (
	"strings"
	"testing"
)

// TestBrokenPatch_ValidationFailureIsTerminal submits content that does not
// parse. The classifier forces CRITICAL, and even a correct approval phrase
// cannot push it past sandbox validation.
func TestBrokenPatch_ValidationFailureIsTerminal(t *testing.T) {
	root := initTree(t)

	out := submitStaged(t, root, "refactor unit", map[string]string{
		"internal/unit/unit.go": "package unit\n\nfunc Broken( {\n",
	})
	if got := extractJSONField(out, "stage"); got != "awaiting_approval" {
		t.Fatalf("expected stage awaiting_approval, got %q (output: %s)", got, out)
	}
	if got := extractJSONField(out, "tier"); got != "CRITICAL" {
		t.Fatalf("unparseable content classified %q, want CRITICAL", got)
	}

	patchID := extractJSONField(out, "patch_id")
	phrase := extractJSONField(out, "required_phrase")

	_, stderr, code := runCrucible(t, root, "confirm", patchID, "-p", phrase, "--approver", "alex")
	if code == 0 {
		t.Fatal("confirm succeeded for a patch that cannot validate")
	}
	if !strings.Contains(stderr, "validation") {
		t.Errorf("error does not mention validation: %s", stderr)
	}

	stdout, _, _ := runCrucible(t, root, "--json", "status", patchID)
	if got := extractJSONField(stdout, "stage"); got != "validation_failed" {
		t.Fatalf("stage %q, want validation_failed", got)
	}

	// Nothing reached the live tree
	if fileExists(t, root, "internal/unit/unit.go") {
		t.Fatal("broken content reached the live tree")
	}

	// Terminal: the phrase no longer helps
	_, _, code = runCrucible(t, root, "confirm", patchID, "-p", phrase)
	if code == 0 {
		t.Fatal("confirm succeeded after validation failure")
	}

	// The failed validation is on the record
	history, _, _ := runCrucible(t, root, "history", "--failed")
	if !strings.Contains(history, "validate") {
		t.Errorf("failed validation missing from history: %s", history)
	}
}

// TestEmptySubmit_Rejected checks a staging dir with no files is refused.
func TestEmptySubmit_Rejected(t *testing.T) {
	root := initTree(t)
	staging := t.TempDir()

	_, stderr, code := runCrucible(t, root, "submit", staging, "--desc", "nothing")
	if code == 0 {
		t.Fatal("submitting an empty staging dir succeeded")
	}
	if stderr == "" {
		t.Error("no error message for empty submit")
	}
}

// TestEscapingPath_Rejected checks a staged path cannot climb out of the
// live tree.
func TestEscapingPath_Rejected(t *testing.T) {
	root := initTree(t)

	diff := "--- a/../outside.go\n" +
		"+++ b/../outside.go\n" +
		"@@ -0,0 +1,1 @@\n" +
		"+package outside\n"
	createFiles(t, root, map[string]string{"escape.patch": diff})

	_, _, code := runCrucible(t, root, "submit", "--diff", "escape.patch", "--desc", "escape")
	if code == 0 {
		t.Fatal("escaping target path was accepted")
	}
	if fileExists(t, root, "../outside.go") {
		t.Fatal("file written outside the live tree")
	}
}
