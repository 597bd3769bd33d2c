package sandbox

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/crucible-project/crucible/pkg/model"
)

// lintStep runs each configured lint command in the sandbox. Lint findings
// are recorded as warnings; style never blocks an apply.
func (v *Validator) lintStep(ctx context.Context, result *model.ValidationResult, dir string) {
	for _, cmd := range v.cfg.LintCommands {
		if len(cmd) == 0 {
			continue
		}
		out, err := runCommand(ctx, dir, cmd[0], cmd[1:]...)
		if err != nil || strings.TrimSpace(out) != "" {
			msg := strings.TrimSpace(out)
			if msg == "" && err != nil {
				msg = err.Error()
			}
			result.AddWarning("lint", "", fmt.Sprintf("%s: %s", cmd[0], msg))
		}
	}
}

// testStep runs the configured test command under the sandbox timeout and
// folds its outcome into the result.
func (v *Validator) testStep(ctx context.Context, result *model.ValidationResult, dir string) {
	if len(v.cfg.TestCommand) == 0 {
		result.AddWarning("test", "", "patch set carries tests but no test command is configured")
		return
	}

	timeout := v.cfg.TestTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := runCommand(ctx, dir, v.cfg.TestCommand[0], v.cfg.TestCommand[1:]...)
	passed, failed := countTestResults(out)
	result.TestsPassed = passed
	result.TestsFailed = failed
	result.TestsRun = passed + failed
	result.CoveragePct = parseCoverage(out)

	if ctx.Err() == context.DeadlineExceeded {
		result.AddError("test", "", fmt.Sprintf("test run exceeded %s", timeout))
		return
	}
	if err != nil {
		msg := strings.TrimSpace(out)
		if msg == "" {
			msg = err.Error()
		}
		result.AddError("test", "", msg)
	}
}

// runCommand executes the command in dir and returns its combined output.
func runCommand(ctx context.Context, dir, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	return string(out), err
}

var coverageRe = regexp.MustCompile(`coverage: (\d+(?:\.\d+)?)% of statements`)

func parseCoverage(out string) float64 {
	m := coverageRe.FindStringSubmatch(out)
	if m == nil {
		return 0
	}
	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return pct
}

func countTestResults(out string) (passed, failed int) {
	for _, line := range strings.Split(out, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "--- PASS:"):
			passed++
		case strings.HasPrefix(trimmed, "--- FAIL:"):
			failed++
		}
	}
	return passed, failed
}
