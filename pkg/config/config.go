// Package config provides configuration file support for the pipeline.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/crucible-project/crucible/pkg/model"
	"github.com/crucible-project/crucible/pkg/webhook"
)

// Config represents the pipeline configuration, loaded from
// .crucible/config.yaml beside the governed source tree.
type Config struct {
	Risk      RiskConfig      `yaml:"risk"`
	Approval  ApprovalConfig  `yaml:"approval"`
	Sandbox   SandboxConfig   `yaml:"sandbox"`
	Retention RetentionConfig `yaml:"retention"`
	Logging   LoggingConfig   `yaml:"logging"`
	Webhooks  webhook.Config  `yaml:"webhooks"`
}

// RiskConfig configures the classifier's rule table and thresholds.
type RiskConfig struct {
	// PrivilegedModules lists relative path prefixes whose modification
	// always adds PrivilegedIncrement to the score.
	PrivilegedModules   []string `yaml:"privileged_modules"`
	PrivilegedIncrement float64  `yaml:"privileged_increment"`
	// Categories is the data-driven rule table: one entry per sensitive
	// pattern category, evaluated uniformly.
	Categories []PatternCategory `yaml:"categories"`
	// DangerousImports lists import paths whose introduction is flagged.
	DangerousImports []string `yaml:"dangerous_imports"`
	// Thresholds map a clamped score to a tier: score < Safe -> SAFE,
	// < Caution -> CAUTION, < Sensitive -> SENSITIVE, else CRITICAL.
	Thresholds TierThresholds `yaml:"thresholds"`
	// LargeChangeRatio is the changed-lines fraction above which the
	// large-change penalty applies.
	LargeChangeRatio         float64 `yaml:"large_change_ratio"`
	LargeChangeIncrement     float64 `yaml:"large_change_increment"`
	FunctionDeleteFloor      float64 `yaml:"function_delete_floor"`
	ImportRemoveIncrement    float64 `yaml:"import_remove_increment"`
	DangerousImportIncrement float64 `yaml:"dangerous_import_increment"`
}

// PatternCategory is one row of the risk rule table.
type PatternCategory struct {
	Name      string   `yaml:"name"`
	Flag      string   `yaml:"flag"`
	Patterns  []string `yaml:"patterns"`
	Increment float64  `yaml:"increment"`
}

// TierThresholds are the fixed score cut points for tier mapping.
type TierThresholds struct {
	Safe      float64 `yaml:"safe"`
	Caution   float64 `yaml:"caution"`
	Sensitive float64 `yaml:"sensitive"`
}

// ApprovalConfig carries the per-tier confirmation phrases.
type ApprovalConfig struct {
	Phrases map[model.RiskTier]string `yaml:"phrases"`
}

// Phrase returns the configured phrase for a tier, or "" for SAFE.
func (a ApprovalConfig) Phrase(tier model.RiskTier) string {
	return a.Phrases[tier]
}

// SandboxConfig configures sandbox validation.
type SandboxConfig struct {
	// TestTimeout is the hard wall-clock ceiling on sandbox test execution.
	TestTimeout time.Duration `yaml:"test_timeout"`
	// TestCommand is run in the sandbox when the patch set carries tests.
	TestCommand []string `yaml:"test_command"`
	// LintCommands are run against the sandboxed files; their findings are
	// recorded as warnings, never blocking errors.
	LintCommands [][]string `yaml:"lint_commands"`
	// RemediateCommand installs a missing dependency; bounded to one
	// attempt per sandbox run.
	RemediateCommand []string `yaml:"remediate_command"`
}

// RetentionConfig configures checkpoint retention.
type RetentionConfig struct {
	// MaxNonStablePerFile bounds non-stable checkpoints per target path;
	// the oldest are evicted first.
	MaxNonStablePerFile int `yaml:"max_non_stable_per_file"`
	// StableRetention is how long stable checkpoints stay exempt from
	// pruning after an external commit makes them redundant.
	StableRetention time.Duration `yaml:"stable_retention"`
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, text
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Risk: RiskConfig{
			PrivilegedModules:   []string{"internal/coordinator", "internal/applier", "internal/ledger", "internal/audit", "pkg/errclass"},
			PrivilegedIncrement: 0.2,
			Categories: []PatternCategory{
				{
					Name:      "credential",
					Flag:      string(model.FlagCredentialPattern),
					Patterns:  []string{"password", "secret_key", "api_key", "private_key", "decrypt(", "encrypt("},
					Increment: 0.25,
				},
				{
					Name:      "destructive",
					Flag:      string(model.FlagDestructivePattern),
					Patterns:  []string{"os.RemoveAll", "os.Remove(", "rm -rf", "DROP TABLE", "TRUNCATE "},
					Increment: 0.25,
				},
				{
					Name:      "privilege",
					Flag:      string(model.FlagPrivilegePattern),
					Patterns:  []string{"os/exec", "exec.Command", "syscall.Setuid", "sudo ", "os.Chmod"},
					Increment: 0.3,
				},
				{
					Name:      "network",
					Flag:      string(model.FlagNetworkPattern),
					Patterns:  []string{"net.Dial", "net.Listen", "http.ListenAndServe"},
					Increment: 0.2,
				},
			},
			DangerousImports:         []string{"os/exec", "syscall", "net", "unsafe", "plugin"},
			Thresholds:               TierThresholds{Safe: 0.2, Caution: 0.4, Sensitive: 0.7},
			LargeChangeRatio:         0.5,
			LargeChangeIncrement:     0.15,
			FunctionDeleteFloor:      0.4,
			ImportRemoveIncrement:    0.1,
			DangerousImportIncrement: 0.25,
		},
		Approval: ApprovalConfig{
			Phrases: map[model.RiskTier]string{
				model.TierCaution:   "I approve this cautious change",
				model.TierSensitive: "I approve this sensitive modification",
				model.TierCritical:  "I understand the risks and approve this critical modification",
			},
		},
		Sandbox: SandboxConfig{
			TestTimeout: 2 * time.Minute,
		},
		Retention: RetentionConfig{
			MaxNonStablePerFile: 10,
			StableRetention:     7 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Webhooks: webhook.DefaultConfig(),
	}
}

// Load loads configuration from .crucible/config.yaml under root.
// Returns default config if the file doesn't exist.
func Load(root string) (*Config, error) {
	cfg := Default()
	cfgPath := filepath.Join(root, ".crucible", "config.yaml")

	data, err := os.ReadFile(cfgPath)
	if os.IsNotExist(err) {
		return cfg, nil // No config file is OK, use defaults
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	th := c.Risk.Thresholds
	if !(th.Safe < th.Caution && th.Caution < th.Sensitive) {
		return fmt.Errorf("risk thresholds must be strictly increasing: %+v", th)
	}
	if th.Safe <= 0 || th.Sensitive >= 1 {
		return fmt.Errorf("risk thresholds must lie inside (0,1): %+v", th)
	}
	if c.Retention.MaxNonStablePerFile < 1 {
		return fmt.Errorf("max_non_stable_per_file must be at least 1")
	}
	// Each tier above SAFE carries a distinct, non-empty phrase so one
	// phrase can never satisfy another tier's request.
	seen := make(map[string]model.RiskTier)
	for tier, phrase := range c.Approval.Phrases {
		if phrase == "" {
			return fmt.Errorf("approval phrase for tier %s must not be empty", tier)
		}
		if other, dup := seen[phrase]; dup {
			return fmt.Errorf("tiers %s and %s share an approval phrase", other, tier)
		}
		seen[phrase] = tier
	}
	return nil
}
