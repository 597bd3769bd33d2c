package model

import "time"

// RiskFlag is a machine-readable piece of evidence behind a classification.
type RiskFlag string

const (
	FlagPrivilegedTarget   RiskFlag = "privileged-target"
	FlagCredentialPattern  RiskFlag = "credential-pattern"
	FlagDestructivePattern RiskFlag = "destructive-pattern"
	FlagPrivilegePattern   RiskFlag = "privilege-pattern"
	FlagNetworkPattern     RiskFlag = "network-pattern"
	FlagFunctionDeleted    RiskFlag = "function-deleted"
	FlagLargeChange        RiskFlag = "large-change"
	FlagImportRemoved      RiskFlag = "import-removed"
	FlagDangerousImport    RiskFlag = "dangerous-import"
	FlagParseFailure       RiskFlag = "parse-failure"
)

// RiskClassification is the classifier's verdict for one before/after pair.
// Computed fresh for every patch set; never cached across content.
type RiskClassification struct {
	Tier         RiskTier   `json:"tier"`
	Score        float64    `json:"score"`
	Flags        []RiskFlag `json:"flags,omitempty"`
	Rationale    []string   `json:"rationale,omitempty"`
	ParseFailed  bool       `json:"parse_failed,omitempty"`
	ClassifiedAt time.Time  `json:"classified_at"`
}

// HasFlag reports whether the classification carries the given flag.
func (c *RiskClassification) HasFlag(flag RiskFlag) bool {
	for _, f := range c.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// Merge folds another classification into c, keeping the highest tier and
// score and concatenating evidence. Used to aggregate per-file verdicts into
// a patch-set verdict.
func (c *RiskClassification) Merge(other *RiskClassification) {
	if other == nil {
		return
	}
	if other.Tier.Rank() > c.Tier.Rank() {
		c.Tier = other.Tier
	}
	if other.Score > c.Score {
		c.Score = other.Score
	}
	for _, f := range other.Flags {
		if !c.HasFlag(f) {
			c.Flags = append(c.Flags, f)
		}
	}
	c.Rationale = append(c.Rationale, other.Rationale...)
	c.ParseFailed = c.ParseFailed || other.ParseFailed
}
