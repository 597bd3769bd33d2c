// Package risk classifies proposed patch sets into tiers by scanning content
// against a rule table and comparing code structure before and after.
// Classification is conservative: anything the classifier cannot read is
// treated as the highest risk, never the lowest.
package risk

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/crucible-project/crucible/pkg/config"
	"github.com/crucible-project/crucible/pkg/model"
)

// Classifier scores patch sets against the configured rule table.
type Classifier struct {
	cfg config.RiskConfig
}

// NewClassifier creates a classifier with the given rules.
func NewClassifier(cfg config.RiskConfig) *Classifier {
	return &Classifier{cfg: cfg}
}

// Classify scores every file in the patch set against the live tree under
// liveRoot and returns the merged verdict. The verdict is computed fresh
// from content; nothing is cached between calls.
func (c *Classifier) Classify(patch *model.PatchSet, liveRoot string) (*model.RiskClassification, error) {
	result := &model.RiskClassification{
		Tier:         model.TierSafe,
		ClassifiedAt: time.Now().UTC(),
	}

	for _, path := range patch.Paths() {
		after, _ := patch.Content(path)

		var before string
		if !patch.IsNew(path) {
			data, err := os.ReadFile(filepath.Join(liveRoot, filepath.FromSlash(path)))
			if err != nil && !os.IsNotExist(err) {
				return nil, fmt.Errorf("read live file %s: %w", path, err)
			}
			before = string(data)
		}

		fileResult := c.classifyFile(path, before, after)
		result.Merge(fileResult)
	}

	result.Score = clamp01(result.Score)
	tier := c.tierFor(result.Score)
	if tier.Rank() > result.Tier.Rank() {
		result.Tier = tier
	}
	return result, nil
}

// classifyFile scores a single before/after pair.
func (c *Classifier) classifyFile(path, before, after string) *model.RiskClassification {
	r := &model.RiskClassification{Tier: model.TierSafe}

	c.scanPrivilegedTarget(r, path)
	c.scanPatterns(r, path, after)
	c.scanChangeSize(r, path, before, after)

	if strings.HasSuffix(path, ".go") {
		c.scanStructure(r, path, before, after)
	}

	r.Score = clamp01(r.Score)
	if r.ParseFailed {
		// Unreadable content cannot be reasoned about; force the top tier.
		r.Tier = model.TierCritical
		r.Score = 1.0
	} else {
		r.Tier = c.tierFor(r.Score)
	}
	return r
}

func (c *Classifier) scanPrivilegedTarget(r *model.RiskClassification, path string) {
	for _, prefix := range c.cfg.PrivilegedModules {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			r.Score += c.cfg.PrivilegedIncrement
			r.Flags = append(r.Flags, model.FlagPrivilegedTarget)
			r.Rationale = append(r.Rationale,
				fmt.Sprintf("%s: targets privileged module %s", path, prefix))
			return
		}
	}
}

// scanPatterns applies the rule table to the proposed content. Each category
// contributes its increment at most once per file.
func (c *Classifier) scanPatterns(r *model.RiskClassification, path, after string) {
	lowered := strings.ToLower(after)
	for _, cat := range c.cfg.Categories {
		for _, pattern := range cat.Patterns {
			if strings.Contains(lowered, strings.ToLower(pattern)) {
				r.Score += cat.Increment
				r.Flags = append(r.Flags, model.RiskFlag(cat.Flag))
				r.Rationale = append(r.Rationale,
					fmt.Sprintf("%s: matched %s pattern %q", path, cat.Name, pattern))
				break
			}
		}
	}
}

func (c *Classifier) scanChangeSize(r *model.RiskClassification, path, before, after string) {
	if before == "" {
		return
	}
	ratio, changed := changeRatio(before, after)
	if ratio > c.cfg.LargeChangeRatio {
		r.Score += c.cfg.LargeChangeIncrement
		r.Flags = append(r.Flags, model.FlagLargeChange)
		r.Rationale = append(r.Rationale,
			fmt.Sprintf("%s: %d lines changed (%.0f%% of file)", path, changed, ratio*100))
	}
}

// scanStructure compares the parsed shape of the file before and after the
// change. A file that no longer parses forces the highest tier.
func (c *Classifier) scanStructure(r *model.RiskClassification, path, before, after string) {
	afterShape, err := parseShape(path, after)
	if err != nil {
		r.ParseFailed = true
		r.Flags = append(r.Flags, model.FlagParseFailure)
		r.Rationale = append(r.Rationale,
			fmt.Sprintf("%s: proposed content does not parse: %v", path, err))
		return
	}

	var beforeShape *fileShape
	if before != "" {
		beforeShape, err = parseShape(path, before)
		if err != nil {
			// Live file already broken; judge the proposed content on its own.
			beforeShape = nil
		}
	}

	if beforeShape != nil {
		if deleted := beforeShape.missingFunctions(afterShape); len(deleted) > 0 {
			r.Flags = append(r.Flags, model.FlagFunctionDeleted)
			r.Rationale = append(r.Rationale,
				fmt.Sprintf("%s: deletes function(s) %s", path, strings.Join(deleted, ", ")))
			if r.Score < c.cfg.FunctionDeleteFloor {
				r.Score = c.cfg.FunctionDeleteFloor
			}
		}
		if removed := beforeShape.missingImports(afterShape); len(removed) > 0 {
			r.Score += c.cfg.ImportRemoveIncrement
			r.Flags = append(r.Flags, model.FlagImportRemoved)
			r.Rationale = append(r.Rationale,
				fmt.Sprintf("%s: removes import(s) %s", path, strings.Join(removed, ", ")))
		}
	}

	for _, imp := range afterShape.sortedImports() {
		if beforeShape != nil && beforeShape.imports[imp] {
			continue
		}
		if c.isDangerousImport(imp) {
			r.Score += c.cfg.DangerousImportIncrement
			r.Flags = append(r.Flags, model.FlagDangerousImport)
			r.Rationale = append(r.Rationale,
				fmt.Sprintf("%s: introduces import %s", path, imp))
		}
	}
}

func (c *Classifier) isDangerousImport(imp string) bool {
	for _, d := range c.cfg.DangerousImports {
		if imp == d {
			return true
		}
	}
	return false
}

func (c *Classifier) tierFor(score float64) model.RiskTier {
	th := c.cfg.Thresholds
	switch {
	case score < th.Safe:
		return model.TierSafe
	case score < th.Caution:
		return model.TierCaution
	case score < th.Sensitive:
		return model.TierSensitive
	default:
		return model.TierCritical
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
