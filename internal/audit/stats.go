package audit

import (
	"sort"

	"github.com/crucible-project/crucible/pkg/model"
)

// PathCount pairs a target path with the number of records touching it.
type PathCount struct {
	Path  string `json:"path"`
	Count int    `json:"count"`
}

// Stats summarizes the audit trail.
type Stats struct {
	TotalRecords int                       `json:"total_records"`
	Successes    int                       `json:"successes"`
	Failures     int                       `json:"failures"`
	SuccessRate  float64                   `json:"success_rate"`
	ByAction     map[model.AuditAction]int `json:"by_action"`
	ByTier       map[model.RiskTier]int    `json:"by_tier"`
	TopPaths     []PathCount               `json:"top_paths"`
}

// topPathLimit caps how many paths Statistics reports.
const topPathLimit = 10

// Statistics aggregates counts over the full log.
func (a *FileAppender) Statistics() (*Stats, error) {
	records, err := a.ReadAll()
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		ByAction: make(map[model.AuditAction]int),
		ByTier:   make(map[model.RiskTier]int),
	}
	pathCounts := make(map[string]int)

	for _, rec := range records {
		stats.TotalRecords++
		if rec.Success {
			stats.Successes++
		} else {
			stats.Failures++
		}
		stats.ByAction[rec.Action]++
		if rec.Classification != nil {
			stats.ByTier[rec.Classification.Tier]++
		}
		for _, p := range rec.TargetPaths {
			pathCounts[p]++
		}
	}

	if stats.TotalRecords > 0 {
		stats.SuccessRate = float64(stats.Successes) / float64(stats.TotalRecords)
	}

	for path, count := range pathCounts {
		stats.TopPaths = append(stats.TopPaths, PathCount{Path: path, Count: count})
	}
	sort.Slice(stats.TopPaths, func(i, j int) bool {
		if stats.TopPaths[i].Count != stats.TopPaths[j].Count {
			return stats.TopPaths[i].Count > stats.TopPaths[j].Count
		}
		return stats.TopPaths[i].Path < stats.TopPaths[j].Path
	})
	if len(stats.TopPaths) > topPathLimit {
		stats.TopPaths = stats.TopPaths[:topPathLimit]
	}

	return stats, nil
}
