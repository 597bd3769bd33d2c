package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/crucible-project/crucible/internal/audit"
	"github.com/crucible-project/crucible/pkg/color"
	"github.com/crucible-project/crucible/pkg/model"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the audit trail",
	Run: func(cmd *cobra.Command, args []string) {
		st := requireStore()
		trail := audit.NewFileAppender(st.AuditLogPath())

		stats, err := trail.Statistics()
		if err != nil {
			fmtErr("audit statistics: %v", err)
			return
		}

		if jsonOutput {
			outputJSON(stats)
			return
		}

		fmt.Printf("%s\n", color.Header("Audit trail"))
		fmt.Printf("  Records:      %d\n", stats.TotalRecords)
		fmt.Printf("  Successes:    %d\n", stats.Successes)
		fmt.Printf("  Failures:     %d\n", stats.Failures)
		fmt.Printf("  Success rate: %.1f%%\n", stats.SuccessRate*100)

		if len(stats.ByAction) > 0 {
			fmt.Printf("\n%s\n", color.Header("By action"))
			actions := make([]string, 0, len(stats.ByAction))
			for action := range stats.ByAction {
				actions = append(actions, string(action))
			}
			sort.Strings(actions)
			for _, action := range actions {
				fmt.Printf("  %-18s %d\n", action, stats.ByAction[model.AuditAction(action)])
			}
		}

		if len(stats.ByTier) > 0 {
			fmt.Printf("\n%s\n", color.Header("By tier"))
			tiers := make([]string, 0, len(stats.ByTier))
			for tier := range stats.ByTier {
				tiers = append(tiers, string(tier))
			}
			sort.Strings(tiers)
			for _, tier := range tiers {
				fmt.Printf("  %-18s %d\n", color.Tier(tier), stats.ByTier[model.RiskTier(tier)])
			}
		}

		if len(stats.TopPaths) > 0 {
			fmt.Printf("\n%s\n", color.Header("Most-touched paths"))
			for _, pc := range stats.TopPaths {
				fmt.Printf("  %-40s %d\n", pc.Path, pc.Count)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
