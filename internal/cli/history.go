package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/crucible-project/crucible/internal/audit"
	"github.com/crucible-project/crucible/pkg/color"
	"github.com/crucible-project/crucible/pkg/model"
)

var (
	historyLimit  int
	historyAction string
	historyPatch  string
	historyPath   string
	historyFailed bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the audit trail",
	Long: `Show the audit trail, newest first.

Every pipeline decision is one hash-chained record: classification,
approval, validation, apply, rollback and commit events.

Examples:
  crucible history                   # Show recent records
  crucible history -n 10             # Show last 10 records
  crucible history --action apply    # Only apply records
  crucible history --patch 1700...   # Records for one patch set
  crucible history --failed          # Only failures`,
	Run: func(cmd *cobra.Command, args []string) {
		st := requireStore()
		trail := audit.NewFileAppender(st.AuditLogPath())

		filter := audit.Filter{
			PatchID:    model.PatchID(historyPatch),
			Action:     model.AuditAction(historyAction),
			TargetPath: historyPath,
			FailedOnly: historyFailed,
		}
		records, err := trail.Query(filter, historyLimit)
		if err != nil {
			fmtErr("query audit trail: %v", err)
			return
		}

		if jsonOutput {
			outputJSON(records)
			return
		}
		if len(records) == 0 {
			fmt.Println("No audit records found.")
			return
		}

		for _, rec := range records {
			verdict := color.Success("ok")
			if !rec.Success {
				verdict = color.Error("failed")
			}
			tier := ""
			if rec.Classification != nil {
				tier = "  " + color.Tier(string(rec.Classification.Tier))
			}
			detail := ""
			if rec.Error != "" {
				detail = "  " + color.Dim(rec.Error)
			}
			fmt.Printf("%s  %s  %-16s %s%s  %s%s\n",
				color.PatchID(rec.PatchID.ShortID()),
				color.Dim(rec.Timestamp.Format("2006-01-02 15:04:05")),
				rec.Action,
				verdict,
				tier,
				color.Dim(strings.Join(rec.TargetPaths, ", ")),
				detail,
			)
		}
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "limit number of records (0 = all)")
	historyCmd.Flags().StringVar(&historyAction, "action", "", "filter by action (classify, apply, ...)")
	historyCmd.Flags().StringVar(&historyPatch, "patch", "", "filter by patch ID")
	historyCmd.Flags().StringVar(&historyPath, "path", "", "filter by target path")
	historyCmd.Flags().BoolVar(&historyFailed, "failed", false, "only failed records")
	rootCmd.AddCommand(historyCmd)
}
