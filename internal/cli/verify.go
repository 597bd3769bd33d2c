package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crucible-project/crucible/internal/audit"
	"github.com/crucible-project/crucible/pkg/color"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the audit trail hash chain",
	Long: `Verify the audit trail hash chain.

Recomputes every record hash and checks the prev-hash linkage from the
first record forward. Exits non-zero if the chain is broken.`,
	Run: func(cmd *cobra.Command, args []string) {
		st := requireStore()
		trail := audit.NewFileAppender(st.AuditLogPath())

		result, err := trail.VerifyChain()
		if result == nil {
			fmtErr("verify audit trail: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(result)
			if !result.Valid {
				os.Exit(1)
			}
			return
		}

		if result.Valid {
			fmt.Printf("%s %d record(s) verified, chain intact.\n",
				color.Success("OK"), result.RecordsChecked)
			return
		}
		fmt.Printf("%s chain broken (%d record(s) checked):\n",
			color.Error("TAMPERED"), result.RecordsChecked)
		for _, problem := range result.Problems {
			fmt.Printf("  %s\n", color.Error(problem))
		}
		os.Exit(1)
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
