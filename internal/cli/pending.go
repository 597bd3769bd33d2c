package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crucible-project/crucible/pkg/color"
)

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List patch sets awaiting approval",
	Run: func(cmd *cobra.Command, args []string) {
		_, coord := requireCoordinator()

		requests, err := coord.Gate().Pending()
		if err != nil {
			fmtErr("pending: %v", err)
			return
		}

		if jsonOutput {
			outputJSON(requests)
			return
		}
		if len(requests) == 0 {
			fmt.Println("No pending approvals.")
			return
		}
		for _, req := range requests {
			desc := req.Description
			if desc == "" {
				desc = color.Dim("(no description)")
			}
			fmt.Printf("%s  %s  %s  %s\n",
				color.PatchID(req.PatchID.ShortID()),
				color.Dim(req.CreatedAt.Format("2006-01-02 15:04")),
				color.Tier(string(req.Classification.Tier)),
				desc)
		}
	},
}

func init() {
	rootCmd.AddCommand(pendingCmd)
}
