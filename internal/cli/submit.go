package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crucible-project/crucible/internal/patch"
	"github.com/crucible-project/crucible/pkg/color"
	"github.com/crucible-project/crucible/pkg/model"
	"github.com/crucible-project/crucible/pkg/template"
)

var (
	submitDiff string
	submitDesc string
)

var submitCmd = &cobra.Command{
	Use:   "submit [staging-dir]",
	Short: "Submit a patch set to the pipeline",
	Long: `Submit a patch set to the pipeline.

The patch set is read either from a staging directory mirroring the live
tree layout, or from a unified diff file via --diff. SAFE patch sets run
through validation and apply immediately; anything riskier stops at the
approval gate and prints the confirmation phrase to type.

Examples:
  crucible submit ./staging --desc "add retry to fetcher"
  crucible submit --diff change.patch --desc "fix typo"`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if (len(args) == 0) == (submitDiff == "") {
			fmtErr("provide either a staging directory or --diff, not both")
			os.Exit(1)
		}

		st, coord := requireCoordinator()

		// Descriptions may carry {date}, {user} and friends.
		desc := template.ExpandDescription(submitDesc)

		var pset *model.PatchSet
		var err error
		if submitDiff != "" {
			data, readErr := os.ReadFile(submitDiff)
			if readErr != nil {
				fmtErr("read diff: %v", readErr)
				os.Exit(1)
			}
			pset, err = patch.LoadUnifiedDiff(data, st.Root, desc)
		} else {
			pset, err = patch.LoadDir(args[0], st.Root, desc)
		}
		if err != nil {
			fmtErr("load patch set: %v", err)
			os.Exit(1)
		}

		state, err := coord.Submit(context.Background(), pset)
		if err != nil {
			if state != nil && jsonOutput {
				outputJSON(state)
			}
			fmtErr("submit: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(state)
			return
		}
		printState(state)
		if state.Stage == model.StageAwaitingApproval {
			fmt.Println()
			fmt.Printf("To approve, run %s with the phrase:\n",
				color.Code("crucible confirm "+state.PatchID.ShortID()))
			fmt.Printf("  %s\n", color.Highlight(state.RequiredPhrase))
		}
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitDiff, "diff", "", "read the patch set from a unified diff file")
	submitCmd.Flags().StringVar(&submitDesc, "desc", "", "patch set description")
	rootCmd.AddCommand(submitCmd)
}
