package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crucible-project/crucible/pkg/color"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <patch-id>",
	Short: "Resume a pipeline interrupted after approval",
	Long: `Resume a pipeline interrupted after approval.

A crash between approval and the final record leaves the persisted state
at approved, validated or applied. Resume continues from the recorded
stage; already-completed steps are not repeated.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		_, coord := requireCoordinator()
		patchID := resolvePatchID(coord, args[0])

		state, err := coord.Resume(context.Background(), patchID)
		if err != nil {
			fmtErr("resume: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(state)
			return
		}
		printState(state)
	},
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback <patch-id>",
	Short: "Roll back an applied patch set",
	Long: `Roll back an applied patch set.

Every file the patch touched is restored to its pre-apply checkpoint. The
restore itself takes a checkpoint first, so a rollback can be undone.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		_, coord := requireCoordinator()
		patchID := resolvePatchID(coord, args[0])

		results, err := coord.Rollback(context.Background(), patchID)
		if err != nil {
			fmtErr("rollback: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(results)
			return
		}
		for _, res := range results {
			action := "restored"
			if res.LiveFileRemoved {
				action = "removed"
			}
			fmt.Printf("%s %s (version %s)\n",
				color.Success(action), res.TargetPath, color.VersionID(res.VersionID.ShortID()))
		}
	},
}

func init() {
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(rollbackCmd)
}
