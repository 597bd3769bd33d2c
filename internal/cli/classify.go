package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crucible-project/crucible/internal/patch"
	"github.com/crucible-project/crucible/pkg/color"
	"github.com/crucible-project/crucible/pkg/model"
)

var classifyDiff string

var classifyCmd = &cobra.Command{
	Use:   "classify [staging-dir]",
	Short: "Classify a patch set without submitting it",
	Long: `Classify a patch set without submitting it.

Runs the risk classifier against the staged changes and prints the tier,
score and evidence. Nothing is persisted; the pipeline is not started.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if (len(args) == 0) == (classifyDiff == "") {
			fmtErr("provide either a staging directory or --diff, not both")
			os.Exit(1)
		}

		st, coord := requireCoordinator()

		var pset *model.PatchSet
		var err error
		if classifyDiff != "" {
			data, readErr := os.ReadFile(classifyDiff)
			if readErr != nil {
				fmtErr("read diff: %v", readErr)
				os.Exit(1)
			}
			pset, err = patch.LoadUnifiedDiff(data, st.Root, "")
		} else {
			pset, err = patch.LoadDir(args[0], st.Root, "")
		}
		if err != nil {
			fmtErr("load patch set: %v", err)
			os.Exit(1)
		}

		classification, err := coord.Classifier().Classify(pset, st.Root)
		if err != nil {
			fmtErr("classify: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(classification)
			return
		}

		fmt.Printf("Tier:  %s\n", color.Tier(string(classification.Tier)))
		fmt.Printf("Score: %.2f\n", classification.Score)
		if len(classification.Flags) > 0 {
			fmt.Println("Flags:")
			for _, flag := range classification.Flags {
				fmt.Printf("  %s\n", flag)
			}
		}
		for _, reason := range classification.Rationale {
			fmt.Printf("  %s\n", color.Dim("- "+reason))
		}
		if classification.Tier.RequiresApproval() {
			fmt.Printf("\nThis change would require approval.\n")
		}
	},
}

func init() {
	classifyCmd.Flags().StringVar(&classifyDiff, "diff", "", "read the patch set from a unified diff file")
	rootCmd.AddCommand(classifyCmd)
}
