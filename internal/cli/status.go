package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crucible-project/crucible/pkg/color"
	"github.com/crucible-project/crucible/pkg/model"
)

var statusCmd = &cobra.Command{
	Use:   "status <patch-id>",
	Short: "Show pipeline state for a patch set",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		_, coord := requireCoordinator()
		patchID := resolvePatchID(coord, args[0])

		state, err := coord.Status(patchID)
		if err != nil {
			fmtErr("status: %v", err)
			return
		}

		if jsonOutput {
			outputJSON(state)
			return
		}
		printState(state)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List submitted patch sets",
	Long:  `List every patch set the pipeline has seen, oldest first.`,
	Run: func(cmd *cobra.Command, args []string) {
		_, coord := requireCoordinator()

		states, err := coord.List()
		if err != nil {
			fmtErr("list: %v", err)
			return
		}

		if jsonOutput {
			outputJSON(states)
			return
		}
		if len(states) == 0 {
			fmt.Println("No patch sets submitted yet.")
			return
		}
		for _, state := range states {
			desc := ""
			if state.PatchSet != nil {
				desc = state.PatchSet.Description
			}
			if desc == "" {
				desc = color.Dim("(no description)")
			}
			tier := "-"
			if state.Classification != nil {
				tier = color.Tier(string(state.Classification.Tier))
			}
			fmt.Printf("%s  %s  %-10s %-18s %s\n",
				color.PatchID(state.PatchID.ShortID()),
				color.Dim(state.UpdatedAt.Format("2006-01-02 15:04")),
				tier,
				stageLabel(state.Stage),
				desc)
		}
	},
}

// printState prints a human-readable pipeline state summary.
func printState(state *model.PipelineState) {
	fmt.Printf("Patch:   %s\n", color.PatchID(string(state.PatchID)))
	if state.PatchSet != nil && state.PatchSet.Description != "" {
		fmt.Printf("Desc:    %s\n", state.PatchSet.Description)
	}
	fmt.Printf("Stage:   %s\n", stageLabel(state.Stage))
	if state.Classification != nil {
		fmt.Printf("Tier:    %s (score %.2f)\n",
			color.Tier(string(state.Classification.Tier)), state.Classification.Score)
		for _, reason := range state.Classification.Rationale {
			fmt.Printf("         %s\n", color.Dim("- "+reason))
		}
	}
	if state.ValidationResult != nil {
		verdict := color.Success("pass")
		if !state.ValidationResult.Pass {
			verdict = color.Error("fail")
		}
		fmt.Printf("Sandbox: %s (%d files, %d tests)\n",
			verdict, state.ValidationResult.FilesChecked, state.ValidationResult.TestsRun)
	}
	if state.Approver != "" {
		fmt.Printf("Approver: %s\n", state.Approver)
	}
	if state.Error != "" {
		fmt.Printf("Error:   %s\n", color.Error(state.Error))
	}
}

func stageLabel(stage model.Stage) string {
	switch {
	case stage == model.StageLogged:
		return color.Success(string(stage))
	case stage.Failed() || stage == model.StageDenied:
		return color.Error(string(stage))
	case stage == model.StageAwaitingApproval:
		return color.Highlight(string(stage))
	default:
		return string(stage)
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(listCmd)
}
