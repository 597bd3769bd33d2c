package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/crucible-project/crucible/pkg/color"
	"github.com/crucible-project/crucible/pkg/model"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Inspect and restore file checkpoints",
}

var checkpointListCmd = &cobra.Command{
	Use:   "list [path]",
	Short: "List checkpoints for a target path, or all tracked paths",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		_, coord := requireCoordinator()
		led := coord.Ledger()

		if len(args) == 0 {
			paths, err := led.TrackedPaths()
			if err != nil {
				fmtErr("list tracked paths: %v", err)
				return
			}
			if jsonOutput {
				outputJSON(paths)
				return
			}
			if len(paths) == 0 {
				fmt.Println("No checkpoints recorded yet.")
				return
			}
			for _, path := range paths {
				fmt.Println(path)
			}
			return
		}

		checkpoints, err := led.List(args[0])
		if err != nil {
			fmtErr("list checkpoints: %v", err)
			return
		}
		if jsonOutput {
			outputJSON(checkpoints)
			return
		}
		if len(checkpoints) == 0 {
			fmt.Println("No checkpoints for this path.")
			return
		}
		for _, cp := range checkpoints {
			marker := ""
			if cp.Stable {
				marker = "  " + color.Header("[STABLE]")
			}
			if cp.Missing {
				marker += "  " + color.Dim("(file absent)")
			}
			reason := cp.Reason
			if reason == "" {
				reason = color.Dim("(no reason)")
			}
			fmt.Printf("%s  %s  %s%s\n",
				color.VersionID(cp.VersionID.ShortID()),
				color.Dim(cp.CreatedAt.Format("2006-01-02 15:04:05")),
				reason,
				marker,
			)
		}
	},
}

var checkpointRestoreStable bool

var checkpointRestoreCmd = &cobra.Command{
	Use:   "restore <path> [version-id]",
	Short: "Restore a target path from a checkpoint",
	Long: `Restore a target path from a checkpoint.

With --stable the last stable checkpoint is restored; otherwise a version
ID is required. The restore takes its own checkpoint first, so it can be
undone.`,
	Args: cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		_, coord := requireCoordinator()
		led := coord.Ledger()
		targetPath := args[0]

		var result *model.RestoreResult
		var err error
		switch {
		case checkpointRestoreStable:
			result, err = led.RestoreLastStable(targetPath, false)
		case len(args) == 2:
			result, err = led.Restore(targetPath, resolveVersionID(coord, targetPath, args[1]), false)
		default:
			fmtErr("provide a version ID or --stable")
			os.Exit(1)
		}
		if err != nil {
			fmtErr("restore: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(result)
			return
		}
		if result.LiveFileRemoved {
			fmt.Printf("%s %s (checkpointed before the file existed)\n",
				color.Success("Removed"), targetPath)
			return
		}
		fmt.Printf("%s %s to version %s\n",
			color.Success("Restored"), targetPath, color.VersionID(result.VersionID.ShortID()))
	},
}

var checkpointPruneCmd = &cobra.Command{
	Use:   "prune <path>",
	Short: "Prune stable checkpoints no longer pointed to",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		_, coord := requireCoordinator()

		pruned, err := coord.Ledger().PruneStable(args[0], time.Now())
		if err != nil {
			fmtErr("prune: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(map[string]any{"pruned": pruned})
			return
		}
		fmt.Printf("Pruned %d checkpoint(s).\n", pruned)
	},
}

func init() {
	checkpointRestoreCmd.Flags().BoolVar(&checkpointRestoreStable, "stable", false, "restore the last stable checkpoint")
	checkpointCmd.AddCommand(checkpointListCmd)
	checkpointCmd.AddCommand(checkpointRestoreCmd)
	checkpointCmd.AddCommand(checkpointPruneCmd)
	rootCmd.AddCommand(checkpointCmd)
}
