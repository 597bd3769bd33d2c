package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/crucible-project/crucible/internal/store"
	"github.com/crucible-project/crucible/pkg/color"
)

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Initialize a pipeline state tree",
	Long: `Initialize a pipeline state tree beside the governed source tree.

This creates:
  - .crucible/ directory with checkpoint, approval, pipeline, audit,
    lock and intent structures
  - format_version file (version 1)
  - install_id file

Defaults to the current directory when no path is given.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := "."
		if len(args) == 1 {
			path = args[0]
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			fmtErr("resolve path: %v", err)
			os.Exit(1)
		}

		st, err := store.Init(abs)
		if err != nil {
			fmtErr("failed to initialize pipeline state: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(map[string]any{
				"root":           st.Root,
				"format_version": st.FormatVersion,
				"install_id":     st.InstallID,
			})
		} else {
			fmt.Printf("Initialized pipeline state in %s\n", color.Success(st.StateDir()))
		}
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
