package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crucible-project/crucible/internal/doctor"
	"github.com/crucible-project/crucible/pkg/config"
	"github.com/crucible-project/crucible/pkg/progress"
)

var (
	doctorStrict bool
	doctorRepair []string
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check pipeline state health",
	Long: `Check pipeline state health.

Runs diagnostic checks on the state tree and reports any issues.
Use --strict to include audit chain verification and checkpoint
integrity checks. Use --repair to run repair actions (clean_tmp,
clean_intents, clean_locks).`,
	Run: func(cmd *cobra.Command, args []string) {
		st := requireStore()
		cfg, err := config.Load(st.Root)
		if err != nil {
			fmtErr("load configuration: %v", err)
			os.Exit(1)
		}
		doc := doctor.NewDoctor(st, cfg)

		if len(doctorRepair) > 0 {
			results, err := doc.Repair(doctorRepair)
			if err != nil {
				fmtErr("repair: %v", err)
				os.Exit(1)
			}
			if jsonOutput {
				outputJSON(results)
				return
			}
			for _, res := range results {
				status := "ok"
				if !res.Success {
					status = "failed"
				}
				fmt.Printf("  [%s] %s: %s\n", status, res.Action, res.Message)
			}
			return
		}

		var bar *progress.Terminal
		if doctorStrict && !jsonOutput {
			bar = progress.NewTerminal("verify checkpoints", 0, true)
			doc.SetProgress(func(op string, current, total int, message string) {
				bar.SetTotal(total)
				bar.Callback()(op, current, total, message)
			})
		}

		result, err := doc.Check(doctorStrict)
		if bar != nil {
			bar.Done("")
		}
		if err != nil {
			fmtErr("doctor: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(result)
			if !result.Healthy {
				os.Exit(1)
			}
			return
		}

		if len(result.Findings) == 0 {
			fmt.Println("Pipeline state is healthy.")
			return
		}

		fmt.Printf("Findings (%d):\n", len(result.Findings))
		for _, f := range result.Findings {
			fmt.Printf("  [%s] %s: %s\n", f.Severity, f.Category, f.Description)
		}

		if !result.Healthy {
			os.Exit(1)
		}
	},
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorStrict, "strict", false, "include full integrity verification")
	doctorCmd.Flags().StringSliceVar(&doctorRepair, "repair", nil, "run repair actions instead of checks")
	rootCmd.AddCommand(doctorCmd)
}
