package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/crucible-project/crucible/pkg/color"
)

var (
	confirmPhrase   string
	confirmApprover string
)

var confirmCmd = &cobra.Command{
	Use:   "confirm <patch-id>",
	Short: "Confirm a pending patch set with its approval phrase",
	Long: `Confirm a pending patch set with its approval phrase.

The phrase must match the one printed at submit time for the patch's risk
tier. Without --phrase the command prompts on stdin. A correct phrase runs
the rest of the pipeline; a wrong one leaves the request pending.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		_, coord := requireCoordinator()
		patchID := resolvePatchID(coord, args[0])

		phrase := confirmPhrase
		if phrase == "" {
			fmt.Print("Approval phrase: ")
			reader := bufio.NewReader(os.Stdin)
			line, err := reader.ReadString('\n')
			if err != nil {
				fmtErr("read phrase: %v", err)
				os.Exit(1)
			}
			phrase = strings.TrimSpace(line)
		}

		state, err := coord.Confirm(context.Background(), patchID, phrase, confirmApprover)
		if err != nil {
			if state != nil && jsonOutput {
				outputJSON(state)
			}
			fmtErr("confirm: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(state)
			return
		}
		fmt.Printf("Patch %s approved and applied.\n", color.PatchID(patchID.ShortID()))
		printState(state)
	},
}

var (
	denyReason   string
	denyApprover string
)

var denyCmd = &cobra.Command{
	Use:   "deny <patch-id>",
	Short: "Deny a pending patch set",
	Long: `Deny a pending patch set. Denial is terminal: the patch cannot be
confirmed afterwards and must be resubmitted.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		_, coord := requireCoordinator()
		patchID := resolvePatchID(coord, args[0])

		state, err := coord.Deny(context.Background(), patchID, denyReason, denyApprover)
		if err != nil {
			fmtErr("deny: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(state)
			return
		}
		fmt.Printf("Patch %s denied.\n", color.PatchID(patchID.ShortID()))
	},
}

func init() {
	confirmCmd.Flags().StringVarP(&confirmPhrase, "phrase", "p", "", "approval phrase (prompted when omitted)")
	confirmCmd.Flags().StringVar(&confirmApprover, "approver", "", "name recorded as the approver")
	denyCmd.Flags().StringVar(&denyReason, "reason", "", "reason recorded in the audit trail")
	denyCmd.Flags().StringVar(&denyApprover, "approver", "", "name recorded as the denier")
	rootCmd.AddCommand(confirmCmd)
	rootCmd.AddCommand(denyCmd)
}
