package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tapedesk/tape/internal/types"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask the desk a one-shot question",
	Long: `Run a single supervisor turn without opening the shell.

If the agent proposes a gated action (creating or updating a signal), the
session suspends and the pending approval ids are printed; decide with
'tape approvals' and continue with 'tape resume'.

Example:
  tape ask "how does the 4h BTC chart look?"`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		store, path, err := openStore(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		defer store.Close()

		d, err := openDesk(store, path)
		if err != nil {
			fatalf("%v", err)
		}

		question := strings.Join(args, " ")
		sc, err := d.NewSession(ctx, question)
		if err != nil {
			fatalf("%v", err)
		}
		res, err := d.Run(ctx, sc, question)
		if err != nil {
			fatalf("session %s failed: %v", sc.SessionID, err)
		}

		printResult(res.Status, res.FinalText, res.Pending, sc.SessionID)
	},
}

// printResult renders a run outcome for one-shot and resume commands
func printResult(status types.SessionState, finalText string, pending []*types.InterruptRequest, sessionID string) {
	switch status {
	case types.SessionStateCompleted:
		fmt.Println(finalText)
	case types.SessionStateAwaitingApproval:
		yellow := color.New(color.FgYellow).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()
		fmt.Printf("%s Session suspended on %d pending approval(s):\n\n", yellow("⏸"), len(pending))
		for _, req := range pending {
			fmt.Printf("  %s %s\n", cyan(req.ID), req.Call.Name)
			fmt.Printf("    %s\n", req.Description)
		}
		fmt.Println()
		fmt.Printf("%s\n", gray("Decide with: tape approvals approve <id>   (or reject <id> --reason ...)"))
		fmt.Printf("%s\n", gray(fmt.Sprintf("Then: tape resume %s", sessionID)))
	}
}

func init() {
	rootCmd.AddCommand(askCmd)
}
