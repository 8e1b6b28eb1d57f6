package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tapedesk/tape/internal/approval"
	"github.com/tapedesk/tape/internal/desk"
	"github.com/tapedesk/tape/internal/events"
	"github.com/tapedesk/tape/internal/storage"
	"github.com/tapedesk/tape/internal/types"
)

var rejectReason string

var approvalsCmd = &cobra.Command{
	Use:   "approvals",
	Short: "List and decide pending approvals",
	Long: `Headless approval boundary: inspect gated actions and record
decisions without opening the shell. Recording a decision does not run
anything; 'tape resume <session-id>' continues the session and applies it.`,
}

var approvalsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List approvals waiting on a decision",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		store, _, err := openStore(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		defer store.Close()

		pending, err := store.ListInterrupts(ctx, types.InterruptFilter{PendingOnly: true})
		if err != nil {
			fatalf("%v", err)
		}
		if len(pending) == 0 {
			fmt.Println("No approvals pending.")
			return
		}

		cyan := color.New(color.FgCyan).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()
		fmt.Printf("\n%d approval(s) pending:\n\n", len(pending))
		for _, req := range pending {
			fmt.Printf("  %s %s\n", cyan(req.ID), req.Call.Name)
			fmt.Printf("    %s\n", req.Description)
			fmt.Printf("    %s\n", gray(fmt.Sprintf("session %s · requested %s",
				req.SessionID, req.CreatedAt.Format("2006-01-02 15:04"))))
			fmt.Println()
		}
	},
}

var approvalsApproveCmd = &cobra.Command{
	Use:   "approve <interrupt-id>",
	Short: "Approve a pending action",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		decide(args[0], types.DecisionApprove, "")
	},
}

var approvalsRejectCmd = &cobra.Command{
	Use:   "reject <interrupt-id>",
	Short: "Reject a pending action",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		decide(args[0], types.DecisionReject, rejectReason)
	},
}

// decide records a verdict straight through the gate controller; no model
// client (and no API key) is needed for this path.
func decide(interruptID string, decision types.Decision, reason string) {
	ctx := context.Background()
	store, _, err := openStore(ctx)
	if err != nil {
		fatalf("%v", err)
	}
	defer store.Close()

	gate := approval.NewController(desk.DefaultPolicy(), store, events.NewFeed(store))
	req, err := gate.SubmitDecision(ctx, interruptID, decision, reason)
	if err != nil {
		fatalf("%v", err)
	}

	green := color.New(color.FgGreen).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()
	fmt.Printf("%s Recorded %s for %s.\n", green("✓"), decision, req.Call.Name)
	fmt.Printf("%s\n", gray(fmt.Sprintf("Continue with: tape resume %s", rootOf(ctx, store, req.SessionID))))
}

// rootOf walks the parent chain to the resumable root session
func rootOf(ctx context.Context, store storage.Storage, id string) string {
	for {
		sess, err := store.GetSession(ctx, id)
		if err != nil || sess == nil || sess.ParentID == "" {
			return id
		}
		id = sess.ParentID
	}
}

func init() {
	approvalsRejectCmd.Flags().StringVar(&rejectReason, "reason", "", "why the action was declined (surfaced to the agent)")
	approvalsCmd.AddCommand(approvalsListCmd)
	approvalsCmd.AddCommand(approvalsApproveCmd)
	approvalsCmd.AddCommand(approvalsRejectCmd)
	rootCmd.AddCommand(approvalsCmd)
}
