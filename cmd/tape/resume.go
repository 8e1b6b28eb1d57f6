package main

import (
	"context"

	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <session-id>",
	Short: "Resume a suspended or crashed session",
	Long: `Continue a session from its last checkpoint.

A session suspended on approvals applies any recorded decisions: approved
actions execute now, rejected ones are reported back to the agent. A
session interrupted by a crash has its dangling tool calls closed without
re-executing them, then continues from the next model step.`,
	Args: cobra.ExactArgs(1),
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

		sessionID := args[0]
		res, err := d.Resume(ctx, sessionID)
		if err != nil {
			fatalf("%v", err)
		}
		printResult(res.Status, res.FinalText, res.Pending, sessionID)
	},
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}
