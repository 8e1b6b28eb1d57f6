package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tapedesk/tape/internal/types"
)

var sessionsLimit int

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Session inventory",
	Long:  `List recorded sessions or inspect one, including its transcript.`,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent sessions",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		store, _, err := openStore(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		defer store.Close()

		sessions, err := store.ListSessions(ctx, types.SessionFilter{RootsOnly: true, Limit: sessionsLimit})
		if err != nil {
			fatalf("%v", err)
		}
		if len(sessions) == 0 {
			fmt.Println("No sessions yet. Start one with 'tape chat' or 'tape ask'.")
			return
		}

		gray := color.New(color.FgHiBlack).SprintFunc()
		fmt.Println()
		for _, s := range sessions {
			fmt.Printf("  %s  %-18s %-19s %s\n",
				s.ID, stateColored(s.State), s.UpdatedAt.Format("2006-01-02 15:04:05"), gray(s.Title))
		}
		fmt.Println()
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show one session and its transcript",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		store, _, err := openStore(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		defer store.Close()

		sess, err := store.GetSession(ctx, args[0])
		if err != nil {
			fatalf("%v", err)
		}
		if sess == nil {
			fatalf("session %s not found", args[0])
		}

		bold := color.New(color.Bold).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()
		fmt.Printf("\n%s %s\n", bold("Session:"), sess.ID)
		if sess.Title != "" {
			fmt.Printf("%s %s\n", bold("Title:"), sess.Title)
		}
		fmt.Printf("%s %s\n", bold("State:"), stateColored(sess.State))
		if sess.Worker != "" {
			fmt.Printf("%s %s (depth %d, parent %s)\n", bold("Worker:"), sess.Worker, sess.Depth, sess.ParentID)
		}
		fmt.Printf("%s %d in / %d out\n", bold("Tokens:"), sess.Usage.InputTokens, sess.Usage.OutputTokens)

		cp, err := store.GetCheckpoint(ctx, sess.ID)
		if err != nil {
			fatalf("%v", err)
		}
		if cp == nil {
			fmt.Printf("\n%s\n\n", gray("No checkpoint recorded."))
			return
		}

		fmt.Printf("\n%s\n", bold("Transcript:"))
		for _, msg := range cp.Transcript {
			printMessage(msg)
		}
		if cp.Pending != nil {
			fmt.Printf("\n%s %d unresolved tool call(s) in the open turn\n",
				color.New(color.FgYellow).Sprint("⏸"), len(cp.Pending.Calls)-len(cp.Pending.Results))
		}
		fmt.Println()
	},
}

func printMessage(msg types.Message) {
	gray := color.New(color.FgHiBlack).SprintFunc()
	role := strings.ToUpper(string(msg.Role))
	switch {
	case len(msg.Results) > 0:
		for _, res := range msg.Results {
			status := "ok"
			if res.Failure != nil {
				status = string(res.Failure.Kind)
			}
			fmt.Printf("  %s %s (%s): %s\n", gray(role), res.Name, status, snippet(res.Text(), 100))
		}
	case len(msg.ToolCalls) > 0:
		names := make([]string, len(msg.ToolCalls))
		for i, call := range msg.ToolCalls {
			names[i] = call.Name
		}
		fmt.Printf("  %s proposes %s\n", gray(role), strings.Join(names, ", "))
		if msg.Content != "" {
			fmt.Printf("    %s\n", snippet(msg.Content, 160))
		}
	default:
		fmt.Printf("  %s %s\n", gray(role), snippet(msg.Content, 160))
	}
}

func snippet(s string, max int) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), "\n", " ")
	if len(s) > max {
		return s[:max-3] + "..."
	}
	return s
}

func stateColored(state types.SessionState) string {
	switch state {
	case types.SessionStateCompleted:
		return color.New(color.FgGreen).Sprint(string(state))
	case types.SessionStateAwaitingApproval:
		return color.New(color.FgYellow).Sprint(string(state))
	case types.SessionStateFailed:
		return color.New(color.FgRed).Sprint(string(state))
	default:
		return string(state)
	}
}

func init() {
	sessionsListCmd.Flags().IntVarP(&sessionsLimit, "limit", "n", 20, "maximum sessions to list")
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	rootCmd.AddCommand(sessionsCmd)
}
