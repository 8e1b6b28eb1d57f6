package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/tapedesk/tape/internal/events"
)

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Show recent agent events",
	Long: `Display recent activity from the event feed.

Shows events from the agent_events table including:
- Session lifecycle (started, suspended, resumed, completed, failed)
- Tool executions and failures
- Approval requests and decisions
- Task delegations to workers

Use filters to narrow down events by session, type, or severity.

Examples:
  tape activity                          # Show last 20 events
  tape activity -n 50                    # Show last 50 events
  tape activity --session <id>           # Show events for one session
  tape activity --type tool_failed       # Show only tool failures
  tape activity --severity error         # Show only error events`,
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		sessionID, _ := cmd.Flags().GetString("session")
		eventType, _ := cmd.Flags().GetString("type")
		severity, _ := cmd.Flags().GetString("severity")

		ctx := context.Background()

		store, _, err := openStore(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		defer store.Close()

		var eventList []*events.AgentEvent
		switch {
		case sessionID != "" && eventType == "" && severity == "":
			eventList, err = store.GetAgentEventsBySession(ctx, sessionID)
		case sessionID == "" && eventType == "" && severity == "":
			eventList, err = store.GetRecentAgentEvents(ctx, limit)
		default:
			eventList, err = store.GetAgentEvents(ctx, events.EventFilter{
				SessionID: sessionID,
				Type:      events.EventType(eventType),
				Severity:  events.EventSeverity(severity),
				Limit:     limit,
			})
		}
		if err != nil {
			fatalf("fetching events: %v", err)
		}

		if len(eventList) == 0 {
			yellow := color.New(color.FgYellow).SprintFunc()
			fmt.Printf("\n%s No events found matching the criteria\n\n", yellow("∅"))
			return
		}

		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Printf("\n%s Recent Activity (%d events):\n\n", cyan("▣"), len(eventList))

		// Newest last, so the feed reads top to bottom.
		for i := len(eventList) - 1; i >= 0; i-- {
			displayEvent(eventList[i])
		}

		fmt.Println()
	},
}

// displayEvent prints a single event on one line: timestamp, session,
// colored type, message.
func displayEvent(event *events.AgentEvent) {
	timestamp := event.Timestamp.Format("15:04:05")
	sessionCol := color.New(color.FgGreen).Sprint(shortSession(event.SessionID))
	typeCol := color.New(color.FgMagenta).Sprint(string(event.Type))
	sevColor := severityColor(event.Severity)

	label := sessionCol
	if event.Worker != "" {
		label = fmt.Sprintf("%s/%s", sessionCol, event.Worker)
	}

	fmt.Printf("[%s] %s %s: %s\n", timestamp, label, typeCol, sevColor.Sprint(snippet(event.Message, 70)))
}

// severityColor maps severity levels to display colors.
func severityColor(severity events.EventSeverity) *color.Color {
	switch severity {
	case events.SeverityCritical:
		return color.New(color.FgRed, color.Bold)
	case events.SeverityError:
		return color.New(color.FgRed)
	case events.SeverityWarning:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgWhite)
	}
}

func shortSession(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	activityCmd.Flags().IntP("limit", "n", 20, "Number of recent events to show")
	activityCmd.Flags().String("session", "", "Filter events by session ID")
	activityCmd.Flags().StringP("type", "t", "", "Filter by event type (e.g., tool_failed, approval_requested)")
	activityCmd.Flags().StringP("severity", "s", "", "Filter by severity (info, warning, error, critical)")
	rootCmd.AddCommand(activityCmd)
}
