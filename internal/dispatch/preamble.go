package dispatch

import (
	"fmt"
	"strings"

	"github.com/tapedesk/tape/internal/types"
)

// preambleTimeFormat renders timestamps the way workers expect to read
// them: date, time, explicit UTC marker.
const preambleTimeFormat = "2006-01-02 15:04:05 UTC"

// Preamble renders the context header prepended to a delegated task. The
// worker's loop starts from a blank transcript, so "now" (time, instrument,
// venue, interval) must travel with the task text.
func Preamble(snap types.ContextSnapshot, task string) string {
	var sb strings.Builder
	sb.WriteString("## Session Context\n")
	fmt.Fprintf(&sb, "- **Current Time**: %s\n", snap.Timestamp.UTC().Format(preambleTimeFormat))
	if snap.Symbol != "" {
		fmt.Fprintf(&sb, "- **Symbol**: %s\n", snap.Symbol)
	}
	if snap.Exchange != "" {
		fmt.Fprintf(&sb, "- **Exchange**: %s\n", snap.Exchange)
	}
	if snap.Interval != "" {
		fmt.Fprintf(&sb, "- **Interval**: %s\n", snap.Interval)
	}
	if snap.Profile != "" {
		fmt.Fprintf(&sb, "- **Trader Profile**: %s\n", snap.Profile)
	}
	sb.WriteString("\n## Task\n")
	sb.WriteString(task)
	return sb.String()
}
