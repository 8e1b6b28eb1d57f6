package desk

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tapedesk/tape/internal/approval"
	"github.com/tapedesk/tape/internal/session"
)

// DefaultPolicy gates the two side-effecting signal tools behind human
// approval. Both decisions are allowed; the descriptions render the trade
// the way a desk operator wants to read it before saying yes.
func DefaultPolicy() approval.Policy {
	return approval.Policy{
		"create_trading_signal": approval.Rule{Describe: describeCreateSignal},
		"update_trading_signal": approval.Rule{Describe: describeUpdateSignal},
	}
}

func describeCreateSignal(args map[string]interface{}, sc *session.Context) string {
	symbol := stringArg(args, "symbol")
	if symbol == "" && sc != nil {
		symbol = sc.Symbol
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Create %s signal on %s",
		strings.ToUpper(stringArg(args, "direction")), symbol)
	if entry, ok := numberArg(args, "entry"); ok {
		fmt.Fprintf(&sb, ": entry %s", trimFloat(entry))
	}
	if stop, ok := numberArg(args, "stop_loss"); ok {
		fmt.Fprintf(&sb, ", stop %s", trimFloat(stop))
	}
	if targets := numberListArg(args, "targets"); len(targets) > 0 {
		fmt.Fprintf(&sb, ", targets %s", strings.Join(targets, "/"))
	}
	if size, ok := numberArg(args, "size_pct"); ok {
		fmt.Fprintf(&sb, ", %s%% risk", trimFloat(size))
	}
	if lev, ok := numberArg(args, "leverage"); ok {
		fmt.Fprintf(&sb, " at %sx", trimFloat(lev))
	}
	if rationale := stringArg(args, "rationale"); rationale != "" {
		fmt.Fprintf(&sb, "\nRationale: %s", rationale)
	}
	return sb.String()
}

func describeUpdateSignal(args map[string]interface{}, sc *session.Context) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Update signal %s", stringArg(args, "signal_id"))
	var changes []string
	if status := stringArg(args, "status"); status != "" {
		changes = append(changes, fmt.Sprintf("status=%s", status))
	}
	if entry, ok := numberArg(args, "entry"); ok {
		changes = append(changes, fmt.Sprintf("entry=%s", trimFloat(entry)))
	}
	if stop, ok := numberArg(args, "stop_loss"); ok {
		changes = append(changes, fmt.Sprintf("stop=%s", trimFloat(stop)))
	}
	if targets := numberListArg(args, "targets"); len(targets) > 0 {
		changes = append(changes, fmt.Sprintf("targets=%s", strings.Join(targets, "/")))
	}
	if lev, ok := numberArg(args, "leverage"); ok {
		changes = append(changes, fmt.Sprintf("leverage=%sx", trimFloat(lev)))
	}
	if len(changes) > 0 {
		fmt.Fprintf(&sb, ": %s", strings.Join(changes, ", "))
	}
	return sb.String()
}

func stringArg(args map[string]interface{}, key string) string {
	s, _ := args[key].(string)
	return s
}

func numberArg(args map[string]interface{}, key string) (float64, bool) {
	f, ok := args[key].(float64)
	return f, ok
}

func numberListArg(args map[string]interface{}, key string) []string {
	list, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		if f, ok := v.(float64); ok {
			out = append(out, trimFloat(f))
		}
	}
	return out
}

func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
