// Package approval gates marked tool calls behind a human decision. The
// Controller middleware stage intercepts calls whose tool name appears in
// the Policy, persists an InterruptRequest, and halts the pipeline before
// the tool executes; SubmitDecision is the single boundary through which
// a verdict re-enters the system, whether it comes from the CLI, the REPL
// resolver, or a test.
package approval

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tapedesk/tape/internal/session"
	"github.com/tapedesk/tape/internal/types"
)

// DescribeFunc renders the human-facing summary of a gated call. It must
// be pure: no I/O, no mutation, same output for the same input. args is
// the decoded call payload (nil when the payload was not valid JSON).
type DescribeFunc func(args map[string]interface{}, sc *session.Context) string

// Rule configures the gate for one tool name.
type Rule struct {
	// Allowed restricts which decisions a human may submit for calls
	// gated by this rule. Empty means both approve and reject.
	Allowed []types.Decision

	// Describe renders the approval prompt. Nil falls back to a generic
	// name-plus-arguments rendering.
	Describe DescribeFunc
}

// AllowedDecisions returns the rule's decision set, defaulting to approve
// and reject when unset. The returned slice is always a copy.
func (r Rule) AllowedDecisions() []types.Decision {
	if len(r.Allowed) == 0 {
		return []types.Decision{types.DecisionApprove, types.DecisionReject}
	}
	return append([]types.Decision(nil), r.Allowed...)
}

// describe renders the approval prompt for one call. Undecodable argument
// payloads degrade to the generic rendering rather than blocking the gate.
func (r Rule) describe(call *types.ToolCall, sc *session.Context) string {
	args, err := call.ArgsMap()
	if err != nil {
		args = nil
	}
	if r.Describe != nil {
		return r.Describe(args, sc)
	}
	return DescribeToolCall(call.Name, args)
}

// Policy maps tool names to gate rules. A tool absent from the policy
// executes without interruption.
type Policy map[string]Rule

// Match returns the rule for a tool name and whether one exists.
func (p Policy) Match(tool string) (Rule, bool) {
	r, ok := p[tool]
	return r, ok
}

// Tools returns the gated tool names, sorted for stable output.
func (p Policy) Tools() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DescribeToolCall is the fallback prompt rendering: the tool name plus
// its arguments one per line, keys sorted so the text is stable.
func DescribeToolCall(tool string, args map[string]interface{}) string {
	if len(args) == 0 {
		return fmt.Sprintf("Run tool %s (no arguments)", tool)
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Run tool %s with:", tool)
	for _, k := range keys {
		fmt.Fprintf(&sb, "\n  %s: %s", k, renderArg(args[k]))
	}
	return sb.String()
}

func renderArg(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		// JSON numbers decode as float64; render 2.0 as "2", not "2e+00".
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
