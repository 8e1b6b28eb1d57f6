package repl

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/tapedesk/tape/internal/types"
)

// promptResolver answers approval gates at the prompt. Tool steps run
// concurrently within a turn, so two gates can arrive at once; the mutex
// makes them take turns at the terminal.
type promptResolver struct {
	mu  sync.Mutex
	ask func(prompt string) (string, error)
}

func (p *promptResolver) Resolve(ctx context.Context, req *types.InterruptRequest) (types.Decision, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", "", err
	}

	yellow := color.New(color.FgYellow, color.Bold).SprintFunc()
	fmt.Printf("\n%s %s\n", yellow("⏸ Approval required:"), req.Call.Name)
	fmt.Println(indent(req.Description, "  "))

	for {
		answer, err := p.ask("Approve? [y/n] ")
		if err != nil {
			return "", "", err
		}
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes", "approve":
			return types.DecisionApprove, "", nil
		case "n", "no", "reject":
			reason, err := p.ask("Reason (optional): ")
			if err != nil {
				return "", "", err
			}
			return types.DecisionReject, strings.TrimSpace(reason), nil
		}
		fmt.Println("Please answer y or n.")
	}
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = prefix + lines[i]
	}
	return strings.Join(lines, "\n")
}

// printInterrupt renders one pending gate for the /pending listing
func printInterrupt(req *types.InterruptRequest) {
	cyan := color.New(color.FgCyan).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()
	fmt.Printf("  %s %s\n", cyan(req.ID), req.Call.Name)
	fmt.Println(indent(req.Description, "    "))
	fmt.Printf("    %s\n", gray(fmt.Sprintf("session %s · requested %s", shortID(req.SessionID), req.CreatedAt.Format("2006-01-02 15:04"))))
}
