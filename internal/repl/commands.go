package repl

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"

	"github.com/tapedesk/tape/internal/types"
)

func (r *REPL) registerCommands() {
	r.commands["/help"] = r.cmdHelp
	r.commands["/?"] = r.cmdHelp
	r.commands["/exit"] = r.cmdExit
	r.commands["/quit"] = r.cmdExit
	r.commands["/new"] = r.cmdNew
	r.commands["/pending"] = r.cmdPending
	r.commands["/approve"] = r.cmdApprove
	r.commands["/reject"] = r.cmdReject
	r.commands["/sessions"] = r.cmdSessions
	r.commands["/signals"] = r.cmdSignals
	r.commands["/config"] = r.cmdConfig
	r.commands["/attach"] = r.cmdAttach
}

func (r *REPL) cmdHelp(args []string) error {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("\n%s\n\n", cyan("Commands:"))
	for _, c := range []struct{ name, desc string }{
		{"/help", "Show this help"},
		{"/new", "Start a fresh session"},
		{"/pending", "List approvals waiting on a decision"},
		{"/approve <id>", "Approve a pending action and resume"},
		{"/reject <id> [reason]", "Reject a pending action and resume"},
		{"/sessions", "List recent sessions"},
		{"/signals", "List trading signals"},
		{"/config", "Show the session's trading scope"},
		{"/attach <path>", "Attach an image to the next message"},
		{"/exit", "Leave the shell"},
	} {
		fmt.Printf("  %-24s %s\n", green(c.name), c.desc)
	}
	fmt.Println()
	return nil
}

func (r *REPL) cmdExit(args []string) error {
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("\n%s Goodbye!\n", green("✓"))
	return io.EOF
}

func (r *REPL) cmdNew(args []string) error {
	sc, err := r.desk.NewSession(r.ctx, "chat")
	if err != nil {
		return err
	}
	r.sc = sc
	fmt.Printf("Started session %s.\n", shortID(sc.SessionID))
	return nil
}

func (r *REPL) cmdPending(args []string) error {
	pending, err := r.desk.PendingInterrupts(r.ctx, "")
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		fmt.Println("No approvals pending.")
		return nil
	}
	fmt.Printf("\n%d approval(s) pending:\n", len(pending))
	for _, req := range pending {
		printInterrupt(req)
	}
	return nil
}

func (r *REPL) cmdApprove(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: /approve <interrupt-id>")
	}
	return r.decide(args[0], types.DecisionApprove, "")
}

func (r *REPL) cmdReject(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: /reject <interrupt-id> [reason]")
	}
	return r.decide(args[0], types.DecisionReject, strings.Join(args[1:], " "))
}

// decide records the verdict and resumes the affected conversation from
// its root, so a gate raised inside a delegated worker continues the whole
// chain.
func (r *REPL) decide(interruptID string, decision types.Decision, reason string) error {
	req, err := r.desk.SubmitDecision(r.ctx, interruptID, decision, reason)
	if err != nil {
		return err
	}
	rootID, err := r.rootSession(req.SessionID)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("%s Recorded %s for %s. Resuming...\n", green("✓"), decision, req.Call.Name)

	res, err := r.desk.Resume(r.ctx, rootID)
	if err != nil {
		return err
	}
	switch res.Status {
	case types.SessionStateCompleted:
		fmt.Println()
		fmt.Println(res.FinalText)
		fmt.Println()
	case types.SessionStateAwaitingApproval:
		fmt.Printf("Still waiting on %d approval(s); see /pending.\n", len(res.Pending))
	}
	return nil
}

// rootSession walks the parent chain from a (possibly delegated) session
// to the resumable root.
func (r *REPL) rootSession(id string) (string, error) {
	for {
		sess, err := r.desk.Store().GetSession(r.ctx, id)
		if err != nil {
			return "", err
		}
		if sess == nil {
			return "", fmt.Errorf("session %s not found", id)
		}
		if sess.ParentID == "" {
			return sess.ID, nil
		}
		id = sess.ParentID
	}
}

func (r *REPL) cmdSessions(args []string) error {
	sessions, err := r.desk.Store().ListSessions(r.ctx, types.SessionFilter{RootsOnly: true, Limit: 10})
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions yet.")
		return nil
	}
	gray := color.New(color.FgHiBlack).SprintFunc()
	fmt.Println()
	for _, s := range sessions {
		marker := " "
		if s.ID == r.sc.SessionID {
			marker = "*"
		}
		fmt.Printf("%s %s  %-18s %s\n", marker, shortID(s.ID), s.State, gray(s.Title))
	}
	fmt.Println()
	return nil
}

func (r *REPL) cmdSignals(args []string) error {
	signals, err := r.desk.Store().ListSignals(r.ctx, types.SignalFilter{Limit: 20})
	if err != nil {
		return err
	}
	if len(signals) == 0 {
		fmt.Println("No signals yet.")
		return nil
	}
	fmt.Println()
	for _, s := range signals {
		fmt.Printf("  %s  %-10s %-5s entry %.2f stop %.2f  [%s]\n",
			shortID(s.ID), s.Symbol, strings.ToUpper(string(s.Direction)), s.Entry, s.StopLoss, s.Status)
	}
	fmt.Println()
	return nil
}

func (r *REPL) cmdConfig(args []string) error {
	fmt.Printf("\nSession %s\n", shortID(r.sc.SessionID))
	fmt.Printf("  Symbol:   %s\n", r.sc.Symbol)
	fmt.Printf("  Exchange: %s\n", r.sc.Exchange)
	fmt.Printf("  Interval: %s\n", r.sc.Interval)
	if r.sc.Profile != "" {
		fmt.Printf("  Profile:  %s\n", r.sc.Profile)
	}
	fmt.Println()
	return nil
}

func (r *REPL) cmdAttach(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: /attach <path-to-image>")
	}
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	mediaType, err := imageMediaType(path)
	if err != nil {
		return err
	}
	r.sc.AttachImage(types.Attachment{MediaType: mediaType, Data: data})
	fmt.Printf("Attached %s (%d bytes); it rides along with your next message.\n", filepath.Base(path), len(data))
	return nil
}

func imageMediaType(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png", nil
	case ".jpg", ".jpeg":
		return "image/jpeg", nil
	case ".gif":
		return "image/gif", nil
	case ".webp":
		return "image/webp", nil
	default:
		return "", fmt.Errorf("unsupported image type %q (want png, jpeg, gif, or webp)", filepath.Ext(path))
	}
}
