// Package repl is the interactive chat shell: readline input, slash
// commands, natural-language turns routed to the desk, and approval gates
// answered inline at the prompt.
package repl

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/tapedesk/tape/internal/desk"
	"github.com/tapedesk/tape/internal/session"
	"github.com/tapedesk/tape/internal/types"
)

// CommandHandler handles one slash command
type CommandHandler func(args []string) error

// Config holds REPL configuration
type Config struct {
	Desk *desk.Desk

	// HistoryFile persists readline history; empty keeps it in memory
	HistoryFile string
}

// REPL is the interactive shell. One shell drives one supervisor session
// at a time; /new rotates to a fresh one.
type REPL struct {
	desk     *desk.Desk
	rl       *readline.Instance
	ctx      context.Context
	sc       *session.Context
	commands map[string]CommandHandler
	history  string
}

// New creates a REPL over an assembled desk
func New(cfg *Config) (*REPL, error) {
	if cfg.Desk == nil {
		return nil, fmt.Errorf("desk is required")
	}
	r := &REPL{
		desk:     cfg.Desk,
		history:  cfg.HistoryFile,
		commands: make(map[string]CommandHandler),
	}
	r.registerCommands()
	return r, nil
}

// Run starts the shell loop. Gates resolve inline at the prompt for as
// long as the loop runs.
func (r *REPL) Run(ctx context.Context) error {
	r.ctx = ctx

	cyan := color.New(color.FgCyan).SprintFunc()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            cyan("tape> "),
		HistoryFile:       r.history,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()
	r.rl = rl

	r.desk.SetResolver(&promptResolver{ask: r.ask})

	sc, err := r.desk.NewSession(ctx, "chat")
	if err != nil {
		return err
	}
	r.sc = sc

	r.printWelcome()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				fmt.Println("\nGoodbye!")
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if err := r.processInput(line); err != nil {
			if err == io.EOF {
				return nil
			}
			red := color.New(color.FgRed).SprintFunc()
			fmt.Printf("%s %v\n", red("Error:"), err)
		}
	}
}

// processInput routes one line: slash commands to handlers, everything
// else to the supervisor loop.
func (r *REPL) processInput(line string) error {
	if !strings.HasPrefix(line, "/") {
		return r.converse(line)
	}
	parts := strings.Fields(line)
	if handler, ok := r.commands[parts[0]]; ok {
		return handler(parts[1:])
	}
	return fmt.Errorf("unknown command %s (try /help)", parts[0])
}

// converse sends one natural-language turn into the current session
func (r *REPL) converse(input string) error {
	res, err := r.desk.Run(r.ctx, r.sc, input)
	if err != nil {
		// A terminal failure kills the session; rotate to a fresh one so
		// the shell stays usable.
		yellow := color.New(color.FgYellow).SprintFunc()
		if sc, scErr := r.desk.NewSession(r.ctx, "chat"); scErr == nil {
			r.sc = sc
			fmt.Printf("%s Session failed; started a new one.\n", yellow("!"))
		}
		return err
	}

	switch res.Status {
	case types.SessionStateCompleted:
		fmt.Println()
		fmt.Println(res.FinalText)
		fmt.Println()
	case types.SessionStateAwaitingApproval:
		// The inline resolver normally answers gates before we get here;
		// this is the headless fallback path.
		yellow := color.New(color.FgYellow).SprintFunc()
		fmt.Printf("\n%s Waiting on %d approval(s):\n", yellow("⏸"), len(res.Pending))
		for _, req := range res.Pending {
			printInterrupt(req)
		}
		fmt.Println("Use /approve <id> or /reject <id> [reason].")
	}
	return nil
}

// ask prompts for one line of input, restoring the main prompt afterward.
// The resolver serializes callers, so the prompt swap is safe.
func (r *REPL) ask(prompt string) (string, error) {
	if r.rl == nil {
		return "", fmt.Errorf("interactive input unavailable")
	}
	cyan := color.New(color.FgCyan).SprintFunc()
	r.rl.SetPrompt(prompt)
	defer r.rl.SetPrompt(cyan("tape> "))
	line, err := r.rl.Readline()
	if err != nil {
		return "", err
	}
	return line, nil
}

func (r *REPL) printWelcome() {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()
	fmt.Printf("\n%s\n", cyan("tape - trading desk copilot"))
	fmt.Printf("Session %s · %s %s on %s\n", shortID(r.sc.SessionID), r.sc.Symbol, r.sc.Interval, r.sc.Exchange)
	fmt.Println()
	fmt.Printf("%s\n\n", gray("Type /help for commands. Anything else goes to the desk."))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
