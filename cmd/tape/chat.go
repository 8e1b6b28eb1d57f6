package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tapedesk/tape/internal/repl"
	"github.com/tapedesk/tape/internal/storage"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open the interactive desk shell",
	Long: `Start an interactive session with the supervisor agent.

Natural-language input goes to the desk; slash commands manage the shell.
Approval gates are answered inline at the prompt. Only one chat can hold
the desk at a time; a stale lock from a crashed process is reclaimed
automatically.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		store, path, err := openStore(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		defer store.Close()

		lockPath, err := storage.AcquireChatLock(path, Version)
		if err != nil {
			fatalf("%v", err)
		}
		defer func() {
			if err := storage.ReleaseChatLock(lockPath); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to release chat lock: %v\n", err)
			}
		}()

		d, err := openDesk(store, path)
		if err != nil {
			fatalf("%v", err)
		}

		history := ""
		if root, err := storage.GetWorkspaceRoot(path); err == nil {
			history = filepath.Join(root, ".tape", "history")
		}
		r, err := repl.New(&repl.Config{Desk: d, HistoryFile: history})
		if err != nil {
			fatalf("failed to create shell: %v", err)
		}
		if err := r.Run(ctx); err != nil {
			fatalf("%v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
