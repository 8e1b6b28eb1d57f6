package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tapedesk/tape/internal/config"
	"github.com/tapedesk/tape/internal/storage"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Set up a tape desk in the current directory",
	Long: `Initialize a desk by creating a .tape/ directory here.

This creates:
  - .tape/tape.db       (SQLite database: sessions, signals, memories)
  - .tape/config.yaml   (default configuration)
  - .tape/skills/       (drop markdown skill files here)

Example:
  cd ~/trading
  tape init
  tape chat`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cwd, err := os.Getwd()
		if err != nil {
			fatalf("failed to get current directory: %v", err)
		}

		dbPath, err := storage.InitWorkspace(cwd)
		if err != nil {
			fatalf("%v", err)
		}

		// Opening once creates the schema
		ctx := context.Background()
		store, err := storage.NewStorage(ctx, &storage.Config{Path: dbPath})
		if err != nil {
			fatalf("failed to initialize database: %v", err)
		}
		_ = store.Close()

		tapeDir := filepath.Dir(dbPath)
		cfgFile := filepath.Join(tapeDir, "config.yaml")
		if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
			cfg := config.Default()
			if err := cfg.Write(cfgFile); err != nil {
				fatalf("failed to write config: %v", err)
			}
		}
		if err := os.MkdirAll(filepath.Join(tapeDir, "skills"), 0755); err != nil {
			fatalf("failed to create skills directory: %v", err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s Initialized tape desk\n\n", green("✓"))
		fmt.Printf("  Database: %s\n", cyan(dbPath))
		fmt.Printf("  Config:   %s\n", cyan(cfgFile))
		fmt.Println()
		fmt.Printf("%s Next steps:\n", gray("→"))
		fmt.Printf("  %s\n", gray("export ANTHROPIC_API_KEY=..."))
		fmt.Printf("  %s\n", gray("tape chat"))
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
