// Command tape is the trading desk copilot: a supervisor agent with market
// tools, delegated analyst workers, and human approval gates on every
// side-effecting action.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tapedesk/tape/internal/config"
	"github.com/tapedesk/tape/internal/desk"
	"github.com/tapedesk/tape/internal/storage"
)

// Version is the CLI version, stamped into the chat lock file
const Version = "0.2.0"

var (
	dbPath  string
	cfgPath string
)

var rootCmd = &cobra.Command{
	Use:   "tape",
	Short: "AI trading-desk copilot",
	Long: `tape is a terminal copilot for a discretionary trader.

Chat with a supervisor agent that reads market data, computes indicators,
remembers notes, and drafts trading signals. Deep chart and news analysis
is delegated to specialist workers; creating or updating a signal always
pauses for your approval.

Start with:
  tape init      Set up a desk in the current directory
  tape chat      Open the interactive shell
  tape ask "..." One-shot question`,
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "",
		"database path (default: discover .tape/tape.db, or TAPE_DB_PATH)")
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "",
		"config file (default: <workspace>/.tape/config.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveDB returns the database path from the flag or discovery
func resolveDB() (string, error) {
	if dbPath != "" {
		return dbPath, nil
	}
	return storage.DiscoverDatabase()
}

// openStore discovers and opens the workspace database
func openStore(ctx context.Context) (storage.Storage, string, error) {
	path, err := resolveDB()
	if err != nil {
		return nil, "", err
	}
	store, err := storage.NewStorage(ctx, &storage.Config{Path: path})
	if err != nil {
		return nil, "", fmt.Errorf("failed to open database %s: %w", path, err)
	}
	return store, path, nil
}

// loadSettings reads the desk configuration next to the database. A
// missing file falls back to defaults plus TAPE_* environment overrides.
func loadSettings(dbPath string) (config.Config, error) {
	if cfgPath != "" {
		return config.Load(cfgPath)
	}
	root, err := storage.GetWorkspaceRoot(dbPath)
	if err != nil {
		// Explicit --db outside a .tape/ layout still works; defaults
		// plus environment take over.
		return config.Load("")
	}
	return config.Load(filepath.Join(root, ".tape", "config.yaml"))
}

// openDesk assembles the full copilot over an opened store. This needs an
// Anthropic API key; commands that only read or decide (approvals,
// sessions, activity) work straight off the store instead.
func openDesk(store storage.Storage, dbPath string) (*desk.Desk, error) {
	cfg, err := loadSettings(dbPath)
	if err != nil {
		return nil, err
	}
	deskCfg := desk.Config{Settings: cfg, Store: store}
	if root, err := storage.GetWorkspaceRoot(dbPath); err == nil {
		deskCfg.SkillsDir = filepath.Join(root, ".tape", "skills")
		deskCfg.ChartDir = filepath.Join(root, ".tape", "charts")
	}
	return desk.New(deskCfg)
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
