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
	"github.com/tapedesk/tape/internal/storage/sqlite"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check tape installation and environment health",
	Long: `Run health checks to diagnose common configuration and environment issues.

This command checks for:
- Workspace database discovery and accessibility
- Schema version compatibility
- Configuration file validity
- Required API credentials
- Skills directory

Exit codes:
  0 - All checks passed
  1 - One or more checks failed (but not critical)
  2 - Critical failures that prevent tape from running`,
	Run: func(cmd *cobra.Command, args []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")

		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()

		fmt.Printf("Running tape health checks...\n\n")

		var failures []string
		var warnings []string
		var critical []string

		ctx := context.Background()

		// Check 1: Database discovery
		fmt.Printf("%s Database discovery\n", cyan("→"))
		path := dbPath
		if path == "" {
			discovered, err := storage.DiscoverDatabase()
			if err != nil {
				critical = append(critical, fmt.Sprintf("no database found: %v", err))
				fmt.Printf("  %s No database found (run 'tape init' first)\n", red("✗"))
				if verbose {
					fmt.Printf("    Error: %v\n", err)
				}
			} else {
				path = discovered
				fmt.Printf("  %s Found database: %s\n", green("✓"), path)
			}
		} else {
			fmt.Printf("  %s Using explicit database: %s\n", green("✓"), path)
		}

		if path == "" {
			fmt.Printf("\n%s Critical failures prevent tape from running\n", red("✗"))
			os.Exit(2)
		}

		// Check 2: Database file accessibility
		fmt.Printf("%s Database file access\n", cyan("→"))
		if info, err := os.Stat(path); err != nil {
			critical = append(critical, fmt.Sprintf("cannot access database: %v", err))
			fmt.Printf("  %s Cannot access database file\n", red("✗"))
			if verbose {
				fmt.Printf("    Error: %v\n", err)
			}
		} else {
			fmt.Printf("  %s Database file accessible (%d bytes)\n", green("✓"), info.Size())
			if info.Size() == 0 {
				warnings = append(warnings, "database file is empty")
				fmt.Printf("  %s WARNING: Database is empty\n", yellow("⚠"))
			}
		}

		// Check 3: Schema version
		fmt.Printf("%s Schema version\n", cyan("→"))
		store, err := storage.NewStorage(ctx, &storage.Config{Path: path})
		if err != nil {
			critical = append(critical, fmt.Sprintf("cannot open database: %v", err))
			fmt.Printf("  %s Cannot open database\n", red("✗"))
			if verbose {
				fmt.Printf("    Error: %v\n", err)
			}
		} else {
			version, err := store.GetMeta(ctx, "schema_version")
			switch {
			case err != nil:
				failures = append(failures, fmt.Sprintf("cannot read schema version: %v", err))
				fmt.Printf("  %s Cannot read schema version\n", red("✗"))
			case version != sqlite.SchemaVersion:
				failures = append(failures, fmt.Sprintf("schema version mismatch: have %s, want %s", version, sqlite.SchemaVersion))
				fmt.Printf("  %s Schema version mismatch: have %s, want %s\n", red("✗"), version, sqlite.SchemaVersion)
			default:
				fmt.Printf("  %s Schema version %s\n", green("✓"), version)
			}
			store.Close()
		}

		// Check 4: Configuration
		fmt.Printf("%s Configuration\n", cyan("→"))
		root, rootErr := storage.GetWorkspaceRoot(path)
		if rootErr != nil {
			warnings = append(warnings, fmt.Sprintf("not a standard workspace layout: %v", rootErr))
			fmt.Printf("  %s Not a standard workspace layout, using defaults\n", yellow("⚠"))
		} else {
			cfgFile := filepath.Join(root, ".tape", "config.yaml")
			settings, err := config.Load(cfgFile)
			if err != nil {
				failures = append(failures, fmt.Sprintf("config load failed: %v", err))
				fmt.Printf("  %s Cannot load %s\n", red("✗"), cfgFile)
				if verbose {
					fmt.Printf("    Error: %v\n", err)
				}
			} else if err := settings.Validate(); err != nil {
				failures = append(failures, fmt.Sprintf("invalid configuration: %v", err))
				fmt.Printf("  %s Invalid configuration: %v\n", red("✗"), err)
			} else {
				fmt.Printf("  %s Configuration valid (%s/%s on %s)\n", green("✓"),
					settings.Trading.DefaultSymbol, settings.Trading.DefaultInterval, settings.Trading.DefaultExchange)
			}
		}

		// Check 5: API credentials
		fmt.Printf("%s API credentials\n", cyan("→"))
		if os.Getenv("ANTHROPIC_API_KEY") == "" {
			failures = append(failures, "ANTHROPIC_API_KEY not set")
			fmt.Printf("  %s ANTHROPIC_API_KEY not set (required for chat and ask)\n", red("✗"))
		} else {
			fmt.Printf("  %s ANTHROPIC_API_KEY is set\n", green("✓"))
		}

		// Check 6: Skills directory
		fmt.Printf("%s Skills directory\n", cyan("→"))
		if rootErr == nil {
			skillsDir := filepath.Join(root, ".tape", "skills")
			if info, err := os.Stat(skillsDir); err != nil {
				warnings = append(warnings, "skills directory missing")
				fmt.Printf("  %s Skills directory missing (optional)\n", yellow("⚠"))
			} else if !info.IsDir() {
				failures = append(failures, fmt.Sprintf("%s is not a directory", skillsDir))
				fmt.Printf("  %s %s is not a directory\n", red("✗"), skillsDir)
			} else {
				fmt.Printf("  %s Skills directory present\n", green("✓"))
			}
		} else {
			fmt.Printf("  %s Skipped (no workspace root)\n", yellow("⚠"))
		}

		// Summary
		fmt.Println()
		switch {
		case len(critical) > 0:
			fmt.Printf("%s %d critical failure(s) prevent tape from running\n", red("✗"), len(critical))
			os.Exit(2)
		case len(failures) > 0:
			fmt.Printf("%s %d check(s) failed, %d warning(s)\n", red("✗"), len(failures), len(warnings))
			os.Exit(1)
		case len(warnings) > 0:
			fmt.Printf("%s All checks passed with %d warning(s)\n", yellow("⚠"), len(warnings))
		default:
			fmt.Printf("%s All checks passed\n", green("✓"))
		}
	},
}

func init() {
	doctorCmd.Flags().BoolP("verbose", "v", false, "Show detailed error information")
	rootCmd.AddCommand(doctorCmd)
}
