package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tapedesk/tape/internal/types"
)

var (
	signalsLimit  int
	signalsStatus string
)

var signalsCmd = &cobra.Command{
	Use:   "signals",
	Short: "Trading signal inventory",
}

var signalsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List trading signals",
	Long: `List recorded trading signals, newest first.

Examples:
  tape signals list
  tape signals list --status active
  tape signals list -n 5`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		store, _, err := openStore(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		defer store.Close()

		filter := types.SignalFilter{Limit: signalsLimit}
		if signalsStatus != "" {
			status := types.SignalStatus(strings.ToLower(signalsStatus))
			if !status.IsValid() {
				fatalf("invalid status %q (want active, filled, closed, or invalidated)", signalsStatus)
			}
			filter.Status = &status
		}

		signals, err := store.ListSignals(ctx, filter)
		if err != nil {
			fatalf("%v", err)
		}
		if len(signals) == 0 {
			fmt.Println("No signals recorded.")
			return
		}

		gray := color.New(color.FgHiBlack).SprintFunc()
		fmt.Println()
		for _, s := range signals {
			fmt.Printf("  %s  %-10s %-5s entry %.2f stop %.2f  %.1f%% @ %.1fx  [%s]\n",
				s.ID, s.Symbol, directionColored(s.Direction), s.Entry, s.StopLoss,
				s.SizePct, s.Leverage, s.Status)
			if s.Rationale != "" {
				fmt.Printf("    %s\n", gray(snippet(s.Rationale, 120)))
			}
		}
		fmt.Println()
	},
}

func directionColored(d types.Direction) string {
	s := strings.ToUpper(string(d))
	if string(d) == "long" {
		return color.New(color.FgGreen).Sprint(s)
	}
	return color.New(color.FgRed).Sprint(s)
}

func init() {
	signalsListCmd.Flags().IntVarP(&signalsLimit, "limit", "n", 20, "maximum signals to list")
	signalsListCmd.Flags().StringVar(&signalsStatus, "status", "", "filter by status (active, filled, closed, invalidated)")
	signalsCmd.AddCommand(signalsListCmd)
	rootCmd.AddCommand(signalsCmd)
}
