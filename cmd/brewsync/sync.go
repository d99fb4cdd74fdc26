package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmcdole/brewsync/internal/domain"
	"github.com/mmcdole/brewsync/internal/tui/styles"
)

var statusVerbose bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connectivity and pending changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ns, err := requireSession()
		if err != nil {
			return err
		}

		state := a.Network.CurrentState()
		conn := styles.ErrorStyle.Render("offline")
		if state.Online() {
			conn = styles.SuccessStyle.Render(fmt.Sprintf("online (%s)", state.ConnectionType))
		}

		fmt.Printf("User:       %s (%s)\n", ns.Username, ns.UnitSystem)
		fmt.Printf("Server:     %s\n", cfg.Server.URL)
		fmt.Printf("Network:    %s\n", conn)
		if last, ok := a.Engine.LastSync(ns.UserID); ok {
			fmt.Printf("Last sync:  %s (%s ago)\n", last.Local().Format(time.DateTime), time.Since(last).Round(time.Second))
		} else {
			fmt.Println("Last sync:  never")
		}

		ops, err := a.Queue.List(ns.UserID)
		if err != nil {
			return err
		}
		fmt.Printf("Pending:    %d\n", len(ops))
		if !statusVerbose {
			return nil
		}
		for _, op := range ops {
			line := fmt.Sprintf("  #%d %s %s %s", op.Seq, op.Kind, op.EntityType, op.TargetID)
			if op.Attempts > 0 {
				line += fmt.Sprintf(" attempts=%d", op.Attempts)
			}
			if !op.NextAttemptAt.IsZero() {
				line += " next=" + op.NextAttemptAt.Local().Format(time.TimeOnly)
			}
			if op.LastError != "" {
				line += " " + styles.ErrorStyle.Render(op.LastError)
			}
			fmt.Println(line)
		}
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push pending changes to the server now",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := requireSession(); err != nil {
			return err
		}
		res, err := a.Recipes.Sync(cmd.Context())
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}
		printResult(res)
		return nil
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Download the latest recipes and brew sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := requireSession(); err != nil {
			return err
		}
		if err := a.Sessions.Hydrate(cmd.Context(), true); err != nil {
			fmt.Printf("%s %v\n", styles.ErrorStyle.Render("⚠ showing cached data:"), err)
		}
		fmt.Printf("%d recipes, %d brew sessions\n", len(a.Recipes.Items()), len(a.BrewSessions.Items()))
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVarP(&statusVerbose, "verbose", "v", false, "list queued operations")
	rootCmd.AddCommand(statusCmd, syncCmd, refreshCmd)
}

func printResult(res *domain.SyncResult) {
	if res == nil {
		return
	}
	mark := styles.SuccessStyle.Render("✓")
	if !res.Success {
		mark = styles.ErrorStyle.Render("✗")
	}
	fmt.Printf("%s Synced %d, retrying %d, skipped %d, failed %d, conflicts %d\n",
		mark, res.Processed, res.Retried, res.Skipped, res.Failed, res.Conflicts)
	for _, e := range res.Errors {
		fmt.Printf("   %s\n", styles.ErrorStyle.Render(e))
	}
}
