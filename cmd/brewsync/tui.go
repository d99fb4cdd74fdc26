package main

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/mmcdole/brewsync/internal/adapter"
	"github.com/mmcdole/brewsync/internal/domain"
	"github.com/mmcdole/brewsync/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Watch recipes and sync activity in a terminal view",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := requireSession(); err != nil {
			return err
		}
		ctx := cmd.Context()

		// The view stays up, so background passes have time to finish.
		a.Recipes.SetWriteThrough(cfg.Sync.WriteThrough)
		a.BrewSessions.SetWriteThrough(cfg.Sync.WriteThrough)

		events := make(chan domain.SyncEvent, 64)
		a.Engine.AddObserver(tui.NewChannelObserver(events))

		err := adapter.WatchConfig(configDir, func(next *adapter.Config, err error) {
			if err != nil {
				a.Logger.Warn("ignoring invalid config change", "error", err)
				return
			}
			a.ApplyConfig(next)
		})
		if err != nil {
			a.Logger.Debug("config reload disabled", "error", err)
		}

		m := tui.NewModel(ctx, a.Recipes, a.Network, events)
		_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
		return err
	},
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}
