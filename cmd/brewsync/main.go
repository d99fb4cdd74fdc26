package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mmcdole/brewsync/internal/adapter"
	"github.com/mmcdole/brewsync/internal/app"
	"github.com/mmcdole/brewsync/internal/domain"
)

// Version is set at build time via -ldflags
var Version = "dev"

var (
	configDir    string
	serverURL    string
	forceOffline bool

	cfg *adapter.Config
	a   *app.App
)

var rootCmd = &cobra.Command{
	Use:   "brewsync",
	Short: "Offline-first recipe and brew session manager",
	Long: `brewsync keeps recipes and brew sessions in a local store, queues every
change made while offline and replays the queue against the API server when
it becomes reachable again.`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", adapter.DefaultConfigDir(), "config directory")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "API server URL (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&forceOffline, "offline", false, "never contact the API server")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if cerr := teardown(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = adapter.LoadConfigFrom(configDir)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if serverURL != "" {
		cfg.Server.URL = serverURL
	}
	if forceOffline {
		cfg.Network.ForceOffline = true
	}

	logger, err := adapter.SetupLogger(&cfg.Logging)
	if err != nil {
		// Fall back to null logger if file logging fails
		logger = adapter.NullLogger()
	}
	slog.SetDefault(logger)
	logger.Info("starting brewsync", "version", Version, "command", cmd.CommandPath())

	a, err = app.New(cfg, logger, app.Options{})
	if err != nil {
		return err
	}
	// Commands sync in the foreground; a background pass would die with the process.
	a.Recipes.SetWriteThrough(false)
	a.BrewSessions.SetWriteThrough(false)

	return a.Start(cmd.Context())
}

// teardown runs after every command, including failed ones.
func teardown() error {
	if a == nil {
		return nil
	}
	return a.Close()
}

// requireSession fails when nobody is logged in.
func requireSession() (domain.Namespace, error) {
	ns, err := a.Sessions.Current()
	if err != nil {
		return ns, fmt.Errorf("not logged in, run 'brewsync login' first")
	}
	return ns, nil
}

// pushWrites runs a foreground pass after a local write when the config
// asks for write-through and the server is reachable.
func pushWrites(ctx context.Context) {
	if !cfg.Sync.WriteThrough || !a.Network.CurrentState().Online() {
		fmt.Println("Queued for the next sync.")
		return
	}
	ns, err := a.Sessions.Current()
	if err != nil {
		return
	}
	res, err := a.Engine.Sync(ctx, ns.UserID, domain.TriggerWrite)
	if err != nil {
		fmt.Printf("Queued for the next sync (%v).\n", err)
		return
	}
	printResult(res)
}
