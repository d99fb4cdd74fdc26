package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mmcdole/brewsync/internal/adapter"
)

var (
	loginUsername string
	loginUnit     string
	logoutDiscard bool

	stdin = bufio.NewReader(os.Stdin)
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and download your recipes",
	RunE: func(cmd *cobra.Command, args []string) error {
		if loginUnit != "" {
			cfg.Session.UnitSystem = loginUnit
		}

		username := loginUsername
		if username == "" {
			var err error
			if username, err = prompt("Username: "); err != nil {
				return err
			}
		}
		password, err := readPassword("Password: ")
		if err != nil {
			return err
		}

		auth, err := a.Login(cmd.Context(), username, password)
		if auth == nil {
			return fmt.Errorf("login failed: %w", err)
		}
		if serr := adapter.SaveSession(configDir, cfg, auth.Token, auth.UserID, auth.Username); serr != nil {
			return serr
		}

		fmt.Printf("✓ Logged in as %s\n", auth.Username)
		if err != nil {
			fmt.Printf("⚠ Some data could not be downloaded: %v\n", err)
			fmt.Println("  Cached data is still available; run 'brewsync refresh' later.")
			return nil
		}
		fmt.Printf("  %d recipes, %d brew sessions\n", len(a.Recipes.Items()), len(a.BrewSessions.Items()))
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out and remove all local data",
	Long: `Log out of the current account. Pending changes are pushed first when
the server is reachable; anything still queued afterwards is discarded together
with the local cache.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := requireSession(); err != nil {
			return err
		}
		if n := a.Recipes.PendingCount(); n > 0 && logoutDiscard {
			fmt.Printf("Discarding %d pending changes.\n", n)
		}

		res, err := a.Logout(cmd.Context(), !logoutDiscard)
		if res != nil {
			printResult(res)
		}
		if err != nil {
			return err
		}
		if err := adapter.ClearSession(configDir, cfg); err != nil {
			return err
		}
		fmt.Println("✓ Logged out")
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "account name")
	loginCmd.Flags().StringVar(&loginUnit, "unit", "", "unit system: imperial or metric")
	logoutCmd.Flags().BoolVar(&logoutDiscard, "discard", false, "do not push pending changes first")
	rootCmd.AddCommand(loginCmd, logoutCmd)
}

func prompt(label string) (string, error) {
	fmt.Print(label)
	line, err := stdin.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func readPassword(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return prompt(label)
	}
	fmt.Print(label)
	raw, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(raw), nil
}
