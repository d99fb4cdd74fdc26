package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/mmcdole/brewsync/internal/adapter"
	"github.com/mmcdole/brewsync/internal/domain"
	"github.com/mmcdole/brewsync/internal/tui/styles"
)

const dateLayout = "2006-01-02"

var brewFlags struct {
	recipe string
	name   string
	status string
	date   string
	mash   float64
	og     float64
	fg     float64
	notes  string
}

var brewCmd = &cobra.Command{
	Use:     "brews",
	Aliases: []string{"brew", "b"},
	Short:   "List and edit brew sessions",
}

var brewListCmd = &cobra.Command{
	Use:   "list",
	Short: "List brew sessions from the local cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := requireSession(); err != nil {
			return err
		}
		items := a.BrewSessions.Items()
		if len(items) == 0 {
			fmt.Println("No brew sessions.")
			return nil
		}

		names := make(map[string]string)
		for _, r := range a.Recipes.Items() {
			names[r.ID] = r.Data.Name
		}

		t := table.New().Headers("", "ID", "NAME", "RECIPE", "STATUS", "DATE")
		for _, e := range items {
			recipe := names[e.Data.RecipeID]
			if recipe == "" {
				recipe = e.Data.RecipeID
			}
			date := ""
			if !e.Data.BrewDate.IsZero() {
				date = e.Data.BrewDate.Format(dateLayout)
			}
			t.Row(styles.RenderSyncStatus(e.SyncStatus), e.ID, e.Data.Name, recipe, string(e.Data.Status), date)
		}
		fmt.Println(t.Render())
		return nil
	},
}

var brewCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Start a brew session for a recipe (works offline)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := requireSession(); err != nil {
			return err
		}
		s := domain.BrewSession{
			RecipeID: brewFlags.recipe,
			Name:     brewFlags.name,
			Status:   domain.BrewSessionStatus(brewFlags.status),
			MashTemp: brewFlags.mash,
			ActualOG: brewFlags.og,
			ActualFG: brewFlags.fg,
			Notes:    brewFlags.notes,
		}
		if brewFlags.date != "" {
			d, err := time.Parse(dateLayout, brewFlags.date)
			if err != nil {
				return fmt.Errorf("invalid --date: %w", err)
			}
			s.BrewDate = d
		} else {
			s.BrewDate = time.Now().UTC().Truncate(24 * time.Hour)
		}
		if s.Name == "" {
			if r, err := a.Recipes.Get(s.RecipeID); err == nil {
				s.Name = r.Data.Name + " " + s.BrewDate.Format(dateLayout)
			}
		}

		e, err := a.BrewSessions.Create(cmd.Context(), s)
		if err != nil {
			return err
		}
		fmt.Printf("Created %s (%s)\n", e.Data.Name, e.ID)
		pushWrites(cmd.Context())
		return nil
	},
}

var brewUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Record progress on a brew session (works offline)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := requireSession(); err != nil {
			return err
		}
		f := cmd.Flags()
		var p domain.BrewSessionPatch
		if f.Changed("name") {
			p.Name = &brewFlags.name
		}
		if f.Changed("status") {
			status := domain.BrewSessionStatus(brewFlags.status)
			p.Status = &status
		}
		if f.Changed("date") {
			d, err := time.Parse(dateLayout, brewFlags.date)
			if err != nil {
				return fmt.Errorf("invalid --date: %w", err)
			}
			p.BrewDate = &d
		}
		if f.Changed("mash-temp") {
			p.MashTemp = &brewFlags.mash
		}
		if f.Changed("og") {
			p.ActualOG = &brewFlags.og
		}
		if f.Changed("fg") {
			p.ActualFG = &brewFlags.fg
		}
		if f.Changed("og") || f.Changed("fg") {
			if abv := estimateABV(cmd, args[0]); abv > 0 {
				p.ActualABV = &abv
			}
		}
		if f.Changed("notes") {
			p.Notes = &brewFlags.notes
		}
		if p.IsEmpty() {
			return fmt.Errorf("nothing to update")
		}

		e, err := a.BrewSessions.Update(cmd.Context(), args[0], p)
		if err != nil {
			return err
		}
		fmt.Printf("Updated %s (%s)\n", e.Data.Name, e.ID)
		pushWrites(cmd.Context())
		return nil
	},
}

var brewNotesCmd = &cobra.Command{
	Use:   "notes <id>",
	Short: "Edit a brew session's notes in $EDITOR (works offline)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := requireSession(); err != nil {
			return err
		}
		e, err := a.BrewSessions.Get(args[0])
		if err != nil {
			return err
		}

		edited, err := adapter.NewEditor(cfg.Editor, a.Logger).Edit(cmd.Context(), e.Data.Notes, "brew-notes-*.md")
		if err != nil {
			return err
		}
		edited = strings.TrimRight(edited, "\n")
		if edited == e.Data.Notes {
			fmt.Println("Notes unchanged.")
			return nil
		}

		if _, err := a.BrewSessions.Update(cmd.Context(), e.ID, domain.BrewSessionPatch{Notes: &edited}); err != nil {
			return err
		}
		fmt.Printf("Updated notes for %s\n", e.Data.Name)
		pushWrites(cmd.Context())
		return nil
	},
}

var brewDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a brew session (works offline)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := requireSession(); err != nil {
			return err
		}
		if err := a.BrewSessions.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", args[0])
		pushWrites(cmd.Context())
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{brewCreateCmd, brewUpdateCmd} {
		f := c.Flags()
		f.StringVar(&brewFlags.name, "name", "", "session name")
		f.StringVar(&brewFlags.status, "status", string(domain.BrewStatusPlanned), "planned, in-progress, fermenting, conditioning, completed or failed")
		f.StringVar(&brewFlags.date, "date", "", "brew date (YYYY-MM-DD)")
		f.Float64Var(&brewFlags.mash, "mash-temp", 0, "mash temperature")
		f.Float64Var(&brewFlags.og, "og", 0, "measured original gravity")
		f.Float64Var(&brewFlags.fg, "fg", 0, "measured final gravity")
		f.StringVar(&brewFlags.notes, "notes", "", "notes")
	}
	brewCreateCmd.Flags().StringVar(&brewFlags.recipe, "recipe", "", "recipe id (server or local)")
	brewCreateCmd.MarkFlagRequired("recipe")

	brewCmd.AddCommand(brewListCmd, brewCreateCmd, brewUpdateCmd, brewNotesCmd, brewDeleteCmd)
	rootCmd.AddCommand(brewCmd)
}

// estimateABV combines the gravities given on the command line with the
// ones already recorded for id.
func estimateABV(cmd *cobra.Command, id string) float64 {
	og, fg := brewFlags.og, brewFlags.fg
	if e, err := a.BrewSessions.Get(id); err == nil {
		if !cmd.Flags().Changed("og") {
			og = e.Data.ActualOG
		}
		if !cmd.Flags().Changed("fg") {
			fg = e.Data.ActualFG
		}
	}
	if og <= 1 || fg <= 0 || fg >= og {
		return 0
	}
	return float64(int((og-fg)*131.25*100+0.5)) / 100
}
