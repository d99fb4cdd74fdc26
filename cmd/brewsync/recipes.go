package main

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/mmcdole/brewsync/internal/domain"
	"github.com/mmcdole/brewsync/internal/search"
	"github.com/mmcdole/brewsync/internal/tui/styles"
)

var recipeFlags struct {
	name        string
	style       string
	description string
	batchSize   float64
	batchUnit   string
	boilTime    int
	efficiency  float64
	public      bool
	search      string
}

var recipesCmd = &cobra.Command{
	Use:     "recipes",
	Aliases: []string{"recipe", "r"},
	Short:   "List and edit recipes",
}

var recipesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recipes from the local cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := requireSession(); err != nil {
			return err
		}
		items := a.Recipes.Items()
		if recipeFlags.search != "" {
			results := search.Recipes(recipeFlags.search, items)
			items = items[:0:0]
			for _, r := range results {
				items = append(items, r.Recipe)
			}
		}
		if len(items) == 0 {
			fmt.Println("No recipes.")
			return nil
		}

		t := table.New().Headers("", "ID", "NAME", "STYLE", "BATCH")
		for _, e := range items {
			t.Row(
				styles.RenderSyncStatus(e.SyncStatus),
				e.ID,
				e.Data.Name,
				e.Data.Style,
				fmt.Sprintf("%s %s", strconv.FormatFloat(e.Data.BatchSize, 'f', -1, 64), e.Data.BatchSizeUnit),
			)
		}
		fmt.Println(t.Render())
		return nil
	},
}

var recipesCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a recipe (works offline)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ns, err := requireSession()
		if err != nil {
			return err
		}
		r := domain.Recipe{
			Name:          recipeFlags.name,
			Style:         recipeFlags.style,
			Description:   recipeFlags.description,
			BatchSize:     recipeFlags.batchSize,
			BatchSizeUnit: recipeFlags.batchUnit,
			UnitSystem:    ns.UnitSystem,
			BoilTime:      recipeFlags.boilTime,
			Efficiency:    recipeFlags.efficiency,
			IsPublic:      recipeFlags.public,
		}
		if r.BatchSizeUnit == "" {
			r.BatchSizeUnit = defaultBatchUnit(ns.UnitSystem)
		}

		e, err := a.Recipes.Create(cmd.Context(), r)
		if err != nil {
			return err
		}
		fmt.Printf("Created %s (%s)\n", e.Data.Name, e.ID)
		pushWrites(cmd.Context())
		return nil
	},
}

var recipesUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Change fields of a recipe (works offline)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := requireSession(); err != nil {
			return err
		}
		f := cmd.Flags()
		var p domain.RecipePatch
		if f.Changed("name") {
			p.Name = &recipeFlags.name
		}
		if f.Changed("style") {
			p.Style = &recipeFlags.style
		}
		if f.Changed("description") {
			p.Description = &recipeFlags.description
		}
		if f.Changed("batch-size") {
			p.BatchSize = &recipeFlags.batchSize
		}
		if f.Changed("batch-unit") {
			p.BatchSizeUnit = &recipeFlags.batchUnit
		}
		if f.Changed("boil-time") {
			p.BoilTime = &recipeFlags.boilTime
		}
		if f.Changed("efficiency") {
			p.Efficiency = &recipeFlags.efficiency
		}
		if f.Changed("public") {
			p.IsPublic = &recipeFlags.public
		}
		if p.IsEmpty() {
			return fmt.Errorf("nothing to update")
		}

		e, err := a.Recipes.Update(cmd.Context(), args[0], p)
		if err != nil {
			return err
		}
		fmt.Printf("Updated %s (%s)\n", e.Data.Name, e.ID)
		pushWrites(cmd.Context())
		return nil
	},
}

var recipesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a recipe (works offline)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := requireSession(); err != nil {
			return err
		}
		if err := a.Recipes.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", args[0])
		pushWrites(cmd.Context())
		return nil
	},
}

func init() {
	recipesListCmd.Flags().StringVarP(&recipeFlags.search, "search", "s", "", "fuzzy match name or style")

	for _, c := range []*cobra.Command{recipesCreateCmd, recipesUpdateCmd} {
		f := c.Flags()
		f.StringVar(&recipeFlags.name, "name", "", "recipe name")
		f.StringVar(&recipeFlags.style, "style", "", "beer style")
		f.StringVar(&recipeFlags.description, "description", "", "description")
		f.Float64Var(&recipeFlags.batchSize, "batch-size", 0, "batch size")
		f.StringVar(&recipeFlags.batchUnit, "batch-unit", "", "batch size unit (gal, L)")
		f.IntVar(&recipeFlags.boilTime, "boil-time", 60, "boil time in minutes")
		f.Float64Var(&recipeFlags.efficiency, "efficiency", 72, "brewhouse efficiency percent")
		f.BoolVar(&recipeFlags.public, "public", false, "share publicly")
	}
	recipesCreateCmd.MarkFlagRequired("name")
	recipesCreateCmd.MarkFlagRequired("batch-size")

	recipesCmd.AddCommand(recipesListCmd, recipesCreateCmd, recipesUpdateCmd, recipesDeleteCmd)
	rootCmd.AddCommand(recipesCmd)
}

func defaultBatchUnit(u domain.UnitSystem) string {
	if u == domain.UnitSystemMetric {
		return "L"
	}
	return "gal"
}
