package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/mmcdole/brewsync/internal/domain"
)

var ingredientType string

var ingredientsCmd = &cobra.Command{
	Use:   "ingredients",
	Short: "Show the cached ingredient catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := requireSession(); err != nil {
			return err
		}
		items, err := a.Sessions.Ingredients()
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println("No ingredients cached, run 'brewsync refresh' while online.")
			return nil
		}

		t := table.New().Headers("NAME", "TYPE", "UNIT")
		for _, ing := range items {
			if ingredientType != "" && !strings.EqualFold(string(ing.Type), ingredientType) {
				continue
			}
			t.Row(ing.Name, string(ing.Type), ing.DefaultUnit)
		}
		fmt.Println(t.Render())
		return nil
	},
}

var stylesCmd = &cobra.Command{
	Use:   "styles",
	Short: "Show the cached beer style guidelines",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := requireSession(); err != nil {
			return err
		}
		items, err := a.Sessions.BeerStyles()
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println("No styles cached, run 'brewsync refresh' while online.")
			return nil
		}

		t := table.New().Headers("NAME", "CATEGORY", "OG", "IBU", "ABV")
		for _, s := range items {
			t.Row(s.Name, s.Category, fmtRange(s.OG, 3), fmtRange(s.IBU, 0), fmtRange(s.ABV, 1))
		}
		fmt.Println(t.Render())
		return nil
	},
}

func fmtRange(r domain.Range, prec int) string {
	if r.Min == 0 && r.Max == 0 {
		return "-"
	}
	return strconv.FormatFloat(r.Min, 'f', prec, 64) + "-" + strconv.FormatFloat(r.Max, 'f', prec, 64)
}

func init() {
	ingredientsCmd.Flags().StringVarP(&ingredientType, "type", "t", "", "only show one type (grain, hop, yeast, other)")
	rootCmd.AddCommand(ingredientsCmd, stylesCmd)
}
