package apiserver

import (
	"net/http"

	"github.com/mmcdole/brewsync/internal/domain"
)

var imperialIngredients = []domain.Ingredient{
	{ID: "ing-2row", Name: "2-Row Pale Malt", Type: domain.IngredientGrain, Color: 1.8, Potential: 37, DefaultUnit: "lb"},
	{ID: "ing-crystal60", Name: "Crystal 60L", Type: domain.IngredientGrain, Color: 60, Potential: 34, DefaultUnit: "lb"},
	{ID: "ing-cascade", Name: "Cascade", Type: domain.IngredientHop, AlphaAcid: 5.5, DefaultUnit: "oz"},
	{ID: "ing-citra", Name: "Citra", Type: domain.IngredientHop, AlphaAcid: 12, DefaultUnit: "oz"},
	{ID: "ing-us05", Name: "US-05", Type: domain.IngredientYeast, Attenuation: 78, DefaultUnit: "pkg"},
	{ID: "ing-irishmoss", Name: "Irish Moss", Type: domain.IngredientOther, DefaultUnit: "tsp"},
}

var metricIngredients = []domain.Ingredient{
	{ID: "ing-2row", Name: "2-Row Pale Malt", Type: domain.IngredientGrain, Color: 1.8, Potential: 37, DefaultUnit: "kg"},
	{ID: "ing-crystal60", Name: "Crystal 60L", Type: domain.IngredientGrain, Color: 60, Potential: 34, DefaultUnit: "kg"},
	{ID: "ing-cascade", Name: "Cascade", Type: domain.IngredientHop, AlphaAcid: 5.5, DefaultUnit: "g"},
	{ID: "ing-citra", Name: "Citra", Type: domain.IngredientHop, AlphaAcid: 12, DefaultUnit: "g"},
	{ID: "ing-us05", Name: "US-05", Type: domain.IngredientYeast, Attenuation: 78, DefaultUnit: "pkg"},
	{ID: "ing-irishmoss", Name: "Irish Moss", Type: domain.IngredientOther, DefaultUnit: "g"},
}

var beerStyles = []domain.BeerStyle{
	{
		ID: "21A", Name: "American IPA", Category: "IPA",
		OG: domain.Range{Min: 1.056, Max: 1.070}, FG: domain.Range{Min: 1.008, Max: 1.014},
		IBU: domain.Range{Min: 40, Max: 70}, SRM: domain.Range{Min: 6, Max: 14}, ABV: domain.Range{Min: 5.5, Max: 7.5},
	},
	{
		ID: "18B", Name: "American Pale Ale", Category: "Pale American Ale",
		OG: domain.Range{Min: 1.045, Max: 1.060}, FG: domain.Range{Min: 1.010, Max: 1.015},
		IBU: domain.Range{Min: 30, Max: 50}, SRM: domain.Range{Min: 5, Max: 10}, ABV: domain.Range{Min: 4.5, Max: 6.2},
	},
	{
		ID: "20C", Name: "Imperial Stout", Category: "American Porter and Stout",
		OG: domain.Range{Min: 1.075, Max: 1.115}, FG: domain.Range{Min: 1.018, Max: 1.030},
		IBU: domain.Range{Min: 50, Max: 90}, SRM: domain.Range{Min: 30, Max: 40}, ABV: domain.Range{Min: 8, Max: 12},
	},
	{
		ID: "25B", Name: "Saison", Category: "Strong Belgian Ale",
		OG: domain.Range{Min: 1.048, Max: 1.065}, FG: domain.Range{Min: 1.002, Max: 1.008},
		IBU: domain.Range{Min: 20, Max: 35}, SRM: domain.Range{Min: 5, Max: 14}, ABV: domain.Range{Min: 3.5, Max: 9.5},
	},
}

func (s *Server) handleIngredients(w http.ResponseWriter, r *http.Request) {
	switch domain.UnitSystem(r.URL.Query().Get("unit_system")) {
	case domain.UnitSystemMetric:
		writeJSON(w, http.StatusOK, metricIngredients)
	case domain.UnitSystemImperial, "":
		writeJSON(w, http.StatusOK, imperialIngredients)
	default:
		writeError(w, http.StatusBadRequest, "unknown unit_system")
	}
}

func (s *Server) handleStyles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, beerStyles)
}
