package domain

import (
	"fmt"
	"strings"
	"time"
)

// UnitSystem selects metric or imperial units for batch sizes and reference data.
type UnitSystem string

const (
	UnitSystemImperial UnitSystem = "imperial"
	UnitSystemMetric   UnitSystem = "metric"
)

// Valid reports whether u is a known unit system.
func (u UnitSystem) Valid() bool {
	return u == UnitSystemImperial || u == UnitSystemMetric
}

// RecipeIngredient is a single line of a recipe's grain bill, hop schedule, etc.
type RecipeIngredient struct {
	IngredientID string  `json:"ingredient_id,omitempty"`
	Name         string  `json:"name"`
	Type         string  `json:"type"` // grain, hop, yeast, other
	Amount       float64 `json:"amount"`
	Unit         string  `json:"unit"`
	Use          string  `json:"use,omitempty"`  // mash, boil, dry-hop, ...
	Time         int     `json:"time,omitempty"` // minutes
}

// Recipe is a homebrew recipe as returned by the API.
type Recipe struct {
	ID            string             `json:"id"`
	UserID        string             `json:"user_id,omitempty"`
	Name          string             `json:"name"`
	Style         string             `json:"style,omitempty"`
	Description   string             `json:"description,omitempty"`
	BatchSize     float64            `json:"batch_size"`
	BatchSizeUnit string             `json:"batch_size_unit,omitempty"`
	UnitSystem    UnitSystem         `json:"unit_system,omitempty"`
	BoilTime      int                `json:"boil_time,omitempty"`
	Efficiency    float64            `json:"efficiency,omitempty"`
	Ingredients   []RecipeIngredient `json:"ingredients,omitempty"`
	EstimatedOG   float64            `json:"estimated_og,omitempty"`
	EstimatedFG   float64            `json:"estimated_fg,omitempty"`
	EstimatedABV  float64            `json:"estimated_abv,omitempty"`
	EstimatedIBU  float64            `json:"estimated_ibu,omitempty"`
	EstimatedSRM  float64            `json:"estimated_srm,omitempty"`
	IsPublic      bool               `json:"is_public"`
	Version       int                `json:"version,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

func (r Recipe) EntityType() EntityType { return EntityRecipe }
func (r Recipe) RecordID() string       { return r.ID }
func (r Recipe) References() []string   { return nil }

func (r Recipe) WithID(id string) Recipe {
	r.ID = id
	return r
}

func (r Recipe) WithReference(from, to string) Recipe {
	return r
}

// Validate checks the fields the API rejects.
func (r Recipe) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: recipe name is required", ErrValidation)
	}
	if r.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive", ErrValidation)
	}
	if r.Efficiency < 0 || r.Efficiency > 100 {
		return fmt.Errorf("%w: efficiency must be between 0 and 100", ErrValidation)
	}
	if r.UnitSystem != "" && !r.UnitSystem.Valid() {
		return fmt.Errorf("%w: unknown unit system %q", ErrValidation, r.UnitSystem)
	}
	return nil
}

// RecipePatch updates only the non-nil fields.
type RecipePatch struct {
	Name          *string             `json:"name,omitempty"`
	Style         *string             `json:"style,omitempty"`
	Description   *string             `json:"description,omitempty"`
	BatchSize     *float64            `json:"batch_size,omitempty"`
	BatchSizeUnit *string             `json:"batch_size_unit,omitempty"`
	BoilTime      *int                `json:"boil_time,omitempty"`
	Efficiency    *float64            `json:"efficiency,omitempty"`
	Ingredients   *[]RecipeIngredient `json:"ingredients,omitempty"`
	IsPublic      *bool               `json:"is_public,omitempty"`
}

// Apply returns r with the patch's fields overlaid.
func (p RecipePatch) Apply(r Recipe) Recipe {
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.Style != nil {
		r.Style = *p.Style
	}
	if p.Description != nil {
		r.Description = *p.Description
	}
	if p.BatchSize != nil {
		r.BatchSize = *p.BatchSize
	}
	if p.BatchSizeUnit != nil {
		r.BatchSizeUnit = *p.BatchSizeUnit
	}
	if p.BoilTime != nil {
		r.BoilTime = *p.BoilTime
	}
	if p.Efficiency != nil {
		r.Efficiency = *p.Efficiency
	}
	if p.Ingredients != nil {
		r.Ingredients = append([]RecipeIngredient(nil), (*p.Ingredients)...)
	}
	if p.IsPublic != nil {
		r.IsPublic = *p.IsPublic
	}
	return r
}

func (p RecipePatch) IsEmpty() bool {
	return p == RecipePatch{}
}
