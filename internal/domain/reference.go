package domain

// IngredientType groups catalog ingredients.
type IngredientType string

const (
	IngredientGrain IngredientType = "grain"
	IngredientHop   IngredientType = "hop"
	IngredientYeast IngredientType = "yeast"
	IngredientOther IngredientType = "other"
)

// Ingredient is an entry in the server's ingredient catalog.
type Ingredient struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Type        IngredientType `json:"type"`
	Color       float64        `json:"color,omitempty"`       // Lovibond (grains)
	Potential   float64        `json:"potential,omitempty"`   // gravity points (grains)
	AlphaAcid   float64        `json:"alpha_acid,omitempty"`  // percent (hops)
	Attenuation float64        `json:"attenuation,omitempty"` // percent (yeast)
	DefaultUnit string         `json:"default_unit,omitempty"`
}

// Range is an inclusive min/max style guideline.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// BeerStyle is a style guideline used to classify recipes.
type BeerStyle struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	OG       Range  `json:"og"`
	FG       Range  `json:"fg"`
	IBU      Range  `json:"ibu"`
	SRM      Range  `json:"srm"`
	ABV      Range  `json:"abv"`
}
