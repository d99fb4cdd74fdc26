package domain

import (
	"fmt"
	"strings"
	"time"
)

// BrewSessionStatus is the lifecycle stage of a brew day.
type BrewSessionStatus string

const (
	BrewStatusPlanned      BrewSessionStatus = "planned"
	BrewStatusInProgress   BrewSessionStatus = "in-progress"
	BrewStatusFermenting   BrewSessionStatus = "fermenting"
	BrewStatusConditioning BrewSessionStatus = "conditioning"
	BrewStatusCompleted    BrewSessionStatus = "completed"
	BrewStatusFailed       BrewSessionStatus = "failed"
)

func (s BrewSessionStatus) Valid() bool {
	switch s {
	case BrewStatusPlanned, BrewStatusInProgress, BrewStatusFermenting,
		BrewStatusConditioning, BrewStatusCompleted, BrewStatusFailed:
		return true
	}
	return false
}

// BrewSession records one brew of a recipe.
type BrewSession struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id,omitempty"`
	RecipeID  string            `json:"recipe_id"`
	Name      string            `json:"name"`
	Status    BrewSessionStatus `json:"status"`
	BrewDate  time.Time         `json:"brew_date"`
	MashTemp  float64           `json:"mash_temp,omitempty"`
	ActualOG  float64           `json:"actual_og,omitempty"`
	ActualFG  float64           `json:"actual_fg,omitempty"`
	ActualABV float64           `json:"actual_abv,omitempty"`
	Notes     string            `json:"notes,omitempty"`
	Version   int               `json:"version,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func (s BrewSession) EntityType() EntityType { return EntityBrewSession }
func (s BrewSession) RecordID() string       { return s.ID }

func (s BrewSession) WithID(id string) BrewSession {
	s.ID = id
	return s
}

func (s BrewSession) WithReference(from, to string) BrewSession {
	if s.RecipeID == from {
		s.RecipeID = to
	}
	return s
}

func (s BrewSession) References() []string {
	if s.RecipeID == "" {
		return nil
	}
	return []string{s.RecipeID}
}

func (s BrewSession) Validate() error {
	if strings.TrimSpace(s.RecipeID) == "" {
		return fmt.Errorf("%w: brew session requires a recipe", ErrValidation)
	}
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: brew session name is required", ErrValidation)
	}
	if s.Status != "" && !s.Status.Valid() {
		return fmt.Errorf("%w: unknown brew session status %q", ErrValidation, s.Status)
	}
	return nil
}

// BrewSessionPatch updates only the non-nil fields. The recipe link is
// fixed at creation.
type BrewSessionPatch struct {
	Name      *string            `json:"name,omitempty"`
	Status    *BrewSessionStatus `json:"status,omitempty"`
	BrewDate  *time.Time         `json:"brew_date,omitempty"`
	MashTemp  *float64           `json:"mash_temp,omitempty"`
	ActualOG  *float64           `json:"actual_og,omitempty"`
	ActualFG  *float64           `json:"actual_fg,omitempty"`
	ActualABV *float64           `json:"actual_abv,omitempty"`
	Notes     *string            `json:"notes,omitempty"`
}

func (p BrewSessionPatch) Apply(s BrewSession) BrewSession {
	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.BrewDate != nil {
		s.BrewDate = *p.BrewDate
	}
	if p.MashTemp != nil {
		s.MashTemp = *p.MashTemp
	}
	if p.ActualOG != nil {
		s.ActualOG = *p.ActualOG
	}
	if p.ActualFG != nil {
		s.ActualFG = *p.ActualFG
	}
	if p.ActualABV != nil {
		s.ActualABV = *p.ActualABV
	}
	if p.Notes != nil {
		s.Notes = *p.Notes
	}
	return s
}

func (p BrewSessionPatch) IsEmpty() bool {
	return p == BrewSessionPatch{}
}
