package domain

import "context"

// EntityAPI is the remote CRUD surface for one entity type.
// Implemented by the HTTP client; the sync engine and hooks consume it.
type EntityAPI[T any, P any] interface {
	List(ctx context.Context) ([]T, error)
	Create(ctx context.Context, record T) (T, error)
	Update(ctx context.Context, id string, patch P) (T, error)
	Delete(ctx context.Context, id string) error
}

// ReferenceAPI serves static data primed during hydration.
type ReferenceAPI interface {
	GetIngredients(ctx context.Context, unitSystem UnitSystem) ([]Ingredient, error)
	GetBeerStyles(ctx context.Context) ([]BeerStyle, error)
}

// AuthResult contains the result of a successful login
type AuthResult struct {
	Token    string `json:"token"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// AuthAPI exchanges credentials for a session token.
type AuthAPI interface {
	Login(ctx context.Context, username, password string) (*AuthResult, error)
}
