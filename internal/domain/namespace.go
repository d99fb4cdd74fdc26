package domain

import "context"

// Namespace is the active user's scope. Every logout or login produces a new
// Generation and cancels the previous namespace's context, so work started
// under an old namespace can detect that it must discard its results.
type Namespace struct {
	UserID     string
	Username   string
	UnitSystem UnitSystem
	Generation uint64

	ctx context.Context
}

// NewNamespace binds a namespace to ctx.
func NewNamespace(ctx context.Context, userID, username string, unitSystem UnitSystem, generation uint64) Namespace {
	return Namespace{
		UserID:     userID,
		Username:   username,
		UnitSystem: unitSystem,
		Generation: generation,
		ctx:        ctx,
	}
}

// Context is canceled when the namespace is torn down.
func (n Namespace) Context() context.Context {
	if n.ctx == nil {
		return context.Background()
	}
	return n.ctx
}

// NamespaceSource reports the active namespace.
type NamespaceSource interface {
	// Current returns ErrNoSession when nobody is logged in.
	Current() (Namespace, error)
}
