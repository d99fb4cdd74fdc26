package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mmcdole/brewsync/internal/domain"
	"github.com/mmcdole/brewsync/internal/store"
)

func ingredientsKey(userID string, unit domain.UnitSystem) string {
	return store.Key(store.PrefixReference, userID, "ingredients", string(unit))
}

func stylesKey(userID string) string {
	return store.Key(store.PrefixReference, userID, "styles")
}

func (m *Manager) primeIngredients(ctx context.Context, ns domain.Namespace) error {
	items, err := m.reference.GetIngredients(ctx, ns.UnitSystem)
	if err != nil {
		return err
	}
	if !m.isCurrent(ns) {
		return domain.ErrNoSession
	}
	return m.putJSON(ingredientsKey(ns.UserID, ns.UnitSystem), items)
}

func (m *Manager) primeStyles(ctx context.Context, ns domain.Namespace) error {
	styles, err := m.reference.GetBeerStyles(ctx)
	if err != nil {
		return err
	}
	if !m.isCurrent(ns) {
		return domain.ErrNoSession
	}
	return m.putJSON(stylesKey(ns.UserID), styles)
}

// Ingredients returns the cached ingredient catalog for the active user's
// unit system.
func (m *Manager) Ingredients() ([]domain.Ingredient, error) {
	ns, err := m.Current()
	if err != nil {
		return nil, err
	}
	var items []domain.Ingredient
	if err := m.getJSON(ingredientsKey(ns.UserID, ns.UnitSystem), &items); err != nil {
		return nil, err
	}
	return items, nil
}

// BeerStyles returns the cached style guidelines.
func (m *Manager) BeerStyles() ([]domain.BeerStyle, error) {
	ns, err := m.Current()
	if err != nil {
		return nil, err
	}
	var styles []domain.BeerStyle
	if err := m.getJSON(stylesKey(ns.UserID), &styles); err != nil {
		return nil, err
	}
	return styles, nil
}

func (m *Manager) putJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return m.kv.Set(key, string(data))
}

// getJSON leaves v untouched when key is missing or unreadable.
func (m *Manager) getJSON(key string, v any) error {
	raw, ok, err := m.kv.Get(key)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}
	if !ok {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		m.logger.Error("corrupt reference data, ignoring", "key", key, "error", err)
	}
	return nil
}
