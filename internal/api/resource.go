package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/mmcdole/brewsync/internal/domain"
)

// Resource is the CRUD endpoint set for one entity type.
type Resource[T domain.Record[T], P domain.Patch[T]] struct {
	client *Client
	path   string
}

// Recipes returns the recipe endpoints.
func (c *Client) Recipes() *Resource[domain.Recipe, domain.RecipePatch] {
	return &Resource[domain.Recipe, domain.RecipePatch]{client: c, path: "/recipes"}
}

// BrewSessions returns the brew session endpoints.
func (c *Client) BrewSessions() *Resource[domain.BrewSession, domain.BrewSessionPatch] {
	return &Resource[domain.BrewSession, domain.BrewSessionPatch]{client: c, path: "/brew-sessions"}
}

func (r *Resource[T, P]) itemPath(id string) string {
	return r.path + "/" + url.PathEscape(id)
}

func (r *Resource[T, P]) List(ctx context.Context) ([]T, error) {
	var records []T
	if err := r.client.getJSON(ctx, r.path, nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *Resource[T, P]) Create(ctx context.Context, record T) (T, error) {
	return r.write(ctx, http.MethodPost, r.path, record)
}

func (r *Resource[T, P]) Update(ctx context.Context, id string, patch P) (T, error) {
	return r.write(ctx, http.MethodPut, r.itemPath(id), patch)
}

func (r *Resource[T, P]) Delete(ctx context.Context, id string) error {
	_, err := r.client.doRequest(ctx, http.MethodDelete, r.itemPath(id), nil, nil)
	return err
}

func (r *Resource[T, P]) write(ctx context.Context, method, path string, in any) (T, error) {
	var out T
	body, err := r.client.doRequest(ctx, method, path, nil, in)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("failed to parse response: %w", err)
	}
	return out, nil
}
