// Package sources implements the nutrition candidate resolver and its source
// clients: the local product catalog, Open Food Facts (regional and global),
// and a web-search-derived fallback.
package sources

import (
	"context"

	"mealagent/nutrition"
)

// Source returns candidate nutrition profiles for a free-text food name.
// Implementations treat upstream unavailability as an error; the resolver
// downgrades errors to empty result sets.
type Source interface {
	Type() string
	Search(ctx context.Context, name string, limit int) ([]nutrition.Candidate, error)
}
