package sources

import (
	"context"

	"mealagent/nutrition"
)

// CatalogQuerier is the slice of the persistent store the catalog source
// needs: token matching over the local product reference table.
type CatalogQuerier interface {
	SearchProducts(ctx context.Context, name string, limit int) ([]nutrition.Candidate, error)
}

// CatalogSource serves candidates from the store's product reference table.
// The table-backed sibling of LocalSource for deployments with a database.
type CatalogSource struct {
	q CatalogQuerier
}

func NewCatalogSource(q CatalogQuerier) *CatalogSource {
	return &CatalogSource{q: q}
}

func (s *CatalogSource) Type() string { return nutrition.SourceTypeLocal }

func (s *CatalogSource) Search(ctx context.Context, name string, limit int) ([]nutrition.Candidate, error) {
	return s.q.SearchProducts(ctx, name, limit)
}
