package sources

import (
	"context"
	"errors"
	"testing"

	"mealagent/nutrition"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalogQuerier struct {
	candidates []nutrition.Candidate
	err        error
	name       string
	limit      int
}

func (f *fakeCatalogQuerier) SearchProducts(ctx context.Context, name string, limit int) ([]nutrition.Candidate, error) {
	f.name = name
	f.limit = limit
	return f.candidates, f.err
}

func TestCatalogSource(t *testing.T) {
	q := &fakeCatalogQuerier{candidates: []nutrition.Candidate{
		{ID: "local:p1", Name: "Skyr", KcalPer100g: 63, SourceType: nutrition.SourceTypeLocal},
	}}
	src := NewCatalogSource(q)

	assert.Equal(t, nutrition.SourceTypeLocal, src.Type())

	got, err := src.Search(context.Background(), "skyr", 8)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "local:p1", got[0].ID)
	assert.Equal(t, "skyr", q.name)
	assert.Equal(t, 8, q.limit)
}

func TestCatalogSource_PropagatesError(t *testing.T) {
	q := &fakeCatalogQuerier{err: errors.New("db closed")}
	src := NewCatalogSource(q)

	_, err := src.Search(context.Background(), "skyr", 8)
	require.Error(t, err)
}
