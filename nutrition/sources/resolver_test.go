package sources

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"mealagent/nutrition"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	sourceType string
	candidates []nutrition.Candidate
	err        error
	calls      int
}

func (f *fakeSource) Type() string { return f.sourceType }

func (f *fakeSource) Search(ctx context.Context, name string, limit int) ([]nutrition.Candidate, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.candidates) > limit {
		return f.candidates[:limit], nil
	}
	return f.candidates, nil
}

func cand(id, sourceType string) nutrition.Candidate {
	return nutrition.Candidate{
		ID:             id,
		Name:           "Skyr",
		KcalPer100g:    63,
		ProteinPer100g: 11,
		CarbsPer100g:   4,
		FatPer100g:     0.2,
		SourceType:     sourceType,
		SourceLabel:    "test",
	}
}

func TestResolverResolve_TierOrderAndMerge(t *testing.T) {
	local := &fakeSource{sourceType: nutrition.SourceTypeLocal, candidates: []nutrition.Candidate{cand("local:1", nutrition.SourceTypeLocal)}}
	regional := &fakeSource{sourceType: nutrition.SourceTypeRegional, candidates: []nutrition.Candidate{cand("de:1", nutrition.SourceTypeRegional)}}
	web := &fakeSource{sourceType: nutrition.SourceTypeWeb, candidates: []nutrition.Candidate{cand("web:1", nutrition.SourceTypeWeb)}}

	r := NewResolver([]Source{local, regional}, web, time.Minute, time.Now)

	got, err := r.Resolve(context.Background(), "skyr", 8)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "local:1", got[0].ID)
	assert.Equal(t, "de:1", got[1].ID)
	assert.Equal(t, 0, web.calls, "fallback must not run when primaries delivered")
}

func TestResolverResolve_FallbackOnlyWhenEmpty(t *testing.T) {
	empty := &fakeSource{sourceType: nutrition.SourceTypeRegional}
	web := &fakeSource{sourceType: nutrition.SourceTypeWeb, candidates: []nutrition.Candidate{cand("web:1", nutrition.SourceTypeWeb)}}

	r := NewResolver([]Source{empty}, web, time.Minute, time.Now)

	got, err := r.Resolve(context.Background(), "skyr", 8)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "web:1", got[0].ID)
	assert.Equal(t, 1, web.calls)
}

func TestResolverResolve_SourceErrorTreatedAsEmpty(t *testing.T) {
	failing := &fakeSource{sourceType: nutrition.SourceTypeRegional, err: errors.New("timeout")}
	global := &fakeSource{sourceType: nutrition.SourceTypeGlobal, candidates: []nutrition.Candidate{cand("global:1", nutrition.SourceTypeGlobal)}}

	r := NewResolver([]Source{failing, global}, nil, time.Minute, time.Now)

	got, err := r.Resolve(context.Background(), "skyr", 8)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "global:1", got[0].ID)
}

func TestResolverResolve_DeduplicatesByID(t *testing.T) {
	a := &fakeSource{sourceType: nutrition.SourceTypeRegional, candidates: []nutrition.Candidate{cand("de:1", nutrition.SourceTypeRegional)}}
	b := &fakeSource{sourceType: nutrition.SourceTypeGlobal, candidates: []nutrition.Candidate{
		cand("de:1", nutrition.SourceTypeRegional),
		cand("global:2", nutrition.SourceTypeGlobal),
	}}

	r := NewResolver([]Source{a, b}, nil, time.Minute, time.Now)

	got, err := r.Resolve(context.Background(), "skyr", 8)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "de:1", got[0].ID)
	assert.Equal(t, "global:2", got[1].ID)
}

func TestResolverResolve_DropsNonFiniteCandidates(t *testing.T) {
	broken := cand("de:bad", nutrition.SourceTypeRegional)
	broken.KcalPer100g = math.NaN()
	src := &fakeSource{sourceType: nutrition.SourceTypeRegional, candidates: []nutrition.Candidate{
		broken,
		cand("de:good", nutrition.SourceTypeRegional),
	}}

	r := NewResolver([]Source{src}, nil, time.Minute, time.Now)

	got, err := r.Resolve(context.Background(), "skyr", 8)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "de:good", got[0].ID)
}

func TestResolverResolve_RespectsLimit(t *testing.T) {
	src := &fakeSource{sourceType: nutrition.SourceTypeRegional, candidates: []nutrition.Candidate{
		cand("de:1", nutrition.SourceTypeRegional),
		cand("de:2", nutrition.SourceTypeRegional),
		cand("de:3", nutrition.SourceTypeRegional),
	}}
	second := &fakeSource{sourceType: nutrition.SourceTypeGlobal, candidates: []nutrition.Candidate{cand("global:1", nutrition.SourceTypeGlobal)}}

	r := NewResolver([]Source{src, second}, nil, time.Minute, time.Now)

	got, err := r.Resolve(context.Background(), "skyr", 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 0, second.calls, "limit reached before the second source")
}

func TestResolverResolve_CacheExpiresByTTL(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	src := &fakeSource{sourceType: nutrition.SourceTypeRegional, candidates: []nutrition.Candidate{cand("de:1", nutrition.SourceTypeRegional)}}
	r := NewResolver([]Source{src}, nil, 5*time.Minute, clock)

	_, err := r.Resolve(context.Background(), "Skyr", 8)
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)

	// Same normalized key within TTL hits the cache.
	_, err = r.Resolve(context.Background(), "  skyr ", 8)
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)

	// Different limit is a different key.
	_, err = r.Resolve(context.Background(), "skyr", 4)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)

	now = now.Add(6 * time.Minute)
	_, err = r.Resolve(context.Background(), "skyr", 8)
	require.NoError(t, err)
	assert.Equal(t, 3, src.calls, "expired entry must re-query")
}
