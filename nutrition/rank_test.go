package nutrition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"skyr", "natur"}, Tokenize("Skyr, Natur!"))
	assert.Equal(t, []string{"100g", "rice"}, Tokenize("100g rice"))
	assert.Nil(t, Tokenize("a I ."), "single-character tokens are dropped")
}

func TestOverlapScore(t *testing.T) {
	target := TokenSet("chicken breast fillet")

	assert.InDelta(t, 1.0, OverlapScore([]string{"chicken", "breast"}, target), 0.001)
	assert.InDelta(t, 0.5, OverlapScore([]string{"chicken", "curry"}, target), 0.001)
	assert.InDelta(t, 0.0, OverlapScore([]string{"tofu"}, target), 0.001)
	assert.InDelta(t, 0.0, OverlapScore(nil, target), 0.001)
}

func TestRankCandidates(t *testing.T) {
	candidates := []Candidate{
		{ID: "global:1", Name: "Chicken Breast", SourceType: SourceTypeGlobal},
		{ID: "de:1", Name: "Chicken Breast", SourceType: SourceTypeRegional},
		{ID: "web:1", Name: "Chicken Soup", SourceType: SourceTypeWeb},
	}

	ranked := RankCandidates("chicken breast strips", candidates)
	require.Len(t, ranked, 3)

	// Same overlap for both breast candidates; the regional bonus decides.
	assert.Equal(t, "de:1", ranked[0].Candidate.ID)
	assert.InDelta(t, 0.8, ranked[0].Score, 0.001) // 2/3 overlap + 0.12, rounded
	assert.Equal(t, "global:1", ranked[1].Candidate.ID)
	assert.InDelta(t, 0.7, ranked[1].Score, 0.001)
	assert.Equal(t, "web:1", ranked[2].Candidate.ID)
	assert.InDelta(t, 0.4, ranked[2].Score, 0.001) // 1/3 overlap + 0.04, rounded
}

func TestRankCandidates_StableOnTies(t *testing.T) {
	candidates := []Candidate{
		{ID: "a", Name: "Oat Milk", SourceType: SourceTypeGlobal},
		{ID: "b", Name: "Oat Milk", SourceType: SourceTypeGlobal},
	}

	ranked := RankCandidates("oat milk", candidates)
	require.Len(t, ranked, 2)
	assert.Equal(t, "a", ranked[0].Candidate.ID)
	assert.Equal(t, "b", ranked[1].Candidate.ID)
}

func TestRankCandidates_NoQueryTokens(t *testing.T) {
	ranked := RankCandidates("?!", []Candidate{{ID: "x", Name: "Anything"}})
	require.Len(t, ranked, 1)
	assert.InDelta(t, 0.5, ranked[0].Score, 0.001)
	assert.Equal(t, "no strong tokens in query; candidates unranked", ranked[0].Rationale)
}
