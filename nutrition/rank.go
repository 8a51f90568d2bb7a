package nutrition

import (
	"regexp"
	"sort"
	"strings"
)

// RankedCandidate pairs a candidate with its relevance score for a query.
type RankedCandidate struct {
	Candidate Candidate `json:"candidate"`
	Score     float64   `json:"score"`
	Rationale string    `json:"rationale,omitempty"`
}

var tokenSplitRe = regexp.MustCompile(`[^a-z0-9]+`)

// Tokenize lowercases, splits on non-alphanumeric runs, and drops tokens of
// length <= 1.
func Tokenize(s string) []string {
	var out []string
	for _, t := range tokenSplitRe.Split(strings.ToLower(s), -1) {
		if len(t) > 1 {
			out = append(out, t)
		}
	}
	return out
}

// TokenSet returns the tokens of s as a set.
func TokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range Tokenize(s) {
		set[t] = true
	}
	return set
}

// OverlapScore is the fraction of query tokens present in the target's token
// set.
func OverlapScore(queryTokens []string, target map[string]bool) float64 {
	if len(queryTokens) == 0 {
		return 0
	}
	hits := 0
	for _, t := range queryTokens {
		if target[t] {
			hits++
		}
	}
	return float64(hits) / float64(len(queryTokens))
}

// sourceBonus nudges the score by source reliability. Local catalog entries
// count like the geographically scoped source.
var sourceBonus = map[string]float64{
	SourceTypeLocal:    0.12,
	SourceTypeRegional: 0.12,
	SourceTypeGlobal:   0.08,
	SourceTypeWeb:      0.04,
}

// RankCandidates scores candidates against the query name by token overlap
// plus a per-source bonus, clamped to [0,1] and rounded to one decimal.
// Sort is stable: ties keep resolver order.
func RankCandidates(query string, candidates []Candidate) []RankedCandidate {
	queryTokens := Tokenize(query)

	ranked := make([]RankedCandidate, 0, len(candidates))
	if len(queryTokens) == 0 {
		// No usable tokens to match on; hand candidates back unranked.
		for _, c := range candidates {
			ranked = append(ranked, RankedCandidate{
				Candidate: c,
				Score:     0.5,
				Rationale: "no strong tokens in query; candidates unranked",
			})
		}
		return ranked
	}

	for _, c := range candidates {
		target := TokenSet(c.Name + " " + c.Brand)
		score := OverlapScore(queryTokens, target) + sourceBonus[c.SourceType]
		if score > 1 {
			score = 1
		}
		if score < 0 {
			score = 0
		}
		ranked = append(ranked, RankedCandidate{Candidate: c, Score: Round1(score)})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}
