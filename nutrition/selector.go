package nutrition

import (
	"context"
	"log/slog"

	"mealagent"
)

const (
	assumptionDefaultGrams = "No grams provided; lookup assumed 100g"
	assumptionNoCandidate  = "No reliable candidate found"

	confidenceUserProvided = 0.95
	confidenceIntrinsic    = 0.55
	confidenceUnresolved   = 0.25

	defaultCandidateLimit = 8

	// eggCarbCap guards against egg lookups matching pastries and similar
	// carb-heavy products. Empirical cutoff, kept tunable.
	eggCarbCap = 10.0
)

// CandidateResolver returns ranked/scored nutrition candidates for a food
// name. Implemented by sources.Resolver; failures upstream surface as empty
// result sets, not errors the selector must care about.
type CandidateResolver interface {
	Resolve(ctx context.Context, name string, limit int) ([]Candidate, error)
}

// Nomination is a reasoning step's pick among ranked candidates.
type Nomination struct {
	CandidateID string `json:"candidate_id"`
	Rationale   string `json:"rationale,omitempty"`
}

// Advisor optionally nominates a candidate for an item, typically backed by a
// language model. A nil Advisor or a failing call just means the top-ranked
// plausible candidate wins.
type Advisor interface {
	Nominate(ctx context.Context, itemName string, ranked []RankedCandidate) (Nomination, error)
}

// Selector picks the best nutrition values for a single item mention.
type Selector struct {
	resolver CandidateResolver
	advisor  Advisor
	limit    int
}

// NewSelector creates a selector. advisor may be nil. A limit below the
// required minimum is raised to it.
func NewSelector(resolver CandidateResolver, advisor Advisor, limit int) *Selector {
	if limit < defaultCandidateLimit {
		limit = defaultCandidateLimit
	}
	return &Selector{resolver: resolver, advisor: advisor, limit: limit}
}

// Resolve turns one mention into a ResolvedItem. It never returns an error:
// every failure mode degrades to a lower-confidence result, and the terminal
// low-confidence result is the orchestrator's cue to ask for clarification.
func (s *Selector) Resolve(ctx context.Context, m mealagent.MealItemMention) ResolvedItem {
	item := ResolvedItem{
		Name:    m.Name,
		Display: m.Display,
	}
	if item.Display == "" {
		item.Display = m.Name
	}

	grams, assumptions := NormalizeQuantity(m)
	item.AmountGrams = grams
	item.Assumptions = append(item.Assumptions, assumptions...)

	// User-supplied values win per field; with all four present there is
	// nothing left to look up.
	if m.Kcal != nil && m.Protein != nil && m.Carbs != nil && m.Fat != nil {
		item.Kcal, item.Protein, item.Carbs, item.Fat = m.Kcal, m.Protein, m.Carbs, m.Fat
		item.Source = SourceUser
		item.Confidence = confidenceUserProvided
		item.Provenance = Provenance{SourceType: SourceUser, Label: "User-provided nutrition"}
		return item
	}

	candidates, err := s.resolver.Resolve(ctx, m.Name, s.limit)
	if err != nil {
		slog.Warn("SELECTOR: Candidate resolution failed; treating as empty", "item", m.Name, "error", err)
		candidates = nil
	}

	chosen, rationale, ok := s.choose(ctx, m.Name, candidates)
	if ok {
		item.Source = SourceLookup
		item.Confidence = lookupConfidence(m.Name, chosen)
		s.applyCandidate(&item, m, chosen, rationale)
	} else if est, found := IntrinsicEstimate(m.Name); found {
		item.Source = SourceEstimated
		item.Confidence = confidenceIntrinsic
		item.Assumptions = append(item.Assumptions, "Estimated from built-in values for "+est.Name)
		s.applyCandidate(&item, m, est, "built-in estimate for a common food")
	} else {
		// Terminal low-confidence result; not an error. The orchestrator
		// treats this as "ask for clarification" unless user-stated values
		// below rescue the item.
		item.Source = SourceEstimated
		item.Confidence = confidenceUnresolved
		item.Assumptions = append(item.Assumptions, assumptionNoCandidate)
		item.Provenance = Provenance{SourceType: SourceEstimated, Label: "Unresolved"}
	}

	applyUserOverrides(&item, m)
	return item
}

// applyUserOverrides merges user-stated fields over whatever the lookup,
// estimate, or terminal branch produced. User values win per field on every
// branch, never the reverse.
func applyUserOverrides(item *ResolvedItem, m mealagent.MealItemMention) {
	if !m.HasUserNutrition() {
		return
	}
	hadValues := item.Kcal != nil || item.Protein != nil || item.Carbs != nil || item.Fat != nil
	if m.Kcal != nil {
		item.Kcal = m.Kcal
	}
	if m.Protein != nil {
		item.Protein = m.Protein
	}
	if m.Carbs != nil {
		item.Carbs = m.Carbs
	}
	if m.Fat != nil {
		item.Fat = m.Fat
	}
	if hadValues {
		item.Source = SourceMixed
	} else {
		item.Source = SourceUser
		item.Provenance = Provenance{SourceType: SourceUser, Label: "User-provided nutrition"}
	}
	item.Confidence = confidenceUserProvided
}

// choose picks a candidate: the advisor's nomination when plausible, else the
// highest-ranked plausible candidate.
func (s *Selector) choose(ctx context.Context, itemName string, candidates []Candidate) (Candidate, string, bool) {
	if len(candidates) == 0 {
		return Candidate{}, "", false
	}

	ranked := RankCandidates(itemName, candidates)

	if s.advisor != nil {
		nom, err := s.advisor.Nominate(ctx, itemName, ranked)
		if err != nil {
			slog.Warn("SELECTOR: Advisor nomination failed; falling back to ranking", "item", itemName, "error", err)
		} else if nom.CandidateID != "" {
			for _, rc := range ranked {
				if rc.Candidate.ID == nom.CandidateID {
					if Plausible(itemName, rc.Candidate) {
						return rc.Candidate, nom.Rationale, true
					}
					slog.Warn("SELECTOR: Nominated candidate failed plausibility; falling back to ranking",
						"item", itemName, "candidate", rc.Candidate.Name)
					break
				}
			}
		}
	}

	for _, rc := range ranked {
		if Plausible(itemName, rc.Candidate) {
			return rc.Candidate, "highest token overlap among plausible candidates", true
		}
	}
	return Candidate{}, "", false
}

// applyCandidate scales the candidate's per-100g values to the item's grams
// (default 100g) and attaches provenance.
func (s *Selector) applyCandidate(item *ResolvedItem, m mealagent.MealItemMention, c Candidate, rationale string) {
	grams := 100.0
	if item.AmountGrams != nil {
		grams = *item.AmountGrams
	} else {
		item.Assumptions = append(item.Assumptions, assumptionDefaultGrams)
	}

	scale := grams / 100
	item.Kcal = ptr(Round1(c.KcalPer100g * scale))
	item.Protein = ptr(Round1(c.ProteinPer100g * scale))
	item.Carbs = ptr(Round1(c.CarbsPer100g * scale))
	item.Fat = ptr(Round1(c.FatPer100g * scale))
	item.Provenance = Provenance{
		SourceType: c.SourceType,
		Label:      c.SourceLabel + ": " + c.Name,
		URL:        c.URL,
		Rationale:  rationale,
	}
}

// lookupConfidence is the rank score of the chosen candidate against the
// query, reused as the resolution confidence.
func lookupConfidence(itemName string, c Candidate) float64 {
	ranked := RankCandidates(itemName, []Candidate{c})
	return ranked[0].Score
}

var eggTokens = []string{"egg", "eggs", "ei", "eier"}

func hasEggToken(s string) bool {
	set := TokenSet(s)
	for _, t := range eggTokens {
		if set[t] {
			return true
		}
	}
	return false
}

// Plausible rejects candidates whose numbers cannot describe a real food, and
// applies the egg guard: an egg item must select an egg-named candidate with
// low carbs.
func Plausible(itemName string, c Candidate) bool {
	if c.KcalPer100g <= 0 || c.KcalPer100g > 900 {
		return false
	}
	macroSum := c.ProteinPer100g + c.CarbsPer100g + c.FatPer100g
	if macroSum <= 0 || macroSum > 105 {
		return false
	}
	if hasEggToken(itemName) {
		if !hasEggToken(c.Name) {
			return false
		}
		if c.CarbsPer100g > eggCarbCap {
			return false
		}
	}
	return true
}
