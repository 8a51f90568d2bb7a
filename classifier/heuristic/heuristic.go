// Package heuristic classifies utterances with keyword and regex rules only.
// It is the always-available fallback when no reasoning backend is configured
// or the reasoning call fails.
package heuristic

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"mealagent"
	"mealagent/nutrition"
)

// Fixed confidences per heuristic branch. These are not computed.
const (
	confidenceKeyword     = 0.7
	confidenceGramsItems  = 0.75
	confidenceGenericItem = 0.65
)

const maxGenericNameLen = 64

var (
	mealRefRe = regexp.MustCompile(`(?i)(?:#|meal\s+)(\d+)\b`)
	// "<number> g <name>" repeated across the text; the grams pattern takes
	// precedence over any other quantity phrasing.
	gramsItemRe = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*g\s+([\p{L}][\p{L}\s]*?)(?:\s+(?:and|und|,)\s+|[,.;]|$)`)
)

var (
	listKeywords    = []string{"list", "show", "overview", "what did i eat", "what have i eaten"}
	deleteKeywords  = []string{"delete", "remove", "erase", "clear"}
	allKeywords     = []string{"all", "everything", "today"}
	replaceKeywords = []string{"replace", "instead of", "swap"}
	patchKeywords   = []string{"change", "correct", "update", "actually", "make it", "fix"}
)

// genericStopWords are stripped when the whole utterance becomes the item name.
var genericStopWords = map[string]bool{
	"i": true, "had": true, "ate": true, "a": true, "an": true, "the": true,
	"of": true, "for": true, "my": true, "some": true, "please": true,
	"log": true, "add": true, "just": true, "today": true, "breakfast": true,
	"lunch": true, "dinner": true, "snack": true,
}

// Classifier implements mealagent.Classifier with deterministic rules.
type Classifier struct{}

func New() *Classifier { return &Classifier{} }

// Classify maps the utterance to an intent. It never fails.
func (c *Classifier) Classify(ctx context.Context, input mealagent.ClassifyInput) (mealagent.Intent, error) {
	text := input.Text
	lower := strings.ToLower(text)

	intent := mealagent.Intent{
		Action:     mealagent.ActionLog,
		Confidence: confidenceKeyword,
		Reason:     "heuristic keyword classification",
	}

	if m := mealRefRe.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			intent.MealRef = &n
		}
	}

	switch {
	case containsAny(lower, listKeywords):
		intent.Action = mealagent.ActionList

	case containsAny(lower, deleteKeywords):
		intent.Action = mealagent.ActionDelete
		intent.DeleteScope = mealagent.DeleteScopeOne
		if containsAny(lower, allKeywords) {
			intent.DeleteScope = mealagent.DeleteScopeAll
		}

	case containsAny(lower, replaceKeywords):
		intent.Action = mealagent.ActionReplace

	case containsAny(lower, patchKeywords):
		intent.Action = mealagent.ActionPatch
	}

	switch intent.Action {
	case mealagent.ActionLog, mealagent.ActionPatch, mealagent.ActionReplace:
		intent.Items = extractGramsItems(text)
		if len(intent.Items) > 0 {
			intent.Confidence = confidenceGramsItems
			break
		}
		if intent.Action == mealagent.ActionLog {
			if item, confidence, ok := parsedMention(text); ok {
				intent.Items = []mealagent.MealItemMention{item}
				intent.Confidence = confidence
				break
			}
			if name := genericItemName(lower); name != "" {
				intent.Items = []mealagent.MealItemMention{{Name: name, Display: strings.TrimSpace(text)}}
				intent.Confidence = confidenceGenericItem
				break
			}
		}
		question := "Which food should I " + string(intent.Action) + "? Please name the item, ideally with an amount."
		intent.RequiresInput = &question
	}

	slog.Debug("HEURISTIC: Classified",
		"action", intent.Action,
		"items", len(intent.Items),
		"requires_input", intent.RequiresInput != nil,
	)
	return intent, nil
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

func extractGramsItems(text string) []mealagent.MealItemMention {
	var items []mealagent.MealItemMention
	for _, m := range gramsItemRe.FindAllStringSubmatch(text, -1) {
		raw := strings.ReplaceAll(m[1], ",", ".")
		grams, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(m[2]))
		if name == "" {
			continue
		}
		g := grams
		items = append(items, mealagent.MealItemMention{
			Name:        name,
			Display:     strings.TrimSpace(m[0]),
			Quantity:    &g,
			Unit:        "g",
			AmountGrams: &g,
		})
	}
	return items
}

// parsedMention runs the deterministic text parser over the utterance and
// builds a single mention from it when any explicit number (grams, kcal, a
// macro) was stated. User-stated values ride along on the mention and win over
// lookups downstream. The parser's coarse confidence label converts to a score
// at this boundary, capped at the grams-items ceiling so no heuristic branch
// outranks the reasoning classifier.
func parsedMention(text string) (mealagent.MealItemMention, float64, bool) {
	p := nutrition.ParseFoodText(text)
	if p.Grams == nil && p.Kcal == nil && p.Protein == nil && p.Carbs == nil && p.Fat == nil {
		return mealagent.MealItemMention{}, 0, false
	}
	m := mealagent.MealItemMention{
		Name:        p.Name,
		Display:     strings.TrimSpace(text),
		AmountGrams: p.Grams,
		Kcal:        p.Kcal,
		Protein:     p.Protein,
		Carbs:       p.Carbs,
		Fat:         p.Fat,
	}
	confidence := mealagent.ConfidenceScore(p.Confidence)
	if confidence > confidenceGramsItems {
		confidence = confidenceGramsItems
	}
	return m, confidence, true
}

var genericCleanRe = regexp.MustCompile(`[^\p{L}\p{N}\s]`)

// genericItemName treats the cleaned utterance as a single item name, capped
// at 64 characters.
func genericItemName(lower string) string {
	cleaned := genericCleanRe.ReplaceAllString(lower, " ")
	var words []string
	for _, w := range strings.Fields(cleaned) {
		if genericStopWords[w] {
			continue
		}
		words = append(words, w)
	}
	name := strings.Join(words, " ")
	if len(name) > maxGenericNameLen {
		name = strings.TrimSpace(name[:maxGenericNameLen])
	}
	return name
}
