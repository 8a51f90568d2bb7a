package nutrition

import (
	"regexp"
	"strconv"
	"strings"

	"mealagent"
)

// Parsed is the output of the deterministic text parser. It is the no-network
// fallback: everything here comes straight from fixed regex patterns.
type Parsed struct {
	Name        string
	Grams       *float64
	Kcal        *float64
	Protein     *float64
	Carbs       *float64
	Fat         *float64
	Assumptions []string
	Confidence  string
}

const assumptionKcalFromMacros = "Calories estimated from macros with deterministic 4/4/9 formula"
const unknownMealName = "unknown meal"

var (
	// Decimal separator accepts comma or period.
	numPat = `(\d+(?:[.,]\d+)?)`

	proteinRe = regexp.MustCompile(`(?i)protein\s*:?\s*` + numPat + `\s*g?`)
	carbsRe   = regexp.MustCompile(`(?i)carbs?\s*:?\s*` + numPat + `\s*g?`)
	fatRe     = regexp.MustCompile(`(?i)fat\s*:?\s*` + numPat + `\s*g?`)
	kcalRe    = regexp.MustCompile(`(?i)` + numPat + `\s*(?:kcal|calories|cal)\b`)
	gramsRe   = regexp.MustCompile(`(?i)` + numPat + `\s*g\b`)

	numUnitRe = regexp.MustCompile(`(?i)\d+(?:[.,]\d+)?\s*(?:g|kg|kcal|calories|cal)?\b`)
	punctRe   = regexp.MustCompile(`[^\p{L}\p{N}\s]`)
)

// nameStopWords are stripped before inferring an item name from free text.
var nameStopWords = map[string]bool{
	"i": true, "had": true, "ate": true, "a": true, "an": true, "the": true,
	"of": true, "with": true, "and": true, "for": true, "to": true, "my": true,
	"some": true, "about": true, "around": true, "please": true, "log": true,
	"add": true, "just": true, "today": true, "this": true, "that": true,
	"protein": true, "carbs": true, "carb": true, "fat": true, "kcal": true,
	"calories": true, "cal": true, "gram": true, "grams": true,
}

// ParseFoodText extracts amount, calories, macros, and an item name from raw
// text using fixed patterns only. Pure function, deterministic.
func ParseFoodText(text string) Parsed {
	var p Parsed

	// Macros first, then strip their matches so the plain grams pattern does
	// not pick up "protein 30g" as an amount.
	working := text
	if v, rest, ok := extractNumber(proteinRe, working); ok {
		p.Protein = ptr(v)
		working = rest
	}
	if v, rest, ok := extractNumber(carbsRe, working); ok {
		p.Carbs = ptr(v)
		working = rest
	}
	if v, rest, ok := extractNumber(fatRe, working); ok {
		p.Fat = ptr(v)
		working = rest
	}
	if v, rest, ok := extractNumber(kcalRe, working); ok {
		p.Kcal = ptr(v)
		working = rest
	}
	if v, _, ok := extractNumber(gramsRe, working); ok {
		p.Grams = ptr(v)
	}

	p.Name = inferItemName(text)
	if p.Name == unknownMealName {
		p.Assumptions = append(p.Assumptions, "Could not infer item name from text")
	}

	if p.Kcal == nil && p.Protein != nil && p.Carbs != nil && p.Fat != nil {
		kcal := Round1(*p.Protein*4 + *p.Carbs*4 + *p.Fat*9)
		p.Kcal = &kcal
		p.Assumptions = append(p.Assumptions, assumptionKcalFromMacros)
	}

	switch n := len(p.Assumptions); {
	case n == 0:
		p.Confidence = mealagent.ConfidenceHigh
	case n <= 2:
		p.Confidence = mealagent.ConfidenceMedium
	default:
		p.Confidence = mealagent.ConfidenceLow
	}

	return p
}

// extractNumber returns the first captured number of re in text, plus text
// with that match removed.
func extractNumber(re *regexp.Regexp, text string) (float64, string, bool) {
	loc := re.FindStringSubmatchIndex(text)
	if loc == nil {
		return 0, text, false
	}
	raw := strings.ReplaceAll(text[loc[2]:loc[3]], ",", ".")
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, text, false
	}
	return v, text[:loc[0]] + text[loc[1]:], true
}

// inferItemName lowercases the text, strips number+unit tokens and
// punctuation, removes stop words, and keeps the first four remaining words.
func inferItemName(text string) string {
	cleaned := strings.ToLower(text)
	cleaned = numUnitRe.ReplaceAllString(cleaned, " ")
	cleaned = punctRe.ReplaceAllString(cleaned, " ")

	var words []string
	for _, w := range strings.Fields(cleaned) {
		if nameStopWords[w] {
			continue
		}
		words = append(words, w)
		if len(words) == 4 {
			break
		}
	}
	if len(words) == 0 {
		return unknownMealName
	}
	return strings.Join(words, " ")
}
