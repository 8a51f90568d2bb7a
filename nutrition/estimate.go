package nutrition

import "strings"

// intrinsicEstimate is a built-in per-100g profile for a common food, used
// when no source returns candidates. Values are typical reference numbers,
// not authoritative.
type intrinsicEstimate struct {
	key     string
	label   string
	kcal    float64
	protein float64
	carbs   float64
	fat     float64
}

// Ordered so more specific keys match before generic ones ("chicken breast"
// before "egg" matters for "chicken breast with eggs"-style names: first hit wins).
var intrinsicEstimates = []intrinsicEstimate{
	{key: "chicken breast", label: "Chicken breast, cooked", kcal: 165, protein: 31, carbs: 0, fat: 3.6},
	{key: "skyr", label: "Skyr, plain", kcal: 63, protein: 11, carbs: 4, fat: 0.2},
	{key: "almond", label: "Almonds", kcal: 579, protein: 21, carbs: 22, fat: 50},
	{key: "rice", label: "Rice, cooked", kcal: 130, protein: 2.7, carbs: 28, fat: 0.3},
	{key: "egg", label: "Whole egg", kcal: 155, protein: 13, carbs: 1.1, fat: 11},
}

// IntrinsicEstimate returns a built-in per-100g candidate for a small set of
// common foods, matched by substring. ok is false when nothing matches.
func IntrinsicEstimate(itemName string) (Candidate, bool) {
	name := strings.ToLower(itemName)
	for _, e := range intrinsicEstimates {
		if strings.Contains(name, e.key) {
			return Candidate{
				ID:             "intrinsic:" + strings.ReplaceAll(e.key, " ", "-"),
				Name:           e.label,
				KcalPer100g:    e.kcal,
				ProteinPer100g: e.protein,
				CarbsPer100g:   e.carbs,
				FatPer100g:     e.fat,
				SourceType:     SourceTypeIntrinsic,
				SourceLabel:    "Built-in estimate",
			}, true
		}
	}
	return Candidate{}, false
}
