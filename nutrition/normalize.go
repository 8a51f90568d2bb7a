package nutrition

import (
	"fmt"
	"strings"

	"mealagent"
)

// gramsPerEgg maps egg size to an assumed weight in grams.
var gramsPerEgg = map[string]float64{
	"small":  40,
	"medium": 50,
	"large":  60,
}

// unitSynonyms normalizes user-facing unit spellings before matching.
var unitSynonyms = map[string]string{
	"g":         "g",
	"gram":      "g",
	"grams":     "g",
	"gr":        "g",
	"kg":        "kg",
	"kilo":      "kg",
	"kilos":     "kg",
	"kilogram":  "kg",
	"kilograms": "kg",
	"piece":     "piece",
	"pieces":    "piece",
	"pc":        "piece",
	"pcs":       "piece",
	"stk":       "piece",
	"pack":      "pack",
	"packs":     "pack",
	"pkg":       "pack",
	"package":   "pack",
}

// NormalizeUnit maps a unit string to its canonical form. Unknown units pass
// through lowercased so callers can still see what the user wrote.
func NormalizeUnit(unit string) string {
	u := strings.ToLower(strings.TrimSpace(unit))
	if canonical, ok := unitSynonyms[u]; ok {
		return canonical
	}
	return u
}

// NormalizeQuantity converts a mention's stated quantity/unit/size into grams.
// If the mention already carries grams it is returned untouched. Unmatched
// combinations leave grams unset; the selector later assumes 100g and records
// that assumption.
func NormalizeQuantity(m mealagent.MealItemMention) (grams *float64, assumptions []string) {
	if m.AmountGrams != nil {
		return m.AmountGrams, nil
	}
	if m.Quantity == nil {
		return nil, nil
	}

	qty := *m.Quantity
	unit := NormalizeUnit(m.Unit)

	switch unit {
	case "g":
		return ptr(qty), nil
	case "kg":
		return ptr(qty * 1000), []string{"Converted kilograms to grams"}
	}

	// Pieces of egg (or an unstated unit on an egg item) get a size-based weight.
	if (unit == "piece" || unit == "") && strings.Contains(strings.ToLower(m.Name), "egg") {
		size := strings.ToLower(strings.TrimSpace(m.Size))
		per, ok := gramsPerEgg[size]
		if !ok {
			size = "medium"
			per = gramsPerEgg["medium"]
		}
		total := qty * per
		return ptr(total), []string{
			fmt.Sprintf("Assumed %s egg at %.0fg each, %.0fg total", size, per, total),
		}
	}

	return nil, nil
}
