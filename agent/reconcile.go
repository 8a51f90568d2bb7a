package agent

import (
	"context"
	"fmt"
	"time"

	"mealagent/nutrition"
	"mealagent/store"
)

// reconcileMatchThreshold is the minimum name-overlap score for an incoming
// item to patch an existing entry instead of inserting a new one. Empirical
// cutoff, kept tunable.
const reconcileMatchThreshold = 0.34

const patchReason = "Patch item from conversational correction"

const reconcileActor = "meal-agent"

type reconcileOutcome struct {
	EntryIDs []string
	Updated  int
	Inserted int
}

// reconcileEntries applies resolved items to a meal. With replace set, all
// current entries are soft-deleted and every item becomes a new entry; no
// fuzzy matching occurs. Otherwise each item either patches its best fuzzy
// match (score >= threshold, exactly one revision written) or inserts.
// Totals are recomputed by the store with every mutation.
func (r *Runtime) reconcileEntries(ctx context.Context, mealID string, items []nutrition.ResolvedItem, replace bool, now time.Time) (reconcileOutcome, error) {
	var out reconcileOutcome

	if replace {
		if err := r.store.SoftDeleteMealEntries(ctx, mealID, now); err != nil {
			return out, fmt.Errorf("clear meal entries: %w", err)
		}
		for _, item := range items {
			entry := entryFromResolved(mealID, item)
			if err := r.store.InsertEntry(ctx, entry); err != nil {
				return out, fmt.Errorf("insert entry: %w", err)
			}
			out.EntryIDs = append(out.EntryIDs, entry.ID)
			out.Inserted++
		}
		return out, nil
	}

	existing, err := r.store.EntriesForMeal(ctx, mealID)
	if err != nil {
		return out, fmt.Errorf("load meal entries: %w", err)
	}

	for _, item := range items {
		matchIdx, score := bestEntryMatch(item.Name, existing)
		if matchIdx >= 0 && score >= reconcileMatchThreshold {
			target := existing[matchIdx]
			updated := entryFromResolved(mealID, item)
			updated.ID = target.ID
			if err := r.store.UpdateEntry(ctx, updated, reconcileActor, patchReason); err != nil {
				return out, fmt.Errorf("patch entry: %w", err)
			}
			existing[matchIdx] = *updated
			out.EntryIDs = append(out.EntryIDs, updated.ID)
			out.Updated++
			continue
		}

		entry := entryFromResolved(mealID, item)
		if err := r.store.InsertEntry(ctx, entry); err != nil {
			return out, fmt.Errorf("insert entry: %w", err)
		}
		existing = append(existing, *entry)
		out.EntryIDs = append(out.EntryIDs, entry.ID)
		out.Inserted++
	}
	return out, nil
}

// bestEntryMatch returns the index and score of the existing entry whose name
// overlaps the item name the most. Score is |intersection| over the item's
// own token set.
func bestEntryMatch(itemName string, entries []store.MealEntry) (int, float64) {
	itemTokens := nutrition.Tokenize(itemName)
	if len(itemTokens) == 0 {
		return -1, 0
	}

	bestIdx, bestScore := -1, 0.0
	for i, e := range entries {
		entrySet := nutrition.TokenSet(e.Name)
		score := nutrition.OverlapScore(itemTokens, entrySet)
		if score > bestScore {
			bestIdx, bestScore = i, score
		}
	}
	return bestIdx, bestScore
}

func entryFromResolved(mealID string, item nutrition.ResolvedItem) *store.MealEntry {
	id := mealID
	return &store.MealEntry{
		MealID:      &id,
		Name:        item.Name,
		Display:     item.Display,
		AmountGrams: item.AmountGrams,
		Kcal:        item.Kcal,
		Protein:     item.Protein,
		Carbs:       item.Carbs,
		Fat:         item.Fat,
		Source:      item.Source,
		Confidence:  item.Confidence,
		Assumptions: item.Assumptions,
		Provenance:  item.Provenance,
	}
}
