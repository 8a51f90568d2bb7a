package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"mealagent"
	"mealagent/classifier/heuristic"
	"mealagent/classifier/mock"
	"mealagent/nutrition"
	"mealagent/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

const testDate = "2026-03-01"

type fakeResolver struct {
	byName map[string][]nutrition.Candidate
}

func (f *fakeResolver) Resolve(ctx context.Context, name string, limit int) ([]nutrition.Candidate, error) {
	return f.byName[strings.ToLower(name)], nil
}

func riceCandidate() nutrition.Candidate {
	return nutrition.Candidate{
		ID:             "de:rice",
		Name:           "Basmati Rice",
		KcalPer100g:    130,
		ProteinPer100g: 2.7,
		CarbsPer100g:   28,
		FatPer100g:     0.3,
		SourceType:     nutrition.SourceTypeRegional,
		SourceLabel:    "Open Food Facts (de)",
	}
}

func newTestRuntime(t *testing.T, classifier mealagent.Classifier) (*Runtime, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	resolver := &fakeResolver{byName: map[string][]nutrition.Candidate{
		"rice": {riceCandidate()},
	}}
	selector := nutrition.NewSelector(resolver, nil, 8)

	r := New(classifier, heuristic.New(), selector, st, nil,
		WithClock(func() time.Time { return testNow }),
		WithLocation(time.UTC))
	return r, st
}

func grams(v float64) *float64 { return &v }

func logIntent(items ...mealagent.MealItemMention) mealagent.Intent {
	return mealagent.Intent{Action: mealagent.ActionLog, Items: items, Confidence: 0.9}
}

func TestProcessTurn_LogCreatesMealWithEntries(t *testing.T) {
	classifier := mock.New(logIntent(mealagent.MealItemMention{Name: "rice", AmountGrams: grams(100)}))
	r, st := newTestRuntime(t, classifier)
	ctx := context.Background()

	res, err := r.ProcessTurn(ctx, TurnInput{Text: "100g rice for breakfast", SessionID: "s1"})
	require.NoError(t, err)

	assert.True(t, res.OK)
	assert.Equal(t, "log", res.Action)
	assert.Contains(t, res.Message, "Logged Breakfast")
	require.Len(t, res.Envelope.MealIDs, 1)
	require.Len(t, res.Envelope.EntryIDs, 1)
	require.Len(t, res.Envelope.ItemConfidence, 1)
	assert.Equal(t, "rice", res.Envelope.ItemConfidence[0].Name)
	require.NotNil(t, res.Draft)
	require.Len(t, res.Draft.Items, 1)
	require.NotNil(t, res.Summary)
	assert.InDelta(t, 130.0, res.Summary.Kcal, 0.001)

	meals, err := st.MealsForDate(ctx, testDate)
	require.NoError(t, err)
	require.Len(t, meals, 1)
	assert.Equal(t, "Breakfast", meals[0].Label)
	assert.InDelta(t, 130.0, meals[0].Kcal, 0.001)

	session, err := st.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, session.ActiveMealID)
	assert.Equal(t, meals[0].ID, *session.ActiveMealID)
	assert.Equal(t, "log", session.LastIntent)

	actions, err := st.ActionsForSession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, store.StatusOK, actions[0].Status)
	assert.Equal(t, res.Envelope.EntryIDs, actions[0].EntryIDs)
}

func TestProcessTurn_PatchUpdatesMatchingEntry(t *testing.T) {
	classifier := mock.New(
		logIntent(mealagent.MealItemMention{Name: "rice", AmountGrams: grams(100)}),
		mealagent.Intent{
			Action:     mealagent.ActionPatch,
			Items:      []mealagent.MealItemMention{{Name: "rice", AmountGrams: grams(200)}},
			Confidence: 0.85,
		},
	)
	r, st := newTestRuntime(t, classifier)
	ctx := context.Background()

	_, err := r.ProcessTurn(ctx, TurnInput{Text: "100g rice", SessionID: "s1"})
	require.NoError(t, err)

	res, err := r.ProcessTurn(ctx, TurnInput{Text: "actually it was 200g rice", SessionID: "s1"})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Contains(t, res.Message, "patched")

	meals, err := st.MealsForDate(ctx, testDate)
	require.NoError(t, err)
	require.Len(t, meals, 1)
	assert.InDelta(t, 260.0, meals[0].Kcal, 0.001)

	entries, err := st.EntriesForMeal(ctx, meals[0].ID)
	require.NoError(t, err)
	require.Len(t, entries, 1, "match above threshold patches instead of inserting")

	revisions, err := st.RevisionsForEntry(ctx, entries[0].ID)
	require.NoError(t, err)
	require.Len(t, revisions, 1)
	assert.Equal(t, "Patch item from conversational correction", revisions[0].Reason)
}

func TestProcessTurn_PatchWithoutMatchInserts(t *testing.T) {
	classifier := mock.New(
		logIntent(mealagent.MealItemMention{Name: "rice", AmountGrams: grams(100)}),
		mealagent.Intent{
			Action:     mealagent.ActionPatch,
			Items:      []mealagent.MealItemMention{{Name: "almond butter toast"}},
			Confidence: 0.85,
		},
	)
	r, st := newTestRuntime(t, classifier)
	ctx := context.Background()

	_, err := r.ProcessTurn(ctx, TurnInput{Text: "100g rice", SessionID: "s1"})
	require.NoError(t, err)
	_, err = r.ProcessTurn(ctx, TurnInput{Text: "add almond butter toast", SessionID: "s1"})
	require.NoError(t, err)

	meals, err := st.MealsForDate(ctx, testDate)
	require.NoError(t, err)
	require.Len(t, meals, 1)

	entries, err := st.EntriesForMeal(ctx, meals[0].ID)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no token overlap means a new entry")
}

func TestProcessTurn_ReplaceClearsExistingEntries(t *testing.T) {
	classifier := mock.New(
		logIntent(
			mealagent.MealItemMention{Name: "rice", AmountGrams: grams(100)},
			mealagent.MealItemMention{Name: "almond butter toast"},
		),
		mealagent.Intent{
			Action:     mealagent.ActionReplace,
			Items:      []mealagent.MealItemMention{{Name: "eggs", Quantity: grams(2)}},
			Confidence: 0.85,
		},
	)
	r, st := newTestRuntime(t, classifier)
	ctx := context.Background()

	_, err := r.ProcessTurn(ctx, TurnInput{Text: "rice and toast", SessionID: "s1"})
	require.NoError(t, err)
	res, err := r.ProcessTurn(ctx, TurnInput{Text: "no, it was just 2 eggs instead", SessionID: "s1"})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Contains(t, res.Message, "Replaced")

	meals, err := st.MealsForDate(ctx, testDate)
	require.NoError(t, err)
	require.Len(t, meals, 1)

	entries, err := st.EntriesForMeal(ctx, meals[0].ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "eggs", entries[0].Name)
	assert.InDelta(t, 155.0, meals[0].Kcal, 0.001, "totals follow the replacement")
}

func TestProcessTurn_LowConfidenceItemAbortsWholeTurn(t *testing.T) {
	classifier := mock.New(logIntent(
		mealagent.MealItemMention{Name: "rice", AmountGrams: grams(100)},
		mealagent.MealItemMention{Name: "zorblat fizz"},
	))
	r, st := newTestRuntime(t, classifier)
	ctx := context.Background()

	res, err := r.ProcessTurn(ctx, TurnInput{Text: "rice and zorblat fizz", SessionID: "s1"})
	require.NoError(t, err)

	assert.False(t, res.OK)
	require.NotNil(t, res.Envelope.RequiresInput)
	assert.Contains(t, *res.Envelope.RequiresInput, "zorblat fizz")

	meals, err := st.MealsForDate(ctx, testDate)
	require.NoError(t, err)
	assert.Empty(t, meals, "nothing is committed when one item is unresolvable")

	actions, err := st.ActionsForSession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, store.StatusRequiresInput, actions[0].Status)
}

func TestProcessTurn_UserStatedKcalAvoidsAbort(t *testing.T) {
	kcal := 210.0
	classifier := mock.New(logIntent(mealagent.MealItemMention{Name: "zorblat fizz", Kcal: &kcal}))
	r, st := newTestRuntime(t, classifier)
	ctx := context.Background()

	res, err := r.ProcessTurn(ctx, TurnInput{Text: "zorblat fizz 210 kcal", SessionID: "s1"})
	require.NoError(t, err)

	assert.True(t, res.OK, "a stated calorie count is enough to log an unknown food")
	meals, err := st.MealsForDate(ctx, testDate)
	require.NoError(t, err)
	require.Len(t, meals, 1)
	assert.InDelta(t, 210.0, meals[0].Kcal, 0.001)
}

func TestProcessTurn_DeleteNeedsExplicitVerb(t *testing.T) {
	classifier := mock.New(
		logIntent(mealagent.MealItemMention{Name: "rice", AmountGrams: grams(100)}),
		mealagent.Intent{Action: mealagent.ActionDelete, DeleteScope: mealagent.DeleteScopeOne, Confidence: 0.8},
	)
	r, st := newTestRuntime(t, classifier)
	ctx := context.Background()

	_, err := r.ProcessTurn(ctx, TurnInput{Text: "100g rice", SessionID: "s1"})
	require.NoError(t, err)

	res, err := r.ProcessTurn(ctx, TurnInput{Text: "get rid of that meal", SessionID: "s1"})
	require.NoError(t, err)
	assert.False(t, res.OK)
	require.NotNil(t, res.Envelope.RequiresInput)
	assert.Contains(t, *res.Envelope.RequiresInput, "delete")

	meals, err := st.MealsForDate(ctx, testDate)
	require.NoError(t, err)
	assert.Len(t, meals, 1, "meal survives until the user confirms")
}

func TestProcessTurn_DeleteByOrdinal(t *testing.T) {
	classifier := mock.New(
		logIntent(mealagent.MealItemMention{Name: "rice", AmountGrams: grams(100)}),
		mealagent.Intent{Action: mealagent.ActionDelete, DeleteScope: mealagent.DeleteScopeOne, MealRef: intRef(1), Confidence: 0.8},
	)
	r, st := newTestRuntime(t, classifier)
	ctx := context.Background()

	_, err := r.ProcessTurn(ctx, TurnInput{Text: "100g rice", SessionID: "s1"})
	require.NoError(t, err)

	res, err := r.ProcessTurn(ctx, TurnInput{Text: "delete meal 1", SessionID: "s1"})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Contains(t, res.Message, "Deleted")

	meals, err := st.MealsForDate(ctx, testDate)
	require.NoError(t, err)
	assert.Empty(t, meals)
}

func TestProcessTurn_DeleteAllForDay(t *testing.T) {
	classifier := mock.New(
		logIntent(mealagent.MealItemMention{Name: "rice", AmountGrams: grams(100)}),
		logIntent(mealagent.MealItemMention{Name: "rice", AmountGrams: grams(50)}),
		mealagent.Intent{Action: mealagent.ActionDelete, DeleteScope: mealagent.DeleteScopeAll, Confidence: 0.8},
	)
	r, st := newTestRuntime(t, classifier)
	ctx := context.Background()

	_, err := r.ProcessTurn(ctx, TurnInput{Text: "100g rice", SessionID: "s1"})
	require.NoError(t, err)
	_, err = r.ProcessTurn(ctx, TurnInput{Text: "50g rice", SessionID: "s1"})
	require.NoError(t, err)

	res, err := r.ProcessTurn(ctx, TurnInput{Text: "delete everything today", SessionID: "s1"})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Contains(t, res.Message, "Deleted all 2")

	meals, err := st.MealsForDate(ctx, testDate)
	require.NoError(t, err)
	assert.Empty(t, meals)
}

func TestProcessTurn_ListFormatsDay(t *testing.T) {
	classifier := mock.New(
		logIntent(mealagent.MealItemMention{Name: "rice", AmountGrams: grams(100)}),
		mealagent.Intent{Action: mealagent.ActionList, Confidence: 0.7},
	)
	r, _ := newTestRuntime(t, classifier)
	ctx := context.Background()

	_, err := r.ProcessTurn(ctx, TurnInput{Text: "100g rice for lunch", SessionID: "s1"})
	require.NoError(t, err)

	res, err := r.ProcessTurn(ctx, TurnInput{Text: "show me my meals", SessionID: "s1"})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Contains(t, res.Message, "1. Lunch")
	assert.Contains(t, res.Message, "Total: 130 kcal")
	require.NotNil(t, res.Summary)
	assert.InDelta(t, 130.0, res.Summary.Kcal, 0.001)
}

func TestProcessTurn_ListEmptyDay(t *testing.T) {
	classifier := mock.New(mealagent.Intent{Action: mealagent.ActionList, Confidence: 0.7})
	r, st := newTestRuntime(t, classifier)
	ctx := context.Background()

	res, err := r.ProcessTurn(ctx, TurnInput{Text: "show me my meals", SessionID: "s1"})
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, "No meals logged today.", res.Message)

	actions, err := st.ActionsForSession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, store.StatusNoop, actions[0].Status)
}

func TestProcessTurn_ClassifierFailureFallsBackToHeuristic(t *testing.T) {
	classifier := mock.NewFailing(errors.New("model unavailable"))
	r, st := newTestRuntime(t, classifier)
	ctx := context.Background()

	res, err := r.ProcessTurn(ctx, TurnInput{Text: "I ate 100g rice", SessionID: "s1"})
	require.NoError(t, err)
	assert.True(t, res.OK, "the user never sees the model failure")

	meals, err := st.MealsForDate(ctx, testDate)
	require.NoError(t, err)
	assert.Len(t, meals, 1)
}

func TestProcessTurn_ClarifyShortCircuits(t *testing.T) {
	question := "Which meal do you mean?"
	classifier := mock.New(mealagent.Intent{
		Action:        mealagent.ActionClarify,
		Confidence:    0.4,
		RequiresInput: &question,
	})
	r, st := newTestRuntime(t, classifier)
	ctx := context.Background()

	res, err := r.ProcessTurn(ctx, TurnInput{Text: "hm the second one", SessionID: "s1"})
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, question, res.Message)
	require.NotNil(t, res.Envelope.RequiresInput)

	meals, err := st.MealsForDate(ctx, testDate)
	require.NoError(t, err)
	assert.Empty(t, meals)

	session, err := st.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "clarify", session.LastIntent, "session is still updated")
}

func TestProcessTurn_PatchWithoutTargetAsks(t *testing.T) {
	classifier := mock.New(mealagent.Intent{
		Action:     mealagent.ActionPatch,
		Items:      []mealagent.MealItemMention{{Name: "rice", AmountGrams: grams(200)}},
		Confidence: 0.85,
	})
	r, _ := newTestRuntime(t, classifier)

	res, err := r.ProcessTurn(context.Background(), TurnInput{Text: "make it 200g", SessionID: "fresh"})
	require.NoError(t, err)
	assert.False(t, res.OK)
	require.NotNil(t, res.Envelope.RequiresInput)
	assert.Contains(t, *res.Envelope.RequiresInput, "Which meal")
}

type fakeSlack struct {
	channel string
	message string
	err     error
}

func (f *fakeSlack) PostMessage(ctx context.Context, channel, message string) error {
	f.channel = channel
	f.message = message
	return f.err
}

func TestProcessTurn_NotifiesSlackOnSuccess(t *testing.T) {
	classifier := mock.New(
		logIntent(mealagent.MealItemMention{Name: "rice", AmountGrams: grams(100)}),
		mealagent.Intent{Action: mealagent.ActionList, Confidence: 0.7},
	)
	r, _ := newTestRuntime(t, classifier)
	sink := &fakeSlack{}
	WithSlack(sink, "#meal-log")(r)
	ctx := context.Background()

	_, err := r.ProcessTurn(ctx, TurnInput{Text: "100g rice", SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, "#meal-log", sink.channel)
	assert.Contains(t, sink.message, "Logged")

	// An empty day is a noop turn; no notification goes out.
	sink.message = ""
	classifier2 := mock.New(mealagent.Intent{Action: mealagent.ActionList, Confidence: 0.7})
	r2, _ := newTestRuntime(t, classifier2)
	WithSlack(sink, "#meal-log")(r2)
	_, err = r2.ProcessTurn(ctx, TurnInput{Text: "show me my meals", SessionID: "s2"})
	require.NoError(t, err)
	assert.Empty(t, sink.message)
}

func TestProcessTurn_SlackFailureIsSwallowed(t *testing.T) {
	classifier := mock.New(logIntent(mealagent.MealItemMention{Name: "rice", AmountGrams: grams(100)}))
	r, st := newTestRuntime(t, classifier)
	WithSlack(&fakeSlack{err: errors.New("webhook gone")}, "#meal-log")(r)
	ctx := context.Background()

	res, err := r.ProcessTurn(ctx, TurnInput{Text: "100g rice", SessionID: "s1"})
	require.NoError(t, err)
	assert.True(t, res.OK)

	meals, err := st.MealsForDate(ctx, testDate)
	require.NoError(t, err)
	assert.Len(t, meals, 1)
}

func intRef(n int) *int { return &n }
