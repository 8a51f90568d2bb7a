// Package agent orchestrates one conversational turn: classification,
// nutrition resolution, persistence, and response shaping.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"mealagent"
	"mealagent/nutrition"
	"mealagent/store"
)

// lowConfidenceFloor is the item confidence below which a turn aborts and
// asks for clarification, unless the user supplied calories themselves.
const lowConfidenceFloor = 0.3

// explicitDeleteRe guards destructive actions: a delete intent only executes
// when the raw text carries an unambiguous delete verb.
var explicitDeleteRe = regexp.MustCompile(`(?i)\b(delete|remove|erase|clear|lösch\w*)\b`)

// TurnInput is one raw user turn plus whatever context the caller holds.
type TurnInput struct {
	Text         string                     `json:"text"`
	SessionID    string                     `json:"session_id"`
	ActiveMealID string                     `json:"active_meal_id,omitempty"`
	History      []mealagent.HistoryMessage `json:"history,omitempty"`
}

// Runtime processes turns end to end. One Runtime serves many sessions; all
// per-conversation state lives in the store.
type Runtime struct {
	classifier mealagent.Classifier
	fallback   mealagent.Classifier
	selector   *nutrition.Selector
	store      *store.Store
	turnLogger mealagent.TurnLogger

	slack        mealagent.SlackClient
	slackChannel string

	now      func() time.Time
	location *time.Location
}

// Option configures optional Runtime behavior.
type Option func(*Runtime)

// WithSlack enables best-effort turn notifications to a Slack channel.
func WithSlack(client mealagent.SlackClient, channel string) Option {
	return func(r *Runtime) {
		r.slack = client
		r.slackChannel = channel
	}
}

// WithClock overrides the wall clock. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(r *Runtime) { r.now = now }
}

// WithLocation sets the reference timezone for calendar-day grouping.
func WithLocation(loc *time.Location) Option {
	return func(r *Runtime) { r.location = loc }
}

// New creates a Runtime. classifier is tried first; fallback (typically the
// heuristic classifier) takes over when it fails and must itself never fail.
// turnLogger may be nil.
func New(classifier, fallback mealagent.Classifier, selector *nutrition.Selector, st *store.Store, turnLogger mealagent.TurnLogger, opts ...Option) *Runtime {
	if turnLogger == nil {
		turnLogger = mealagent.NewNoOpTurnLogger()
	}
	r := &Runtime{
		classifier: classifier,
		fallback:   fallback,
		selector:   selector,
		store:      st,
		turnLogger: turnLogger,
		now:        time.Now,
		location:   time.UTC,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ProcessTurn runs the full turn pipeline. Classification and resolution
// failures degrade (fallback classifier, clarification questions); only
// persistence failures return an error, and then no partial writes remain
// beyond session and audit rows.
func (r *Runtime) ProcessTurn(ctx context.Context, in TurnInput) (mealagent.RunResult, error) {
	now := r.now().In(r.location)
	date := now.Format("2006-01-02")

	activeMealID := in.ActiveMealID
	lastIntent := ""
	if session, err := r.store.GetSession(ctx, in.SessionID); err == nil {
		if activeMealID == "" && session.ActiveMealID != nil {
			activeMealID = *session.ActiveMealID
		}
		lastIntent = session.LastIntent
	} else if !errors.Is(err, store.ErrNotFound) {
		return failedResult(), fmt.Errorf("load session: %w", err)
	}

	intent := r.classify(ctx, mealagent.ClassifyInput{
		Text:         in.Text,
		SessionID:    in.SessionID,
		ActiveMealID: activeMealID,
		LastIntent:   lastIntent,
		History:      in.History,
	})

	slog.Info("RUNTIME: Classified turn",
		"session_id", in.SessionID,
		"action", intent.Action,
		"items", len(intent.Items),
		"confidence", intent.Confidence,
		"confidence_label", mealagent.ConfidenceLabel(intent.Confidence))

	turn := &turnState{
		input:        in,
		intent:       intent,
		now:          now,
		date:         date,
		activeMealID: activeMealID,
	}

	result, err := r.dispatch(ctx, turn)
	if err != nil {
		r.finishTurn(ctx, turn, store.StatusNoop, err)
		return failedResult(), err
	}

	status := store.StatusOK
	switch {
	case result.Envelope.RequiresInput != nil:
		status = store.StatusRequiresInput
	case !result.OK:
		status = store.StatusNoop
	}
	r.finishTurn(ctx, turn, status, nil)
	r.notify(ctx, result)
	return result, nil
}

// turnState accumulates what a single turn touches, for session and audit
// bookkeeping at the end.
type turnState struct {
	input        TurnInput
	intent       mealagent.Intent
	now          time.Time
	date         string
	activeMealID string

	mealID   *string
	entryIDs []string
	reason   string
}

// classify runs the primary classifier and silently falls back to the
// heuristic one. The user never sees a classification failure.
func (r *Runtime) classify(ctx context.Context, input mealagent.ClassifyInput) mealagent.Intent {
	intent, err := r.classifier.Classify(ctx, input)
	if err == nil {
		return intent
	}
	slog.Warn("RUNTIME: Classifier failed; using fallback", "error", err)

	intent, err = r.fallback.Classify(ctx, input)
	if err != nil {
		// The heuristic fallback never errors in practice. Degrade to a
		// clarification rather than surface an internal failure.
		slog.Error("RUNTIME: Fallback classifier failed", "error", err)
		q := "I couldn't understand that. Can you rephrase what you ate?"
		return mealagent.Intent{Action: mealagent.ActionClarify, Confidence: 0, RequiresInput: &q}
	}
	return intent
}

func (r *Runtime) dispatch(ctx context.Context, turn *turnState) (mealagent.RunResult, error) {
	intent := turn.intent

	if intent.Action == mealagent.ActionClarify || intent.RequiresInput != nil {
		question := "Can you tell me more about what you'd like to do?"
		if intent.RequiresInput != nil {
			question = *intent.RequiresInput
		}
		turn.reason = "clarification requested"
		return clarifyResult(intent, question), nil
	}

	switch intent.Action {
	case mealagent.ActionList:
		return r.handleList(ctx, turn)
	case mealagent.ActionDelete:
		return r.handleDelete(ctx, turn)
	case mealagent.ActionLog, mealagent.ActionPatch, mealagent.ActionReplace:
		return r.handleItems(ctx, turn)
	default:
		question := "I'm not sure what you'd like to do. Log a meal, correct one, or list today's meals?"
		turn.reason = "unrecognized action"
		return clarifyResult(intent, question), nil
	}
}

func (r *Runtime) handleList(ctx context.Context, turn *turnState) (mealagent.RunResult, error) {
	meals, err := r.store.MealsForDate(ctx, turn.date)
	if err != nil {
		return failedResult(), fmt.Errorf("list meals: %w", err)
	}

	if len(meals) == 0 {
		res := okResult(turn.intent, "No meals logged today.")
		res.OK = false
		res.Envelope.OK = false
		turn.reason = "empty day"
		return res, nil
	}

	var b strings.Builder
	var kcal, protein, carbs, fat float64
	for i, m := range meals {
		entries, err := r.store.EntriesForMeal(ctx, m.ID)
		if err != nil {
			return failedResult(), fmt.Errorf("list entries: %w", err)
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Display)
		}
		fmt.Fprintf(&b, "%d. %s – %.0f kcal (P %.0f / C %.0f / F %.0f)", i+1, m.Label, m.Kcal, m.Protein, m.Carbs, m.Fat)
		if len(names) > 0 {
			fmt.Fprintf(&b, ": %s", strings.Join(names, ", "))
		}
		b.WriteString("\n")
		kcal += m.Kcal
		protein += m.Protein
		carbs += m.Carbs
		fat += m.Fat
	}
	fmt.Fprintf(&b, "Total: %.0f kcal (P %.0f / C %.0f / F %.0f)", kcal, protein, carbs, fat)

	res := okResult(turn.intent, b.String())
	for _, m := range meals {
		res.Envelope.MealIDs = append(res.Envelope.MealIDs, m.ID)
	}
	res.Summary = &mealagent.MealSummary{
		Text:    fmt.Sprintf("%d meal(s) today", len(meals)),
		Kcal:    nutrition.Round1(kcal),
		Protein: nutrition.Round1(protein),
		Carbs:   nutrition.Round1(carbs),
		Fat:     nutrition.Round1(fat),
	}
	return res, nil
}

func (r *Runtime) handleDelete(ctx context.Context, turn *turnState) (mealagent.RunResult, error) {
	if !explicitDeleteRe.MatchString(turn.input.Text) {
		question := "That sounds like a deletion, but I want to be sure. Say \"delete\" and which meal to confirm."
		turn.reason = "delete without explicit verb"
		return clarifyResult(turn.intent, question), nil
	}

	if turn.intent.DeleteScope == mealagent.DeleteScopeAll {
		meals, err := r.store.MealsForDate(ctx, turn.date)
		if err != nil {
			return failedResult(), fmt.Errorf("load meals for delete: %w", err)
		}
		if len(meals) == 0 {
			res := okResult(turn.intent, "Nothing to delete today.")
			res.OK = false
			res.Envelope.OK = false
			turn.reason = "empty day"
			return res, nil
		}
		for _, m := range meals {
			if err := r.store.SoftDeleteMeal(ctx, m.ID, turn.now); err != nil {
				return failedResult(), fmt.Errorf("delete meal: %w", err)
			}
		}
		turn.activeMealID = ""
		res := okResult(turn.intent, fmt.Sprintf("Deleted all %d meal(s) for today.", len(meals)))
		for _, m := range meals {
			res.Envelope.MealIDs = append(res.Envelope.MealIDs, m.ID)
		}
		return res, nil
	}

	meal, res, err := r.targetMeal(ctx, turn, "delete")
	if meal == nil {
		return res, err
	}
	if err := r.store.SoftDeleteMeal(ctx, meal.ID, turn.now); err != nil {
		return failedResult(), fmt.Errorf("delete meal: %w", err)
	}
	if turn.activeMealID == meal.ID {
		turn.activeMealID = ""
	}
	turn.mealID = &meal.ID
	out := okResult(turn.intent, fmt.Sprintf("Deleted %s (%.0f kcal removed).", meal.Label, meal.Kcal))
	out.Envelope.MealIDs = []string{meal.ID}
	return out, nil
}

func (r *Runtime) handleItems(ctx context.Context, turn *turnState) (mealagent.RunResult, error) {
	intent := turn.intent
	if len(intent.Items) == 0 {
		question := "Which food should I " + string(intent.Action) + "? Tell me the item, and grams if you know them."
		turn.reason = "no items extracted"
		return clarifyResult(intent, question), nil
	}

	resolved := make([]nutrition.ResolvedItem, 0, len(intent.Items))
	for _, mention := range intent.Items {
		item := r.selector.Resolve(ctx, mention)
		if item.Confidence < lowConfidenceFloor && item.Kcal == nil {
			// One unresolvable item aborts the whole turn; nothing is
			// committed for its siblings either.
			question := fmt.Sprintf("I couldn't find reliable nutrition data for %q. Can you give me grams or calories?", item.Name)
			turn.reason = "unresolvable item: " + item.Name
			return clarifyResult(intent, question), nil
		}
		resolved = append(resolved, item)
	}

	var meal *store.Meal
	replace := intent.Action == mealagent.ActionReplace
	switch intent.Action {
	case mealagent.ActionLog:
		m := &store.Meal{
			RawText:   turn.input.Text,
			Label:     inferMealLabel(turn.input.Text),
			Date:      turn.date,
			TimeOfDay: timeOfDay(turn.now),
			Timezone:  r.location.String(),
			CreatedAt: turn.now,
		}
		if err := r.store.CreateMeal(ctx, m); err != nil {
			return failedResult(), fmt.Errorf("create meal: %w", err)
		}
		meal = m
	default:
		var res mealagent.RunResult
		var err error
		meal, res, err = r.targetMeal(ctx, turn, string(intent.Action))
		if meal == nil {
			return res, err
		}
	}

	outcome, err := r.reconcileEntries(ctx, meal.ID, resolved, replace, turn.now)
	if err != nil {
		return failedResult(), err
	}

	meal, err = r.store.GetMeal(ctx, meal.ID)
	if err != nil {
		return failedResult(), fmt.Errorf("reload meal: %w", err)
	}

	turn.activeMealID = meal.ID
	turn.mealID = &meal.ID
	turn.entryIDs = outcome.EntryIDs

	res := okResult(intent, itemsMessage(intent.Action, meal, outcome))
	res.Envelope.MealIDs = []string{meal.ID}
	res.Envelope.EntryIDs = outcome.EntryIDs
	res.Envelope.Confidence = overallConfidence(intent, resolved)
	res.Draft = draftFrom(resolved)
	for _, item := range resolved {
		res.Envelope.ItemConfidence = append(res.Envelope.ItemConfidence, mealagent.ItemConfidence{
			Name:       item.Name,
			Confidence: item.Confidence,
		})
	}
	res.Summary = &mealagent.MealSummary{
		Text:    fmt.Sprintf("%s – %.0f kcal", meal.Label, meal.Kcal),
		Kcal:    meal.Kcal,
		Protein: meal.Protein,
		Carbs:   meal.Carbs,
		Fat:     meal.Fat,
	}
	return res, nil
}

// targetMeal resolves which meal a patch/replace/delete refers to: an
// explicit ordinal ("#2") wins, else the session's active meal. A nil meal
// means the returned RunResult (a clarification) is the answer.
func (r *Runtime) targetMeal(ctx context.Context, turn *turnState, verb string) (*store.Meal, mealagent.RunResult, error) {
	if turn.intent.MealRef != nil {
		meal, err := r.store.MealByOrdinal(ctx, turn.date, *turn.intent.MealRef)
		if errors.Is(err, store.ErrNotFound) {
			question := fmt.Sprintf("I couldn't find meal #%d for today. Which meal did you mean?", *turn.intent.MealRef)
			turn.reason = "meal ordinal not found"
			return nil, clarifyResult(turn.intent, question), nil
		}
		if err != nil {
			return nil, failedResult(), fmt.Errorf("resolve meal ordinal: %w", err)
		}
		return meal, mealagent.RunResult{}, nil
	}

	if turn.activeMealID != "" {
		meal, err := r.store.GetMeal(ctx, turn.activeMealID)
		if err == nil {
			return meal, mealagent.RunResult{}, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, failedResult(), fmt.Errorf("load active meal: %w", err)
		}
	}

	question := fmt.Sprintf("Which meal should I %s? Say for example \"meal 2\" or log a new one first.", verb)
	turn.reason = "no target meal"
	return nil, clarifyResult(turn.intent, question), nil
}

// finishTurn writes the session row, the action-log row, and the turn log.
// Best effort: a bookkeeping failure is logged, never surfaced.
func (r *Runtime) finishTurn(ctx context.Context, turn *turnState, status string, turnErr error) {
	session := &store.ConversationSession{
		SessionID:  turn.input.SessionID,
		LastIntent: string(turn.intent.Action),
	}
	if turn.activeMealID != "" {
		session.ActiveMealID = &turn.activeMealID
	}
	if err := r.store.UpsertSession(ctx, session); err != nil {
		slog.Error("RUNTIME: Session upsert failed", "session_id", turn.input.SessionID, "error", err)
	}

	intentJSON, err := json.Marshal(turn.intent)
	if err != nil {
		intentJSON = []byte("{}")
	}
	action := &store.MealAction{
		SessionID:  turn.input.SessionID,
		MealID:     turn.mealID,
		ActionType: string(turn.intent.Action),
		Status:     status,
		RawText:    turn.input.Text,
		Intent:     string(intentJSON),
		Reason:     turn.reason,
		EntryIDs:   turn.entryIDs,
		CreatedAt:  turn.now,
	}
	if err := r.store.AppendAction(ctx, action); err != nil {
		slog.Error("RUNTIME: Action log append failed", "session_id", turn.input.SessionID, "error", err)
	}

	log := mealagent.TurnLog{
		SessionID: turn.input.SessionID,
		Timestamp: turn.now,
		Text:      turn.input.Text,
		Action:    string(turn.intent.Action),
		Status:    status,
		Intent:    turn.intent,
		EntryIDs:  turn.entryIDs,
	}
	if turn.mealID != nil {
		log.MealIDs = []string{*turn.mealID}
	}
	if turnErr != nil {
		log.Error = turnErr.Error()
	}
	if err := r.turnLogger.LogTurn(log); err != nil {
		slog.Error("RUNTIME: Turn log failed", "session_id", turn.input.SessionID, "error", err)
	}
}

// notify posts a short turn summary to Slack when configured. Best effort.
func (r *Runtime) notify(ctx context.Context, res mealagent.RunResult) {
	if r.slack == nil || !res.OK {
		return
	}
	if err := r.slack.PostMessage(ctx, r.slackChannel, res.Message); err != nil {
		slog.Warn("RUNTIME: Slack notification failed", "error", err)
	}
}

func itemsMessage(action mealagent.Action, meal *store.Meal, outcome reconcileOutcome) string {
	switch action {
	case mealagent.ActionPatch:
		return fmt.Sprintf("Updated %s: %d entr%s patched, %d added. Now %.0f kcal.",
			meal.Label, outcome.Updated, plural(outcome.Updated, "y", "ies"), outcome.Inserted, meal.Kcal)
	case mealagent.ActionReplace:
		return fmt.Sprintf("Replaced the items in %s: now %d item%s, %.0f kcal.",
			meal.Label, outcome.Inserted, plural(outcome.Inserted, "", "s"), meal.Kcal)
	default:
		return fmt.Sprintf("Logged %s with %d item%s: %.0f kcal.",
			meal.Label, outcome.Inserted, plural(outcome.Inserted, "", "s"), meal.Kcal)
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// overallConfidence is the weakest link of the turn: the classification
// confidence or the least confident item, whichever is lower.
func overallConfidence(intent mealagent.Intent, items []nutrition.ResolvedItem) float64 {
	min := intent.Confidence
	for _, item := range items {
		if item.Confidence < min {
			min = item.Confidence
		}
	}
	return min
}

func draftFrom(items []nutrition.ResolvedItem) *mealagent.Draft {
	draft := &mealagent.Draft{Items: make([]mealagent.DraftItem, 0, len(items))}
	for _, item := range items {
		draft.Items = append(draft.Items, mealagent.DraftItem{
			Name:        item.Name,
			Display:     item.Display,
			Grams:       item.AmountGrams,
			Kcal:        item.Kcal,
			Protein:     item.Protein,
			Carbs:       item.Carbs,
			Fat:         item.Fat,
			Source:      item.Source,
			Confidence:  item.Confidence,
			Assumptions: item.Assumptions,
		})
	}
	return draft
}

var mealLabels = []struct {
	token string
	label string
}{
	{"breakfast", "Breakfast"},
	{"frühstück", "Breakfast"},
	{"lunch", "Lunch"},
	{"mittag", "Lunch"},
	{"dinner", "Dinner"},
	{"abendessen", "Dinner"},
	{"supper", "Dinner"},
	{"snack", "Snack"},
}

// inferMealLabel picks a human label from the raw text, defaulting to "Meal".
func inferMealLabel(text string) string {
	lower := strings.ToLower(text)
	for _, ml := range mealLabels {
		if strings.Contains(lower, ml.token) {
			return ml.label
		}
	}
	return "Meal"
}

func timeOfDay(t time.Time) string {
	switch h := t.Hour(); {
	case h < 5:
		return "night"
	case h < 11:
		return "morning"
	case h < 15:
		return "midday"
	case h < 18:
		return "afternoon"
	default:
		return "evening"
	}
}

func okResult(intent mealagent.Intent, message string) mealagent.RunResult {
	return mealagent.RunResult{
		OK:      true,
		Action:  string(intent.Action),
		Message: message,
		Envelope: mealagent.Envelope{
			OK:         true,
			Message:    message,
			Actions:    []string{string(intent.Action)},
			Confidence: intent.Confidence,
		},
	}
}

func clarifyResult(intent mealagent.Intent, question string) mealagent.RunResult {
	return mealagent.RunResult{
		OK:      false,
		Action:  string(intent.Action),
		Message: question,
		Envelope: mealagent.Envelope{
			OK:            false,
			Message:       question,
			Actions:       []string{string(intent.Action)},
			Confidence:    intent.Confidence,
			RequiresInput: &question,
		},
	}
}

func failedResult() mealagent.RunResult {
	msg := "Something went wrong saving your meal. Nothing was recorded for this turn."
	return mealagent.RunResult{
		OK:      false,
		Message: msg,
		Envelope: mealagent.Envelope{
			OK:      false,
			Message: msg,
		},
	}
}
