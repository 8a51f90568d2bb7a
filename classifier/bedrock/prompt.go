package bedrock

import (
	"encoding/json"
	"fmt"
	"strings"

	"mealagent"
	"mealagent/nutrition"
)

const intentSystemPrompt = `You are the intent classifier of a meal-logging assistant.

The user sends free-form text about food they ate. Classify it into exactly one action and extract every food item mentioned.

ACTIONS
- "log": the user reports food to record
- "patch": the user corrects an item already logged ("actually it was 150g")
- "replace": the user wants a meal's items replaced entirely
- "delete": the user wants a meal (or all of today's meals) removed
- "list": the user wants to see what was logged
- "clarify": the text cannot be acted on without more information

OUTPUT CONTRACT
- Respond with ONE valid JSON object only (no extra text, no markdown, no code fences). Start with '{' and end with '}'.
- Shape:
{
  "action": "log|patch|replace|delete|list|clarify",
  "meal_ref": integer,            // only when the user references a meal like "#2" or "meal 2"
  "delete_scope": "one|all",      // only for delete
  "items": [
    {
      "name": string,             // canonical food name, lowercase
      "display": string,          // the user's phrasing
      "quantity": number, "unit": string, "size": string,
      "amount_grams": number,     // only when grams are stated or directly implied
      "kcal": number, "protein": number, "carbs": number, "fat": number  // only when the user stated them
    }
  ],
  "confidence": number,           // 0..1
  "requires_input": string,       // a follow-up question; only when the action needs an item and none was found
  "reason": string
}

RULES
- Never invent nutrition values. Only echo numbers the user stated.
- An action that needs items (log/patch/replace) but has none extracted MUST set requires_input.
- Use the conversation context (active meal, last intent) to disambiguate corrections.`

// newIntentUserMessage renders the classification input as a JSON payload so
// the model sees session context alongside the utterance.
func newIntentUserMessage(input mealagent.ClassifyInput) (string, error) {
	b, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("failed to marshal classify input: %w", err)
	}
	return string(b), nil
}

const nominationSystemPrompt = `You pick the best nutrition database match for a food item.

You get the item name and a ranked list of candidates with per-100g macros. Nominate the single candidate whose product is most plausibly the named food. Prefer plain products over flavored or processed variants unless the item says otherwise.

OUTPUT CONTRACT
- Respond with ONE valid JSON object only (no extra text, no markdown, no code fences).
- Shape: {"candidate_id": string, "rationale": string}
- candidate_id MUST be one of the ids given. Never invent ids.`

// newNominationUserMessage renders the item plus its ranked candidates.
func newNominationUserMessage(itemName string, ranked []nutrition.RankedCandidate) (string, error) {
	payload := struct {
		Item       string                      `json:"item"`
		Candidates []nutrition.RankedCandidate `json:"candidates"`
	}{Item: itemName, Candidates: ranked}

	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal nomination input: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("Pick the best match for this item:\n")
	sb.Write(b)
	return sb.String(), nil
}
