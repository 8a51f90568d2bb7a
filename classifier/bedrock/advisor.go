package bedrock

import (
	"context"
	"fmt"
	"log/slog"

	"mealagent/nutrition"
)

// Advisor implements nutrition.Advisor: a reasoning step that nominates one
// of the ranked candidates for an item. Nominations still pass through the
// selector's plausibility guard.
type Advisor struct {
	llm llmClient
}

func NewAdvisor(llm llmClient) *Advisor {
	return &Advisor{llm: llm}
}

func (a *Advisor) Nominate(ctx context.Context, itemName string, ranked []nutrition.RankedCandidate) (nutrition.Nomination, error) {
	user, err := newNominationUserMessage(itemName, ranked)
	if err != nil {
		return nutrition.Nomination{}, err
	}

	raw, err := a.llm.Invoke(ctx, nominationSystemPrompt, user)
	if err != nil {
		return nutrition.Nomination{}, fmt.Errorf("failed to invoke LLM: %w", err)
	}

	var nom nutrition.Nomination
	if err := validateAgainst(nominationSchema(), raw, &nom); err != nil {
		return nutrition.Nomination{}, fmt.Errorf("nomination response rejected: %w", err)
	}

	// The id must come from the offered list; anything else is a model slip.
	found := false
	for _, rc := range ranked {
		if rc.Candidate.ID == nom.CandidateID {
			found = true
			break
		}
	}
	if !found {
		return nutrition.Nomination{}, fmt.Errorf("nominated candidate %q not among offered candidates", nom.CandidateID)
	}

	slog.Info("BEDROCK_ADVISOR: Nominated candidate", "item", itemName, "candidate_id", nom.CandidateID)
	return nom, nil
}
