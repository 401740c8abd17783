package automation

import (
	"context"
	"fmt"
	"time"

	"seedbed/internal/models"
	"seedbed/internal/projection"
	"seedbed/internal/services"
	"seedbed/pkg/utils"
)

// followUpConfidenceBar is the minimum confidence before a sprout is
// created. The model over-suggests; the bar is deliberately high.
const followUpConfidenceBar = 85.0

const followUpPrompt = `You are reviewing a personal note to decide whether it implies a follow-up action.

Note content:
%s

Respond with a JSON object: {"confidence": <0-100>, "due_time": "<RFC3339 or empty>", "message": "<short follow-up reminder>"}.
Confidence is how certain you are that the note needs a follow-up.`

type followUpVerdict struct {
	Confidence float64 `json:"confidence"`
	DueTime    string  `json:"due_time"`
	Message    string  `json:"message"`
}

// FollowUpAutomation analyzes seed content for follow-up need. Its effect
// is a side-channel entity: above the confidence bar it creates a sprout
// and deliberately returns zero transactions.
type FollowUpAutomation struct {
	Base
}

var _ Automation = (*FollowUpAutomation)(nil)

func NewFollowUpAutomation() *FollowUpAutomation {
	return &FollowUpAutomation{}
}

func (a *FollowUpAutomation) Name() string        { return "follow-up-detector" }
func (a *FollowUpAutomation) Description() string {
	return "Detects notes that imply a follow-up action and creates a follow-up sprout"
}
func (a *FollowUpAutomation) HandlerFnName() string { return "processFollowUpDetection" }

func (a *FollowUpAutomation) ValidateSeed(seed *projection.SeedState, actx *Context) bool {
	return seed != nil && seed.Content != ""
}

// CalculatePressure weighs structural changes touching the seed's
// categories. Pure and fast: no store or service calls here.
func (a *FollowUpAutomation) CalculatePressure(seed *projection.SeedState, actx *Context, changes []models.CategoryChange) float64 {
	if seed == nil {
		return 0
	}
	var total float64
	for _, ch := range changes {
		if !seed.HasCategory(ch.CategoryID) {
			continue
		}
		switch ch.Type {
		case models.CategoryRemove:
			total += 25
		case models.CategoryMove:
			total += 15
		case models.CategoryRename:
			total += 10
		case models.CategoryAddChild:
			total += 5
		}
	}
	return utils.Clamp(total, 0, 100)
}

// Process asks the completion service for a follow-up verdict. Anything
// short of a well-formed, in-range, above-bar answer is a soft failure:
// log and return an empty result, never an error that would fail the job.
func (a *FollowUpAutomation) Process(ctx context.Context, seed *projection.SeedState, actx *Context) (*Result, error) {
	empty := &Result{}
	if actx == nil || actx.Completions == nil || actx.Sprouts == nil {
		return empty, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := actx.Completions.CreateChatCompletion(callCtx, []services.Message{
		{Role: "user", Content: fmt.Sprintf(followUpPrompt, seed.Content)},
	}, services.CompletionOptions{})
	if err != nil {
		actx.log().Warnf("follow-up: completion failed for seed %s: %v", seed.SeedID, err)
		return empty, nil
	}
	if len(resp.Choices) == 0 {
		actx.log().Warnf("follow-up: empty choice set for seed %s", seed.SeedID)
		return empty, nil
	}

	// The payload may arrive bare or buried in prose.
	var verdict followUpVerdict
	if err := utils.DecodeJSONObject(resp.Choices[0].Message.Content, &verdict); err != nil {
		actx.log().Warnf("follow-up: unparseable verdict for seed %s: %v", seed.SeedID, err)
		return empty, nil
	}
	if verdict.Confidence < 0 || verdict.Confidence > 100 {
		actx.log().Warnf("follow-up: confidence %.1f out of range for seed %s", verdict.Confidence, seed.SeedID)
		return empty, nil
	}
	if verdict.Confidence <= followUpConfidenceBar || verdict.Message == "" {
		return empty, nil
	}

	var due *time.Time
	if verdict.DueTime != "" {
		if t, err := time.Parse(time.RFC3339, verdict.DueTime); err == nil {
			due = &t
		}
	}

	if _, err := actx.Sprouts.CreateSprout(ctx, seed.SeedID, actx.UserID, models.SproutFollowUp, verdict.Message, due); err != nil {
		return empty, fmt.Errorf("create follow-up sprout: %w", err)
	}

	return &Result{
		Metadata: map[string]string{
			"confidence": fmt.Sprintf("%.0f", verdict.Confidence),
		},
	}, nil
}
