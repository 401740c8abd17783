package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"seedbed/internal/models"
	"seedbed/internal/projection"
	"seedbed/internal/services"
	"seedbed/pkg/utils"

	"github.com/google/uuid"
)

const classifierPrompt = `Classify the following personal note into a single broad category (e.g. work, health, finance, ideas, people, errands).

Note content:
%s

Respond with a JSON object: {"category": "<category>"}.`

type classifierVerdict struct {
	Category string `json:"category"`
}

// ClassifierAutomation is the scheduled, batch-oriented shape: it never
// reacts to per-entity pressure and its per-seed Process is a no-op. An
// external scheduler invokes ClassifyBatch instead.
type ClassifierAutomation struct {
	Base
}

var _ Automation = (*ClassifierAutomation)(nil)

func NewClassifierAutomation() *ClassifierAutomation {
	return &ClassifierAutomation{}
}

func (a *ClassifierAutomation) Name() string { return "seed-classifier" }
func (a *ClassifierAutomation) Description() string {
	return "Batch-classifies seeds into broad categories on a schedule"
}
func (a *ClassifierAutomation) HandlerFnName() string { return "processBatchClassification" }

func (a *ClassifierAutomation) CalculatePressure(seed *projection.SeedState, actx *Context, changes []models.CategoryChange) float64 {
	return 0
}

// PressureThreshold of 100 keeps reactive triggering off while manual
// invocation stays possible.
func (a *ClassifierAutomation) PressureThreshold() float64 {
	return 100
}

func (a *ClassifierAutomation) Process(ctx context.Context, seed *projection.SeedState, actx *Context) (*Result, error) {
	return &Result{}, nil
}

// ClassifyBatch classifies many seeds in one pass and returns one
// set_metadata transaction per classified seed. The caller appends them;
// a seed that fails to classify is skipped, not fatal.
func (a *ClassifierAutomation) ClassifyBatch(ctx context.Context, seeds []*projection.SeedState, actx *Context) ([]models.Transaction, error) {
	if actx == nil || actx.Completions == nil {
		return nil, fmt.Errorf("completion service required for batch classification")
	}

	var out []models.Transaction
	for _, seed := range seeds {
		if seed == nil || seed.Content == "" {
			continue
		}
		callCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
		text, err := actx.Completions.GenerateText(callCtx, fmt.Sprintf(classifierPrompt, seed.Content), services.CompletionOptions{})
		cancel()
		if err != nil {
			actx.log().Warnf("classifier: completion failed for seed %s: %v", seed.SeedID, err)
			continue
		}
		var verdict classifierVerdict
		if err := utils.DecodeJSONObject(text, &verdict); err != nil || verdict.Category == "" {
			actx.log().Warnf("classifier: unparseable category for seed %s", seed.SeedID)
			continue
		}
		data, _ := json.Marshal(map[string]string{
			"key":   "suggested_category",
			"value": verdict.Category,
		})
		id := a.ID()
		out = append(out, models.Transaction{
			ID:           uuid.NewString(),
			OwnerID:      seed.SeedID,
			Type:         models.TxSetMetadata,
			Data:         string(data),
			AutomationID: &id,
		})
	}
	return out, nil
}
