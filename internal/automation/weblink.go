package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"seedbed/internal/models"
	"seedbed/internal/projection"
	"seedbed/internal/services"
	"seedbed/pkg/utils"
)

var urlPattern = regexp.MustCompile(`https?://[^\s<>"')]+`)

// maxPageChars bounds how much fetched content goes into the summary
// prompt.
const maxPageChars = 8000

const summarizePrompt = `Summarize the following web page in two or three sentences for a personal notes app.

Page URL: %s

Page content:
%s

Respond with a JSON object: {"summary": "<summary>"}.`

type summaryVerdict struct {
	Summary string `json:"summary"`
}

// WebLinkAutomation is the tool-augmented, multi-step shape: identify a
// link in the seed, fetch it through the external content tool, summarize
// via the completion service, and record the summary as metadata. Any
// failed stage fails closed with an empty result — never a partial apply.
type WebLinkAutomation struct {
	Base
}

var _ Automation = (*WebLinkAutomation)(nil)

func NewWebLinkAutomation() *WebLinkAutomation {
	return &WebLinkAutomation{}
}

func (a *WebLinkAutomation) Name() string { return "web-link-summarizer" }
func (a *WebLinkAutomation) Description() string {
	return "Fetches links found in seed content and records an AI summary"
}
func (a *WebLinkAutomation) HandlerFnName() string { return "processWebLinkSummary" }

func (a *WebLinkAutomation) ValidateSeed(seed *projection.SeedState, actx *Context) bool {
	return seed != nil && urlPattern.MatchString(seed.Content)
}

func (a *WebLinkAutomation) CalculatePressure(seed *projection.SeedState, actx *Context, changes []models.CategoryChange) float64 {
	if seed == nil || !urlPattern.MatchString(seed.Content) {
		return 0
	}
	var total float64
	for _, ch := range changes {
		if seed.HasCategory(ch.CategoryID) {
			total += 10
		}
	}
	return utils.Clamp(total, 0, 100)
}

func (a *WebLinkAutomation) Process(ctx context.Context, seed *projection.SeedState, actx *Context) (*Result, error) {
	empty := &Result{}
	if actx == nil || actx.Completions == nil || actx.Fetcher == nil {
		return empty, nil
	}

	// Stage 1: identify the link.
	url := urlPattern.FindString(seed.Content)
	if url == "" {
		return empty, nil
	}
	if seed.Metadata["link_summary"] != "" {
		// Already summarized; re-processing is a no-op by construction.
		return empty, nil
	}

	// Stage 2: fetch external content.
	fetchCtx, cancelFetch := context.WithTimeout(ctx, 20*time.Second)
	defer cancelFetch()
	page, err := actx.Fetcher.FetchPage(fetchCtx, url)
	if err != nil {
		actx.log().Warnf("web-link: fetch %s failed for seed %s: %v", url, seed.SeedID, err)
		return empty, nil
	}
	body := page.Body
	if len(body) > maxPageChars {
		body = body[:maxPageChars]
	}

	// Stage 3: summarize.
	sumCtx, cancelSum := context.WithTimeout(ctx, 30*time.Second)
	defer cancelSum()
	text, err := actx.Completions.GenerateText(sumCtx, fmt.Sprintf(summarizePrompt, url, body), services.CompletionOptions{})
	if err != nil {
		actx.log().Warnf("web-link: summarize %s failed for seed %s: %v", url, seed.SeedID, err)
		return empty, nil
	}
	var verdict summaryVerdict
	if err := utils.DecodeJSONObject(text, &verdict); err != nil || verdict.Summary == "" {
		actx.log().Warnf("web-link: unparseable summary for seed %s", seed.SeedID)
		return empty, nil
	}

	data, _ := json.Marshal(map[string]string{
		"key":   "link_summary",
		"value": verdict.Summary,
	})
	return &Result{
		Transactions: []models.Transaction{{
			OwnerID: seed.SeedID,
			Type:    models.TxSetMetadata,
			Data:    string(data),
		}},
		Metadata: map[string]string{"url": url},
	}, nil
}
