package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"seedbed/internal/config"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Message is one chat turn sent to the completion service.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionOptions tune a single completion call. Zero values fall back
// to the client's configured defaults.
type CompletionOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// ChatChoiceMessage carries the model output. Reasoning is optional and
// only present on models that expose it.
type ChatChoiceMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Reasoning string `json:"reasoning,omitempty"`
}

type ChatChoice struct {
	Message ChatChoiceMessage `json:"message"`
}

type ChatCompletionResponse struct {
	Choices []ChatChoice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

type chatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

// CompletionService is the surface automations see. Responses are
// untrusted text; callers must parse defensively.
type CompletionService interface {
	CreateChatCompletion(ctx context.Context, messages []Message, opts CompletionOptions) (*ChatCompletionResponse, error)
	GenerateText(ctx context.Context, prompt string, opts CompletionOptions) (string, error)
}

// CompletionClient talks to an OpenAI-compatible chat completions API.
type CompletionClient struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	client      *http.Client
	logger      *logrus.Logger
}

var _ CompletionService = (*CompletionClient)(nil)

func NewCompletionClient(cfg config.OpenAIConfig, logger *logrus.Logger) *CompletionClient {
	if logger == nil {
		logger = logrus.New()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CompletionClient{
		apiKey:      cfg.APIKey,
		baseURL:     cfg.BaseURL,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// CreateChatCompletion posts the messages and returns the raw choice set.
func (c *CompletionClient) CreateChatCompletion(ctx context.Context, messages []Message, opts CompletionOptions) (*ChatCompletionResponse, error) {
	tracer := otel.Tracer("seedbed/ai")
	ctx, span := tracer.Start(ctx, "CompletionClient.CreateChatCompletion")
	defer span.End()

	if c.apiKey == "" {
		return nil, fmt.Errorf("completion service not configured")
	}

	model := opts.Model
	if model == "" {
		model = c.model
	}
	span.SetAttributes(attribute.String("model", model))

	temperature := opts.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	request := chatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}

	reqBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/chat/completions", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))

	resp, err := c.client.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var completion ChatCompletionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if completion.Error != nil {
		span.SetStatus(codes.Error, completion.Error.Message)
		return nil, fmt.Errorf("completion API error: %s", completion.Error.Message)
	}

	if len(completion.Choices) == 0 {
		span.SetStatus(codes.Error, "no response choices")
		return nil, fmt.Errorf("no response from completion service")
	}

	return &completion, nil
}

// GenerateText is the single-prompt convenience wrapper.
func (c *CompletionClient) GenerateText(ctx context.Context, prompt string, opts CompletionOptions) (string, error) {
	resp, err := c.CreateChatCompletion(ctx, []Message{{Role: "user", Content: prompt}}, opts)
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Message.Content, nil
}
