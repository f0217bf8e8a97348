package nlu

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/akulikov/regdesk/internal/domain"
)

const classifyPrompt = `Classify the following user message into one of these intents:
- create: the user wants to create a new registration
- read: the user wants to view their registration data
- update: the user wants to update their registration
- delete: the user wants to delete their registration
- help: the user needs help or asks what you can do

User message: %q

Respond with ONLY the intent name (create/read/update/delete/help).`

// GeminiClassifier resolves intent with the Gemini API when the keyword
// rules come up empty. Model failures degrade to the rule result rather
// than failing the turn.
type GeminiClassifier struct {
	client  *genai.Client
	model   string
	rules   *RuleClassifier
	timeout time.Duration
	logger  *slog.Logger
}

// NewGeminiClassifier creates a model-backed classifier.
func NewGeminiClassifier(ctx context.Context, apiKey, model string, logger *slog.Logger) (*GeminiClassifier, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GeminiClassifier{
		client:  client,
		model:   model,
		rules:   NewRuleClassifier(),
		timeout: 10 * time.Second,
		logger:  logger,
	}, nil
}

// Classify tries the keyword rules first and only consults the model for
// utterances the rules cannot place.
func (c *GeminiClassifier) Classify(ctx context.Context, utterance string, sess *domain.Session) (Result, error) {
	res, err := c.rules.Classify(ctx, utterance, sess)
	if err != nil {
		return res, err
	}
	if res.Intent != domain.IntentUnknown {
		return res, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.Models.GenerateContent(ctx, c.model,
		genai.Text(fmt.Sprintf(classifyPrompt, utterance)),
		&genai.GenerateContentConfig{Temperature: genai.Ptr[float32](0)},
	)
	if err != nil {
		c.logger.Warn("gemini intent classification failed, keeping rule result",
			"error", err)
		return res, nil
	}

	switch strings.ToLower(strings.TrimSpace(resp.Text())) {
	case "create":
		res.Intent = domain.IntentCreate
	case "read":
		res.Intent = domain.IntentRead
	case "update":
		res.Intent = domain.IntentUpdate
	case "delete":
		res.Intent = domain.IntentDelete
	case "help":
		res.Intent = domain.IntentHelp
	default:
		// An answer outside the closed set is treated as ambiguous; the
		// engine will ask a clarifying question.
		res.Intent = domain.IntentUnknown
	}
	return res, nil
}
