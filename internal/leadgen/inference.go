package leadgen

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-cli/internal/cost"
	"github.com/sells-group/leadgen-cli/internal/monitoring"
	"github.com/sells-group/leadgen-cli/pkg/anthropic"
	"github.com/sells-group/leadgen-cli/pkg/perplexity"
)

const enrichSystemPrompt = `You are a B2B sales analyst for a printing company that makes custom labels, ` +
	`stickers, packaging and branded stationery for Indian small businesses. Given a business ` +
	`listing, reply with a single JSON object and nothing else:
{"potential_needs": [string], "estimated_value": number, "suggested_pitch": string, "insights": string}
estimated_value is the likely annual order value in INR.`

const scoreSystemPrompt = `You score sales leads for a printing company that sells custom labels and ` +
	`stickers. Use what you can find about the business online. Reply with a JSON object only.`

// ClaudeEnricher implements Enricher with the Anthropic Messages API.
type ClaudeEnricher struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewClaudeEnricher creates an enricher using model.
func NewClaudeEnricher(client anthropic.Client, model string, maxTokens int64) *ClaudeEnricher {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &ClaudeEnricher{client: client, model: model, maxTokens: maxTokens}
}

// Enrich asks the model for sales metadata about in.
func (e *ClaudeEnricher) Enrich(ctx context.Context, in LeadInput) (Enrichment, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return Enrichment{}, eris.Wrap(err, "enrich: marshal lead")
	}

	resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     e.model,
		MaxTokens: e.maxTokens,
		System:    enrichSystemPrompt,
		Messages:  []anthropic.Message{{Role: "user", Content: "Business listing:\n" + string(body)}},
	})
	monitoring.RecordProviderCall("anthropic", "enrich", err)
	if err != nil {
		return Enrichment{}, eris.Wrap(err, "enrich: create message")
	}

	var out Enrichment
	if err := decodeJSONAnswer(resp.Text(), &out); err != nil {
		return Enrichment{}, eris.Wrap(err, "enrich: parse answer")
	}
	out.Usage = cost.Usage{InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens}
	return out, nil
}

// scoreSchema constrains the Perplexity answer.
var scoreSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"score":      map[string]any{"type": "integer", "minimum": 0, "maximum": 100},
		"priority":   map[string]any{"type": "string", "enum": []string{"hot", "warm", "cold"}},
		"confidence": map[string]any{"type": "string", "enum": []string{"high", "medium", "low"}},
	},
	"required": []string{"score", "priority", "confidence"},
}

// PerplexityScorer implements Scorer with Perplexity's search-grounded chat.
type PerplexityScorer struct {
	client perplexity.Client
}

// NewPerplexityScorer creates a scorer over client.
func NewPerplexityScorer(client perplexity.Client) *PerplexityScorer {
	return &PerplexityScorer{client: client}
}

// Score rates in on a 0-100 scale.
func (s *PerplexityScorer) Score(ctx context.Context, in LeadInput, e Enrichment) (Score, error) {
	payload, err := json.Marshal(struct {
		LeadInput
		Enrichment
	}{in, e})
	if err != nil {
		return Score{}, eris.Wrap(err, "score: marshal lead")
	}

	resp, err := s.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Messages: []perplexity.Message{
			{Role: "system", Content: scoreSystemPrompt},
			{Role: "user", Content: fmt.Sprintf("Score this lead:\n%s", payload)},
		},
		ResponseFormat: &perplexity.ResponseFormat{
			Type:       "json_schema",
			JSONSchema: &perplexity.JSONSchema{Schema: scoreSchema},
		},
	})
	monitoring.RecordProviderCall("perplexity", "score", err)
	if err != nil {
		return Score{}, eris.Wrap(err, "score: chat completion")
	}

	var out Score
	if err := decodeJSONAnswer(resp.Content(), &out); err != nil {
		return Score{}, eris.Wrap(err, "score: parse answer")
	}
	out.Usage = cost.Usage{PerplexityQueries: 1}
	return out, nil
}

// decodeJSONAnswer parses the first JSON object in a model answer, ignoring
// markdown fences and surrounding prose.
func decodeJSONAnswer(text string, v any) error {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return eris.New("no JSON object in answer")
	}
	return json.Unmarshal([]byte(text[start:end+1]), v)
}
