// Package generator turns extracted document text into flashcards with a
// single Gemini call.
package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const systemInstruction = "You are a flashcard author. Given a document, identify its topic " +
	"and produce at most 10 question-answer pairs suitable for flashcards about it. " +
	"Questions must be answerable from the document alone. " +
	`Respond with JSON only, shaped as {"topic": string, "cards": [{"question": string, "answer": string}]}.`

// QA is a single generated question-answer pair.
type QA struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Result is the outcome of one generation call.
type Result struct {
	Topic string `json:"topic"`
	Cards []QA   `json:"cards"`
}

// Generator wraps the Gemini client used for card generation.
type Generator struct {
	client *genai.Client
	model  string
}

// New creates a card generator backed by the given Gemini model.
func New(ctx context.Context, apiKey, model string) (*Generator, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Generator{client: client, model: model}, nil
}

// Close releases the underlying client.
func (g *Generator) Close() error {
	return g.client.Close()
}

// GenerateCards asks the model for a topic and question-answer pairs covering
// the given document text.
func (g *Generator) GenerateCards(ctx context.Context, text string) (Result, error) {
	model := g.client.GenerativeModel(g.model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemInstruction)},
	}
	model.ResponseMIMEType = "application/json"

	resp, err := model.GenerateContent(ctx, genai.Text(text))
	if err != nil {
		return Result{}, fmt.Errorf("gemini generation request failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Result{}, fmt.Errorf("no candidates received from gemini")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}

	var res Result
	if err := json.Unmarshal([]byte(stripFences(sb.String())), &res); err != nil {
		return Result{}, fmt.Errorf("failed to parse generation response: %w", err)
	}
	if len(res.Cards) == 0 {
		return Result{}, fmt.Errorf("model produced no cards")
	}
	return res, nil
}

// stripFences removes a markdown code fence the model sometimes wraps its
// JSON in despite the response MIME type.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
