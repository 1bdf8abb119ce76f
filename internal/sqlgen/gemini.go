package sqlgen

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/takashabe/bigquery-mcp/internal/errs"
)

// Gemini generates text with the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, errs.New(errs.Configuration, "GOOGLE_AI_KEY environment variable is not set")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errs.Wrap(errs.Configuration, "failed to create Gemini client", err)
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Generate(ctx context.Context, req Request) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.SystemInstruction, genai.RoleUser),
		Temperature:       genai.Ptr(req.Sampling.Temperature),
		TopK:              genai.Ptr(req.Sampling.TopK),
		TopP:              genai.Ptr(req.Sampling.TopP),
		MaxOutputTokens:   req.Sampling.MaxOutputTokens,
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(req.UserTurn), config)
	if err != nil {
		return "", err
	}
	return firstCandidateText(resp)
}

func firstCandidateText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", ErrNoCandidates
	}
	c := resp.Candidates[0]
	if c.Content == nil || len(c.Content.Parts) == 0 {
		return "", fmt.Errorf("malformed response: candidate has no content parts (finish reason %q)", c.FinishReason)
	}

	var b strings.Builder
	for _, p := range c.Content.Parts {
		if p != nil {
			b.WriteString(p.Text)
		}
	}
	return b.String(), nil
}
