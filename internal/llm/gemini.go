package llm

import (
	"context"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/tabletalk/tabletalk/internal/errs"
)

// GeminiCompleter calls Google's Gemini models through one shared client.
// The GenerativeModel handle is built per call from the profile.
type GeminiCompleter struct {
	client *genai.Client
}

func NewGeminiCompleter(ctx context.Context, apiKey string, opts ...option.ClientOption) (*GeminiCompleter, error) {
	const op errs.Op = "llm.NewGeminiCompleter"
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errs.E(errs.Config, op, ErrMissingAPIKey)
	}
	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, errs.E(errs.Config, op, err)
	}
	return &GeminiCompleter{client: client}, nil
}

func (g *GeminiCompleter) Complete(ctx context.Context, prompt string, profile Profile) (string, error) {
	model := g.client.GenerativeModel(profile.Model)
	model.SetTemperature(profile.Temperature)
	model.SetTopK(profile.TopK)
	model.SetTopP(profile.TopP)
	model.SetMaxOutputTokens(profile.MaxOutputTokens)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	return responseText(resp), nil
}

func (g *GeminiCompleter) Close() error {
	return g.client.Close()
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	candidate := resp.Candidates[0]
	if candidate == nil || candidate.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String()
}
