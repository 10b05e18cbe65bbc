package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tabletalk/tabletalk/internal/errs"
)

type OpenAIConfig struct {
	BaseURL string
	APIKey  string
}

// OpenAICompleter talks to any OpenAI-compatible chat completions endpoint.
type OpenAICompleter struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewOpenAICompleter(cfg OpenAIConfig) (*OpenAICompleter, error) {
	const op errs.Op = "llm.NewOpenAICompleter"
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errs.E(errs.Config, op, "base URL is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errs.E(errs.Config, op, ErrMissingAPIKey)
	}
	return &OpenAICompleter{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		client:  &http.Client{},
	}, nil
}

func (c *OpenAICompleter) Complete(ctx context.Context, prompt string, profile Profile) (string, error) {
	body, err := json.Marshal(chatPayload(prompt, profile))
	if err != nil {
		return "", fmt.Errorf("marshal chat payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request chat completion: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", &StatusError{Code: resp.StatusCode, Body: string(rawRespBody)}
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return "", fmt.Errorf("decode chat completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", nil
	}
	return parsed.Choices[0].Message.Content, nil
}

func chatPayload(prompt string, profile Profile) map[string]any {
	return map[string]any{
		"model": profile.Model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": profile.Temperature,
		"top_p":       profile.TopP,
		"max_tokens":  profile.MaxOutputTokens,
	}
}
