// Package llm wraps the generative model behind a small Completer seam and
// races every call against a timeout.
package llm

import (
	"context"
	"errors"

	"github.com/tabletalk/tabletalk/internal/config"
)

var (
	ErrTimeout       = errors.New("model call timed out")
	ErrEmptyResponse = errors.New("model returned an empty completion")
	ErrMissingAPIKey = errors.New("model API key is not configured")
)

const (
	ProfileQuery  = "query"
	ProfileAnswer = "answer"
	ProfilePlot   = "plot"
)

// Profile carries the generation parameters for one kind of call.
type Profile struct {
	Name            string
	Model           string
	Temperature     float32
	TopK            int32
	TopP            float32
	MaxOutputTokens int32
}

func DefaultProfile(name, model string) Profile {
	return Profile{
		Name:            name,
		Model:           model,
		Temperature:     0.7,
		TopK:            40,
		TopP:            0.9,
		MaxOutputTokens: 1024,
	}
}

type Profiles struct {
	Query  Profile
	Answer Profile
	Plot   Profile
}

func ProfilesFromConfig(cfg config.AIConfig) Profiles {
	build := func(name, model string) Profile {
		p := DefaultProfile(name, model)
		if cfg.Temperature > 0 {
			p.Temperature = float32(cfg.Temperature)
		}
		if cfg.TopK > 0 {
			p.TopK = int32(cfg.TopK)
		}
		if cfg.TopP > 0 {
			p.TopP = float32(cfg.TopP)
		}
		if cfg.MaxOutputTokens > 0 {
			p.MaxOutputTokens = int32(cfg.MaxOutputTokens)
		}
		return p
	}
	return Profiles{
		Query:  build(ProfileQuery, cfg.QueryModel),
		Answer: build(ProfileAnswer, cfg.AnswerModel),
		Plot:   build(ProfilePlot, cfg.PlotModel),
	}
}

// Completer sends a single prompt to a model provider and returns the raw
// completion text.
type Completer interface {
	Complete(ctx context.Context, prompt string, profile Profile) (string, error)
}

// Model is what the pipeline depends on: a prompt in, a trimmed non-empty
// completion out.
type Model interface {
	Invoke(ctx context.Context, prompt string, profile Profile) (string, error)
}
