// Package nl2sql turns questions about a registered table into SQL, prose
// answers and plot descriptors using the generative model.
package nl2sql

import (
	"errors"
	"strings"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotAPlotRequest  = errors.New("question is not a plot request")
	plotRequestKeywords = []string{"plot", "graph", "chart", "visualize", "display"}
)

// IsPlotRequest reports whether question mentions one of the plot keywords.
func IsPlotRequest(question string) bool {
	lower := strings.ToLower(question)
	for _, keyword := range plotRequestKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

func blank(values ...string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return true
		}
	}
	return false
}
