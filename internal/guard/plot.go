package guard

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tabletalk/tabletalk/internal/errs"
)

var (
	ErrInvalidFormat   = errors.New("completion is not a JSON object")
	ErrInvalidPlotType = errors.New("plot must be an integer between 1 and 3")
	ErrInvalidColumns  = errors.New("columns must be a non-empty array of non-blank strings")
)

type PlotType int

const (
	PlotLine    PlotType = 1
	PlotBar     PlotType = 2
	PlotScatter PlotType = 3
)

func (p PlotType) String() string {
	switch p {
	case PlotLine:
		return "line"
	case PlotBar:
		return "bar"
	case PlotScatter:
		return "scatter"
	}
	return fmt.Sprintf("PlotType(%d)", int(p))
}

type PlotDescriptor struct {
	Plot    PlotType `json:"plot"`
	Columns []string `json:"columns"`
}

// ValidatePlot parses a model completion into a PlotDescriptor. Failures are
// terminal; there is no fallback descriptor.
func ValidatePlot(completion string) (PlotDescriptor, error) {
	const op errs.Op = "guard.ValidatePlot"

	dec := json.NewDecoder(bytes.NewReader([]byte(strings.TrimSpace(completion))))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil || raw == nil {
		return PlotDescriptor{}, errs.E(errs.ProviderOther, op, ErrInvalidFormat)
	}
	if dec.More() {
		return PlotDescriptor{}, errs.E(errs.ProviderOther, op, ErrInvalidFormat)
	}

	num, ok := raw["plot"].(json.Number)
	if !ok {
		return PlotDescriptor{}, errs.E(errs.ProviderOther, op, ErrInvalidPlotType)
	}
	plot, err := num.Int64()
	if err != nil || plot < int64(PlotLine) || plot > int64(PlotScatter) {
		return PlotDescriptor{}, errs.E(errs.ProviderOther, op, ErrInvalidPlotType)
	}

	items, ok := raw["columns"].([]any)
	if !ok || len(items) == 0 {
		return PlotDescriptor{}, errs.E(errs.ProviderOther, op, ErrInvalidColumns)
	}
	columns := make([]string, 0, len(items))
	for _, item := range items {
		name, ok := item.(string)
		if !ok || strings.TrimSpace(name) == "" {
			return PlotDescriptor{}, errs.E(errs.ProviderOther, op, ErrInvalidColumns)
		}
		columns = append(columns, name)
	}

	return PlotDescriptor{Plot: PlotType(plot), Columns: columns}, nil
}
