package assistant

import (
	"bytes"
	"encoding/json"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/tabletalk/tabletalk/internal/catalog"
	"github.com/tabletalk/tabletalk/internal/guard"
)

// jsonText accepts either a JSON string holding a document or the document
// itself, and keeps the document text.
type jsonText string

func (t *jsonText) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = jsonText(s)
		return nil
	}
	*t = jsonText(bytes.TrimSpace(data))
	return nil
}

// ProvisionPayload is the decoded metaData document of a provisioning
// request.
type ProvisionPayload struct {
	TableName string   `json:"tableName"`
	MetaData  jsonText `json:"metaData"`
	Data      jsonText `json:"data"`
}

func (p ProvisionPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.TableName, validation.Required, guard.Identifier),
		validation.Field(&p.MetaData, validation.Required),
		validation.Field(&p.Data, validation.Required),
	)
}

// ParseProvisionPayload decodes and validates raw, then parses the column
// map and the row array.
func ParseProvisionPayload(raw string) (catalog.TableDef, []catalog.Row, error) {
	var payload ProvisionPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return catalog.TableDef{}, nil, fmt.Errorf("invalid metaData: %w", err)
	}
	if err := payload.Validate(); err != nil {
		return catalog.TableDef{}, nil, err
	}
	columns, err := catalog.ParseColumns(string(payload.MetaData))
	if err != nil {
		return catalog.TableDef{}, nil, err
	}
	rows, err := catalog.ParseRows(string(payload.Data))
	if err != nil {
		return catalog.TableDef{}, nil, err
	}
	def := catalog.TableDef{Name: payload.TableName, Columns: columns}
	if err := def.Validate(); err != nil {
		return catalog.TableDef{}, nil, err
	}
	return def, rows, nil
}
