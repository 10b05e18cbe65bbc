package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/tabletalk/tabletalk/internal/errs"
	"github.com/tabletalk/tabletalk/internal/guard"
)

func tableNameRules() []validation.Rule {
	return []validation.Rule{validation.Required, guard.Identifier}
}

type questionRequest struct {
	TableName string `json:"tableName"`
	Question  string `json:"question"`
}

func (r questionRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.TableName, tableNameRules()...),
		validation.Field(&r.Question, validation.Required, validation.By(notBlank)),
	)
}

// provisionRequest carries the table document in metaData, either as a JSON
// string or inline.
type provisionRequest struct {
	MetaData json.RawMessage `json:"metaData"`
}

func (r provisionRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.MetaData, validation.Required, validation.By(notNull)),
	)
}

// Document returns the table document text.
func (r provisionRequest) Document() string {
	var s string
	if err := json.Unmarshal(r.MetaData, &s); err == nil {
		return s
	}
	return string(r.MetaData)
}

// tableRequest names an existing or archived table.
type tableRequest struct {
	TableName string `json:"tableName"`
}

func (r tableRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.TableName, tableNameRules()...),
	)
}

func notBlank(value any) error {
	if s, _ := value.(string); strings.TrimSpace(s) == "" {
		return errors.New("cannot be blank")
	}
	return nil
}

func notNull(value any) error {
	raw, _ := value.(json.RawMessage)
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "null" || trimmed == `""` {
		return errors.New("cannot be blank")
	}
	return nil
}

// decodeRequest reads a JSON body into dst and validates it.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst validation.Validatable) error {
	const op errs.Op = "api.decodeRequest"
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dst); err != nil {
		return errs.E(errs.Validation, op, fmt.Errorf("invalid request body: %w", err))
	}
	if err := dst.Validate(); err != nil {
		return errs.E(errs.Validation, op, err)
	}
	return nil
}
