// Package guard holds the checks that sit between the generative model and
// the database: input sanitizers, the read-only SELECT guard with its default
// query, and validation of plot descriptors.
package guard

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var (
	textDisallowed       = regexp.MustCompile(`[^\w\s?.,-]`)
	structuredDisallowed = regexp.MustCompile(`[^\w\s{}",:.-]`)
	identifierPattern    = regexp.MustCompile(`^\w{1,64}$`)
	fenceTagLine         = regexp.MustCompile(`^(?i:[a-z][\w+-]*)?$`)
	inlineFenceTag       = regexp.MustCompile(`^(?i:sql|mysql|json)\s+`)
	columnTypePattern    = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_ ]*(\(\s*\d+\s*(,\s*\d+\s*)?\))?[A-Za-z ]*$`)
)

var mutatingKeywords = []string{"DROP", "DELETE", "TRUNCATE", "ALTER", "UPDATE", "INSERT"}

// SanitizeText keeps word characters, whitespace and ? . , - from free text.
func SanitizeText(s string) string {
	return textDisallowed.ReplaceAllString(s, "")
}

// SanitizeStructured keeps the characters needed for JSON-ish schema and
// result fragments: word characters, whitespace and { } " : . , -.
func SanitizeStructured(s string) string {
	return structuredDisallowed.ReplaceAllString(s, "")
}

// IsSafeSelect reports whether q is a read-only SELECT. The keyword check is
// a plain substring match, so column names such as updated_at are rejected
// too.
func IsSafeSelect(q string) bool {
	upper := strings.ToUpper(strings.TrimSpace(q))
	if !strings.HasPrefix(upper, "SELECT") {
		return false
	}
	for _, kw := range mutatingKeywords {
		if strings.Contains(upper, kw) {
			return false
		}
	}
	return true
}

// DefaultQuery returns the query executed whenever a generated candidate is
// unavailable or rejected.
func DefaultQuery(table string) string {
	return fmt.Sprintf("SELECT * FROM %s;", QuoteIdent(table))
}

// IsIdentifier reports whether name is safe to interpolate as a MySQL
// identifier.
func IsIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// Identifier is the request validation form of IsIdentifier. Empty values
// pass so it composes with validation.Required.
var Identifier = validation.By(func(value any) error {
	name, _ := value.(string)
	if name == "" || IsIdentifier(name) {
		return nil
	}
	return errors.New("must be 1 to 64 letters, digits or underscores")
})

// IsColumnType reports whether t looks like a plain MySQL column type such as
// "int", "varchar(50)", "decimal(10, 2)" or "int unsigned".
func IsColumnType(t string) bool {
	return columnTypePattern.MatchString(strings.TrimSpace(t))
}

func QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// StripCodeFence removes a surrounding Markdown code fence and its language
// tag, whether the tag sits on its own line or precedes the code inline.
func StripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimSuffix(strings.TrimPrefix(trimmed, "```"), "```")
	if first, rest, ok := strings.Cut(trimmed, "\n"); ok && isFenceTag(strings.TrimSpace(first)) {
		trimmed = rest
	} else {
		trimmed = inlineFenceTag.ReplaceAllString(trimmed, "")
	}
	return strings.TrimSpace(trimmed)
}

func isFenceTag(line string) bool {
	return fenceTagLine.MatchString(line) && !strings.EqualFold(line, "select")
}
