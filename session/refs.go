package session

import (
	"regexp"
	"strings"

	"github.com/teranos/evalanche/errors"
)

// TableRef is a fully qualified catalog.schema.table reference
type TableRef struct {
	Catalog string
	Schema  string
	Table   string
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// ParseTableRef parses "catalog.schema.table". Parts may be double-quoted,
// in which case they may contain dots and doubled quotes.
func ParseTableRef(s string) (TableRef, error) {
	parts, err := splitQualified(strings.TrimSpace(s))
	if err != nil {
		return TableRef{}, err
	}
	if len(parts) != 3 {
		return TableRef{}, errors.WithHint(
			errors.NewConfigurationError("table reference %q is not fully qualified", s),
			"use catalog.schema.table",
		)
	}
	return TableRef{Catalog: parts[0], Schema: parts[1], Table: parts[2]}, nil
}

// String renders the reference, quoting parts that are not plain identifiers
func (r TableRef) String() string {
	return quoteIfNeeded(r.Catalog) + "." + quoteIfNeeded(r.Schema) + "." + quoteIfNeeded(r.Table)
}

// IsZero reports whether r is the zero reference
func (r TableRef) IsZero() bool {
	return r == TableRef{}
}

func splitQualified(s string) ([]string, error) {
	var parts []string
	var cur strings.Builder
	inQuotes, quoted := false, false

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inQuotes && c == '"':
			if i+1 < len(s) && s[i+1] == '"' {
				cur.WriteByte('"')
				i++
				continue
			}
			inQuotes = false
		case inQuotes:
			cur.WriteByte(c)
		case c == '"':
			if cur.Len() > 0 {
				return nil, errors.NewConfigurationError("unexpected quote in reference %q", s)
			}
			inQuotes, quoted = true, true
		case c == '.':
			parts = append(parts, cur.String())
			cur.Reset()
			quoted = false
		default:
			if quoted {
				return nil, errors.NewConfigurationError("unexpected text after quoted part in reference %q", s)
			}
			cur.WriteByte(c)
		}
	}
	if inQuotes {
		return nil, errors.NewConfigurationError("unterminated quote in reference %q", s)
	}
	parts = append(parts, cur.String())

	for _, p := range parts {
		if p == "" {
			return nil, errors.NewConfigurationError("empty part in reference %q", s)
		}
	}
	return parts, nil
}

// QuoteIdent quotes a SQL identifier
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteIfNeeded(name string) string {
	if identifierPattern.MatchString(name) {
		return name
	}
	return QuoteIdent(name)
}
