package session

import (
	"fmt"
	"strings"

	"github.com/teranos/evalanche/errors"
)

// GroundPrefix is prepended to ground-side columns whose names collide with
// inference-side columns in a join.
const GroundPrefix = "GROUND_"

// Join inner-joins the inference and ground frames on
// inference.inferenceKey = ground.groundKey. The result has every inference
// column followed by every ground column; colliding ground columns are renamed
// with GroundPrefix. limit <= 0 means no limit.
func (s *Session) Join(inference, ground *Frame, inferenceKey, groundKey string, limit int) (*Frame, error) {
	if inference == nil {
		return nil, errors.NewInvalidRequestError("no inference data selected")
	}
	if ground == nil {
		return nil, errors.NewInvalidRequestError("no ground truth data selected")
	}
	if inference.s != s || ground.s != s {
		return nil, errors.AssertionFailedf("join of frames from a different session")
	}

	infKey, ok := inference.column(inferenceKey)
	if !ok {
		return nil, errors.NewNotFoundError("inference join column %q not found", inferenceKey)
	}
	grKey, ok := ground.column(groundKey)
	if !ok {
		return nil, errors.NewNotFoundError("ground truth join column %q not found", groundKey)
	}

	taken := make(map[string]bool, len(inference.columns)+len(ground.columns))
	columns := make([]string, 0, len(inference.columns)+len(ground.columns))
	selects := make([]string, 0, cap(columns))

	for _, c := range inference.columns {
		taken[strings.ToUpper(c)] = true
		columns = append(columns, c)
		selects = append(selects, "i."+QuoteIdent(c))
	}
	for _, c := range ground.columns {
		name := c
		for taken[strings.ToUpper(name)] {
			name = GroundPrefix + name
		}
		taken[strings.ToUpper(name)] = true
		columns = append(columns, name)
		if name == c {
			selects = append(selects, "g."+QuoteIdent(c))
		} else {
			selects = append(selects, "g."+QuoteIdent(c)+" AS "+QuoteIdent(name))
		}
	}

	query := fmt.Sprintf("SELECT %s FROM (%s) AS i INNER JOIN (%s) AS g ON i.%s = g.%s",
		strings.Join(selects, ", "), inference.query, ground.query, QuoteIdent(infKey), QuoteIdent(grKey))
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return &Frame{s: s, query: query, columns: columns}, nil
}
