package session

import (
	"context"
	"database/sql"

	"github.com/teranos/evalanche/errors"
	"github.com/teranos/evalanche/logger"
	"github.com/teranos/evalanche/routines"
)

// Call invokes routine once with record as its single structured argument and
// returns the scalar result. routine may be qualified and may carry an
// argument signature ("EVAL.main.square_len(VARIANT)").
//
// Every failure is an invocation error, except an unknown or malformed
// routine reference, which is a configuration error.
func (s *Session) Call(ctx context.Context, routine string, record Record) (any, error) {
	name, err := s.ResolveRoutine(routine)
	if err != nil {
		return nil, err
	}

	arg, err := record.JSON()
	if err != nil {
		return nil, errors.WrapInvocation(err, "failed to encode argument for %s", name)
	}

	s.logger.Debugw("Calling routine", logger.FieldRoutine, name)

	var result any
	err = s.db.QueryRowContext(ctx, "SELECT "+name+"(?)", arg).Scan(&result)
	if err == sql.ErrNoRows {
		return nil, errors.WrapInvocation(err, "routine %s returned no value", name)
	}
	if err != nil {
		return nil, errors.WrapInvocation(err, "routine %s failed", name)
	}
	return normalizeValue(result), nil
}

// ResolveRoutine normalizes a routine reference and checks that the routine
// exists in this session.
func (s *Session) ResolveRoutine(ref string) (string, error) {
	name, err := routines.NormalizeName(ref)
	if err != nil {
		return "", err
	}
	if _, ok := s.routines.Get(name); !ok {
		return "", errors.WithHintf(
			errors.Mark(errors.NewNotFoundError("routine %q not found", ref), errors.ErrConfiguration),
			"available routines: %v", s.routines.Names(),
		)
	}
	return name, nil
}
