package routines

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/teranos/evalanche/errors"
)

// Built-in routine names
const (
	RowJSON    = "row_json"
	SquareLen  = "square_len"
	RowColumns = "row_columns"
)

// RegisterBuiltins adds the built-in routines to r
func RegisterBuiltins(r *Registry) error {
	builtins := []Routine{
		{Name: RowJSON, Description: "Returns the record as JSON text", Fn: rowJSON},
		{Name: SquareLen, Description: "Length in characters of the record's string values, concatenated", Fn: squareLen},
		{Name: RowColumns, Description: "Number of columns in the record", Fn: rowColumns},
	}
	for _, b := range builtins {
		if err := r.Register(b.Name, b.Description, b.Fn); err != nil {
			return err
		}
	}
	return nil
}

// DecodeArgument parses the structured argument of a routine call.
// Column order is not preserved; routines that need it parse arg themselves.
func DecodeArgument(arg string) (map[string]any, error) {
	var fields map[string]any
	dec := json.NewDecoder(strings.NewReader(arg))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return nil, errors.Wrap(err, "routine argument is not a JSON object")
	}
	if fields == nil {
		return nil, errors.New("routine argument is not a JSON object")
	}
	return fields, nil
}

func rowJSON(arg string) (any, error) {
	if _, err := DecodeArgument(arg); err != nil {
		return nil, err
	}
	return arg, nil
}

func squareLen(arg string) (any, error) {
	fields, err := DecodeArgument(arg)
	if err != nil {
		return nil, err
	}
	var n int64
	for _, v := range fields {
		if s, ok := v.(string); ok {
			n += int64(utf8.RuneCountInString(s))
		}
	}
	return n, nil
}

func rowColumns(arg string) (any, error) {
	fields, err := DecodeArgument(arg)
	if err != nil {
		return nil, err
	}
	return int64(len(fields)), nil
}
