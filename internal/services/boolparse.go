package services

import (
	"fmt"
	"strings"
)

// Accepted literal forms for optional boolean flags arriving from loosely
// typed clients. Anything outside the table is a parse failure, never a
// silent default.
var boolLiterals = map[string]bool{
	"true":  true,
	"1":     true,
	"yes":   true,
	"y":     true,
	"false": false,
	"0":     false,
	"no":    false,
	"n":     false,
}

// ParseOptionalBool interprets a JSON value as a tri-state boolean flag:
// nil means "not supplied", a bool or an accepted string literal yields a
// value, and everything else is a validation error.
func ParseOptionalBool(field string, value any) (*bool, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case bool:
		return &v, nil
	case string:
		parsed, ok := boolLiterals[strings.ToLower(strings.TrimSpace(v))]
		if !ok {
			return nil, validationErr(fmt.Sprintf("%s must be a boolean", field))
		}
		return &parsed, nil
	case float64:
		// JSON numbers decode as float64; only 0 and 1 are meaningful.
		if v == 1 {
			t := true
			return &t, nil
		}
		if v == 0 {
			f := false
			return &f, nil
		}
		return nil, validationErr(fmt.Sprintf("%s must be a boolean", field))
	default:
		return nil, validationErr(fmt.Sprintf("%s must be a boolean", field))
	}
}
