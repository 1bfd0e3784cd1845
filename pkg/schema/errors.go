package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError is one variable that does not conform.
type ValidationError struct {
	Key    string
	Reason string
	Value  any
}

func (e *ValidationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("variable %q: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("variable %q: %s (got %T)", e.Key, e.Reason, e.Value)
}

// AggregateError collects every failure of one Validate call.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	parts := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		parts[i] = err.Error()
	}
	return fmt.Sprintf("%d type errors: %s", len(e.Errors), strings.Join(parts, "; "))
}

func (e *AggregateError) Unwrap() []error { return e.Errors }

// ValidationErrors returns the individual failures carried by err.
func ValidationErrors(err error) []*ValidationError {
	var agg *AggregateError
	if !errors.As(err, &agg) {
		return nil
	}
	out := make([]*ValidationError, 0, len(agg.Errors))
	for _, e := range agg.Errors {
		var v *ValidationError
		if errors.As(e, &v) {
			out = append(out, v)
		}
	}
	return out
}
