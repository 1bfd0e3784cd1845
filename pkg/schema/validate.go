package schema

import "sort"

// Schema maps variable names to their declared types.
type Schema map[string]Type

// Names returns the declared names, sorted.
func (s Schema) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Validate checks every declared variable of data. A declared variable that
// is missing fails as required; undeclared variables are ignored.
func Validate(s Schema, data map[string]any) error {
	var errs []error
	for _, name := range s.Names() {
		value, ok := data[name]
		if !ok {
			errs = append(errs, &ValidationError{Key: name, Reason: "required"})
			continue
		}
		if err := Check(s, name, value); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}

// Check validates one value. Undeclared names always pass.
func Check(s Schema, name string, value any) error {
	t, ok := s[name]
	if !ok {
		return nil
	}
	if err := t.Validate(value); err != nil {
		return &ValidationError{Key: name, Reason: err.Error(), Value: value}
	}
	return nil
}
