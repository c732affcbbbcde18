package form

import (
	"fmt"
	"slices"
	"strings"
)

// Kind tells whether a field holds one value or a check-list of values.
type Kind int

const (
	// Scalar fields hold a single non-empty string or nothing.
	Scalar Kind = iota
	// List fields hold an insertion-ordered set of strings.
	List
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case Scalar:
		return "scalar"
	case List:
		return "list"
	default:
		return "unknown"
	}
}

// Validator normalizes and checks a raw value extracted from speech.
type Validator interface {
	// Normalize returns the value as it should be stored.
	Normalize(raw string) string

	// Validate reports whether a normalized value is acceptable.
	Validate(value string) error
}

// Freeform accepts any non-empty value.
type Freeform struct {
	// Lower stores values lowercased.
	Lower bool
}

// Normalize trims the value and lowercases it when configured.
func (f Freeform) Normalize(raw string) string {
	v := strings.TrimSpace(raw)
	if f.Lower {
		v = strings.ToLower(v)
	}
	return v
}

// Validate rejects only empty values.
func (f Freeform) Validate(value string) error {
	if value == "" {
		return ErrEmptyValue
	}
	return nil
}

// Choice is an enumerated field. Values are suggestions for the model unless
// Strict is set, in which case anything else is rejected.
type Choice struct {
	Values []string
	Strict bool
	Lower  bool
}

// Normalize trims the value and lowercases it when configured.
func (c Choice) Normalize(raw string) string {
	return Freeform{Lower: c.Lower}.Normalize(raw)
}

// Validate rejects empty values, and values outside Values when Strict.
func (c Choice) Validate(value string) error {
	if value == "" {
		return ErrEmptyValue
	}
	if c.Strict && !c.Contains(value) {
		return fmt.Errorf("%w: %q (want one of %s)", ErrNotAllowed, value, strings.Join(c.Values, ", "))
	}
	return nil
}

// Contains reports whether value is one of the enumerated values, ignoring case.
func (c Choice) Contains(value string) bool {
	return slices.ContainsFunc(c.Values, func(v string) bool {
		return strings.EqualFold(v, value)
	})
}

// Describe renders the values for a tool parameter description,
// e.g. "small, medium, or large".
func (c Choice) Describe() string {
	switch len(c.Values) {
	case 0:
		return ""
	case 1:
		return c.Values[0]
	case 2:
		return c.Values[0] + " or " + c.Values[1]
	}
	return strings.Join(c.Values[:len(c.Values)-1], ", ") + ", or " + c.Values[len(c.Values)-1]
}

// Field describes one entry of a Schema.
type Field struct {
	// Name is the JSON key, e.g. "drinkType".
	Name string

	// Label is how the field is spoken, e.g. "drink type".
	Label string

	Kind     Kind
	Required bool

	// Validator defaults to Freeform when nil.
	Validator Validator
}

func (f Field) validator() Validator {
	if f.Validator == nil {
		return Freeform{}
	}
	return f.Validator
}

// Check normalizes raw and validates the result.
func (f Field) Check(raw string) (string, error) {
	v := f.validator().Normalize(raw)
	if err := f.validator().Validate(v); err != nil {
		return "", fmt.Errorf("form: %s: %w", f.Name, err)
	}
	return v, nil
}

// Suggested reports whether value is one of the field's enumerated values.
// Freeform fields accept everything as suggested.
func (f Field) Suggested(value string) bool {
	if c, ok := f.validator().(Choice); ok {
		return c.Contains(value)
	}
	return true
}
