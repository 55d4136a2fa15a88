package validate

import "strings"

// FieldError one rejected field, Domain is the json name of the field (or a comma
// separated list when the rule spans several fields)
type FieldError struct {
	Domain string `json:"domain"`
	Reason string `json:"reason"`
}

// NewFieldError create new field error
func NewFieldError(domain string, reason string) *FieldError {
	return &FieldError{domain, reason}
}

func (fe *FieldError) Error() string {
	if fe.Domain == "" {
		return fe.Reason
	}
	return fe.Domain + ": " + fe.Reason
}

// FieldErrors every rejected field of a single value
type FieldErrors []*FieldError

func (fes FieldErrors) Error() string {
	msg := make([]string, len(fes))
	for i, fe := range fes {
		msg[i] = fe.Error()
	}
	return strings.Join(msg, "; ")
}

// Validator checks request bodies, path parameters and catalog entries
type Validator interface {
	// Struct runs the `validate` tags of s, nil means valid
	Struct(s interface{}) FieldErrors
	// Var checks a single value against tag, name is used in the reported error
	Var(name string, value interface{}, tag string) *FieldError
	// AllEmpty fails only when every field is empty
	AllEmpty(names []string, fields ...interface{}) *FieldError
}
