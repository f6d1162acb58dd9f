// Package editors provides headless field editors bound to an edit session
// by field path. They hold only presentation state (edit buffers,
// expanded items); every domain change goes through Binding.UpdateField.
package editors

// Binding is the slice of an edit session the editors need.
type Binding interface {
	Value(path string) (any, bool)
	UpdateField(path string, value any)
	IsChanged(path string) bool
}

type ValidationStatus string

const (
	StatusValid   ValidationStatus = "valid"
	StatusWarning ValidationStatus = "warning"
	StatusError   ValidationStatus = "error"
)

// Validation is computed outside this package, per product and field.
type Validation struct {
	Status   ValidationStatus `json:"status"`
	Severity string           `json:"severity,omitempty"`
	Message  string           `json:"message,omitempty"`
}

type Validator interface {
	Validate(path string) Validation
}

type ValidatorFunc func(path string) Validation

func (f ValidatorFunc) Validate(path string) Validation { return f(path) }

// Indicators is what an editor renders next to its input.
type Indicators struct {
	Changed    bool       `json:"changed"`
	Validation Validation `json:"validation"`
}

type Option func(*field)

func WithValidator(v Validator) Option {
	return func(f *field) { f.validator = v }
}

type field struct {
	binding   Binding
	path      string
	validator Validator
}

func newField(b Binding, path string, opts []Option) field {
	f := field{binding: b, path: path}
	for _, opt := range opts {
		opt(&f)
	}
	return f
}

func (f field) Path() string {
	return f.path
}

func (f field) Changed() bool {
	return f.binding.IsChanged(f.path)
}

func (f field) Validation() Validation {
	if f.validator == nil {
		return Validation{Status: StatusValid}
	}
	v := f.validator.Validate(f.path)
	if v.Status == "" {
		v.Status = StatusValid
	}
	return v
}

func (f field) Indicators() Indicators {
	return Indicators{Changed: f.Changed(), Validation: f.Validation()}
}

func (f field) value() (any, bool) {
	return f.binding.Value(f.path)
}
