package editors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Kind string

const (
	KindText     Kind = "text"
	KindTextarea Kind = "textarea"
	KindURL      Kind = "url"
	KindDate     Kind = "date"
)

const DateLayout = "2006-01-02"

var ErrInvalidDate = errors.New("date must be in YYYY-MM-DD format")

// Scalar edits one string-valued field through an uncommitted buffer.
type Scalar struct {
	field
	kind    Kind
	editing bool
	buffer  string
}

func NewScalar(b Binding, path string, kind Kind, opts ...Option) *Scalar {
	return &Scalar{field: newField(b, path, opts), kind: kind}
}

func (s *Scalar) Kind() Kind {
	return s.kind
}

func (s *Scalar) Editing() bool {
	return s.editing
}

func (s *Scalar) Buffer() string {
	return s.buffer
}

// Display is the committed value rendered as text.
func (s *Scalar) Display() string {
	value, ok := s.value()
	if !ok || value == nil {
		return ""
	}
	if text, ok := value.(string); ok {
		return text
	}
	return fmt.Sprint(value)
}

// Begin opens the buffer with the committed value.
func (s *Scalar) Begin() {
	s.editing = true
	s.buffer = s.Display()
}

func (s *Scalar) SetBuffer(text string) {
	if !s.editing {
		s.Begin()
	}
	s.buffer = text
}

// Confirm commits the buffer. This is the explicit save action and works
// for every kind, including textarea.
func (s *Scalar) Confirm() error {
	if !s.editing {
		return nil
	}
	value, err := s.committedValue()
	if err != nil {
		return err
	}
	s.binding.UpdateField(s.path, value)
	s.editing = false
	s.buffer = ""
	return nil
}

// Enter handles a single-line confirm gesture. A textarea takes it as a
// newline and does not commit.
func (s *Scalar) Enter() error {
	if s.kind == KindTextarea {
		if s.editing {
			s.buffer += "\n"
		}
		return nil
	}
	return s.Confirm()
}

// Blur commits a non-empty buffer for plain text fields. Other kinds keep
// the buffer open.
func (s *Scalar) Blur() error {
	if !s.editing || s.kind != KindText {
		return nil
	}
	if strings.TrimSpace(s.buffer) == "" {
		return nil
	}
	return s.Confirm()
}

// Cancel drops the buffer; Display reverts to the committed value.
func (s *Scalar) Cancel() {
	s.editing = false
	s.buffer = ""
}

func (s *Scalar) committedValue() (string, error) {
	switch s.kind {
	case KindTextarea:
		return s.buffer, nil
	case KindDate:
		text := strings.TrimSpace(s.buffer)
		if text == "" {
			return "", nil
		}
		if _, err := time.Parse(DateLayout, text); err != nil {
			return "", ErrInvalidDate
		}
		return text, nil
	case KindURL:
		return strings.TrimSpace(s.buffer), nil
	default:
		return s.buffer, nil
	}
}
