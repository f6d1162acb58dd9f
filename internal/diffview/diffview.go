// Package diffview turns a change-set into a before/after report.
package diffview

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"modelcards/api/internal/fieldpath"
)

type Kind string

const (
	KindAdded    Kind = "added"
	KindRemoved  Kind = "removed"
	KindModified Kind = "modified"
)

const (
	NoChangesMessage = "No changes"
	EmptyValue       = "(empty)"
)

type Change struct {
	Path          string `json:"path"`
	Label         string `json:"label"`
	Kind          Kind   `json:"kind"`
	OriginalValue any    `json:"originalValue"`
	NewValue      any    `json:"newValue"`
	OriginalText  string `json:"originalText"`
	NewText       string `json:"newText"`
}

type Report struct {
	Changes []Change `json:"changes"`
	// Message is set instead of an empty list when nothing changed.
	Message string `json:"message,omitempty"`
}

func (r Report) Empty() bool {
	return len(r.Changes) == 0
}

// Build resolves every path in paths against both records, in the order
// given.
func Build(original, edited fieldpath.Record, paths []string) Report {
	if len(paths) == 0 {
		return Report{Changes: []Change{}, Message: NoChangesMessage}
	}
	changes := make([]Change, 0, len(paths))
	for _, path := range paths {
		before, _ := fieldpath.Get(original, path)
		after, _ := fieldpath.Get(edited, path)
		changes = append(changes, Change{
			Path:          path,
			Label:         Label(path),
			Kind:          Classify(before, after),
			OriginalValue: before,
			NewValue:      after,
			OriginalText:  Format(before),
			NewText:       Format(after),
		})
	}
	return Report{Changes: changes}
}

func Classify(before, after any) Kind {
	switch {
	case IsEmpty(before) && !IsEmpty(after):
		return KindAdded
	case !IsEmpty(before) && IsEmpty(after):
		return KindRemoved
	default:
		return KindModified
	}
}

// IsEmpty treats nil, "", [] and {} as no value.
func IsEmpty(v any) bool {
	switch value := v.(type) {
	case nil:
		return true
	case string:
		return value == ""
	case []any:
		return len(value) == 0
	case []string:
		return len(value) == 0
	case map[string]any:
		return len(value) == 0
	default:
		return false
	}
}

// Label renders "regulatory.fda.clearanceNumber" as
// "Regulatory Fda ClearanceNumber".
func Label(path string) string {
	caser := cases.Title(language.Und, cases.NoLower)
	segments := strings.Split(path, ".")
	for i, segment := range segments {
		segments[i] = caser.String(segment)
	}
	return strings.Join(segments, " ")
}

func Format(v any) string {
	if IsEmpty(v) {
		return EmptyValue
	}
	switch value := v.(type) {
	case string:
		return value
	case bool:
		return strconv.FormatBool(value)
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case []string:
		return strings.Join(value, ", ")
	case []any:
		return formatList(value)
	case map[string]any:
		encoded, err := json.MarshalIndent(value, "", "  ")
		if err != nil {
			return fmt.Sprint(value)
		}
		return string(encoded)
	default:
		return fmt.Sprint(value)
	}
}

func formatList(items []any) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		switch item.(type) {
		case map[string]any, []any:
			if len(items) == 1 {
				return "1 item"
			}
			return fmt.Sprintf("%d items", len(items))
		}
		parts = append(parts, Format(item))
	}
	return strings.Join(parts, ", ")
}

// Text renders the report as plain lines, one per change.
func (r Report) Text() string {
	if r.Empty() {
		if r.Message != "" {
			return r.Message
		}
		return NoChangesMessage
	}
	var b strings.Builder
	for i, change := range r.Changes {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[%s] %s: %s -> %s", change.Kind, change.Label, oneLine(change.OriginalText), oneLine(change.NewText))
	}
	return b.String()
}

func oneLine(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
