package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type EvidenceKind string

const (
	EvidenceLegacy     EvidenceKind = "legacy"
	EvidenceStructured EvidenceKind = "structured"
)

// Evidence is either a legacy free-text string or a structured item.
// Records written before structured evidence existed carry plain strings;
// Normalize turns them into structured items.
type Evidence struct {
	Kind        EvidenceKind `json:"-"`
	Legacy      string       `json:"-"`
	Type        string       `json:"type,omitempty"`
	Level       string       `json:"level,omitempty"`
	Description string       `json:"description,omitempty"`
	Link        string       `json:"link,omitempty"`
	Year        string       `json:"year,omitempty"`
}

type structuredEvidence struct {
	Type        string `json:"type,omitempty"`
	Level       string `json:"level,omitempty"`
	Description string `json:"description,omitempty"`
	Link        string `json:"link,omitempty"`
	Year        string `json:"year,omitempty"`
}

func (e *Evidence) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return fmt.Errorf("decode legacy evidence: %w", err)
		}
		*e = Evidence{Kind: EvidenceLegacy, Legacy: text}
		return nil
	}
	var item structuredEvidence
	if err := json.Unmarshal(trimmed, &item); err != nil {
		return fmt.Errorf("decode evidence: %w", err)
	}
	*e = Evidence{
		Kind:        EvidenceStructured,
		Type:        item.Type,
		Level:       item.Level,
		Description: item.Description,
		Link:        item.Link,
		Year:        item.Year,
	}
	return nil
}

func (e Evidence) MarshalJSON() ([]byte, error) {
	if e.Kind == EvidenceLegacy {
		return json.Marshal(e.Legacy)
	}
	return json.Marshal(structuredEvidence{
		Type:        e.Type,
		Level:       e.Level,
		Description: e.Description,
		Link:        e.Link,
		Year:        e.Year,
	})
}

// Normalize returns the structured form of e.
func (e Evidence) Normalize() Evidence {
	if e.Kind != EvidenceLegacy {
		e.Kind = EvidenceStructured
		return e
	}
	text := strings.TrimSpace(e.Legacy)
	item := Evidence{Kind: EvidenceStructured, Type: "Other", Description: text}
	if strings.HasPrefix(text, "http://") || strings.HasPrefix(text, "https://") {
		item.Link = text
		item.Description = ""
	}
	return item
}

// NormalizeEvidenceValue normalizes one generic evidence item as stored in a
// record (a string or an object) into its structured object form.
func NormalizeEvidenceValue(value any) any {
	raw, err := json.Marshal(value)
	if err != nil {
		return value
	}
	var item Evidence
	if err := json.Unmarshal(raw, &item); err != nil {
		return value
	}
	normalized, err := json.Marshal(item.Normalize())
	if err != nil {
		return value
	}
	var out map[string]any
	if err := json.Unmarshal(normalized, &out); err != nil {
		return value
	}
	return out
}

// Title is a one-line label for display lists.
func (e Evidence) Title() string {
	n := e.Normalize()
	parts := make([]string, 0, 3)
	if n.Type != "" {
		parts = append(parts, n.Type)
	}
	if n.Level != "" {
		parts = append(parts, "level "+n.Level)
	}
	label := strings.Join(parts, ", ")
	body := n.Description
	if body == "" {
		body = n.Link
	}
	if label == "" {
		return body
	}
	if body == "" {
		return label
	}
	return label + ": " + body
}
