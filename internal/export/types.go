// Package export renders review packets for submitted drafts in HTML, JSON
// and PDF form.
package export

import (
	"errors"
	"html/template"
	"time"

	"modelcards/api/internal/diffview"
	"modelcards/api/internal/reviewstatus"
)

type Format string

const (
	FormatHTML Format = "html"
	FormatJSON Format = "json"
	FormatPDF  Format = "pdf"
)

func ParseFormat(value string) (Format, error) {
	switch Format(value) {
	case "", FormatHTML:
		return FormatHTML, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatPDF:
		return FormatPDF, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

type Request struct {
	DraftID string
	Format  Format
}

// Packet is everything a reviewer needs to judge one draft.
type Packet struct {
	DraftID      string              `json:"draftId"`
	ProductID    string              `json:"productId"`
	ProductName  string              `json:"productName"`
	Company      string              `json:"company"`
	AuthorID     string              `json:"authorId"`
	Status       reviewstatus.Badge  `json:"status"`
	Summary      string              `json:"summary"`
	SummaryHTML  template.HTML       `json:"-"`
	Diff         diffview.Report     `json:"diff"`
	ReviewStatus reviewstatus.Status `json:"reviewStatus"`
	Feedback     string              `json:"reviewFeedback,omitempty"`
	Branch       string              `json:"branch,omitempty"`
	UpdatedAt    time.Time           `json:"updatedAt"`
	GeneratedAt  time.Time           `json:"generatedAt"`
}

type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	ErrUnsupportedFormat    = errors.New("unsupported export format")
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)
