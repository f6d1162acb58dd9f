package export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"modelcards/api/internal/catalog"
	"modelcards/api/internal/diffview"
	"modelcards/api/internal/reviewstatus"
	"modelcards/api/internal/store"
)

// DataStore is the slice of the draft store a packet is built from.
type DataStore interface {
	GetDraft(ctx context.Context, draftID string) (store.Draft, error)
	GetProduct(ctx context.Context, productID string) (store.ProductRow, error)
}

// PDFRenderer prints rendered HTML to PDF.
type PDFRenderer func(ctx context.Context, html string) ([]byte, error)

type Service struct {
	store DataStore
	pdf   PDFRenderer
	now   func() time.Time
}

func NewService(store DataStore, pdf PDFRenderer) *Service {
	if pdf == nil {
		pdf = ChromePDF
	}
	return &Service{store: store, pdf: pdf, now: time.Now}
}

// BuildPacket diffs the draft against the published product. Review status
// is computed from the published record, which is what the reviewer is
// asked to supersede.
func (s *Service) BuildPacket(ctx context.Context, draftID string) (Packet, error) {
	draft, err := s.store.GetDraft(ctx, draftID)
	if err != nil {
		return Packet{}, fmt.Errorf("get draft: %w", err)
	}
	product, err := s.store.GetProduct(ctx, draft.ProductID)
	if err != nil {
		return Packet{}, fmt.Errorf("get product: %w", err)
	}
	summaryHTML, err := RenderSummary(draft.EditSummary)
	if err != nil {
		return Packet{}, err
	}

	now := s.now()
	company := product.Company
	if company == "" {
		company, _ = draft.DraftData["company"].(string)
	}
	packet := Packet{
		DraftID:      draft.ID,
		ProductID:    draft.ProductID,
		ProductName:  catalog.Name(draft.DraftData),
		Company:      company,
		AuthorID:     draft.AuthorID,
		Status:       reviewstatus.DraftBadge(draft.Status),
		Summary:      draft.EditSummary,
		SummaryHTML:  summaryHTML,
		Diff:         diffview.Build(product.Data, draft.DraftData, draft.ChangedFields),
		ReviewStatus: reviewstatus.Evaluate(reviewstatus.DeclaredDate(product.Data), product.CertifiedAt, now),
		Feedback:     draft.ReviewFeedback,
		Branch:       draft.PRURL,
		UpdatedAt:    draft.UpdatedAt,
		GeneratedAt:  now,
	}
	return packet, nil
}

func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	packet, err := s.BuildPacket(ctx, req.DraftID)
	if err != nil {
		return nil, err
	}
	base := sanitizeFilename(packet.ProductName + " " + packet.DraftID)

	switch req.Format {
	case FormatJSON:
		data, err := json.MarshalIndent(packet, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode packet: %w", err)
		}
		return &Result{Data: data, Filename: base + ".json", MimeType: "application/json"}, nil
	case FormatHTML, FormatPDF:
		html, err := RenderPacketHTML(packet)
		if err != nil {
			return nil, fmt.Errorf("render template: %w", err)
		}
		if req.Format == FormatHTML {
			return &Result{Data: []byte(html), Filename: base + ".html", MimeType: "text/html; charset=utf-8"}, nil
		}
		data, err := s.pdf(ctx, html)
		if err != nil {
			return nil, err
		}
		return &Result{Data: data, Filename: base + ".pdf", MimeType: "application/pdf"}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
}
