package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"modelcards/api/internal/store"
)

// ProductWriter persists canonical product rows.
type ProductWriter interface {
	UpsertProduct(ctx context.Context, row store.ProductRow) error
}

// Import reads a JSON array of products from r and upserts each one in its
// generic record form. It stops at the first invalid or failed product and
// reports how many were written before it.
func Import(ctx context.Context, r io.Reader, w ProductWriter) (int, error) {
	var products []Product
	if err := json.NewDecoder(r).Decode(&products); err != nil {
		return 0, fmt.Errorf("decode products: %w", err)
	}
	seen := make(map[string]bool, len(products))
	for i, p := range products {
		if p.ID == "" {
			return i, fmt.Errorf("product %d: missing id", i)
		}
		if seen[p.ID] {
			return i, fmt.Errorf("product %d: duplicate id %s", i, p.ID)
		}
		seen[p.ID] = true
		for j := range p.Evidence {
			p.Evidence[j] = p.Evidence[j].Normalize()
		}
		rec, err := ToRecord(p)
		if err != nil {
			return i, err
		}
		if err := w.UpsertProduct(ctx, store.ProductRow{ID: p.ID, Company: p.Company, Data: rec}); err != nil {
			return i, fmt.Errorf("product %s: %w", p.ID, err)
		}
	}
	return len(products), nil
}
