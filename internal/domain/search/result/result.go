package result

import "github.com/kailas-cloud/prodsearch/internal/domain/catalog"

// Hit is a single ranked search match.
type Hit struct {
	variant catalog.Variant
	score   float64
}

// New creates a search hit.
func New(variant catalog.Variant, score float64) Hit {
	return Hit{variant: variant, score: score}
}

// Variant returns the matched catalog record.
func (h *Hit) Variant() catalog.Variant { return h.variant }

// Score returns the cosine similarity to the query.
func (h *Hit) Score() float64 { return h.score }

// ProductID returns the matched record's product identifier.
func (h *Hit) ProductID() int64 { return h.variant.ProductID }

// VariantID returns the matched record's variant identifier.
func (h *Hit) VariantID() int64 { return h.variant.VariantID }
