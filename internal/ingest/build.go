package ingest

import (
	"sort"
	"strings"

	"github.com/kailas-cloud/prodsearch/internal/domain/catalog"
)

// titleSeparator joins the product title and the variant suffix.
const titleSeparator = " — "

// ProductSnapshot is one source-of-truth row: the product with its aggregated options.
type ProductSnapshot struct {
	Product SnapshotProduct `json:"product"`
}

// SnapshotProduct holds product attributes plus unique colors and sizes.
type SnapshotProduct struct {
	ID          int64             `json:"id"`
	Title       string            `json:"title"`
	Handle      string            `json:"handle"`
	Vendor      string            `json:"vendor"`
	ProductType string            `json:"product_type"`
	Tags        []string          `json:"tags"`
	UpdatedAt   string            `json:"updated_at"`
	Colors      []string          `json:"colors"`
	Sizes       []string          `json:"sizes"`
	Variants    []SnapshotVariant `json:"variants"`
}

// SnapshotVariant is a compact variant entry.
type SnapshotVariant struct {
	ID        int64    `json:"id"`
	Color     *string  `json:"color"`
	Size      *string  `json:"size"`
	SKU       string   `json:"sku"`
	Price     *float64 `json:"price"`
	UpdatedAt string   `json:"updated_at"`
}

// BuildRows flattens products into one catalog record per variant and one snapshot per product.
func BuildRows(products []Product) ([]catalog.Variant, []ProductSnapshot) {
	rag := make([]catalog.Variant, 0, len(products))
	sot := make([]ProductSnapshot, 0, len(products))

	for i := range products {
		p := &products[i]
		title := strings.TrimSpace(p.Title)
		body := StripHTML(p.BodyHTML)
		tags := []string(p.Tags)
		if tags == nil {
			tags = []string{}
		}

		var colors, sizes []string
		entries := make([]SnapshotVariant, 0, len(p.Variants))

		for j := range p.Variants {
			v := &p.Variants[j]
			color := strings.TrimSpace(v.Option1)
			size := strings.TrimSpace(v.Option2)
			updated := v.UpdatedAt
			if updated == "" {
				updated = p.UpdatedAt
			}
			if color != "" {
				colors = append(colors, color)
			}
			if size != "" {
				sizes = append(sizes, size)
			}

			suffix := joinNonEmpty(" / ", color, size)
			if suffix == "" {
				suffix = strings.TrimSpace(v.Title)
			}

			rag = append(rag, catalog.Variant{
				DocID:       catalog.DocIDFor(v.ID),
				ProductID:   p.ID,
				VariantID:   v.ID,
				Title:       variantTitle(title, suffix),
				Vendor:      p.Vendor,
				ProductType: p.ProductType,
				Tags:        tags,
				Colors:      optional(color),
				Sizes:       optional(size),
				Price:       v.Price.Value,
				Handle:      p.Handle,
				UpdatedAt:   updated,
				Text:        variantText(p, title, color, size, suffix, tags, body),
			})

			entries = append(entries, SnapshotVariant{
				ID:        v.ID,
				Color:     optionalPtr(color),
				Size:      optionalPtr(size),
				SKU:       v.SKU,
				Price:     v.Price.Value,
				UpdatedAt: updated,
			})
		}

		sot = append(sot, ProductSnapshot{Product: SnapshotProduct{
			ID:          p.ID,
			Title:       title,
			Handle:      p.Handle,
			Vendor:      p.Vendor,
			ProductType: p.ProductType,
			Tags:        tags,
			UpdatedAt:   p.UpdatedAt,
			Colors:      uniqueFold(colors),
			Sizes:       uniqueFold(sizes),
			Variants:    entries,
		}})
	}
	return rag, sot
}

func variantTitle(product, suffix string) string {
	switch {
	case product != "" && suffix != "":
		return product + titleSeparator + suffix
	case product != "":
		return product
	default:
		return suffix
	}
}

// variantText builds the embedded text:
// "<title color size>. Vendor: v. Type: t. Tags: a, b. <body>".
func variantText(p *Product, title, color, size, suffix string, tags []string, body string) string {
	var fragments []string
	if head := joinNonEmpty(" ", title, color, size); head != "" {
		fragments = append(fragments, head+".")
	} else if suffix != "" {
		fragments = append(fragments, suffix+".")
	}
	fragments = append(fragments,
		"Vendor: "+p.Vendor+".",
		"Type: "+p.ProductType+".",
		"Tags: "+strings.Join(tags, ", ")+".",
	)
	if body != "" {
		fragments = append(fragments, body)
	}
	return strings.TrimSpace(strings.Join(fragments, " "))
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

func optional(s string) []string {
	if s == "" {
		return []string{}
	}
	return []string{s}
}

func optionalPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// uniqueFold deduplicates exact values and sorts case-insensitively.
func uniqueFold(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		li, lj := strings.ToLower(out[i]), strings.ToLower(out[j])
		if li != lj {
			return li < lj
		}
		return out[i] < out[j]
	})
	return out
}
