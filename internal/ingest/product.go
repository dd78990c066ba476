// Package ingest pulls a storefront's public products.json feed and flattens it into
// catalog JSONL files.
package ingest

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Product is one storefront product as served by products.json.
type Product struct {
	ID          int64            `json:"id"`
	Title       string           `json:"title"`
	Handle      string           `json:"handle"`
	Vendor      string           `json:"vendor"`
	ProductType string           `json:"product_type"`
	UpdatedAt   string           `json:"updated_at"`
	BodyHTML    string           `json:"body_html"`
	Tags        Tags             `json:"tags"`
	Variants    []ProductVariant `json:"variants"`
}

// ProductVariant is one purchasable option. Option1 is the color, Option2 the size.
type ProductVariant struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Option1   string `json:"option1"`
	Option2   string `json:"option2"`
	SKU       string `json:"sku"`
	Price     Price  `json:"price"`
	UpdatedAt string `json:"updated_at"`
}

// Tags accepts either a comma-separated string or a JSON list.
// Entries are trimmed and empty ones dropped; order and duplicates are kept.
type Tags []string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Tags) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode tags: %w", err)
	}
	out := Tags{}
	switch v := raw.(type) {
	case string:
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	case []any:
		for _, item := range v {
			if item == nil {
				continue
			}
			if s := strings.TrimSpace(fmt.Sprint(item)); s != "" {
				out = append(out, s)
			}
		}
	}
	*t = out
	return nil
}

// Price is a leniently parsed amount; nil when absent or unparsable.
type Price struct {
	Value *float64
}

// UnmarshalJSON accepts strings in any common decimal notation and plain numbers.
func (p *Price) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode price: %w", err)
	}
	switch v := raw.(type) {
	case string:
		p.Value = ParsePrice(v)
	case float64:
		p.Value = &v
	default:
		p.Value = nil
	}
	return nil
}
