// Package catalog defines the flattened product-variant record the search engine indexes.
package catalog

import "strconv"

// DocIDPrefix prefixes variant identifiers in doc_id.
const DocIDPrefix = "variant:"

// Variant is one purchasable option of a product, flattened for retrieval.
// Colors and Sizes usually hold at most one element but are treated as arbitrary lists.
type Variant struct {
	DocID       string   `json:"doc_id"`
	ProductID   int64    `json:"product_id"`
	VariantID   int64    `json:"variant_id"`
	Title       string   `json:"title"`
	Vendor      string   `json:"vendor"`
	ProductType string   `json:"product_type"`
	Tags        []string `json:"tags"`
	Colors      []string `json:"colors"`
	Sizes       []string `json:"sizes"`
	Price       *float64 `json:"price"`
	Handle      string   `json:"handle"`
	UpdatedAt   string   `json:"updated_at"`
	Text        string   `json:"text"`
}

// DocIDFor builds the doc_id for a variant identifier.
func DocIDFor(variantID int64) string {
	return DocIDPrefix + strconv.FormatInt(variantID, 10)
}
