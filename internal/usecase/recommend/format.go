package recommend

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kailas-cloud/prodsearch/internal/domain/search/result"
)

// Prompt defaults.
const (
	DefaultSystemPrompt = `You are an e-commerce shopping assistant. You recommend products to customers.

Your job:
- Understand what the customer needs and suggest the best matching products
- Explain product details such as price, color and size
- Be professional, helpful and friendly
- Only talk about the products you are given; never suggest anything else

Rules:
1. Read the customer's question carefully
2. Recommend the most suitable of the products provided
3. Mention the title, price, colors and sizes
4. If none of the products fit, say so politely
5. Show prices in the given currency
6. Answer in the customer's language

Format:
- Keep answers short
- No emoji
- Highlight the features that matter for the request`
	DefaultCurrency = "USD"

	noProducts        = "No products found."
	tagsMarker        = "Tags:"
	minTagsTail       = 50
	maxDescriptionLen = 300
)

// Formatter renders retrieved hits as plain-text context for the chat model.
type Formatter struct {
	Currency string
}

// Context formats hits as numbered product blocks separated by blank lines.
func (f Formatter) Context(hits []result.Hit) string {
	if len(hits) == 0 {
		return noProducts
	}
	currency := f.Currency
	if currency == "" {
		currency = DefaultCurrency
	}

	blocks := make([]string, 0, len(hits))
	for i := range hits {
		v := hits[i].Variant()
		lines := []string{
			fmt.Sprintf("Product %d:", i+1),
			"  Title: " + v.Title,
			"  Vendor: " + v.Vendor,
			"  Category: " + v.ProductType,
			"  Price: " + formatPrice(v.Price, currency),
		}
		if len(v.Colors) > 0 {
			lines = append(lines, "  Colors: "+strings.Join(v.Colors, ", "))
		}
		if len(v.Sizes) > 0 {
			lines = append(lines, "  Sizes: "+strings.Join(v.Sizes, ", "))
		}
		if desc := Description(v.Text); desc != "" {
			lines = append(lines, "  Description: "+desc)
		}
		lines = append(lines, fmt.Sprintf("  Match score: %.2f", hits[i].Score()))
		blocks = append(blocks, strings.Join(lines, "\n"))
	}
	return strings.Join(blocks, "\n\n")
}

// UserMessage wraps the question and the product context.
func (f Formatter) UserMessage(query string, hits []result.Hit) string {
	return "Customer question: " + query + "\n\n" +
		"Products found:\n" + f.Context(hits) + "\n\n" +
		"Please help the customer using the products above and suggest the ones that fit."
}

// Description extracts the body excerpt from an indexed text: the part after the first
// sentence that follows the first "Tags:" marker, capped at 300 runes.
// Texts without the marker, or with a short tail, have no description.
func Description(text string) string {
	_, tail, ok := strings.Cut(text, tagsMarker)
	if !ok {
		return ""
	}
	if next := strings.Index(tail, tagsMarker); next >= 0 {
		tail = tail[:next]
	}
	if len([]rune(tail)) <= minTagsTail {
		return ""
	}
	_, rest, ok := strings.Cut(tail, ".")
	if !ok {
		return ""
	}
	rest = strings.TrimSpace(rest)
	if r := []rune(rest); len(r) > maxDescriptionLen {
		rest = string(r[:maxDescriptionLen])
	}
	return rest
}

func formatPrice(p *float64, currency string) string {
	if p == nil {
		return "n/a"
	}
	return strconv.FormatFloat(*p, 'f', 2, 64) + " " + currency
}
