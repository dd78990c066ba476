package ingest

import (
	"html"
	"regexp"
	"strconv"
	"strings"
)

var (
	tagRe   = regexp.MustCompile(`<[^>]+>`)
	brRe    = regexp.MustCompile(`(?i)<\s*br\s*/?\s*>`)
	paraRe  = regexp.MustCompile(`(?i)<\s*/?\s*p\s*>`)
	spaceRe = regexp.MustCompile(`[\s\v\x{85}\x{1c}-\x{1f}\p{Z}]+`)
	priceRe = regexp.MustCompile(`[^0-9.,-]`)
)

// StripHTML decodes entities, turns br and p tags into spaces, drops remaining tags,
// decodes again (for double-escaped markup) and collapses whitespace.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}
	text := html.UnescapeString(s)
	text = brRe.ReplaceAllString(text, " ")
	text = paraRe.ReplaceAllString(text, " ")
	text = tagRe.ReplaceAllString(text, " ")
	text = html.UnescapeString(text)
	return strings.TrimSpace(spaceRe.ReplaceAllString(text, " "))
}

// ParsePrice reads a storefront price string. A single comma with no dot is a decimal
// comma ("12,5"); a comma after the last dot marks European grouping ("1.299,90");
// otherwise commas are thousands separators ("1,299.90"). Junk yields nil.
func ParsePrice(s string) *float64 {
	value := strings.TrimSpace(s)
	if value == "" {
		return nil
	}
	value = priceRe.ReplaceAllString(value, "")
	if value == "" {
		return nil
	}

	commas := strings.Count(value, ",")
	dots := strings.Count(value, ".")
	switch {
	case commas == 1 && dots == 0:
		value = strings.Replace(value, ",", ".", 1)
	case commas == 1 && dots >= 1 && strings.LastIndex(value, ",") > strings.LastIndex(value, "."):
		value = strings.ReplaceAll(value, ".", "")
		value = strings.Replace(value, ",", ".", 1)
	default:
		value = strings.ReplaceAll(value, ",", "")
	}

	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil
	}
	return &f
}
