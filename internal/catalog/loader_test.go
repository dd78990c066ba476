package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kailas-cloud/prodsearch/internal/domain"
)

const validLine = `{"doc_id":"variant:11","product_id":1,"variant_id":11,"title":"Wool Coat — Black / M",` +
	`"vendor":"Acme","product_type":"Coat","tags":["winter","wool"],"colors":["Black"],"sizes":["M"],` +
	`"price":1299.9,"handle":"wool-coat","updated_at":"2024-01-02T03:04:05Z","text":"Wool Coat Black M."}`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "products_rag.jsonl")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	return path
}

func TestLoad_Valid(t *testing.T) {
	second := strings.Replace(validLine, `"variant_id":11`, `"variant_id":12`, 1)
	path := writeCatalog(t, validLine+"\n\n   \n"+second+"\n")

	variants, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(variants) != 2 {
		t.Fatalf("expected 2 variants, got %d", len(variants))
	}
	v := variants[0]
	if v.DocID != "variant:11" || v.ProductID != 1 || v.VariantID != 11 {
		t.Errorf("unexpected ids: %+v", v)
	}
	if v.Price == nil || *v.Price != 1299.9 {
		t.Errorf("unexpected price: %v", v.Price)
	}
	if len(v.Tags) != 2 || v.Tags[0] != "winter" {
		t.Errorf("unexpected tags: %v", v.Tags)
	}
	if variants[1].VariantID != 12 {
		t.Errorf("expected file order preserved, got variant %d", variants[1].VariantID)
	}
}

func TestLoad_NotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.jsonl"))
	if !errors.Is(err, domain.ErrCatalogNotFound) {
		t.Fatalf("expected ErrCatalogNotFound, got %v", err)
	}
}

func TestLoad_MalformedLineFailsWholeLoad(t *testing.T) {
	path := writeCatalog(t, validLine+"\nthis is not json\n")

	variants, err := Load(path)
	if !errors.Is(err, domain.ErrMalformedRecord) {
		t.Fatalf("expected ErrMalformedRecord, got %v", err)
	}
	if variants != nil {
		t.Errorf("expected no variants on failure, got %d", len(variants))
	}
	var mre *domain.MalformedRecordError
	if !errors.As(err, &mre) {
		t.Fatalf("expected *MalformedRecordError, got %T", err)
	}
	if mre.Line != 2 {
		t.Errorf("expected line 2, got %d", mre.Line)
	}
}

func TestLoadReader_NonObjectLines(t *testing.T) {
	tests := []string{"null", "[1,2]", `"text"`, "42", `{"product_id":"not a number"}`}
	for _, line := range tests {
		t.Run(line, func(t *testing.T) {
			_, err := LoadReader(strings.NewReader(line + "\n"))
			if !errors.Is(err, domain.ErrMalformedRecord) {
				t.Errorf("expected ErrMalformedRecord for %q, got %v", line, err)
			}
		})
	}
}

func TestLoadReader_Empty(t *testing.T) {
	variants, err := LoadReader(strings.NewReader("\n\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(variants) != 0 {
		t.Errorf("expected 0 variants, got %d", len(variants))
	}
}

func TestLoadReader_CRLF(t *testing.T) {
	variants, err := LoadReader(strings.NewReader(validLine + "\r\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(variants) != 1 {
		t.Errorf("expected 1 variant, got %d", len(variants))
	}
}
