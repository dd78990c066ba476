package result

import (
	"testing"

	"github.com/kailas-cloud/prodsearch/internal/domain/catalog"
)

func TestNew(t *testing.T) {
	v := catalog.Variant{DocID: "variant:7", ProductID: 3, VariantID: 7, Title: "Linen Shirt"}

	h := New(v, 0.82)

	if h.Score() != 0.82 {
		t.Errorf("Score() = %f", h.Score())
	}
	if h.ProductID() != 3 || h.VariantID() != 7 {
		t.Errorf("ids = (%d, %d)", h.ProductID(), h.VariantID())
	}
	if h.Variant().Title != "Linen Shirt" {
		t.Errorf("Variant().Title = %q", h.Variant().Title)
	}
}
