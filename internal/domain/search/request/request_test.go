package request

import (
	"errors"
	"strings"
	"testing"

	"github.com/kailas-cloud/prodsearch/internal/domain"
)

func TestNew_Valid(t *testing.T) {
	r, err := New("red dress", 5, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Query() != "red dress" {
		t.Errorf("Query() = %q", r.Query())
	}
	if r.TopK() != 5 {
		t.Errorf("TopK() = %d", r.TopK())
	}
	if !r.Deduplicate() {
		t.Error("Deduplicate() = false")
	}
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		query string
		topK  int
	}{
		{"empty query", "", 3},
		{"blank query", "   \t", 3},
		{"zero top_k", "shoes", 0},
		{"negative top_k", "shoes", -2},
		{"query too long", strings.Repeat("a", MaxQueryLength+1), 3},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.query, tc.topK, false)
			if !errors.Is(err, domain.ErrInvalidQueryParameters) {
				t.Errorf("expected ErrInvalidQueryParameters, got %v", err)
			}
		})
	}
}

func TestNew_MaxLengthAccepted(t *testing.T) {
	if _, err := New(strings.Repeat("a", MaxQueryLength), 1, false); err != nil {
		t.Errorf("unexpected error at max length: %v", err)
	}
}
