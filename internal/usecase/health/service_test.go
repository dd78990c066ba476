package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

// --- Mocks ---

type mockIndex struct {
	ready bool
	n     int
}

func (m *mockIndex) Ready() bool { return m.ready }
func (m *mockIndex) Len() int    { return m.n }

type mockStorePinger struct {
	err error
}

func (m *mockStorePinger) Ping(_ context.Context) error { return m.err }

type mockEmbeddingChecker struct {
	err error
}

func (m *mockEmbeddingChecker) HealthCheck(_ context.Context) error { return m.err }

// --- Tests ---

func TestCheck_AllHealthy(t *testing.T) {
	svc := New(&mockIndex{ready: true, n: 12}, &mockStorePinger{}, &mockEmbeddingChecker{})
	r := svc.Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	for _, name := range []string{"index", "budget_store", "embedding"} {
		if r.Checks[name] != CheckOK {
			t.Errorf("expected %s %q, got %q", name, CheckOK, r.Checks[name])
		}
	}
	if r.Documents != 12 {
		t.Errorf("expected 12 documents, got %d", r.Documents)
	}
}

func TestCheck_IndexNotReady(t *testing.T) {
	svc := New(&mockIndex{}, nil, &mockEmbeddingChecker{err: errors.New("down")})
	r := svc.Check(context.Background())

	if r.Status != Unhealthy {
		t.Errorf("expected %q, got %q", Unhealthy, r.Status)
	}
	if r.Checks["index"] != CheckPending {
		t.Errorf("expected index %q, got %q", CheckPending, r.Checks["index"])
	}
	if svc.Ready() {
		t.Error("expected not ready")
	}
}

func TestCheck_StoreError(t *testing.T) {
	svc := New(&mockIndex{ready: true}, &mockStorePinger{err: errors.New("conn refused")}, &mockEmbeddingChecker{})
	r := svc.Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
	if r.Checks["budget_store"] != CheckError {
		t.Errorf("expected budget_store %q, got %q", CheckError, r.Checks["budget_store"])
	}
	if r.Checks["embedding"] != CheckOK {
		t.Errorf("expected embedding %q, got %q", CheckOK, r.Checks["embedding"])
	}
}

func TestCheck_EmbeddingError(t *testing.T) {
	svc := New(&mockIndex{ready: true}, nil, &mockEmbeddingChecker{err: errors.New("timeout")})
	r := svc.Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
	if r.Checks["embedding"] != CheckError {
		t.Errorf("expected embedding %q, got %q", CheckError, r.Checks["embedding"])
	}
}

func TestCheck_OptionalComponents(t *testing.T) {
	svc := New(&mockIndex{ready: true}, nil, nil)
	r := svc.Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	if len(r.Checks) != 1 {
		t.Errorf("expected only the index check, got %v", r.Checks)
	}
}

type slowChecker struct{}

func (slowChecker) HealthCheck(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestCheck_ProbeTimeout(t *testing.T) {
	svc := New(&mockIndex{ready: true}, nil, slowChecker{}).WithTimeout(10 * time.Millisecond)
	r := svc.Check(context.Background())

	if r.Checks["embedding"] != CheckError {
		t.Errorf("expected timed out probe to fail, got %q", r.Checks["embedding"])
	}
}
