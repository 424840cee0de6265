package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pollyconnect/polly/internal/health"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) (string, map[string]string) {
	t.Helper()
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response not JSON: %v", err)
	}
	return body.Status, body.Checks
}

func TestHealthzAlwaysOK(t *testing.T) {
	t.Parallel()
	h := health.New()
	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if status, _ := decode(t, rec); status != "ok" {
		t.Errorf("status field = %q", status)
	}
}

func TestReadyzAllCheckersPass(t *testing.T) {
	t.Parallel()
	h := health.New(
		health.Checker{Name: "content", Check: func(context.Context) error { return nil }},
		health.Checker{Name: "store", Check: func(context.Context) error { return nil }},
	)
	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	status, checks := decode(t, rec)
	if status != "ok" {
		t.Errorf("status field = %q", status)
	}
	if checks["content"] != "ok" || checks["store"] != "ok" {
		t.Errorf("checks = %v", checks)
	}
}

func TestReadyzFailingCheckerReturns503(t *testing.T) {
	t.Parallel()
	h := health.New(
		health.Checker{Name: "content", Check: func(context.Context) error { return nil }},
		health.Checker{Name: "store", Check: func(context.Context) error {
			return errors.New("connection refused")
		}},
	)
	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	status, checks := decode(t, rec)
	if status != "fail" {
		t.Errorf("status field = %q", status)
	}
	if checks["content"] != "ok" {
		t.Errorf("healthy check reported %q", checks["content"])
	}
	if checks["store"] != "fail: connection refused" {
		t.Errorf("failing check reported %q", checks["store"])
	}
}

func TestReadyzCheckersGetDeadline(t *testing.T) {
	t.Parallel()
	h := health.New(health.Checker{Name: "deadline", Check: func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			return errors.New("no deadline set")
		}
		return nil
	}})
	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (checker saw no deadline)", rec.Code)
	}
}
