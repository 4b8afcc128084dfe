package httpx

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/fieldstone/storefront/internal/platform/requestctx"
)

func TestWriteErrorEnvelope(t *testing.T) {
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-42")
	ctx = requestctx.WithTrace(ctx, requestctx.TraceInfo{TraceID: "trace-7"})

	rec := httptest.NewRecorder()
	WriteError(ctx, rec, NewError("cart_item_not_found", "cart item not found", 404))

	if rec.Code != 404 {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}

	var body struct {
		Error     string `json:"error"`
		Message   string `json:"message"`
		Status    int    `json:"status"`
		RequestID string `json:"request_id"`
		TraceID   string `json:"trace_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if body.Error != "cart_item_not_found" || body.Status != 404 {
		t.Fatalf("unexpected envelope: %+v", body)
	}
	if body.RequestID != "req-42" || body.TraceID != "trace-7" {
		t.Fatalf("expected context identifiers in envelope, got %+v", body)
	}
}

func TestNewErrorDefaultsAndClamps(t *testing.T) {
	err := NewError("code\nwith\rnewlines", "  message  ", 0)
	if err.Status != 500 {
		t.Fatalf("expected default status 500, got %d", err.Status)
	}
	if err.Code != "code with newlines" {
		t.Fatalf("expected newlines flattened, got %q", err.Code)
	}
	if err.Message != "message" {
		t.Fatalf("expected trimmed message, got %q", err.Message)
	}
}
