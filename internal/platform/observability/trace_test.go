package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fieldstone/storefront/internal/platform/requestctx"
)

func TestRemoteSpanContextParsesCloudTraceHeader(t *testing.T) {
	spanCtx, ok := remoteSpanContext("105445aa7843bc8bf206b12000100000/1;o=1")
	if !ok {
		t.Fatal("expected header to parse")
	}
	if spanCtx.TraceID().String() != "105445aa7843bc8bf206b12000100000" {
		t.Fatalf("unexpected trace id %s", spanCtx.TraceID())
	}
	if !spanCtx.IsSampled() {
		t.Fatal("expected sampled flag")
	}
	if !spanCtx.IsRemote() {
		t.Fatal("expected remote span context")
	}
}

func TestRemoteSpanContextRejectsMalformedHeader(t *testing.T) {
	for _, header := range []string{"", "not-a-trace", "shortid/1;o=1"} {
		if _, ok := remoteSpanContext(header); ok {
			t.Fatalf("header %q should not parse", header)
		}
	}
}

func TestTraceMiddlewareStampsContextAndResponse(t *testing.T) {
	var captured requestctx.TraceInfo
	handler := TraceMiddleware("demo-project")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = requestctx.Trace(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/cart", nil))

	if captured.TraceID == "" || captured.SpanID == "" {
		t.Fatalf("expected trace identity on context, got %+v", captured)
	}
	if captured.ProjectID != "demo-project" {
		t.Fatalf("unexpected project id %q", captured.ProjectID)
	}
	if rec.Header().Get("X-Cloud-Trace-Context") == "" {
		t.Fatal("expected trace header on response")
	}
}
