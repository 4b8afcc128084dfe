package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fieldstone/storefront/internal/platform/auth"
)

var testClock = func() time.Time {
	return time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
}

func checkoutRequest(key, body, customerID string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/checkout", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	if customerID != "" {
		req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{CustomerID: customerID}))
	}
	return req
}

func decodeErrorCode(t *testing.T, payload []byte) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	return body.Error
}

func TestMiddlewareRequiresKey(t *testing.T) {
	handlerCalled := false
	handler := Middleware(NewMemoryStore(), WithClock(testClock))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		handlerCalled = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, checkoutRequest("", `{"paymentMethod":"card"}`, "cust-1"))

	if handlerCalled {
		t.Fatal("handler ran without an idempotency key")
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if code := decodeErrorCode(t, rec.Body.Bytes()); code != "idempotency_key_required" {
		t.Fatalf("unexpected error code %q", code)
	}
}

func TestMiddlewareReplaysRecordedResponse(t *testing.T) {
	var calls int
	handler := Middleware(NewMemoryStore(), WithClock(testClock))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"order":{"orderNumber":"FS-2026-000007"}}`))
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, checkoutRequest("retry-1", `{"paymentMethod":"card"}`, "cust-1"))
	if first.Code != http.StatusCreated {
		t.Fatalf("first request: expected 201, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, checkoutRequest("retry-1", `{"paymentMethod":"card"}`, "cust-1"))

	if calls != 1 {
		t.Fatalf("expected handler to run once, ran %d times", calls)
	}
	if second.Code != http.StatusCreated {
		t.Fatalf("replay: expected 201, got %d", second.Code)
	}
	if second.Header().Get(replayHeaderName) != "true" {
		t.Fatal("replay header missing")
	}
	if second.Body.String() != first.Body.String() {
		t.Fatalf("replayed body %q differs from original %q", second.Body.String(), first.Body.String())
	}
}

func TestMiddlewareScopesKeyToCustomer(t *testing.T) {
	var calls int
	handler := Middleware(NewMemoryStore(), WithClock(testClock))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, checkoutRequest("shared-key", `{"paymentMethod":"card"}`, "cust-1"))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, checkoutRequest("shared-key", `{"paymentMethod":"card"}`, "cust-2"))

	if calls != 2 {
		t.Fatalf("expected both customers to run checkout, got %d calls", calls)
	}
	if second.Header().Get(replayHeaderName) == "true" {
		t.Fatal("second customer received the first customer's replay")
	}
}

func TestMiddlewareRejectsReusedKeyWithDifferentBody(t *testing.T) {
	handler := Middleware(NewMemoryStore(), WithClock(testClock))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, checkoutRequest("key-9", `{"paymentMethod":"card"}`, "cust-1"))
	if first.Code != http.StatusCreated {
		t.Fatalf("first request: expected 201, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, checkoutRequest("key-9", `{"paymentMethod":"bank"}`, "cust-1"))

	if second.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", second.Code)
	}
	if code := decodeErrorCode(t, second.Body.Bytes()); code != "idempotency_key_conflict" {
		t.Fatalf("unexpected error code %q", code)
	}
}

func TestMiddlewareRejectsPendingKey(t *testing.T) {
	store := NewMemoryStore()
	handler := Middleware(store, WithClock(testClock))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run while the key is pending")
	}))

	req := checkoutRequest("pending-key", `{"paymentMethod":"card"}`, "cust-1")
	body, err := bufferBody(req)
	if err != nil {
		t.Fatalf("buffer body: %v", err)
	}
	caller := callerID(req.Context())
	fingerprint := fingerprintRequest(req, body, caller)
	if _, err := store.Reserve(req.Context(), "pending-key|"+caller, fingerprint, testClock(), time.Hour); err != nil {
		t.Fatalf("seed reservation: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if code := decodeErrorCode(t, rec.Body.Bytes()); code != "idempotency_in_progress" {
		t.Fatalf("unexpected error code %q", code)
	}
}

func TestMiddlewareReleasesKeyWhenSaveFails(t *testing.T) {
	store := &failingSaveStore{}
	handler := Middleware(store, WithClock(testClock))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, checkoutRequest("fail-key", `{"paymentMethod":"card"}`, "cust-1"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if code := decodeErrorCode(t, rec.Body.Bytes()); code != "idempotency_store_error" {
		t.Fatalf("unexpected error code %q", code)
	}
	if !store.released {
		t.Fatal("reservation was not released after the save failure")
	}
}

func TestMemoryStoreCleanupExpired(t *testing.T) {
	store := NewMemoryStore()
	now := testClock()
	if _, err := store.Reserve(context.Background(), "old", "fp", now.Add(-48*time.Hour), time.Hour); err != nil {
		t.Fatalf("seed expired record: %v", err)
	}
	if _, err := store.Reserve(context.Background(), "fresh", "fp", now, time.Hour); err != nil {
		t.Fatalf("seed fresh record: %v", err)
	}

	removed, err := store.CleanupExpired(context.Background(), now, 10)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed record, got %d", removed)
	}
}

type failingSaveStore struct {
	released bool
}

func (s *failingSaveStore) Reserve(context.Context, string, string, time.Time, time.Duration) (Reservation, error) {
	return Reservation{State: ReservationStateNew}, nil
}

func (s *failingSaveStore) SaveResponse(context.Context, string, string, Response, time.Time, time.Duration) error {
	return errors.New("save failed")
}

func (s *failingSaveStore) Release(context.Context, string, string) error {
	s.released = true
	return nil
}

func (s *failingSaveStore) CleanupExpired(context.Context, time.Time, int) (int, error) {
	return 0, nil
}
