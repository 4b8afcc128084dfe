// Package idempotency makes checkout retries safe: the first request
// carrying a given Idempotency-Key runs the handler and records its
// response, later requests with the same key replay that response
// without running checkout again.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL bounds how long a recorded checkout response stays
// replayable before the key may be reused.
const DefaultTTL = 24 * time.Hour

// ErrFingerprintMismatch reports a key reused with a different request
// body, path, or caller than the one that reserved it.
var ErrFingerprintMismatch = errors.New("idempotency: key reused with a different request")

// Status tracks a record through its lifecycle.
type Status string

const (
	// StatusPending marks a key whose first request is still running.
	StatusPending Status = "pending"
	// StatusCompleted marks a key with a stored, replayable response.
	StatusCompleted Status = "completed"
)

// ReservationState tells the middleware what to do after reserving.
type ReservationState int

const (
	// ReservationStateNew lets the request through to the handler.
	ReservationStateNew ReservationState = iota
	// ReservationStateCompleted replays the stored response.
	ReservationStateCompleted
	// ReservationStatePending rejects the duplicate while the first
	// request is in flight.
	ReservationStatePending
)

// Reservation is the outcome of claiming a key.
type Reservation struct {
	State  ReservationState
	Record Record
}

// Record is the persisted state for one idempotency key.
type Record struct {
	Key             string
	Fingerprint     string
	Status          Status
	ResponseStatus  int
	ResponseHeaders map[string][]string
	ResponseBody    []byte
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ExpiresAt       time.Time
}

// Response captures what the handler wrote so it can be replayed.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Store persists key reservations and their recorded responses.
type Store interface {
	Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error)
	SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key, fingerprint string) error
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// recordID derives the document id from the scoped key. Hashing keeps
// arbitrary client-chosen keys safe to use as storage ids.
func recordID(key string) string {
	return hashHex([]byte(strings.TrimSpace(key)))
}

func hashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// storableHeaders drops hop-by-hop and volatile headers before a
// response is recorded. Replays regenerate those.
func storableHeaders(header http.Header) map[string][]string {
	if len(header) == 0 {
		return nil
	}
	kept := make(map[string][]string, len(header))
	for name, values := range header {
		canonical := http.CanonicalHeaderKey(name)
		switch canonical {
		case "Content-Length", "Date", "Connection", "Keep-Alive",
			"Proxy-Authenticate", "Proxy-Authorization", "Te",
			"Trailers", "Transfer-Encoding", "Upgrade":
			continue
		}
		kept[canonical] = append([]string(nil), values...)
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

func recordedHeaders(values map[string][]string) http.Header {
	header := make(http.Header, len(values))
	for name, vals := range values {
		header[name] = append([]string(nil), vals...)
	}
	return header
}
