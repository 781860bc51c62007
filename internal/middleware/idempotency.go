package middleware

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/onnwee/commons/internal/idempotency"
)

// Idempotency headers.
const (
	IdempotencyKeyHeader     = "Idempotency-Key"
	IdempotentReplayedHeader = "Idempotent-Replayed"
)

// idempotencyResponseWriter forwards the response and keeps a copy of it.
type idempotencyResponseWriter struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
	written    bool
}

func (w *idempotencyResponseWriter) WriteHeader(statusCode int) {
	if !w.written {
		w.statusCode = statusCode
		w.written = true
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *idempotencyResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *idempotencyResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Idempotency replays the stored response of a request whose
// Idempotency-Key header was seen before for the same user and route.
// Requests without the header pass through. Only 2xx responses are stored,
// for ttl. Store failures never fail the request.
func Idempotency(repo idempotency.Repository, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientKey := r.Header.Get(IdempotencyKeyHeader)
			if clientKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			if err := idempotency.ValidateKey(clientKey); err != nil {
				msg := "Invalid Idempotency-Key"
				if errors.Is(err, idempotency.ErrKeyTooLong) {
					msg = "Idempotency-Key exceeds " + strconv.Itoa(idempotency.MaxKeyLength) + " characters"
				}
				writeError(w, ctx, http.StatusBadRequest, "bad_request", msg)
				return
			}

			key := idempotency.ScopedKey(GetUserID(ctx), r.Method, r.URL.Path, clientKey)
			existing, err := repo.Get(ctx, key)
			switch {
			case err == nil && existing.Verify():
				slog.InfoContext(ctx, "replaying stored response", "status", existing.StatusCode)
				w.Header().Set(IdempotentReplayedHeader, "true")
				if existing.Body != "" {
					w.Header().Set("Content-Type", "application/json; charset=utf-8")
				}
				w.WriteHeader(existing.StatusCode)
				if existing.Body != "" {
					_, _ = w.Write([]byte(existing.Body))
				}
				return
			case err == nil:
				slog.WarnContext(ctx, "stored response does not match its hash, running request")
			case !errors.Is(err, idempotency.ErrKeyNotFound):
				slog.ErrorContext(ctx, "failed to check idempotency key", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			capture := &idempotencyResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(capture, r)

			if capture.statusCode < 200 || capture.statusCode >= 300 {
				return
			}
			body := capture.body.String()
			rec := &idempotency.Record{
				Key:          key,
				Method:       r.Method,
				Route:        r.URL.Path,
				StatusCode:   capture.statusCode,
				Body:         body,
				ResponseHash: idempotency.ComputeResponseHash(body),
			}
			if err := repo.Store(ctx, rec, ttl); err != nil {
				slog.ErrorContext(ctx, "failed to store idempotent response", "error", err)
			}
		})
	}
}
