package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/commons/internal/idempotency"
)

// countingHandler answers with the number of times it ran, without a
// body for 204.
func countingHandler(status int) (http.Handler, *int) {
	calls := 0
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if status == http.StatusNoContent {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"call":` + strconv.Itoa(calls) + `}`))
	}), &calls
}

func idempotentRequest(path, userID, key string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	if userID != "" {
		req = req.WithContext(SetUserID(req.Context(), userID))
	}
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	return req
}

func TestIdempotency_Replay(t *testing.T) {
	next, calls := countingHandler(http.StatusCreated)
	handler := Idempotency(idempotency.NewInMemoryRepository(), time.Hour)(next)

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, idempotentRequest("/events/fair/participants", "u1", "k1"))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, idempotentRequest("/events/fair/participants", "u1", "k1"))

	if *calls != 1 {
		t.Fatalf("handler ran %d times, want 1", *calls)
	}
	if second.Code != http.StatusCreated || second.Body.String() != first.Body.String() {
		t.Errorf("replay = %d %q, want %d %q", second.Code, second.Body.String(), first.Code, first.Body.String())
	}
	if second.Header().Get(IdempotentReplayedHeader) != "true" {
		t.Error("replayed response lacks the replay header")
	}
	if first.Header().Get(IdempotentReplayedHeader) != "" {
		t.Error("first response carries the replay header")
	}
}

func TestIdempotency_Scoping(t *testing.T) {
	next, calls := countingHandler(http.StatusCreated)
	handler := Idempotency(idempotency.NewInMemoryRepository(), time.Hour)(next)

	for _, req := range []*http.Request{
		idempotentRequest("/events/fair/participants", "u1", "k1"),
		idempotentRequest("/events/fair/participants", "u2", "k1"),
		idempotentRequest("/events/fair/waiting-list", "u1", "k1"),
		idempotentRequest("/events/fair/participants", "u1", "k2"),
		idempotentRequest("/events/fair/participants", "u1", ""),
		idempotentRequest("/events/fair/participants", "u1", ""),
	} {
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
	if *calls != 6 {
		t.Errorf("handler ran %d times, want 6", *calls)
	}
}

func TestIdempotency_ErrorsNotStored(t *testing.T) {
	next, calls := countingHandler(http.StatusConflict)
	handler := Idempotency(idempotency.NewInMemoryRepository(), time.Hour)(next)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, idempotentRequest("/events/fair/participants", "u1", "k1"))
		if w.Code != http.StatusConflict {
			t.Errorf("status = %d, want 409", w.Code)
		}
	}
	if *calls != 2 {
		t.Errorf("handler ran %d times, want 2", *calls)
	}
}

func TestIdempotency_InvalidKey(t *testing.T) {
	next, calls := countingHandler(http.StatusCreated)
	handler := Idempotency(idempotency.NewInMemoryRepository(), time.Hour)(next)

	for _, key := range []string{strings.Repeat("k", idempotency.MaxKeyLength+1), "has space"} {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, idempotentRequest("/events/fair/participants", "u1", key))
		if w.Code != http.StatusBadRequest {
			t.Errorf("key %q: status = %d, want 400", key, w.Code)
		}
		if !strings.Contains(w.Body.String(), `"code":"bad_request"`) {
			t.Errorf("key %q: body = %s", key, w.Body.String())
		}
	}
	if *calls != 0 {
		t.Errorf("handler ran %d times for invalid keys", *calls)
	}
}

func TestIdempotency_NoContent(t *testing.T) {
	next, calls := countingHandler(http.StatusNoContent)
	handler := Idempotency(idempotency.NewInMemoryRepository(), time.Hour)(next)

	handler.ServeHTTP(httptest.NewRecorder(), idempotentRequest("/events/fair/participants", "u1", "k1"))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, idempotentRequest("/events/fair/participants", "u1", "k1"))

	if *calls != 1 || w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Errorf("replay = %d %q after %d calls", w.Code, w.Body.String(), *calls)
	}
}

// failingRepo fails every call.
type failingRepo struct{}

func (failingRepo) Get(context.Context, string) (*idempotency.Record, error) {
	return nil, errors.New("store down")
}

func (failingRepo) Store(context.Context, *idempotency.Record, time.Duration) error {
	return errors.New("store down")
}

func TestIdempotency_StoreUnavailable(t *testing.T) {
	next, calls := countingHandler(http.StatusCreated)
	handler := Idempotency(failingRepo{}, time.Hour)(next)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, idempotentRequest("/events/fair/participants", "u1", "k1"))
		if w.Code != http.StatusCreated {
			t.Errorf("status = %d, want 201", w.Code)
		}
	}
	if *calls != 2 {
		t.Errorf("handler ran %d times, want 2", *calls)
	}
}
