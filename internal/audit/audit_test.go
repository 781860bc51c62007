package audit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/onnwee/commons/internal/middleware"
)

func appendN(t *testing.T, repo Repository, n int) []*Log {
	t.Helper()
	logs := make([]*Log, n)
	for i := range logs {
		l, err := repo.Append(context.Background(), Entry{
			UserID:     "admin",
			EntityType: EntityEvent,
			EntityID:   "event-1",
			Action:     ActionEventPublish,
			Outcome:    OutcomeSuccess,
		})
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		logs[i] = l
	}
	return logs
}

func TestInMemoryRepository_Append(t *testing.T) {
	repo := NewInMemoryRepository()
	now := time.Date(2030, 6, 1, 9, 0, 0, 123456789, time.FixedZone("CEST", 2*3600))
	repo.now = func() time.Time { return now }

	entry := Entry{
		UserID:     "admin",
		EntityType: EntityEvent,
		EntityID:   "event-1",
		Action:     ActionEventCancel,
		Outcome:    OutcomeSuccess,
		RequestID:  "req-456",
		IPAddress:  "192.0.2.1",
		UserAgent:  "curl/8.0",
	}
	l, err := repo.Append(context.Background(), entry)
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	if l.ID == "" {
		t.Error("Append() should generate an ID")
	}
	want := Log{
		ID: l.ID, UserID: "admin", EntityType: EntityEvent, EntityID: "event-1",
		Action: ActionEventCancel, Outcome: OutcomeSuccess,
		CreatedAt: time.Date(2030, 6, 1, 7, 0, 0, 123456000, time.UTC),
		RequestID: "req-456", IPAddress: "192.0.2.1", UserAgent: "curl/8.0",
	}
	if !l.CreatedAt.Equal(want.CreatedAt) || l.CreatedAt.Location() != time.UTC {
		t.Errorf("CreatedAt = %v, want %v", l.CreatedAt, want.CreatedAt)
	}
	want.CreatedAt = l.CreatedAt
	if *l != want {
		t.Errorf("Append() = %+v, want %+v", *l, want)
	}
}

func TestInMemoryRepository_HashChain(t *testing.T) {
	repo := NewInMemoryRepository()
	logs := appendN(t, repo, 3)

	if logs[0].PreviousHash != "" {
		t.Errorf("first PreviousHash = %q, want empty", logs[0].PreviousHash)
	}
	for i := 1; i < len(logs); i++ {
		if logs[i].PreviousHash != logs[i-1].Hash() {
			t.Errorf("logs[%d].PreviousHash does not match the hash of logs[%d]", i, i-1)
		}
	}
	if logs[1].PreviousHash == logs[2].PreviousHash {
		t.Error("consecutive entries share a PreviousHash")
	}
	if err := repo.Verify(context.Background()); err != nil {
		t.Errorf("Verify() error = %v", err)
	}
}

func TestInMemoryRepository_VerifyDetectsTampering(t *testing.T) {
	tests := []struct {
		name   string
		tamper func(logs []*Log) []*Log
	}{
		{"edited field", func(logs []*Log) []*Log {
			logs[1].Outcome = OutcomeFailure
			return logs
		}},
		{"removed entry", func(logs []*Log) []*Log {
			return append(logs[:1], logs[2:]...)
		}},
		{"reordered entries", func(logs []*Log) []*Log {
			logs[1], logs[2] = logs[2], logs[1]
			return logs
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := NewInMemoryRepository()
			appendN(t, repo, 4)
			repo.logs = tt.tamper(repo.logs)

			if err := repo.Verify(context.Background()); !errors.Is(err, ErrChainBroken) {
				t.Errorf("Verify() error = %v, want ErrChainBroken", err)
			}
		})
	}
}

func TestVerifyChain_Empty(t *testing.T) {
	if err := VerifyChain(nil); err != nil {
		t.Errorf("VerifyChain(nil) error = %v", err)
	}
}

func TestInMemoryRepository_Query(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	for _, e := range []Entry{
		{UserID: "a", EntityType: EntityEvent, EntityID: "e1", Action: ActionEventPublish, Outcome: OutcomeSuccess},
		{UserID: "b", EntityType: EntityEvent, EntityID: "e2", Action: ActionEventPublish, Outcome: OutcomeSuccess},
		{UserID: "a", EntityType: EntityEvent, EntityID: "e1", Action: ActionEventCancel, Outcome: OutcomeSuccess},
		{UserID: "a", EntityType: EntityEvent, EntityID: "e1", Action: ActionEventRestore, Outcome: OutcomeFailure},
	} {
		if _, err := repo.Append(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name        string
		query       func() ([]*Log, error)
		wantActions []string
	}{
		{"entity newest first", func() ([]*Log, error) { return repo.QueryByEntity(ctx, EntityEvent, "e1", 0) },
			[]string{ActionEventRestore, ActionEventCancel, ActionEventPublish}},
		{"entity limited", func() ([]*Log, error) { return repo.QueryByEntity(ctx, EntityEvent, "e1", 2) },
			[]string{ActionEventRestore, ActionEventCancel}},
		{"unknown entity", func() ([]*Log, error) { return repo.QueryByEntity(ctx, EntityEvent, "e9", 0) },
			[]string{}},
		{"user", func() ([]*Log, error) { return repo.QueryByUser(ctx, "b", 0) },
			[]string{ActionEventPublish}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs, err := tt.query()
			if err != nil {
				t.Fatalf("query error = %v", err)
			}
			if logs == nil {
				t.Fatal("query returned nil, want empty slice")
			}
			if len(logs) != len(tt.wantActions) {
				t.Fatalf("got %d logs, want %d", len(logs), len(tt.wantActions))
			}
			for i, l := range logs {
				if l.Action != tt.wantActions[i] {
					t.Errorf("logs[%d].Action = %q, want %q", i, l.Action, tt.wantActions[i])
				}
			}
		})
	}

	// Returned logs are copies.
	logs, _ := repo.QueryByUser(ctx, "b", 0)
	logs[0].Outcome = OutcomeFailure
	if err := repo.Verify(ctx); err != nil {
		t.Errorf("modifying a query result changed the store: %v", err)
	}
}

func TestRecord(t *testing.T) {
	repo := NewInMemoryRepository()

	var got *Log
	handler := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = r.WithContext(middleware.SetUserID(r.Context(), "admin"))
		var err error
		got, err = Record(r, repo, EntityEvent, "event-1", ActionEventPublish, OutcomeSuccess)
		if err != nil {
			t.Errorf("Record() error = %v", err)
		}
	}))

	req := httptest.NewRequest(http.MethodPost, "/events/spring-fair/publish", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-456")
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	req.Header.Set("User-Agent", "commons-test")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got == nil {
		t.Fatal("Record() returned no log")
	}
	if got.UserID != "admin" || got.RequestID != "req-456" || got.IPAddress != "203.0.113.5" || got.UserAgent != "commons-test" {
		t.Errorf("Record() = %+v", got)
	}
	logs, _ := repo.QueryByEntity(context.Background(), EntityEvent, "event-1", 0)
	if len(logs) != 1 {
		t.Errorf("stored %d logs, want 1", len(logs))
	}
}

func TestRecord_Validation(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	repo := NewInMemoryRepository()

	tests := []struct {
		name       string
		repo       Repository
		entityType string
		entityID   string
		action     string
		outcome    string
		wantErr    error
	}{
		{"nil repository", nil, EntityEvent, "e1", ActionEventPublish, OutcomeSuccess, ErrNilRepository},
		{"empty entity type", repo, "", "e1", ActionEventPublish, OutcomeSuccess, ErrInvalidEntityType},
		{"unknown entity type", repo, "scene", "e1", ActionEventPublish, OutcomeSuccess, ErrInvalidEntityType},
		{"empty entity id", repo, EntityEvent, "", ActionEventPublish, OutcomeSuccess, ErrInvalidEntityID},
		{"unknown action", repo, EntityEvent, "e1", "drop_tables", OutcomeSuccess, ErrInvalidAction},
		{"unknown outcome", repo, EntityEvent, "e1", ActionEventPublish, "maybe", ErrInvalidOutcome},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Record(req, tt.repo, tt.entityType, tt.entityID, tt.action, tt.outcome); !errors.Is(err, tt.wantErr) {
				t.Errorf("Record() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if logs, _ := repo.QueryByEntity(context.Background(), EntityEvent, "e1", 0); len(logs) != 0 {
		t.Errorf("invalid entries were stored: %d", len(logs))
	}
}
