package profile

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/onnwee/commons/internal/visibility"
)

func strPtr(s string) *string { return &s }

func TestTableMatchesSettings(t *testing.T) {
	if err := visibility.ValidateSchema(visibility.KindProfile, Table, Fields); err != nil {
		t.Fatalf("ValidateSchema() error = %v", err)
	}
}

func TestRecordKeysMatchSettings(t *testing.T) {
	p := &Profile{ID: "p1", Username: "alice"}
	var keys []string
	for k := range p.Record() {
		if k != visibility.IDField {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	if len(keys) != len(Fields) {
		t.Fatalf("record has %d fields, settings have %d", len(keys), len(Fields))
	}
	for i := range keys {
		if keys[i] != Fields[i] {
			t.Errorf("record field %q != settings field %q", keys[i], Fields[i])
		}
	}
}

func TestRedactProfile(t *testing.T) {
	p := &Profile{
		ID:          "p1",
		Username:    "alice",
		Email:       "a@x.com",
		Phone:       strPtr("+49 30 1234"),
		Areas:       []string{"berlin"},
		Score:       5,
		Memberships: []string{"org-1"},
	}
	v := NewVisibility(p.ID)

	out, diags := visibility.Redact(visibility.KindProfile, Table, p.Record(), v.Settings())
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}

	if out["email"] != "" {
		t.Errorf("email = %v, want redacted", out["email"])
	}
	if out["phone"] != nil {
		t.Errorf("phone = %v, want nil", out["phone"])
	}
	if out["termsAccepted"] != true {
		t.Errorf("termsAccepted = %v, want true", out["termsAccepted"])
	}
	if out["username"] != "alice" {
		t.Errorf("username = %v, want alice", out["username"])
	}
	if out["score"] != 5 {
		t.Errorf("score = %v, want 5", out["score"])
	}
}

func TestInMemoryRepository(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	p := &Profile{Username: "alice", Email: "a@x.com", Areas: []string{"berlin"}}
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if p.ID == "" {
		t.Fatal("Create() did not assign an id")
	}
	if err := repo.Create(ctx, &Profile{Username: "alice"}); !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("duplicate Create() error = %v, want %v", err, ErrUsernameTaken)
	}
	if err := repo.Create(ctx, &Profile{Username: "alice smith"}); !errors.Is(err, ErrInvalidProfile) {
		t.Errorf("Create(invalid username) error = %v, want %v", err, ErrInvalidProfile)
	}

	got, err := repo.GetByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetByUsername() error = %v", err)
	}
	got.Areas[0] = "hamburg"
	again, _ := repo.GetByID(ctx, p.ID)
	if again.Areas[0] != "berlin" {
		t.Error("repository returned shared slice")
	}

	v, err := repo.GetVisibility(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetVisibility() error = %v", err)
	}
	if *v != *NewVisibility(p.ID) {
		t.Errorf("settings not defaulted on create: %+v", v)
	}

	v.Email = true
	if err := repo.UpdateVisibility(ctx, v); err != nil {
		t.Fatalf("UpdateVisibility() error = %v", err)
	}
	v2, _ := repo.GetVisibility(ctx, p.ID)
	if !v2.Email {
		t.Error("UpdateVisibility() not persisted")
	}

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("GetByID(missing) error = %v, want %v", err, ErrProfileNotFound)
	}
	if err := repo.UpdateVisibility(ctx, &Visibility{ProfileID: "missing"}); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("UpdateVisibility(missing) error = %v, want %v", err, ErrProfileNotFound)
	}
}

func TestIsOwner(t *testing.T) {
	p := &Profile{ID: "p1"}
	if !p.IsOwner("p1") {
		t.Error("IsOwner(p1) = false")
	}
	if p.IsOwner("") || p.IsOwner("p2") {
		t.Error("IsOwner matched a non-owner")
	}
}

func TestInMemoryRepository_CreateExistingID(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	p := &Profile{Username: "alice", Email: "a@x.com"}
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	v := NewVisibility(p.ID)
	v.Email = !v.Email
	if err := repo.UpdateVisibility(ctx, v); err != nil {
		t.Fatalf("UpdateVisibility() error = %v", err)
	}

	if err := repo.Create(ctx, &Profile{ID: p.ID, Username: "mallory"}); !errors.Is(err, ErrProfileExists) {
		t.Fatalf("Create(existing id) error = %v, want %v", err, ErrProfileExists)
	}

	got, err := repo.GetByID(ctx, p.ID)
	if err != nil || got.Username != "alice" || got.Email != "a@x.com" {
		t.Errorf("GetByID() = %+v, %v; want the original profile", got, err)
	}
	if _, err := repo.GetByUsername(ctx, "mallory"); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("GetByUsername(mallory) error = %v, want %v", err, ErrProfileNotFound)
	}
	if stored, _ := repo.GetVisibility(ctx, p.ID); stored.Email != v.Email {
		t.Error("Create(existing id) reset the visibility settings")
	}
}
