//go:build integration

package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/onnwee/commons/internal/db/dbtest"
	"github.com/onnwee/commons/internal/hierarchy"
	"github.com/onnwee/commons/internal/profile"
)

func newProfiles(t *testing.T, repo *profile.PostgresRepository, n int) []string {
	t.Helper()
	ids := make([]string, n)
	for i := range ids {
		p := &profile.Profile{Username: fmt.Sprintf("user%d", i), Email: fmt.Sprintf("user%d@example.com", i)}
		if err := repo.Create(context.Background(), p); err != nil {
			t.Fatalf("profile Create() error = %v", err)
		}
		ids[i] = p.ID
	}
	return ids
}

func TestPostgresRepository(t *testing.T) {
	pool := dbtest.Start(t)
	repo := NewPostgresRepository(pool, nil)
	users := newProfiles(t, profile.NewPostgresRepository(pool), 3)
	ctx := context.Background()

	root := newEvent("summit", 0, 48)
	root.Published = false
	if err := repo.Create(ctx, root); err != nil {
		t.Fatalf("Create(root) error = %v", err)
	}
	child := newEvent("summit-day-1", 1, 24)
	child.Published = false
	child.ParentEventID = &root.ID
	if err := repo.Create(ctx, child); err != nil {
		t.Fatalf("Create(child) error = %v", err)
	}

	t.Run("window validated against parent", func(t *testing.T) {
		bad := newEvent("summit-afterparty", 40, 72)
		bad.ParentEventID = &root.ID
		if err := repo.Create(ctx, bad); !errors.Is(err, hierarchy.ErrInvalidWindow) {
			t.Errorf("Create() error = %v, want %v", err, hierarchy.ErrInvalidWindow)
		}
	})

	t.Run("duplicate keys", func(t *testing.T) {
		if err := repo.Create(ctx, newEvent("summit", 0, 4)); !errors.Is(err, ErrSlugTaken) {
			t.Errorf("Create(taken slug) error = %v, want %v", err, ErrSlugTaken)
		}
		clash := newEvent("summit-encore", 0, 4)
		clash.ID = root.ID
		if err := repo.Create(ctx, clash); !errors.Is(err, ErrEventExists) {
			t.Errorf("Create(existing id) error = %v, want %v", err, ErrEventExists)
		}

		profiles := profile.NewPostgresRepository(pool)
		if err := profiles.Create(ctx, &profile.Profile{ID: users[0], Username: "newcomer"}); !errors.Is(err, profile.ErrProfileExists) {
			t.Errorf("profile Create(existing id) error = %v, want %v", err, profile.ErrProfileExists)
		}
		if err := profiles.Create(ctx, &profile.Profile{Username: "user0"}); !errors.Is(err, profile.ErrUsernameTaken) {
			t.Errorf("profile Create(taken username) error = %v, want %v", err, profile.ErrUsernameTaken)
		}
	})

	t.Run("cycle rejected", func(t *testing.T) {
		r, err := repo.GetByID(ctx, root.ID)
		if err != nil {
			t.Fatal(err)
		}
		r.ParentEventID = &child.ID
		if err := repo.Update(ctx, r); !errors.Is(err, hierarchy.ErrCycle) {
			t.Errorf("Update() error = %v, want %v", err, hierarchy.ErrCycle)
		}
	})

	t.Run("publish subtree", func(t *testing.T) {
		ids, err := hierarchy.PublishSubtree(ctx, repo, root.ID, true)
		if err != nil {
			t.Fatalf("PublishSubtree() error = %v", err)
		}
		if len(ids) != 2 {
			t.Errorf("PublishSubtree() ids = %v", ids)
		}
		got, _ := repo.GetByID(ctx, child.ID)
		if !got.Published {
			t.Error("child not published")
		}
	})

	t.Run("partial bulk update rolls back", func(t *testing.T) {
		err := repo.SetPublished(ctx, []string{root.ID, "00000000-0000-0000-0000-000000000000"}, false)
		if !errors.Is(err, ErrPartialUpdate) {
			t.Fatalf("SetPublished() error = %v, want %v", err, ErrPartialUpdate)
		}
		got, _ := repo.GetByID(ctx, root.ID)
		if !got.Published {
			t.Error("SetPublished() committed despite a missing id")
		}
	})

	t.Run("slug history", func(t *testing.T) {
		e, _ := repo.GetByID(ctx, child.ID)
		e.Slug = "summit-opening"
		if err := repo.Update(ctx, e); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		res, err := hierarchy.ResolveSlug(ctx, repo, "summit-day-1")
		if err != nil {
			t.Fatalf("ResolveSlug() error = %v", err)
		}
		if !res.Redirect || res.Slug != "summit-opening" {
			t.Errorf("ResolveSlug() = %+v", res)
		}
	})

	t.Run("relations and counts", func(t *testing.T) {
		if err := repo.AddMember(ctx, child.ID, users[0], RoleSpeaker); err != nil {
			t.Fatal(err)
		}
		if err := repo.AddMember(ctx, child.ID, users[1], RoleAdmin); err != nil {
			t.Fatal(err)
		}
		if err := repo.AddParticipant(ctx, child.ID, users[2]); err != nil {
			t.Fatal(err)
		}
		if err := repo.AddParticipant(ctx, child.ID, users[2]); !errors.Is(err, ErrAlreadyMember) {
			t.Errorf("AddParticipant(again) error = %v, want %v", err, ErrAlreadyMember)
		}

		c, err := repo.Counts(ctx, child.ID)
		if err != nil {
			t.Fatal(err)
		}
		if c != (Counts{Participants: 1, Admins: 1}) {
			t.Errorf("Counts() = %+v", c)
		}
		v, err := repo.Relationship(ctx, child.ID, users[0])
		if err != nil {
			t.Fatal(err)
		}
		if !v.IsSpeaker || v.IsParticipant {
			t.Errorf("Relationship() = %+v", v)
		}
		if ok, _ := repo.IsAdmin(ctx, child.ID, users[1]); !ok {
			t.Error("IsAdmin() = false")
		}
		got, _ := repo.GetByID(ctx, child.ID)
		if len(got.Speakers) != 1 || got.Speakers[0] != users[0] {
			t.Errorf("Speakers = %v", got.Speakers)
		}
		if err := repo.RemoveMember(ctx, child.ID, users[2], RoleParticipant); err != nil {
			t.Errorf("RemoveMember() error = %v", err)
		}
	})

	t.Run("visibility", func(t *testing.T) {
		v, err := repo.GetVisibility(ctx, root.ID)
		if err != nil {
			t.Fatal(err)
		}
		v.VenueStreet = false
		if err := repo.UpdateVisibility(ctx, v); err != nil {
			t.Fatal(err)
		}
		got, _ := repo.GetVisibility(ctx, root.ID)
		if got.VenueStreet || !got.Name {
			t.Errorf("GetVisibility() = %+v", got)
		}
	})
}

func TestPostgresRepository_ConcurrentParticipants(t *testing.T) {
	pool := dbtest.Start(t)
	repo := NewPostgresRepository(pool, nil)
	users := newProfiles(t, profile.NewPostgresRepository(pool), 12)
	ctx := context.Background()

	e := newEvent("small-room", 0, 2)
	e.ParticipantLimit = ptr(3)
	if err := repo.Create(ctx, e); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			_ = repo.AddParticipant(ctx, e.ID, u)
		}(u)
	}
	wg.Wait()

	c, err := repo.Counts(ctx, e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if c.Participants != 3 {
		t.Errorf("participants = %d, want 3", c.Participants)
	}
}
