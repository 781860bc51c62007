package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/onnwee/commons/internal/eligibility"
	"github.com/onnwee/commons/internal/hierarchy"
	"github.com/onnwee/commons/internal/visibility"
)

var base = time.Date(2030, 6, 1, 10, 0, 0, 0, time.UTC)

// newEvent returns a published event running from base+startH to base+endH
// hours, with registration open until its start.
func newEvent(slug string, startH, endH int) *Event {
	start := base.Add(time.Duration(startH) * time.Hour)
	return &Event{
		Name:               slug,
		Slug:               slug,
		StartTime:          start,
		EndTime:            base.Add(time.Duration(endH) * time.Hour),
		ParticipationFrom:  base.Add(-30 * 24 * time.Hour),
		ParticipationUntil: start,
		Published:          true,
	}
}

func ptr[T any](v T) *T { return &v }

func TestTableMatchesSettings(t *testing.T) {
	if err := visibility.ValidateSchema(visibility.KindEvent, Table, Fields); err != nil {
		t.Fatalf("ValidateSchema() error = %v", err)
	}
	rec := (&Event{ID: "e1"}).Record()
	for _, f := range Fields {
		if _, ok := rec[f]; !ok {
			t.Errorf("record lacks settings field %q", f)
		}
	}
	if len(rec) != len(Fields)+1 {
		t.Errorf("record has %d keys, want %d settings fields plus id", len(rec), len(Fields))
	}
}

func TestRedactEvent_PrivateFields(t *testing.T) {
	e := newEvent("meetup", 0, 2)
	e.ID = "e1"
	e.VenueCity = ptr("Berlin")
	e.Tags = []string{"garden"}
	e.Canceled = true

	v := NewVisibility(e.ID)
	v.VenueCity = false
	v.Tags = false
	v.Canceled = false
	v.StartTime = false

	out, diags := visibility.Redact(visibility.KindEvent, Table, e.Record(), v.Settings())
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}

	if out["venueCity"] != nil {
		t.Errorf("venueCity = %v, want nil", out["venueCity"])
	}
	if tags, ok := out["tags"].([]any); !ok || len(tags) != 0 {
		t.Errorf("tags = %v, want empty list", out["tags"])
	}
	if out["canceled"] != true {
		t.Errorf("canceled = %v, want true", out["canceled"])
	}
	if out["startTime"] != visibility.Epoch {
		t.Errorf("startTime = %v, want epoch", out["startTime"])
	}
	if out["name"] != "meetup" {
		t.Errorf("name = %v, want meetup", out["name"])
	}
}

func TestEligibility_CopiesState(t *testing.T) {
	e := newEvent("talk", 0, 1)
	e.ParticipantLimit = ptr(10)
	e.Stage = ptr("online")

	got := e.Eligibility(Counts{Participants: 3, ChildEvents: 1})
	if got.ParticipantCount != 3 || got.ChildEventCount != 1 {
		t.Errorf("counts not copied: %+v", got)
	}
	if got.ConferenceLink != "" || got.Stage != "online" {
		t.Errorf("link/stage = %q/%q, want \"\"/online", got.ConferenceLink, got.Stage)
	}
	if got.ParticipantLimit == nil || *got.ParticipantLimit != 10 {
		t.Errorf("ParticipantLimit = %v, want 10", got.ParticipantLimit)
	}
}

func TestRole_Valid(t *testing.T) {
	for _, r := range []Role{RoleParticipant, RoleWaitingList, RoleTeamMember, RoleSpeaker, RoleAdmin} {
		if !r.Valid() {
			t.Errorf("%q.Valid() = false", r)
		}
	}
	if Role("organizer").Valid() {
		t.Error(`"organizer".Valid() = true`)
	}
}

func TestInMemoryRepository_CreateAndGet(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	e := newEvent("festival", 0, 48)
	e.ResponsibleOrganizations = []string{"o1"}
	if err := repo.Create(ctx, e); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if e.ID == "" {
		t.Fatal("Create() did not assign an id")
	}
	if err := repo.Create(ctx, newEvent("festival", 0, 1)); !errors.Is(err, ErrSlugTaken) {
		t.Errorf("duplicate Create() error = %v, want %v", err, ErrSlugTaken)
	}

	got, err := repo.GetBySlug(ctx, "festival")
	if err != nil {
		t.Fatalf("GetBySlug() error = %v", err)
	}
	if got.ID != e.ID || len(got.ResponsibleOrganizations) != 1 {
		t.Errorf("GetBySlug() = %+v", got)
	}

	got.Name = "mutated"
	again, _ := repo.GetByID(ctx, e.ID)
	if again.Name != "festival" {
		t.Error("returned event aliases stored state")
	}

	v, err := repo.GetVisibility(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetVisibility() error = %v", err)
	}
	if !v.Name || !v.ConferenceLink {
		t.Errorf("new event visibility not public: %+v", v)
	}

	if _, err := repo.GetBySlug(ctx, "missing"); !errors.Is(err, ErrEventNotFound) {
		t.Errorf("GetBySlug(missing) error = %v, want %v", err, ErrEventNotFound)
	}
}

func TestEvent_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(e *Event)
		wantErr bool
	}{
		{"valid", func(*Event) {}, false},
		{"online with link", func(e *Event) {
			e.Stage = ptr(eligibility.StageOnline)
			e.ConferenceLink = ptr("https://meet.example/room")
		}, false},
		{"blank name", func(e *Event) { e.Name = "  " }, true},
		{"uppercase slug", func(e *Event) { e.Slug = "Spring-Fair" }, true},
		{"private conference link", func(e *Event) { e.ConferenceLink = ptr("http://10.0.0.5/room") }, true},
		{"unknown stage", func(e *Event) { e.Stage = ptr("underwater") }, true},
		{"negative limit", func(e *Event) { e.ParticipantLimit = ptr(-1) }, true},
		{"missing participation deadline", func(e *Event) { e.ParticipationUntil = time.Time{} }, true},
		{"participation window reversed", func(e *Event) {
			e.ParticipationFrom = e.ParticipationUntil.Add(time.Hour)
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEvent("spring-fair", 0, 2)
			tt.mutate(e)
			err := e.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidEvent) {
				t.Errorf("Validate() error = %v, want ErrInvalidEvent", err)
			}
		})
	}
}

func TestInMemoryRepository_RejectsInvalidEvent(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	bad := newEvent("Bad Slug", 0, 1)
	if err := repo.Create(ctx, bad); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("Create() error = %v, want ErrInvalidEvent", err)
	}
	if _, err := repo.GetBySlug(ctx, "Bad Slug"); !errors.Is(err, ErrEventNotFound) {
		t.Errorf("invalid event was stored: %v", err)
	}

	e := newEvent("meetup", 0, 1)
	if err := repo.Create(ctx, e); err != nil {
		t.Fatal(err)
	}
	e.Name = ""
	if err := repo.Update(ctx, e); !errors.Is(err, ErrInvalidEvent) {
		t.Errorf("Update() error = %v, want ErrInvalidEvent", err)
	}
}

func TestInMemoryRepository_CreateChildValidatesWindow(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	parent := newEvent("parent", 0, 10)
	if err := repo.Create(ctx, parent); err != nil {
		t.Fatalf("Create(parent) error = %v", err)
	}

	late := newEvent("late", 5, 12)
	late.ParentEventID = &parent.ID
	if err := repo.Create(ctx, late); !errors.Is(err, hierarchy.ErrInvalidWindow) {
		t.Errorf("Create(late child) error = %v, want %v", err, hierarchy.ErrInvalidWindow)
	}

	orphan := newEvent("orphan", 0, 1)
	orphan.ParentEventID = ptr("missing")
	if err := repo.Create(ctx, orphan); !errors.Is(err, ErrParentNotFound) {
		t.Errorf("Create(orphan) error = %v, want %v", err, ErrParentNotFound)
	}

	child := newEvent("child", 2, 4)
	child.ParentEventID = &parent.ID
	if err := repo.Create(ctx, child); err != nil {
		t.Fatalf("Create(child) error = %v", err)
	}

	got, _ := repo.GetByID(ctx, parent.ID)
	if len(got.ChildEvents) != 1 || got.ChildEvents[0] != child.ID {
		t.Errorf("ChildEvents = %v, want [%s]", got.ChildEvents, child.ID)
	}

	// Shrinking the parent below its child is rejected.
	got.EndTime = base.Add(3 * time.Hour)
	got.ParticipationUntil = got.StartTime
	if err := repo.Update(ctx, got); !errors.Is(err, hierarchy.ErrInvalidWindow) {
		t.Errorf("Update(shrunk parent) error = %v, want %v", err, hierarchy.ErrInvalidWindow)
	}
}

func TestInMemoryRepository_UpdateRejectsCycle(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	a := newEvent("a", 0, 10)
	if err := repo.Create(ctx, a); err != nil {
		t.Fatal(err)
	}
	b := newEvent("b", 1, 9)
	b.ParentEventID = &a.ID
	if err := repo.Create(ctx, b); err != nil {
		t.Fatal(err)
	}

	a.ParentEventID = &b.ID
	if err := repo.Update(ctx, a); !errors.Is(err, hierarchy.ErrCycle) {
		t.Errorf("Update(a under b) error = %v, want %v", err, hierarchy.ErrCycle)
	}

	a.ParentEventID = &a.ID
	if err := repo.Update(ctx, a); !errors.Is(err, hierarchy.ErrCycle) {
		t.Errorf("Update(a under a) error = %v, want %v", err, hierarchy.ErrCycle)
	}
}

func TestInMemoryRepository_SlugHistory(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	e := newEvent("spring-fair", 0, 5)
	if err := repo.Create(ctx, e); err != nil {
		t.Fatal(err)
	}

	e.Slug = "spring-fair-2030"
	if err := repo.Update(ctx, e); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	e.Slug = "fair"
	if err := repo.Update(ctx, e); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	for _, old := range []string{"spring-fair", "spring-fair-2030"} {
		res, err := hierarchy.ResolveSlug(ctx, repo, old)
		if err != nil {
			t.Fatalf("ResolveSlug(%q) error = %v", old, err)
		}
		if !res.Redirect || res.Slug != "fair" {
			t.Errorf("ResolveSlug(%q) = %+v, want redirect to fair", old, res)
		}
	}

	res, err := hierarchy.ResolveSlug(ctx, repo, "fair")
	if err != nil {
		t.Fatalf("ResolveSlug(fair) error = %v", err)
	}
	if res.Redirect || res.EventID != e.ID {
		t.Errorf("ResolveSlug(fair) = %+v, want current slug for %s", res, e.ID)
	}

	// A new event may reuse a historic slug; it then stops redirecting.
	reuse := newEvent("spring-fair", 0, 1)
	if err := repo.Create(ctx, reuse); err != nil {
		t.Fatalf("Create(reused slug) error = %v", err)
	}
	res, err = hierarchy.ResolveSlug(ctx, repo, "spring-fair")
	if err != nil {
		t.Fatal(err)
	}
	if res.Redirect || res.EventID != reuse.ID {
		t.Errorf("ResolveSlug(spring-fair) = %+v, want current slug for %s", res, reuse.ID)
	}
}

func TestInMemoryRepository_SetPublishedAllOrNothing(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	e := newEvent("draft", 0, 1)
	e.Published = false
	if err := repo.Create(ctx, e); err != nil {
		t.Fatal(err)
	}

	err := repo.SetPublished(ctx, []string{e.ID, "missing"}, true)
	if !errors.Is(err, ErrPartialUpdate) {
		t.Fatalf("SetPublished() error = %v, want %v", err, ErrPartialUpdate)
	}
	if got, _ := repo.GetByID(ctx, e.ID); got.Published {
		t.Error("SetPublished() changed an event despite failing")
	}
}

func TestInMemoryRepository_PublishSubtree(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	root := newEvent("root", 0, 10)
	root.Published = false
	if err := repo.Create(ctx, root); err != nil {
		t.Fatal(err)
	}
	child := newEvent("child", 1, 5)
	child.Published = false
	child.ParentEventID = &root.ID
	if err := repo.Create(ctx, child); err != nil {
		t.Fatal(err)
	}
	grandchild := newEvent("grandchild", 2, 3)
	grandchild.Published = false
	grandchild.ParentEventID = &child.ID
	if err := repo.Create(ctx, grandchild); err != nil {
		t.Fatal(err)
	}

	ids, err := hierarchy.NewService(repo).Publish(ctx, root.ID, true)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(ids) != 3 {
		t.Errorf("Publish() ids = %v, want 3", ids)
	}
	for _, id := range []string{root.ID, child.ID, grandchild.ID} {
		if got, _ := repo.GetByID(ctx, id); !got.Published {
			t.Errorf("event %s not published", id)
		}
	}

	if err := hierarchy.NewService(repo).Cancel(ctx, root.ID, true); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if got, _ := repo.GetByID(ctx, child.ID); got.Canceled {
		t.Error("Cancel() propagated to child")
	}
}

func TestInMemoryRepository_Members(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	e := newEvent("workshop", 0, 2)
	e.ParticipantLimit = ptr(1)
	if err := repo.Create(ctx, e); err != nil {
		t.Fatal(err)
	}

	if err := repo.AddParticipant(ctx, e.ID, "u1"); err != nil {
		t.Fatalf("AddParticipant(u1) error = %v", err)
	}
	if err := repo.AddParticipant(ctx, e.ID, "u2"); !errors.Is(err, ErrEventFull) {
		t.Errorf("AddParticipant(u2) error = %v, want %v", err, ErrEventFull)
	}
	if err := repo.AddMember(ctx, e.ID, "u1", RoleParticipant); !errors.Is(err, ErrAlreadyMember) {
		t.Errorf("AddMember(duplicate) error = %v, want %v", err, ErrAlreadyMember)
	}
	if err := repo.AddMember(ctx, e.ID, "u3", Role("host")); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("AddMember(host) error = %v, want %v", err, ErrInvalidRole)
	}
	for _, m := range []struct {
		user string
		role Role
	}{
		{"u2", RoleWaitingList},
		{"s1", RoleSpeaker},
		{"t1", RoleTeamMember},
		{"a1", RoleAdmin},
	} {
		if err := repo.AddMember(ctx, e.ID, m.user, m.role); err != nil {
			t.Fatalf("AddMember(%s, %s) error = %v", m.user, m.role, err)
		}
	}

	c, err := repo.Counts(ctx, e.ID)
	if err != nil {
		t.Fatalf("Counts() error = %v", err)
	}
	if c != (Counts{Participants: 1, WaitingList: 1, Admins: 1}) {
		t.Errorf("Counts() = %+v", c)
	}

	v, _ := repo.Relationship(ctx, e.ID, "s1")
	if !v.IsSpeaker || v.IsParticipant {
		t.Errorf("Relationship(s1) = %+v", v)
	}
	if v, _ := repo.Relationship(ctx, e.ID, ""); v != (eligibility.Viewer{}) {
		t.Errorf("Relationship(anonymous) = %+v, want zero", v)
	}
	if ok, _ := repo.IsAdmin(ctx, e.ID, "a1"); !ok {
		t.Error("IsAdmin(a1) = false")
	}

	got, _ := repo.GetByID(ctx, e.ID)
	if len(got.Speakers) != 1 || len(got.TeamMembers) != 1 {
		t.Errorf("derived relations = speakers %v team %v", got.Speakers, got.TeamMembers)
	}

	if err := repo.RemoveMember(ctx, e.ID, "u1", RoleParticipant); err != nil {
		t.Fatalf("RemoveMember() error = %v", err)
	}
	if err := repo.RemoveMember(ctx, e.ID, "u1", RoleParticipant); !errors.Is(err, ErrNotMember) {
		t.Errorf("RemoveMember(again) error = %v, want %v", err, ErrNotMember)
	}
}

func TestInMemoryRepository_CreateExistingID(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	first := newEvent("first", 0, 4)
	first.ID = "e1"
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := repo.AddParticipant(ctx, "e1", "u1"); err != nil {
		t.Fatalf("AddParticipant() error = %v", err)
	}

	second := newEvent("second", 0, 4)
	second.ID = "e1"
	if err := repo.Create(ctx, second); !errors.Is(err, ErrEventExists) {
		t.Fatalf("Create(existing id) error = %v, want %v", err, ErrEventExists)
	}

	if c, _ := repo.Counts(ctx, "e1"); c.Participants != 1 {
		t.Errorf("Participants = %d after rejected Create, want 1", c.Participants)
	}
	if got, err := repo.GetBySlug(ctx, "first"); err != nil || got.ID != "e1" {
		t.Errorf("GetBySlug(first) = %v, %v", got, err)
	}
	if _, err := repo.GetBySlug(ctx, "second"); !errors.Is(err, ErrEventNotFound) {
		t.Errorf("GetBySlug(second) error = %v, want %v", err, ErrEventNotFound)
	}
}
