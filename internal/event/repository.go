package event

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/commons/internal/eligibility"
	"github.com/onnwee/commons/internal/hierarchy"
)

// Repository stores events, their settings, relations and slug history.
type Repository interface {
	hierarchy.Tree
	hierarchy.SlugLookup

	// Create stores e together with NewVisibility(e.ID). The time window is
	// validated against the parent event. An ID already stored yields
	// ErrEventExists.
	Create(ctx context.Context, e *Event) error

	// Update replaces the stored fields of e. A slug change is recorded in
	// the slug history; the time window is validated against the parent and
	// child events; a parent that is a descendant of e yields hierarchy.ErrCycle.
	Update(ctx context.Context, e *Event) error

	GetByID(ctx context.Context, id string) (*Event, error)
	GetBySlug(ctx context.Context, slug string) (*Event, error)
	GetVisibility(ctx context.Context, eventID string) (*Visibility, error)
	UpdateVisibility(ctx context.Context, v *Visibility) error

	Counts(ctx context.Context, eventID string) (Counts, error)

	// Relationship resolves every viewer flag for userID. An empty userID is
	// an anonymous viewer with no relationship.
	Relationship(ctx context.Context, eventID, userID string) (eligibility.Viewer, error)
	IsAdmin(ctx context.Context, eventID, userID string) (bool, error)

	// AddParticipant registers userID unless the participant limit is
	// reached, recounting inside the write.
	AddParticipant(ctx context.Context, eventID, userID string) error
	AddMember(ctx context.Context, eventID, userID string, role Role) error
	RemoveMember(ctx context.Context, eventID, userID string, role Role) error
}

// InMemoryRepository is a thread-safe in-memory Repository.
type InMemoryRepository struct {
	mu            sync.RWMutex
	events        map[string]*Event
	slugs         map[string]string // current slug -> id
	history       map[string]string // old slug -> id
	visibility    map[string]*Visibility
	members       map[string]map[Role][]string // event id -> role -> user ids in join order
	organizations map[string][]string
}

// NewInMemoryRepository creates an empty InMemoryRepository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		events:        make(map[string]*Event),
		slugs:         make(map[string]string),
		history:       make(map[string]string),
		visibility:    make(map[string]*Visibility),
		members:       make(map[string]map[Role][]string),
		organizations: make(map[string][]string),
	}
}

// Create implements Repository.
func (r *InMemoryRepository) Create(_ context.Context, e *Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.slugs[e.Slug]; taken {
		return ErrSlugTaken
	}
	parent, err := r.parentWindow(e.ParentEventID)
	if err != nil {
		return err
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	} else if _, exists := r.events[e.ID]; exists {
		return ErrEventExists
	}
	if err := hierarchy.ValidateTimeWindow(e.Window(), parent, nil); err != nil {
		return err
	}

	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now

	r.events[e.ID] = clone(e)
	r.slugs[e.Slug] = e.ID
	delete(r.history, e.Slug)
	r.visibility[e.ID] = NewVisibility(e.ID)
	r.members[e.ID] = make(map[Role][]string)
	r.organizations[e.ID] = append([]string(nil), e.ResponsibleOrganizations...)
	return nil
}

// Update implements Repository.
func (r *InMemoryRepository) Update(ctx context.Context, e *Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.events[e.ID]
	if !ok {
		return ErrEventNotFound
	}
	if id, taken := r.slugs[e.Slug]; taken && id != e.ID {
		return ErrSlugTaken
	}

	parent, err := r.parentWindow(e.ParentEventID)
	if err != nil {
		return err
	}
	if e.ParentEventID != nil {
		if *e.ParentEventID == e.ID {
			return fmt.Errorf("%w: %s cannot be its own parent", hierarchy.ErrCycle, e.ID)
		}
		descendants, err := hierarchy.CollectDescendantIDs(ctx, unlockedTree{r}, e.ID)
		if err != nil {
			return err
		}
		if slices.Contains(descendants, *e.ParentEventID) {
			return fmt.Errorf("%w: %s is a descendant of %s", hierarchy.ErrCycle, *e.ParentEventID, e.ID)
		}
	}

	var children []hierarchy.Window
	for _, id := range r.childIDs(e.ID) {
		children = append(children, r.events[id].Window())
	}
	if err := hierarchy.ValidateTimeWindow(e.Window(), parent, children); err != nil {
		return err
	}

	if existing.Slug != e.Slug {
		delete(r.slugs, existing.Slug)
		r.history[existing.Slug] = e.ID
		r.slugs[e.Slug] = e.ID
		delete(r.history, e.Slug)
	}

	e.CreatedAt = existing.CreatedAt
	e.UpdatedAt = time.Now().UTC()
	r.events[e.ID] = clone(e)
	r.organizations[e.ID] = append([]string(nil), e.ResponsibleOrganizations...)
	return nil
}

// parentWindow returns the window of parentID, or nil for root events.
// Callers hold r.mu.
func (r *InMemoryRepository) parentWindow(parentID *string) (*hierarchy.Window, error) {
	if parentID == nil {
		return nil, nil
	}
	p, ok := r.events[*parentID]
	if !ok {
		return nil, ErrParentNotFound
	}
	w := p.Window()
	return &w, nil
}

// GetByID implements Repository.
func (r *InMemoryRepository) GetByID(_ context.Context, id string) (*Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.events[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	return r.withRelations(e), nil
}

// GetBySlug implements Repository.
func (r *InMemoryRepository) GetBySlug(_ context.Context, slug string) (*Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.slugs[slug]
	if !ok {
		return nil, ErrEventNotFound
	}
	return r.withRelations(r.events[id]), nil
}

// withRelations returns a copy of e with derived fields filled in.
func (r *InMemoryRepository) withRelations(e *Event) *Event {
	c := clone(e)
	c.ChildEvents = r.childIDs(e.ID)
	c.Speakers = append([]string(nil), r.members[e.ID][RoleSpeaker]...)
	c.TeamMembers = append([]string(nil), r.members[e.ID][RoleTeamMember]...)
	c.ResponsibleOrganizations = append([]string(nil), r.organizations[e.ID]...)
	return c
}

// childIDs returns the direct children of id ordered by start time.
// Callers hold r.mu.
func (r *InMemoryRepository) childIDs(id string) []string {
	var children []*Event
	for _, e := range r.events {
		if e.ParentEventID != nil && *e.ParentEventID == id {
			children = append(children, e)
		}
	}
	sort.Slice(children, func(i, j int) bool {
		if !children[i].StartTime.Equal(children[j].StartTime) {
			return children[i].StartTime.Before(children[j].StartTime)
		}
		return children[i].ID < children[j].ID
	})
	ids := make([]string, len(children))
	for i, c := range children {
		ids[i] = c.ID
	}
	return ids
}

// unlockedTree lists children while the caller already holds r.mu.
type unlockedTree struct{ r *InMemoryRepository }

func (t unlockedTree) ChildIDs(_ context.Context, id string) ([]string, error) {
	return t.r.childIDs(id), nil
}

// ChildIDs implements hierarchy.ChildLister.
func (r *InMemoryRepository) ChildIDs(_ context.Context, eventID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.events[eventID]; !ok {
		return nil, ErrEventNotFound
	}
	return r.childIDs(eventID), nil
}

// SetPublished implements hierarchy.Store. Either every id is updated or,
// when any id is unknown, none is.
func (r *InMemoryRepository) SetPublished(_ context.Context, ids []string, published bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range ids {
		if _, ok := r.events[id]; !ok {
			return fmt.Errorf("%w: %s", ErrPartialUpdate, id)
		}
	}
	now := time.Now().UTC()
	for _, id := range ids {
		r.events[id].Published = published
		r.events[id].UpdatedAt = now
	}
	return nil
}

// SetCanceled implements hierarchy.Store.
func (r *InMemoryRepository) SetCanceled(_ context.Context, id string, canceled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.events[id]
	if !ok {
		return ErrEventNotFound
	}
	e.Canceled = canceled
	e.UpdatedAt = time.Now().UTC()
	return nil
}

// EventIDBySlug implements hierarchy.SlugLookup.
func (r *InMemoryRepository) EventIDBySlug(_ context.Context, slug string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.slugs[slug]
	if !ok {
		return "", hierarchy.ErrSlugNotFound
	}
	return id, nil
}

// CurrentSlug implements hierarchy.SlugLookup.
func (r *InMemoryRepository) CurrentSlug(_ context.Context, oldSlug string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.history[oldSlug]
	if !ok {
		return "", hierarchy.ErrSlugNotFound
	}
	return r.events[id].Slug, nil
}

// GetVisibility implements Repository.
func (r *InMemoryRepository) GetVisibility(_ context.Context, eventID string) (*Visibility, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.visibility[eventID]
	if !ok {
		return nil, ErrEventNotFound
	}
	vCopy := *v
	return &vCopy, nil
}

// UpdateVisibility implements Repository.
func (r *InMemoryRepository) UpdateVisibility(_ context.Context, v *Visibility) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.events[v.EventID]; !ok {
		return ErrEventNotFound
	}
	vCopy := *v
	r.visibility[v.EventID] = &vCopy
	return nil
}

// Counts implements Repository.
func (r *InMemoryRepository) Counts(_ context.Context, eventID string) (Counts, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.events[eventID]; !ok {
		return Counts{}, ErrEventNotFound
	}
	m := r.members[eventID]
	return Counts{
		Participants: len(m[RoleParticipant]),
		WaitingList:  len(m[RoleWaitingList]),
		ChildEvents:  len(r.childIDs(eventID)),
		Admins:       len(m[RoleAdmin]),
	}, nil
}

// Relationship implements Repository.
func (r *InMemoryRepository) Relationship(_ context.Context, eventID, userID string) (eligibility.Viewer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.members[eventID]
	if !ok {
		return eligibility.Viewer{}, ErrEventNotFound
	}
	if userID == "" {
		return eligibility.Viewer{}, nil
	}
	return eligibility.Viewer{
		IsParticipant:   slices.Contains(m[RoleParticipant], userID),
		IsOnWaitingList: slices.Contains(m[RoleWaitingList], userID),
		IsTeamMember:    slices.Contains(m[RoleTeamMember], userID),
		IsSpeaker:       slices.Contains(m[RoleSpeaker], userID),
	}, nil
}

// IsAdmin implements Repository.
func (r *InMemoryRepository) IsAdmin(_ context.Context, eventID, userID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.members[eventID]
	if !ok {
		return false, ErrEventNotFound
	}
	return userID != "" && slices.Contains(m[RoleAdmin], userID), nil
}

// AddParticipant implements Repository.
func (r *InMemoryRepository) AddParticipant(_ context.Context, eventID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.events[eventID]
	if !ok {
		return ErrEventNotFound
	}
	if e.ParticipantLimit != nil && len(r.members[eventID][RoleParticipant]) >= *e.ParticipantLimit {
		return ErrEventFull
	}
	return r.addMember(eventID, userID, RoleParticipant)
}

// AddMember implements Repository. It applies no capacity check.
func (r *InMemoryRepository) AddMember(_ context.Context, eventID, userID string, role Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.events[eventID]; !ok {
		return ErrEventNotFound
	}
	return r.addMember(eventID, userID, role)
}

func (r *InMemoryRepository) addMember(eventID, userID string, role Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	m := r.members[eventID]
	if slices.Contains(m[role], userID) {
		return ErrAlreadyMember
	}
	m[role] = append(m[role], userID)
	return nil
}

// RemoveMember implements Repository.
func (r *InMemoryRepository) RemoveMember(_ context.Context, eventID, userID string, role Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[eventID]
	if !ok {
		return ErrEventNotFound
	}
	i := slices.Index(m[role], userID)
	if i < 0 {
		return ErrNotMember
	}
	m[role] = slices.Delete(m[role], i, i+1)
	return nil
}

// clone returns a deep copy of the stored fields of e.
func clone(e *Event) *Event {
	c := *e
	for _, s := range []**string{
		&c.Description, &c.Subline, &c.Stage, &c.ConferenceLink, &c.ConferenceCode,
		&c.VenueName, &c.VenueStreet, &c.VenueCity, &c.VenueZipCode, &c.Background, &c.ParentEventID,
	} {
		if *s != nil {
			v := **s
			*s = &v
		}
	}
	if e.ParticipantLimit != nil {
		limit := *e.ParticipantLimit
		c.ParticipantLimit = &limit
	}
	c.Areas = append([]string(nil), e.Areas...)
	c.Tags = append([]string(nil), e.Tags...)
	c.ChildEvents = nil
	c.Speakers = nil
	c.TeamMembers = nil
	c.ResponsibleOrganizations = nil
	return &c
}
