package organization

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/commons/internal/validate"
)

// Repository errors.
var (
	ErrOrganizationNotFound = errors.New("organization not found")
	ErrSlugTaken            = errors.New("organization slug already taken")
	ErrOrganizationExists   = errors.New("organization id already exists")
	ErrInvalidOrganization  = errors.New("invalid organization")
)

// Repository stores organizations and their visibility settings.
type Repository interface {
	// Create stores o together with NewVisibility(o.ID). An ID already
	// stored yields ErrOrganizationExists.
	Create(ctx context.Context, o *Organization) error
	GetByID(ctx context.Context, id string) (*Organization, error)
	GetBySlug(ctx context.Context, slug string) (*Organization, error)
	GetVisibility(ctx context.Context, organizationID string) (*Visibility, error)
	UpdateVisibility(ctx context.Context, v *Visibility) error
}

// InMemoryRepository is a thread-safe in-memory Repository.
type InMemoryRepository struct {
	mu            sync.RWMutex
	organizations map[string]*Organization
	slugs         map[string]string // slug -> id
	visibility    map[string]*Visibility
}

// NewInMemoryRepository creates an empty InMemoryRepository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		organizations: make(map[string]*Organization),
		slugs:         make(map[string]string),
		visibility:    make(map[string]*Visibility),
	}
}

// Create implements Repository.
func (r *InMemoryRepository) Create(_ context.Context, o *Organization) error {
	if err := validateOrganization(o); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.slugs[o.Slug]; taken {
		return ErrSlugTaken
	}
	if o.ID == "" {
		o.ID = uuid.New().String()
	} else if _, exists := r.organizations[o.ID]; exists {
		return ErrOrganizationExists
	}
	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now

	r.organizations[o.ID] = clone(o)
	r.slugs[o.Slug] = o.ID
	r.visibility[o.ID] = NewVisibility(o.ID)
	return nil
}

// GetByID implements Repository.
func (r *InMemoryRepository) GetByID(_ context.Context, id string) (*Organization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.organizations[id]
	if !ok {
		return nil, ErrOrganizationNotFound
	}
	return clone(o), nil
}

// GetBySlug implements Repository.
func (r *InMemoryRepository) GetBySlug(_ context.Context, slug string) (*Organization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.slugs[slug]
	if !ok {
		return nil, ErrOrganizationNotFound
	}
	return clone(r.organizations[id]), nil
}

// GetVisibility implements Repository.
func (r *InMemoryRepository) GetVisibility(_ context.Context, organizationID string) (*Visibility, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.visibility[organizationID]
	if !ok {
		return nil, ErrOrganizationNotFound
	}
	vCopy := *v
	return &vCopy, nil
}

// UpdateVisibility implements Repository.
func (r *InMemoryRepository) UpdateVisibility(_ context.Context, v *Visibility) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.organizations[v.OrganizationID]; !ok {
		return ErrOrganizationNotFound
	}
	vCopy := *v
	r.visibility[v.OrganizationID] = &vCopy
	return nil
}

func clone(o *Organization) *Organization {
	c := *o
	c.Phone = cloneString(o.Phone)
	c.Website = cloneString(o.Website)
	c.Description = cloneString(o.Description)
	c.Logo = cloneString(o.Logo)
	c.Background = cloneString(o.Background)
	c.Areas = append([]string(nil), o.Areas...)
	c.Tags = append([]string(nil), o.Tags...)
	c.TeamMembers = append([]string(nil), o.TeamMembers...)
	c.Projects = append([]string(nil), o.Projects...)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// validateOrganization checks the identifiers Create stores.
func validateOrganization(o *Organization) error {
	if _, err := validate.Slug(o.Slug); err != nil {
		return fmt.Errorf("%w: slug: %w", ErrInvalidOrganization, err)
	}
	return nil
}
