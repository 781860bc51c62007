package project

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
	ErrProjectNotFound = errors.New("project not found")
	ErrSlugTaken       = errors.New("project slug already taken")
	ErrProjectExists   = errors.New("project id already exists")
	ErrInvalidProject  = errors.New("invalid project")
)

// Repository stores projects and their visibility settings.
type Repository interface {
	// Create stores p together with NewVisibility(p.ID). An ID already
	// stored yields ErrProjectExists.
	Create(ctx context.Context, p *Project) error
	GetBySlug(ctx context.Context, slug string) (*Project, error)
	GetVisibility(ctx context.Context, projectID string) (*Visibility, error)
	UpdateVisibility(ctx context.Context, v *Visibility) error
}

// InMemoryRepository is a thread-safe in-memory Repository.
type InMemoryRepository struct {
	mu         sync.RWMutex
	projects   map[string]*Project
	slugs      map[string]string // slug -> id
	visibility map[string]*Visibility
}

// NewInMemoryRepository creates an empty InMemoryRepository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		projects:   make(map[string]*Project),
		slugs:      make(map[string]string),
		visibility: make(map[string]*Visibility),
	}
}

// Create implements Repository.
func (r *InMemoryRepository) Create(_ context.Context, p *Project) error {
	if err := validateProject(p); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.slugs[p.Slug]; taken {
		return ErrSlugTaken
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	} else if _, exists := r.projects[p.ID]; exists {
		return ErrProjectExists
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	r.projects[p.ID] = clone(p)
	r.slugs[p.Slug] = p.ID
	r.visibility[p.ID] = NewVisibility(p.ID)
	return nil
}

// GetBySlug implements Repository.
func (r *InMemoryRepository) GetBySlug(_ context.Context, slug string) (*Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.slugs[slug]
	if !ok {
		return nil, ErrProjectNotFound
	}
	return clone(r.projects[id]), nil
}

// GetVisibility implements Repository.
func (r *InMemoryRepository) GetVisibility(_ context.Context, projectID string) (*Visibility, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.visibility[projectID]
	if !ok {
		return nil, ErrProjectNotFound
	}
	vCopy := *v
	return &vCopy, nil
}

// UpdateVisibility implements Repository.
func (r *InMemoryRepository) UpdateVisibility(_ context.Context, v *Visibility) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.projects[v.ProjectID]; !ok {
		return ErrProjectNotFound
	}
	vCopy := *v
	r.visibility[v.ProjectID] = &vCopy
	return nil
}

func clone(p *Project) *Project {
	c := *p
	for _, s := range []**string{&c.Website, &c.Description, &c.Logo, &c.Background} {
		if *s != nil {
			v := **s
			*s = &v
		}
	}
	c.Areas = append([]string(nil), p.Areas...)
	c.Tags = append([]string(nil), p.Tags...)
	c.TeamMembers = append([]string(nil), p.TeamMembers...)
	c.ResponsibleOrganizations = append([]string(nil), p.ResponsibleOrganizations...)
	return &c
}

// validateProject checks the identifiers Create stores.
func validateProject(p *Project) error {
	if _, err := validate.Slug(p.Slug); err != nil {
		return fmt.Errorf("%w: slug: %w", ErrInvalidProject, err)
	}
	return nil
}
