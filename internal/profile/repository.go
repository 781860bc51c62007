package profile

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
	ErrProfileNotFound = errors.New("profile not found")
	ErrUsernameTaken   = errors.New("username already taken")
	ErrProfileExists   = errors.New("profile id already exists")
	ErrInvalidProfile  = errors.New("invalid profile")
)

// Repository stores profiles and their visibility settings.
type Repository interface {
	// Create stores p together with NewVisibility(p.ID). An empty ID is
	// assigned a new UUID; an ID already stored yields ErrProfileExists.
	Create(ctx context.Context, p *Profile) error
	GetByID(ctx context.Context, id string) (*Profile, error)
	GetByUsername(ctx context.Context, username string) (*Profile, error)
	GetVisibility(ctx context.Context, profileID string) (*Visibility, error)
	UpdateVisibility(ctx context.Context, v *Visibility) error
}

// InMemoryRepository is a thread-safe in-memory Repository.
type InMemoryRepository struct {
	mu         sync.RWMutex
	profiles   map[string]*Profile    // id -> profile
	usernames  map[string]string      // username -> id
	visibility map[string]*Visibility // profile id -> settings
}

// NewInMemoryRepository creates an empty InMemoryRepository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		profiles:   make(map[string]*Profile),
		usernames:  make(map[string]string),
		visibility: make(map[string]*Visibility),
	}
}

// Create implements Repository.
func (r *InMemoryRepository) Create(_ context.Context, p *Profile) error {
	if err := validateProfile(p); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.usernames[p.Username]; taken {
		return ErrUsernameTaken
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	} else if _, exists := r.profiles[p.ID]; exists {
		return ErrProfileExists
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	r.profiles[p.ID] = clone(p)
	r.usernames[p.Username] = p.ID
	r.visibility[p.ID] = NewVisibility(p.ID)
	return nil
}

// GetByID implements Repository.
func (r *InMemoryRepository) GetByID(_ context.Context, id string) (*Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[id]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return clone(p), nil
}

// GetByUsername implements Repository.
func (r *InMemoryRepository) GetByUsername(_ context.Context, username string) (*Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.usernames[username]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return clone(r.profiles[id]), nil
}

// GetVisibility implements Repository.
func (r *InMemoryRepository) GetVisibility(_ context.Context, profileID string) (*Visibility, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.visibility[profileID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	vCopy := *v
	return &vCopy, nil
}

// UpdateVisibility implements Repository.
func (r *InMemoryRepository) UpdateVisibility(_ context.Context, v *Visibility) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.profiles[v.ProfileID]; !ok {
		return ErrProfileNotFound
	}
	vCopy := *v
	r.visibility[v.ProfileID] = &vCopy
	return nil
}

// clone returns a deep copy of p.
func clone(p *Profile) *Profile {
	c := *p
	c.Bio = cloneString(p.Bio)
	c.Phone = cloneString(p.Phone)
	c.Website = cloneString(p.Website)
	c.Avatar = cloneString(p.Avatar)
	c.Background = cloneString(p.Background)
	c.Areas = append([]string(nil), p.Areas...)
	c.Memberships = append([]string(nil), p.Memberships...)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// validateProfile checks the identifiers Create stores.
func validateProfile(p *Profile) error {
	if _, err := validate.Username(p.Username); err != nil {
		return fmt.Errorf("%w: username: %w", ErrInvalidProfile, err)
	}
	return nil
}
