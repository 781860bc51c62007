package hierarchy

import (
	"context"
	"errors"
	"fmt"
)

// ErrSlugNotFound is returned when a slug is neither current nor historic.
var ErrSlugNotFound = errors.New("slug not found")

// SlugLookup resolves event slugs.
type SlugLookup interface {
	// EventIDBySlug returns the id of the event whose current slug is slug,
	// or ErrSlugNotFound.
	EventIDBySlug(ctx context.Context, slug string) (string, error)

	// CurrentSlug returns the current slug of the event that once used
	// oldSlug, or ErrSlugNotFound.
	CurrentSlug(ctx context.Context, oldSlug string) (string, error)
}

// SlugResolution is the outcome of ResolveSlug.
type SlugResolution struct {
	EventID string
	Slug    string
	// Redirect is true when the requested slug is historic and callers should
	// redirect to Slug.
	Redirect bool
}

// ResolveSlug resolves slug to the event using it now, following slug history
// when slug is no longer current.
func ResolveSlug(ctx context.Context, lookup SlugLookup, slug string) (SlugResolution, error) {
	id, err := lookup.EventIDBySlug(ctx, slug)
	if err == nil {
		return SlugResolution{EventID: id, Slug: slug}, nil
	}
	if !errors.Is(err, ErrSlugNotFound) {
		return SlugResolution{}, fmt.Errorf("failed to look up slug %q: %w", slug, err)
	}

	current, err := lookup.CurrentSlug(ctx, slug)
	if err != nil {
		if errors.Is(err, ErrSlugNotFound) {
			return SlugResolution{}, err
		}
		return SlugResolution{}, fmt.Errorf("failed to look up slug history for %q: %w", slug, err)
	}

	id, err = lookup.EventIDBySlug(ctx, current)
	if err != nil {
		return SlugResolution{}, fmt.Errorf("slug history for %q points to %q: %w", slug, current, err)
	}
	return SlugResolution{EventID: id, Slug: current, Redirect: true}, nil
}
