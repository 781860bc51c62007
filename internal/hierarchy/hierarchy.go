// Package hierarchy implements operations over the parent/child event forest:
// descendant collection, subtree publishing, cancellation, write-time time
// window checks and slug history resolution.
package hierarchy

import (
	"context"
	"errors"
	"fmt"

	"github.com/onnwee/commons/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// ErrCycle is returned when the child relation loops back onto an event on
// the current traversal path. It signals corrupted data.
var ErrCycle = errors.New("event hierarchy contains a cycle")

// ChildLister lists the direct child event ids of an event.
type ChildLister interface {
	ChildIDs(ctx context.Context, eventID string) ([]string, error)
}

// Store applies publish and cancel state changes.
type Store interface {
	// SetPublished sets published on every id in one all-or-nothing write.
	SetPublished(ctx context.Context, ids []string, published bool) error

	// SetCanceled sets canceled on exactly one event.
	SetCanceled(ctx context.Context, id string, canceled bool) error
}

// Tree combines traversal and writes over the event forest.
type Tree interface {
	ChildLister
	Store
}

// frame is one level of the explicit traversal stack.
type frame struct {
	id       string
	children []string
	next     int
}

// CollectDescendantIDs returns every descendant of rootID (excluding rootID)
// in depth-first discovery order, each id once. A child edge pointing back to
// an event on the current path yields ErrCycle.
func CollectDescendantIDs(ctx context.Context, lister ChildLister, rootID string) ([]string, error) {
	children, err := lister.ChildIDs(ctx, rootID)
	if err != nil {
		return nil, fmt.Errorf("failed to list children of %s: %w", rootID, err)
	}

	onPath := map[string]bool{rootID: true}
	done := make(map[string]bool)
	stack := []frame{{id: rootID, children: children}}
	var out []string

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		top := &stack[len(stack)-1]
		if top.next >= len(top.children) {
			onPath[top.id] = false
			done[top.id] = true
			stack = stack[:len(stack)-1]
			continue
		}

		child := top.children[top.next]
		top.next++

		if onPath[child] {
			return nil, fmt.Errorf("%w: %s is its own ancestor", ErrCycle, child)
		}
		if done[child] {
			continue
		}

		grandchildren, err := lister.ChildIDs(ctx, child)
		if err != nil {
			return nil, fmt.Errorf("failed to list children of %s: %w", child, err)
		}
		out = append(out, child)
		onPath[child] = true
		stack = append(stack, frame{id: child, children: grandchildren})
	}

	return out, nil
}

// PublishSubtree sets published on eventID and all its descendants in a
// single bulk write. The whole operation fails if the write fails.
func PublishSubtree(ctx context.Context, tree Tree, eventID string, publish bool) ([]string, error) {
	descendants, err := CollectDescendantIDs(ctx, tree, eventID)
	if err != nil {
		return nil, err
	}

	ids := append([]string{eventID}, descendants...)
	if err := tree.SetPublished(ctx, ids, publish); err != nil {
		return nil, fmt.Errorf("failed to set published=%t on %d events: %w", publish, len(ids), err)
	}
	return ids, nil
}

// CancelEvent sets canceled on eventID only. Children keep their state.
func CancelEvent(ctx context.Context, store Store, eventID string, cancel bool) error {
	if err := store.SetCanceled(ctx, eventID, cancel); err != nil {
		return fmt.Errorf("failed to set canceled=%t on %s: %w", cancel, eventID, err)
	}
	return nil
}

// Service wraps the hierarchy operations with tracing.
type Service struct {
	tree Tree
}

// NewService creates a Service over tree.
func NewService(tree Tree) *Service {
	return &Service{tree: tree}
}

// Descendants returns the descendant ids of eventID.
func (s *Service) Descendants(ctx context.Context, eventID string) (ids []string, err error) {
	ctx, end := tracing.StartSpan(ctx, "hierarchy.descendants")
	defer func() { end(err) }()

	return CollectDescendantIDs(ctx, s.tree, eventID)
}

// Publish publishes or unpublishes the subtree rooted at eventID and returns
// the affected ids.
func (s *Service) Publish(ctx context.Context, eventID string, publish bool) (ids []string, err error) {
	ctx, end := tracing.StartSpan(ctx, "hierarchy.publish_subtree")
	defer func() { end(err) }()

	ids, err = PublishSubtree(ctx, s.tree, eventID, publish)
	tracing.SetAttributes(ctx,
		attribute.String("event.id", eventID),
		attribute.Bool("event.published", publish),
		attribute.Int("event.subtree_size", len(ids)))
	return ids, err
}

// Cancel cancels or restores eventID.
func (s *Service) Cancel(ctx context.Context, eventID string, cancel bool) (err error) {
	ctx, end := tracing.StartSpan(ctx, "hierarchy.cancel")
	defer func() { end(err) }()

	return CancelEvent(ctx, s.tree, eventID, cancel)
}
