package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/commons/internal/eligibility"
	"github.com/onnwee/commons/internal/lock"
	"github.com/onnwee/commons/internal/tracing"
)

// Registration errors.
var (
	ErrNotEligible  = errors.New("not eligible")
	ErrUserRequired = errors.New("user id required")
)

// Action names a registration operation.
type Action string

// Registration actions.
const (
	ActionRegister        Action = "register"
	ActionJoinWaitingList Action = "join_waiting_list"
	ActionLeave           Action = "leave"
)

// Reasons wrapped by ErrNotEligible.
const (
	ReasonAlreadyRelated = "already related to the event"
	ReasonDeadline       = "participation deadline reached"
	ReasonHasChildren    = "event has sub-events"
	ReasonUnpublished    = "event is not published"
	ReasonCanceled       = "event is canceled"
	ReasonFull           = "event is full"
	ReasonNotFull        = "event still has free places"
)

// RegistrationService registers users for events. Work on one event is
// serialized through a lock.Locker, and eligibility is evaluated against
// state loaded after the lock is held.
type RegistrationService struct {
	repo    Repository
	locker  lock.Locker
	metrics *Metrics
	now     func() time.Time
	logger  *slog.Logger
}

// RegistrationOption configures a RegistrationService.
type RegistrationOption func(*RegistrationService)

// WithMetrics records outcomes on m.
func WithMetrics(m *Metrics) RegistrationOption {
	return func(s *RegistrationService) { s.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) RegistrationOption {
	return func(s *RegistrationService) { s.now = now }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) RegistrationOption {
	return func(s *RegistrationService) { s.logger = l }
}

// NewRegistrationService creates a RegistrationService.
func NewRegistrationService(repo Repository, locker lock.Locker, opts ...RegistrationOption) *RegistrationService {
	s := &RegistrationService{
		repo:   repo,
		locker: locker,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds userID as a participant of eventID.
func (s *RegistrationService) Register(ctx context.Context, eventID, userID string) error {
	return s.run(ctx, ActionRegister, eventID, userID, func(ctx context.Context, st state) error {
		if !st.decision.CanParticipate {
			return notEligible(reason(st, ActionRegister))
		}
		err := s.repo.AddParticipant(ctx, eventID, userID)
		if errors.Is(err, ErrEventFull) {
			return fmt.Errorf("%w: %s: %w", ErrNotEligible, ReasonFull, err)
		}
		return err
	})
}

// JoinWaitingList adds userID to the waiting list of a full event.
func (s *RegistrationService) JoinWaitingList(ctx context.Context, eventID, userID string) error {
	return s.run(ctx, ActionJoinWaitingList, eventID, userID, func(ctx context.Context, st state) error {
		if !st.decision.CanJoinWaitingList {
			return notEligible(reason(st, ActionJoinWaitingList))
		}
		return s.repo.AddMember(ctx, eventID, userID, RoleWaitingList)
	})
}

// Leave removes userID from the participants, or from the waiting list when
// not a participant. Nobody is promoted from the waiting list.
func (s *RegistrationService) Leave(ctx context.Context, eventID, userID string) error {
	return s.run(ctx, ActionLeave, eventID, userID, func(ctx context.Context, st state) error {
		switch {
		case st.viewer.IsParticipant:
			return s.repo.RemoveMember(ctx, eventID, userID, RoleParticipant)
		case st.viewer.IsOnWaitingList:
			return s.repo.RemoveMember(ctx, eventID, userID, RoleWaitingList)
		default:
			return ErrNotMember
		}
	})
}

// state is what an action decides on.
type state struct {
	event    eligibility.Event
	viewer   eligibility.Viewer
	decision eligibility.Decision
}

func (s *RegistrationService) run(ctx context.Context, action Action, eventID, userID string,
	fn func(context.Context, state) error) (err error) {
	ctx, end := tracing.StartSpan(ctx, "event."+string(action))
	defer func() { end(err) }()
	tracing.SetAttributes(ctx, attribute.String("event.id", eventID))

	defer func() { s.record(action, eventID, userID, err) }()

	if userID == "" {
		return ErrUserRequired
	}

	release, err := s.locker.Acquire(ctx, "event:"+eventID)
	if err != nil {
		return fmt.Errorf("failed to lock event %s: %w", eventID, err)
	}
	defer release()

	st, err := s.load(ctx, eventID, userID)
	if err != nil {
		return err
	}
	return fn(ctx, st)
}

func (s *RegistrationService) load(ctx context.Context, eventID, userID string) (state, error) {
	e, err := s.repo.GetByID(ctx, eventID)
	if err != nil {
		return state{}, err
	}
	counts, err := s.repo.Counts(ctx, eventID)
	if err != nil {
		return state{}, err
	}
	viewer, err := s.repo.Relationship(ctx, eventID, userID)
	if err != nil {
		return state{}, err
	}
	ev := e.Eligibility(counts)
	return state{
		event:    ev,
		viewer:   viewer,
		decision: eligibility.Evaluate(ev, viewer, s.now()),
	}, nil
}

func (s *RegistrationService) record(action Action, eventID, userID string, err error) {
	outcome := OutcomeSuccess
	switch {
	case err == nil:
	case errors.Is(err, ErrNotEligible), errors.Is(err, ErrAlreadyMember), errors.Is(err, ErrNotMember):
		outcome = OutcomeNotEligible
	default:
		outcome = OutcomeError
	}
	s.metrics.observe(action, outcome)

	if outcome == OutcomeError && !errors.Is(err, ErrEventNotFound) && !errors.Is(err, ErrUserRequired) {
		s.logger.Error("event registration failed",
			slog.String("action", string(action)),
			slog.String("event_id", eventID),
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
	}
}

func notEligible(reason string) error {
	return fmt.Errorf("%w: %s", ErrNotEligible, reason)
}

// reason names the first rule that blocks action.
func reason(st state, action Action) string {
	v, e, d := st.viewer, st.event, st.decision
	switch {
	case v.IsParticipant || v.IsOnWaitingList || v.IsTeamMember || v.IsSpeaker:
		return ReasonAlreadyRelated
	case !e.Published:
		return ReasonUnpublished
	case e.Canceled:
		return ReasonCanceled
	case d.ReachedDeadline:
		return ReasonDeadline
	case d.HasChildren:
		return ReasonHasChildren
	case action == ActionRegister && d.ReachedCapacity:
		return ReasonFull
	default:
		return ReasonNotFull
	}
}
