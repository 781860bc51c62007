package hierarchy

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidWindow is wrapped by every WindowViolation.
var ErrInvalidWindow = errors.New("invalid event time window")

// Window is the time window of one event.
type Window struct {
	EventID            string
	Start              time.Time
	End                time.Time
	ParticipationFrom  time.Time
	ParticipationUntil time.Time
}

// WindowViolation describes one ordering rule an event window breaks.
type WindowViolation struct {
	EventID string
	Field   string
	Reason  string
}

func (v *WindowViolation) Error() string {
	return fmt.Sprintf("%s: %s %s", v.EventID, v.Field, v.Reason)
}

// Unwrap lets errors.Is match ErrInvalidWindow.
func (v *WindowViolation) Unwrap() error {
	return ErrInvalidWindow
}

// ValidateTimeWindow checks w against its own ordering rules, its parent's
// window (nil for root events) and each child's window. It is applied when an
// event's dates are written; reads never re-validate.
func ValidateTimeWindow(w Window, parent *Window, children []Window) error {
	var errs []error
	violate := func(id, field, reason string) {
		errs = append(errs, &WindowViolation{EventID: id, Field: field, Reason: reason})
	}

	if w.End.Before(w.Start) {
		violate(w.EventID, "endTime", "is before startTime")
	}
	if !w.ParticipationFrom.IsZero() && !w.ParticipationUntil.IsZero() &&
		w.ParticipationUntil.Before(w.ParticipationFrom) {
		violate(w.EventID, "participationUntil", "is before participationFrom")
	}
	if !w.ParticipationUntil.IsZero() && w.ParticipationUntil.After(w.End) {
		violate(w.EventID, "participationUntil", "is after endTime")
	}

	if parent != nil {
		if w.Start.Before(parent.Start) {
			violate(w.EventID, "startTime", "is before the parent event starts")
		}
		if w.End.After(parent.End) {
			violate(w.EventID, "endTime", "is after the parent event ends")
		}
	}

	for _, c := range children {
		if c.Start.Before(w.Start) {
			violate(w.EventID, "startTime", fmt.Sprintf("is after child event %s starts", c.EventID))
		}
		if c.End.After(w.End) {
			violate(w.EventID, "endTime", fmt.Sprintf("is before child event %s ends", c.EventID))
		}
	}

	return errors.Join(errs...)
}
