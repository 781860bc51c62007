// Package eligibility decides which registration actions a viewer may take on
// an event. All predicates are pure; callers pass the current time and fresh
// counts on every request.
package eligibility

import "time"

// Event stages.
const (
	StageOnSite = "on-site"
	StageOnline = "online"
	StageHybrid = "hybrid"
)

// Event is the public state of an event relevant to participation.
type Event struct {
	ParticipationUntil time.Time
	// ParticipantLimit is nil when the event has no capacity limit.
	ParticipantLimit *int
	Published        bool
	Canceled         bool
	ParticipantCount int
	ChildEventCount  int
	ConferenceLink   string
	Stage            string
}

// Viewer is the relationship of the current user to an event. Membership
// lookups must resolve every flag; an unknown relationship is false.
type Viewer struct {
	IsParticipant   bool
	IsOnWaitingList bool
	IsTeamMember    bool
	IsSpeaker       bool
}

// hasRelationship reports whether the viewer is already attached to the event
// in any role.
func (v Viewer) hasRelationship() bool {
	return v.IsParticipant || v.IsOnWaitingList || v.IsTeamMember || v.IsSpeaker
}

// ReachedDeadline reports whether the participation deadline has passed.
func ReachedDeadline(e Event, now time.Time) bool {
	return now.After(e.ParticipationUntil)
}

// ReachedCapacity reports whether a limited event is full.
func ReachedCapacity(e Event) bool {
	return e.ParticipantLimit != nil && e.ParticipantCount >= *e.ParticipantLimit
}

// HasChildren reports whether the event has sub-events. Only leaf events
// accept direct registration.
func HasChildren(e Event) bool {
	return e.ChildEventCount > 0
}

// open reports whether the event is accepting registrations of any kind.
func open(e Event, now time.Time) bool {
	return !ReachedDeadline(e, now) && !HasChildren(e) && e.Published && !e.Canceled
}

// CanParticipate reports whether the viewer may register as a participant.
func CanParticipate(e Event, v Viewer, now time.Time) bool {
	return !v.hasRelationship() && open(e, now) && !ReachedCapacity(e)
}

// CanJoinWaitingList reports whether the viewer may join the waiting list.
// This is only possible once the event is full.
func CanJoinWaitingList(e Event, v Viewer, now time.Time) bool {
	return !v.hasRelationship() && open(e, now) && ReachedCapacity(e)
}

// ConferenceLinkToBeAnnounced reports whether a non on-site event has no link yet.
func ConferenceLinkToBeAnnounced(e Event) bool {
	return e.ConferenceLink == "" && e.Stage != "" && e.Stage != StageOnSite
}

// CanAccessConferenceLink reports whether the viewer may see conference access
// details. Events with sub-events never expose them.
func CanAccessConferenceLink(e Event, v Viewer) bool {
	if e.ChildEventCount != 0 {
		return false
	}
	if e.ConferenceLink == "" && !ConferenceLinkToBeAnnounced(e) {
		return false
	}
	return v.IsParticipant || v.IsSpeaker || v.IsTeamMember
}

// Decision bundles every predicate for one (event, viewer) pair.
type Decision struct {
	ReachedDeadline         bool `json:"reachedDeadline"`
	ReachedCapacity         bool `json:"reachedCapacity"`
	HasChildren             bool `json:"hasChildren"`
	CanParticipate          bool `json:"canParticipate"`
	CanJoinWaitingList      bool `json:"canJoinWaitingList"`
	CanAccessConferenceLink bool `json:"canAccessConferenceLink"`
	ConferenceLinkTBA       bool `json:"conferenceLinkToBeAnnounced"`
}

// Evaluate computes a Decision at time now.
func Evaluate(e Event, v Viewer, now time.Time) Decision {
	return Decision{
		ReachedDeadline:         ReachedDeadline(e, now),
		ReachedCapacity:         ReachedCapacity(e),
		HasChildren:             HasChildren(e),
		CanParticipate:          CanParticipate(e, v, now),
		CanJoinWaitingList:      CanJoinWaitingList(e, v, now),
		CanAccessConferenceLink: CanAccessConferenceLink(e, v),
		ConferenceLinkTBA:       ConferenceLinkToBeAnnounced(e),
	}
}
