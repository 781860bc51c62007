// Package event provides the event model, its visibility settings,
// membership relations, slug history and the registration service.
package event

import (
	"errors"
	"fmt"
	"time"

	"github.com/onnwee/commons/internal/eligibility"
	"github.com/onnwee/commons/internal/hierarchy"
	"github.com/onnwee/commons/internal/validate"
	"github.com/onnwee/commons/internal/visibility"
)

// Event is a scheduled gathering. Events form a forest through ParentEventID.
type Event struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Slug               string    `json:"slug"`
	Description        *string   `json:"description,omitempty"`
	Subline            *string   `json:"subline,omitempty"`
	StartTime          time.Time `json:"startTime"`
	EndTime            time.Time `json:"endTime"`
	ParticipationFrom  time.Time `json:"participationFrom"`
	ParticipationUntil time.Time `json:"participationUntil"`
	ParticipantLimit   *int      `json:"participantLimit,omitempty"`
	Published          bool      `json:"published"`
	Canceled           bool      `json:"canceled"`
	Stage              *string   `json:"stage,omitempty"`
	ConferenceLink     *string   `json:"conferenceLink,omitempty"`
	ConferenceCode     *string   `json:"conferenceCode,omitempty"`
	VenueName          *string   `json:"venueName,omitempty"`
	VenueStreet        *string   `json:"venueStreet,omitempty"`
	VenueCity          *string   `json:"venueCity,omitempty"`
	VenueZipCode       *string   `json:"venueZipCode,omitempty"`
	Background         *string   `json:"background,omitempty"` // object key
	ParentEventID      *string   `json:"parentEvent,omitempty"`
	Areas              []string  `json:"areas"`
	Tags               []string  `json:"tags"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`

	// Derived from the relation tables on read. Ignored on write.
	ChildEvents              []string `json:"childEvents"`
	Speakers                 []string `json:"speakers"`
	TeamMembers              []string `json:"teamMembers"`
	ResponsibleOrganizations []string `json:"responsibleOrganizations"`
}

// Counts are relation counts computed at query time.
type Counts struct {
	Participants int `json:"participants"`
	WaitingList  int `json:"waitingList"`
	ChildEvents  int `json:"childEvents"`
	Admins       int `json:"admins"`
}

// Role is a user's relation to an event.
type Role string

// Event roles.
const (
	RoleParticipant Role = "participant"
	RoleWaitingList Role = "waiting_list"
	RoleTeamMember  Role = "team_member"
	RoleSpeaker     Role = "speaker"
	RoleAdmin       Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleParticipant, RoleWaitingList, RoleTeamMember, RoleSpeaker, RoleAdmin:
		return true
	}
	return false
}

// Repository errors.
var (
	ErrEventNotFound  = errors.New("event not found")
	ErrSlugTaken      = errors.New("event slug already taken")
	ErrEventExists    = errors.New("event id already exists")
	ErrPartialUpdate  = errors.New("bulk update did not affect every event")
	ErrEventFull      = errors.New("event has reached its participant limit")
	ErrAlreadyMember  = errors.New("user already holds this role")
	ErrNotMember      = errors.New("user does not hold this role")
	ErrInvalidRole    = errors.New("invalid event role")
	ErrParentNotFound = errors.New("parent event not found")
	ErrInvalidEvent   = errors.New("invalid event")
)

// Validate checks the fields Create and Update store. Time windows are
// checked against the parent by the repository.
func (e *Event) Validate() error {
	var errs []error
	if _, err := validate.Name(e.Name); err != nil {
		errs = append(errs, fmt.Errorf("name: %w", err))
	}
	if _, err := validate.Slug(e.Slug); err != nil {
		errs = append(errs, fmt.Errorf("slug: %w", err))
	}
	if e.ConferenceLink != nil {
		if _, err := validate.ConferenceURL(*e.ConferenceLink); err != nil {
			errs = append(errs, fmt.Errorf("conferenceLink: %w", err))
		}
	}
	if e.Stage != nil {
		switch *e.Stage {
		case eligibility.StageOnSite, eligibility.StageOnline, eligibility.StageHybrid:
		default:
			errs = append(errs, fmt.Errorf("stage: unknown value %q", *e.Stage))
		}
	}
	if e.ParticipantLimit != nil && *e.ParticipantLimit < 0 {
		errs = append(errs, errors.New("participantLimit: must not be negative"))
	}
	if e.ParticipationUntil.IsZero() {
		errs = append(errs, errors.New("participationUntil: required"))
	} else if e.ParticipationFrom.After(e.ParticipationUntil) {
		errs = append(errs, errors.New("participation window ends before it opens"))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidEvent, errors.Join(errs...))
}

// Record serializes e with the field names used by visibility settings.
func (e *Event) Record() visibility.Record {
	return visibility.Record{
		visibility.IDField:         e.ID,
		"name":                     e.Name,
		"slug":                     e.Slug,
		"description":              visibility.Optional(e.Description),
		"subline":                  visibility.Optional(e.Subline),
		"startTime":                e.StartTime,
		"endTime":                  e.EndTime,
		"participationFrom":        e.ParticipationFrom,
		"participationUntil":       e.ParticipationUntil,
		"participantLimit":         visibility.Optional(e.ParticipantLimit),
		"published":                e.Published,
		"canceled":                 e.Canceled,
		"stage":                    visibility.Optional(e.Stage),
		"conferenceLink":           visibility.Optional(e.ConferenceLink),
		"conferenceCode":           visibility.Optional(e.ConferenceCode),
		"venueName":                visibility.Optional(e.VenueName),
		"venueStreet":              visibility.Optional(e.VenueStreet),
		"venueCity":                visibility.Optional(e.VenueCity),
		"venueZipCode":             visibility.Optional(e.VenueZipCode),
		"background":               visibility.Optional(e.Background),
		"parentEvent":              visibility.Optional(e.ParentEventID),
		"childEvents":              visibility.Items(e.ChildEvents),
		"areas":                    visibility.Items(e.Areas),
		"tags":                     visibility.Items(e.Tags),
		"speakers":                 visibility.Items(e.Speakers),
		"teamMembers":              visibility.Items(e.TeamMembers),
		"responsibleOrganizations": visibility.Items(e.ResponsibleOrganizations),
		"createdAt":                e.CreatedAt,
		"updatedAt":                e.UpdatedAt,
	}
}

// Eligibility returns the participation state of e with counts c.
func (e *Event) Eligibility(c Counts) eligibility.Event {
	var link, stage string
	if e.ConferenceLink != nil {
		link = *e.ConferenceLink
	}
	if e.Stage != nil {
		stage = *e.Stage
	}
	return eligibility.Event{
		ParticipationUntil: e.ParticipationUntil,
		ParticipantLimit:   e.ParticipantLimit,
		Published:          e.Published,
		Canceled:           e.Canceled,
		ParticipantCount:   c.Participants,
		ChildEventCount:    c.ChildEvents,
		ConferenceLink:     link,
		Stage:              stage,
	}
}

// Window returns the time window of e.
func (e *Event) Window() hierarchy.Window {
	return hierarchy.Window{
		EventID:            e.ID,
		Start:              e.StartTime,
		End:                e.EndTime,
		ParticipationFrom:  e.ParticipationFrom,
		ParticipationUntil: e.ParticipationUntil,
	}
}

// ConferenceFields are withheld from viewers who may not access the
// conference, whatever their visibility flags say.
var ConferenceFields = []string{"conferenceLink", "conferenceCode"}

// ImageFields are the record fields holding object keys.
var ImageFields = []string{"background"}
