package event

import "github.com/onnwee/commons/internal/visibility"

// Visibility holds one public flag per redactable event field.
type Visibility struct {
	EventID                  string `json:"eventId"`
	Name                     bool   `json:"name"`
	Slug                     bool   `json:"slug"`
	Description              bool   `json:"description"`
	Subline                  bool   `json:"subline"`
	StartTime                bool   `json:"startTime"`
	EndTime                  bool   `json:"endTime"`
	ParticipationFrom        bool   `json:"participationFrom"`
	ParticipationUntil       bool   `json:"participationUntil"`
	ParticipantLimit         bool   `json:"participantLimit"`
	Published                bool   `json:"published"`
	Canceled                 bool   `json:"canceled"`
	Stage                    bool   `json:"stage"`
	ConferenceLink           bool   `json:"conferenceLink"`
	ConferenceCode           bool   `json:"conferenceCode"`
	VenueName                bool   `json:"venueName"`
	VenueStreet              bool   `json:"venueStreet"`
	VenueCity                bool   `json:"venueCity"`
	VenueZipCode             bool   `json:"venueZipCode"`
	Background               bool   `json:"background"`
	ParentEvent              bool   `json:"parentEvent"`
	ChildEvents              bool   `json:"childEvents"`
	Areas                    bool   `json:"areas"`
	Tags                     bool   `json:"tags"`
	Speakers                 bool   `json:"speakers"`
	TeamMembers              bool   `json:"teamMembers"`
	ResponsibleOrganizations bool   `json:"responsibleOrganizations"`
	CreatedAt                bool   `json:"createdAt"`
	UpdatedAt                bool   `json:"updatedAt"`
}

// NewVisibility returns the settings created together with a new event.
// Everything is public; conference access is gated separately.
func NewVisibility(eventID string) *Visibility {
	return &Visibility{
		EventID:                  eventID,
		Name:                     true,
		Slug:                     true,
		Description:              true,
		Subline:                  true,
		StartTime:                true,
		EndTime:                  true,
		ParticipationFrom:        true,
		ParticipationUntil:       true,
		ParticipantLimit:         true,
		Published:                true,
		Canceled:                 true,
		Stage:                    true,
		ConferenceLink:           true,
		ConferenceCode:           true,
		VenueName:                true,
		VenueStreet:              true,
		VenueCity:                true,
		VenueZipCode:             true,
		Background:               true,
		ParentEvent:              true,
		ChildEvents:              true,
		Areas:                    true,
		Tags:                     true,
		Speakers:                 true,
		TeamMembers:              true,
		ResponsibleOrganizations: true,
		CreatedAt:                true,
		UpdatedAt:                true,
	}
}

// Settings returns the flags keyed by field name.
func (v *Visibility) Settings() visibility.Settings {
	return visibility.Settings{
		"name":                     v.Name,
		"slug":                     v.Slug,
		"description":              v.Description,
		"subline":                  v.Subline,
		"startTime":                v.StartTime,
		"endTime":                  v.EndTime,
		"participationFrom":        v.ParticipationFrom,
		"participationUntil":       v.ParticipationUntil,
		"participantLimit":         v.ParticipantLimit,
		"published":                v.Published,
		"canceled":                 v.Canceled,
		"stage":                    v.Stage,
		"conferenceLink":           v.ConferenceLink,
		"conferenceCode":           v.ConferenceCode,
		"venueName":                v.VenueName,
		"venueStreet":              v.VenueStreet,
		"venueCity":                v.VenueCity,
		"venueZipCode":             v.VenueZipCode,
		"background":               v.Background,
		"parentEvent":              v.ParentEvent,
		"childEvents":              v.ChildEvents,
		"areas":                    v.Areas,
		"tags":                     v.Tags,
		"speakers":                 v.Speakers,
		"teamMembers":              v.TeamMembers,
		"responsibleOrganizations": v.ResponsibleOrganizations,
		"createdAt":                v.CreatedAt,
		"updatedAt":                v.UpdatedAt,
	}
}

// Fields lists the event visibility settings fields.
var Fields = NewVisibility("").Settings().Keys()

// Table classifies the redactable event fields.
var Table = visibility.Table{
	"name":                     visibility.Text,
	"slug":                     visibility.Text,
	"description":              visibility.Nullable,
	"subline":                  visibility.Nullable,
	"startTime":                visibility.Timestamp,
	"endTime":                  visibility.Timestamp,
	"participationFrom":        visibility.Timestamp,
	"participationUntil":       visibility.Timestamp,
	"participantLimit":         visibility.Nullable,
	"published":                visibility.AssumeTrue,
	"canceled":                 visibility.AssumeTrue,
	"stage":                    visibility.Nullable,
	"conferenceLink":           visibility.Nullable,
	"conferenceCode":           visibility.Nullable,
	"venueName":                visibility.Nullable,
	"venueStreet":              visibility.Nullable,
	"venueCity":                visibility.Nullable,
	"venueZipCode":             visibility.Nullable,
	"background":               visibility.Nullable,
	"parentEvent":              visibility.Nullable,
	"childEvents":              visibility.List,
	"areas":                    visibility.List,
	"tags":                     visibility.List,
	"speakers":                 visibility.List,
	"teamMembers":              visibility.List,
	"responsibleOrganizations": visibility.List,
	"createdAt":                visibility.Timestamp,
	"updatedAt":                visibility.Timestamp,
}
