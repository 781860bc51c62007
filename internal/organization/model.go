// Package organization provides the organization model, its visibility
// settings and repositories.
package organization

import (
	"slices"
	"time"

	"github.com/onnwee/commons/internal/visibility"
)

// Organization is a group that runs events and projects.
type Organization struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Email       string    `json:"email"`
	Phone       *string   `json:"phone,omitempty"`
	Website     *string   `json:"website,omitempty"`
	Description *string   `json:"description,omitempty"`
	Logo        *string   `json:"logo,omitempty"`       // object key
	Background  *string   `json:"background,omitempty"` // object key
	Areas       []string  `json:"areas"`
	Tags        []string  `json:"tags"`
	TeamMembers []string  `json:"teamMembers"` // profile ids
	Projects    []string  `json:"projects"`    // project ids
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Record serializes o with the field names used by visibility settings.
func (o *Organization) Record() visibility.Record {
	return visibility.Record{
		visibility.IDField: o.ID,
		"name":             o.Name,
		"slug":             o.Slug,
		"email":            o.Email,
		"phone":            visibility.Optional(o.Phone),
		"website":          visibility.Optional(o.Website),
		"description":      visibility.Optional(o.Description),
		"logo":             visibility.Optional(o.Logo),
		"background":       visibility.Optional(o.Background),
		"areas":            visibility.Items(o.Areas),
		"tags":             visibility.Items(o.Tags),
		"teamMembers":      visibility.Items(o.TeamMembers),
		"projects":         visibility.Items(o.Projects),
		"createdAt":        o.CreatedAt,
		"updatedAt":        o.UpdatedAt,
	}
}

// IsTeamMember reports whether userID belongs to the organization's team.
func (o *Organization) IsTeamMember(userID string) bool {
	return userID != "" && slices.Contains(o.TeamMembers, userID)
}

// Visibility holds one public flag per redactable organization field.
type Visibility struct {
	OrganizationID string `json:"organizationId"`
	Name           bool   `json:"name"`
	Slug           bool   `json:"slug"`
	Email          bool   `json:"email"`
	Phone          bool   `json:"phone"`
	Website        bool   `json:"website"`
	Description    bool   `json:"description"`
	Logo           bool   `json:"logo"`
	Background     bool   `json:"background"`
	Areas          bool   `json:"areas"`
	Tags           bool   `json:"tags"`
	TeamMembers    bool   `json:"teamMembers"`
	Projects       bool   `json:"projects"`
	CreatedAt      bool   `json:"createdAt"`
	UpdatedAt      bool   `json:"updatedAt"`
}

// NewVisibility returns the settings created together with a new
// organization. Everything except direct contact details is public.
func NewVisibility(organizationID string) *Visibility {
	return &Visibility{
		OrganizationID: organizationID,
		Name:           true,
		Slug:           true,
		Website:        true,
		Description:    true,
		Logo:           true,
		Background:     true,
		Areas:          true,
		Tags:           true,
		TeamMembers:    true,
		Projects:       true,
		CreatedAt:      true,
		UpdatedAt:      true,
	}
}

// Settings returns the flags keyed by field name.
func (v *Visibility) Settings() visibility.Settings {
	return visibility.Settings{
		"name":        v.Name,
		"slug":        v.Slug,
		"email":       v.Email,
		"phone":       v.Phone,
		"website":     v.Website,
		"description": v.Description,
		"logo":        v.Logo,
		"background":  v.Background,
		"areas":       v.Areas,
		"tags":        v.Tags,
		"teamMembers": v.TeamMembers,
		"projects":    v.Projects,
		"createdAt":   v.CreatedAt,
		"updatedAt":   v.UpdatedAt,
	}
}

// Fields lists the organization visibility settings fields.
var Fields = NewVisibility("").Settings().Keys()

// Table classifies the redactable organization fields.
var Table = visibility.Table{
	"name":        visibility.Text,
	"slug":        visibility.Text,
	"email":       visibility.Text,
	"phone":       visibility.Nullable,
	"website":     visibility.Nullable,
	"description": visibility.Nullable,
	"logo":        visibility.Nullable,
	"background":  visibility.Nullable,
	"areas":       visibility.List,
	"tags":        visibility.List,
	"teamMembers": visibility.List,
	"projects":    visibility.List,
	"createdAt":   visibility.Timestamp,
	"updatedAt":   visibility.Timestamp,
}

// ImageFields are the record fields holding object keys.
var ImageFields = []string{"logo", "background"}
