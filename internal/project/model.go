// Package project provides the project model, its visibility settings and
// repositories.
package project

import (
	"slices"
	"time"

	"github.com/onnwee/commons/internal/visibility"
)

// Project is a long-running initiative carried by one or more organizations.
type Project struct {
	ID                       string    `json:"id"`
	Name                     string    `json:"name"`
	Slug                     string    `json:"slug"`
	Email                    string    `json:"email"`
	Website                  *string   `json:"website,omitempty"`
	Description              *string   `json:"description,omitempty"`
	Logo                     *string   `json:"logo,omitempty"`       // object key
	Background               *string   `json:"background,omitempty"` // object key
	Areas                    []string  `json:"areas"`
	Tags                     []string  `json:"tags"`
	TeamMembers              []string  `json:"teamMembers"`
	ResponsibleOrganizations []string  `json:"responsibleOrganizations"`
	Published                bool      `json:"published"`
	CreatedAt                time.Time `json:"createdAt"`
	UpdatedAt                time.Time `json:"updatedAt"`
}

// Record serializes p with the field names used by visibility settings.
func (p *Project) Record() visibility.Record {
	return visibility.Record{
		visibility.IDField:         p.ID,
		"name":                     p.Name,
		"slug":                     p.Slug,
		"email":                    p.Email,
		"website":                  visibility.Optional(p.Website),
		"description":              visibility.Optional(p.Description),
		"logo":                     visibility.Optional(p.Logo),
		"background":               visibility.Optional(p.Background),
		"areas":                    visibility.Items(p.Areas),
		"tags":                     visibility.Items(p.Tags),
		"teamMembers":              visibility.Items(p.TeamMembers),
		"responsibleOrganizations": visibility.Items(p.ResponsibleOrganizations),
		"published":                p.Published,
		"createdAt":                p.CreatedAt,
		"updatedAt":                p.UpdatedAt,
	}
}

// IsTeamMember reports whether userID belongs to the project team.
func (p *Project) IsTeamMember(userID string) bool {
	return userID != "" && slices.Contains(p.TeamMembers, userID)
}

// Visibility holds one public flag per redactable project field.
type Visibility struct {
	ProjectID                string `json:"projectId"`
	Name                     bool   `json:"name"`
	Slug                     bool   `json:"slug"`
	Email                    bool   `json:"email"`
	Website                  bool   `json:"website"`
	Description              bool   `json:"description"`
	Logo                     bool   `json:"logo"`
	Background               bool   `json:"background"`
	Areas                    bool   `json:"areas"`
	Tags                     bool   `json:"tags"`
	TeamMembers              bool   `json:"teamMembers"`
	ResponsibleOrganizations bool   `json:"responsibleOrganizations"`
	Published                bool   `json:"published"`
	CreatedAt                bool   `json:"createdAt"`
	UpdatedAt                bool   `json:"updatedAt"`
}

// NewVisibility returns the settings created together with a new project.
func NewVisibility(projectID string) *Visibility {
	return &Visibility{
		ProjectID:                projectID,
		Name:                     true,
		Slug:                     true,
		Website:                  true,
		Description:              true,
		Logo:                     true,
		Background:               true,
		Areas:                    true,
		Tags:                     true,
		TeamMembers:              true,
		ResponsibleOrganizations: true,
		Published:                true,
		CreatedAt:                true,
		UpdatedAt:                true,
	}
}

// Settings returns the flags keyed by field name.
func (v *Visibility) Settings() visibility.Settings {
	return visibility.Settings{
		"name":                     v.Name,
		"slug":                     v.Slug,
		"email":                    v.Email,
		"website":                  v.Website,
		"description":              v.Description,
		"logo":                     v.Logo,
		"background":               v.Background,
		"areas":                    v.Areas,
		"tags":                     v.Tags,
		"teamMembers":              v.TeamMembers,
		"responsibleOrganizations": v.ResponsibleOrganizations,
		"published":                v.Published,
		"createdAt":                v.CreatedAt,
		"updatedAt":                v.UpdatedAt,
	}
}

// Fields lists the project visibility settings fields.
var Fields = NewVisibility("").Settings().Keys()

// Table classifies the redactable project fields.
var Table = visibility.Table{
	"name":                     visibility.Text,
	"slug":                     visibility.Text,
	"email":                    visibility.Text,
	"website":                  visibility.Nullable,
	"description":              visibility.Nullable,
	"logo":                     visibility.Nullable,
	"background":               visibility.Nullable,
	"areas":                    visibility.List,
	"tags":                     visibility.List,
	"teamMembers":              visibility.List,
	"responsibleOrganizations": visibility.List,
	"published":                visibility.AssumeTrue,
	"createdAt":                visibility.Timestamp,
	"updatedAt":                visibility.Timestamp,
}

// ImageFields are the record fields holding object keys.
var ImageFields = []string{"logo", "background"}
