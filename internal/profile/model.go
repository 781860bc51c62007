// Package profile provides the user profile model, its visibility settings
// and repositories.
package profile

import (
	"time"

	"github.com/onnwee/commons/internal/visibility"
)

// Profile is a user's public profile.
type Profile struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	FirstName     string    `json:"firstName"`
	LastName      string    `json:"lastName"`
	Bio           *string   `json:"bio,omitempty"`
	Phone         *string   `json:"phone,omitempty"`
	Website       *string   `json:"website,omitempty"`
	Avatar        *string   `json:"avatar,omitempty"`     // object key
	Background    *string   `json:"background,omitempty"` // object key
	Areas         []string  `json:"areas"`
	Memberships   []string  `json:"memberships"` // organization ids
	Score         int       `json:"score"`
	TermsAccepted bool      `json:"termsAccepted"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Record serializes p with the field names used by visibility settings.
func (p *Profile) Record() visibility.Record {
	return visibility.Record{
		visibility.IDField: p.ID,
		"username":         p.Username,
		"email":            p.Email,
		"firstName":        p.FirstName,
		"lastName":         p.LastName,
		"bio":              visibility.Optional(p.Bio),
		"phone":            visibility.Optional(p.Phone),
		"website":          visibility.Optional(p.Website),
		"avatar":           visibility.Optional(p.Avatar),
		"background":       visibility.Optional(p.Background),
		"areas":            visibility.Items(p.Areas),
		"memberships":      visibility.Items(p.Memberships),
		"score":            p.Score,
		"termsAccepted":    p.TermsAccepted,
		"createdAt":        p.CreatedAt,
		"updatedAt":        p.UpdatedAt,
	}
}

// IsOwner reports whether userID owns the profile.
func (p *Profile) IsOwner(userID string) bool {
	return userID != "" && p.ID == userID
}

// Visibility holds one public flag per redactable profile field.
type Visibility struct {
	ProfileID     string `json:"profileId"`
	Username      bool   `json:"username"`
	Email         bool   `json:"email"`
	FirstName     bool   `json:"firstName"`
	LastName      bool   `json:"lastName"`
	Bio           bool   `json:"bio"`
	Phone         bool   `json:"phone"`
	Website       bool   `json:"website"`
	Avatar        bool   `json:"avatar"`
	Background    bool   `json:"background"`
	Areas         bool   `json:"areas"`
	Memberships   bool   `json:"memberships"`
	Score         bool   `json:"score"`
	TermsAccepted bool   `json:"termsAccepted"`
	CreatedAt     bool   `json:"createdAt"`
	UpdatedAt     bool   `json:"updatedAt"`
}

// NewVisibility returns the settings created together with a new profile.
// Contact details start private.
func NewVisibility(profileID string) *Visibility {
	return &Visibility{
		ProfileID:   profileID,
		Username:    true,
		FirstName:   true,
		LastName:    true,
		Bio:         true,
		Website:     true,
		Avatar:      true,
		Background:  true,
		Areas:       true,
		Memberships: true,
		Score:       true,
		CreatedAt:   true,
	}
}

// Settings returns the flags keyed by field name.
func (v *Visibility) Settings() visibility.Settings {
	return visibility.Settings{
		"username":      v.Username,
		"email":         v.Email,
		"firstName":     v.FirstName,
		"lastName":      v.LastName,
		"bio":           v.Bio,
		"phone":         v.Phone,
		"website":       v.Website,
		"avatar":        v.Avatar,
		"background":    v.Background,
		"areas":         v.Areas,
		"memberships":   v.Memberships,
		"score":         v.Score,
		"termsAccepted": v.TermsAccepted,
		"createdAt":     v.CreatedAt,
		"updatedAt":     v.UpdatedAt,
	}
}

// Fields lists the profile visibility settings fields.
var Fields = NewVisibility("").Settings().Keys()

// Table classifies the redactable profile fields.
var Table = visibility.Table{
	"username":      visibility.Text,
	"email":         visibility.Text,
	"firstName":     visibility.Text,
	"lastName":      visibility.Text,
	"bio":           visibility.Nullable,
	"phone":         visibility.Nullable,
	"website":       visibility.Nullable,
	"avatar":        visibility.Nullable,
	"background":    visibility.Nullable,
	"areas":         visibility.List,
	"memberships":   visibility.List,
	"score":         visibility.Score,
	"termsAccepted": visibility.AssumeTrue,
	"createdAt":     visibility.Timestamp,
	"updatedAt":     visibility.Timestamp,
}

// ImageFields are the record fields holding object keys.
var ImageFields = []string{"avatar", "background"}
