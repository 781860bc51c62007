package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/onnwee/commons/internal/middleware"
	"github.com/onnwee/commons/internal/profile"
	"github.com/onnwee/commons/internal/visibility"
)

// ProfileHandlers serves profiles.
type ProfileHandlers struct {
	repo profile.Repository
	renderer
}

// NewProfileHandlers creates profile handlers. media may be nil.
func NewProfileHandlers(repo profile.Repository, filter *visibility.Filter, media MediaResolver) *ProfileHandlers {
	return &ProfileHandlers{repo: repo, renderer: renderer{filter: filter, media: media}}
}

// GetProfile handles GET /profiles/{username}. The owner sees every field.
func (h *ProfileHandlers) GetProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	username := r.PathValue("username")

	p, err := h.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, profile.ErrProfileNotFound) {
			writeCode(w, r, ErrCodeNotFound, "Profile not found")
			return
		}
		slog.ErrorContext(ctx, "failed to get profile", "error", err, "username", username)
		writeCode(w, r, ErrCodeInternal, "Failed to retrieve profile")
		return
	}

	v, err := h.repo.GetVisibility(ctx, p.ID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to get profile visibility", "error", err, "profile_id", p.ID)
		writeCode(w, r, ErrCodeInternal, "Failed to retrieve profile")
		return
	}

	owner := p.IsOwner(middleware.GetUserID(ctx))
	rec, err := h.render(ctx, visibility.KindProfile, p.Record(), v.Settings(), owner, profile.ImageFields)
	if err != nil {
		writeRenderError(w, r, visibility.KindProfile, p.ID, err)
		return
	}
	writeJSON(w, r, http.StatusOK, rec)
}
