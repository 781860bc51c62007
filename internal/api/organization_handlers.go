package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/onnwee/commons/internal/middleware"
	"github.com/onnwee/commons/internal/organization"
	"github.com/onnwee/commons/internal/visibility"
)

// OrganizationHandlers serves organizations.
type OrganizationHandlers struct {
	repo organization.Repository
	renderer
}

// NewOrganizationHandlers creates organization handlers. media may be nil.
func NewOrganizationHandlers(repo organization.Repository, filter *visibility.Filter, media MediaResolver) *OrganizationHandlers {
	return &OrganizationHandlers{repo: repo, renderer: renderer{filter: filter, media: media}}
}

// GetOrganization handles GET /organizations/{slug}. Team members see every
// field.
func (h *OrganizationHandlers) GetOrganization(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	slug := r.PathValue("slug")

	o, err := h.repo.GetBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, organization.ErrOrganizationNotFound) {
			writeCode(w, r, ErrCodeNotFound, "Organization not found")
			return
		}
		slog.ErrorContext(ctx, "failed to get organization", "error", err, "slug", slug)
		writeCode(w, r, ErrCodeInternal, "Failed to retrieve organization")
		return
	}

	v, err := h.repo.GetVisibility(ctx, o.ID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to get organization visibility", "error", err, "organization_id", o.ID)
		writeCode(w, r, ErrCodeInternal, "Failed to retrieve organization")
		return
	}

	member := o.IsTeamMember(middleware.GetUserID(ctx))
	rec, err := h.render(ctx, visibility.KindOrganization, o.Record(), v.Settings(), member, organization.ImageFields)
	if err != nil {
		writeRenderError(w, r, visibility.KindOrganization, o.ID, err)
		return
	}
	writeJSON(w, r, http.StatusOK, rec)
}
