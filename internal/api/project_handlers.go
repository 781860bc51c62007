package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/onnwee/commons/internal/middleware"
	"github.com/onnwee/commons/internal/project"
	"github.com/onnwee/commons/internal/visibility"
)

// ProjectHandlers serves projects.
type ProjectHandlers struct {
	repo project.Repository
	renderer
}

// NewProjectHandlers creates project handlers. media may be nil.
func NewProjectHandlers(repo project.Repository, filter *visibility.Filter, media MediaResolver) *ProjectHandlers {
	return &ProjectHandlers{repo: repo, renderer: renderer{filter: filter, media: media}}
}

// GetProject handles GET /projects/{slug}. Team members see every
// field.
func (h *ProjectHandlers) GetProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	slug := r.PathValue("slug")

	p, err := h.repo.GetBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, project.ErrProjectNotFound) {
			writeCode(w, r, ErrCodeNotFound, "Project not found")
			return
		}
		slog.ErrorContext(ctx, "failed to get project", "error", err, "slug", slug)
		writeCode(w, r, ErrCodeInternal, "Failed to retrieve project")
		return
	}

	v, err := h.repo.GetVisibility(ctx, p.ID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to get project visibility", "error", err, "project_id", p.ID)
		writeCode(w, r, ErrCodeInternal, "Failed to retrieve project")
		return
	}

	member := p.IsTeamMember(middleware.GetUserID(ctx))
	rec, err := h.render(ctx, visibility.KindProject, p.Record(), v.Settings(), member, project.ImageFields)
	if err != nil {
		writeRenderError(w, r, visibility.KindProject, p.ID, err)
		return
	}
	writeJSON(w, r, http.StatusOK, rec)
}
