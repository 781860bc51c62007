package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/onnwee/commons/internal/audit"
	"github.com/onnwee/commons/internal/eligibility"
	"github.com/onnwee/commons/internal/event"
	"github.com/onnwee/commons/internal/hierarchy"
	"github.com/onnwee/commons/internal/middleware"
	"github.com/onnwee/commons/internal/visibility"
)

// maxBodyBytes bounds admin request bodies.
const maxBodyBytes = 1 << 16

// Page sizes of GET /events/{slug}/audit.
const (
	defaultAuditLimit = 50
	maxAuditLimit     = 200
)

// EventResponse is the body of GET /events/{slug}.
type EventResponse struct {
	Event       visibility.Record    `json:"event"`
	Counts      event.Counts         `json:"counts"`
	Eligibility eligibility.Decision `json:"eligibility"`
}

// RegistrationResponse is the body of a successful registration.
type RegistrationResponse struct {
	EventID string     `json:"eventId"`
	Role    event.Role `json:"role"`
}

// PublishRequest is the body of POST /events/{slug}/publish.
type PublishRequest struct {
	Publish *bool `json:"publish"`
}

// PublishResponse lists the events whose state was written.
type PublishResponse struct {
	EventIDs  []string `json:"eventIds"`
	Published bool     `json:"published"`
}

// CancelRequest is the body of POST /events/{slug}/cancel.
type CancelRequest struct {
	Cancel *bool `json:"cancel"`
}

// CancelResponse is the body of a successful cancellation.
type CancelResponse struct {
	EventID  string `json:"eventId"`
	Canceled bool   `json:"canceled"`
}

// EventHandlers serves events, registrations and admin state changes.
type EventHandlers struct {
	repo         event.Repository
	registration *event.RegistrationService
	tree         *hierarchy.Service
	audits       audit.Repository
	renderer
	now func() time.Time
}

// NewEventHandlers creates event handlers. audits and media may be nil;
// without audits admin changes are not recorded.
func NewEventHandlers(repo event.Repository, registration *event.RegistrationService,
	audits audit.Repository, filter *visibility.Filter, media MediaResolver) *EventHandlers {
	return &EventHandlers{
		repo:         repo,
		registration: registration,
		tree:         hierarchy.NewService(repo),
		audits:       audits,
		renderer:     renderer{filter: filter, media: media},
		now:          time.Now,
	}
}

// resolve maps the {slug} path value to an event id. A GET on a historic
// slug is answered with 301 to the current slug and ok is false.
func (h *EventHandlers) resolve(w http.ResponseWriter, r *http.Request) (id string, ok bool) {
	slug := r.PathValue("slug")
	res, err := hierarchy.ResolveSlug(r.Context(), h.repo, slug)
	if err != nil {
		if errors.Is(err, hierarchy.ErrSlugNotFound) {
			writeCode(w, r, ErrCodeNotFound, "Event not found")
			return "", false
		}
		slog.ErrorContext(r.Context(), "failed to resolve event slug", "error", err, "slug", slug)
		writeCode(w, r, ErrCodeInternal, "Failed to retrieve event")
		return "", false
	}

	if res.Redirect && r.Method == http.MethodGet {
		target := "/events/" + url.PathEscape(res.Slug) + strings.TrimPrefix(r.URL.Path, "/events/"+slug)
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}
		http.Redirect(w, r, target, http.StatusMovedPermanently)
		return "", false
	}
	return res.EventID, true
}

// viewState is everything a read of one event decides on.
type viewState struct {
	event      *event.Event
	counts     event.Counts
	decision   eligibility.Decision
	privileged bool
}

func (h *EventHandlers) load(ctx context.Context, id string) (viewState, error) {
	e, err := h.repo.GetByID(ctx, id)
	if err != nil {
		return viewState{}, err
	}
	counts, err := h.repo.Counts(ctx, id)
	if err != nil {
		return viewState{}, err
	}

	userID := middleware.GetUserID(ctx)
	viewer, err := h.repo.Relationship(ctx, id, userID)
	if err != nil {
		return viewState{}, err
	}
	admin := false
	if userID != "" {
		if admin, err = h.repo.IsAdmin(ctx, id, userID); err != nil {
			return viewState{}, err
		}
	}

	return viewState{
		event:      e,
		counts:     counts,
		decision:   eligibility.Evaluate(e.Eligibility(counts), viewer, h.now()),
		privileged: admin || viewer.IsTeamMember,
	}, nil
}

// GetEvent handles GET /events/{slug}. Team members and admins see every
// field; everyone else gets the filtered record, and the conference fields
// only when they may access the conference.
func (h *EventHandlers) GetEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.resolve(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	st, err := h.load(ctx, id)
	if err != nil {
		h.writeLoadError(w, r, id, err)
		return
	}
	v, err := h.repo.GetVisibility(ctx, id)
	if err != nil {
		h.writeLoadError(w, r, id, err)
		return
	}

	rec := st.event.Record()
	if !st.privileged && !st.decision.CanAccessConferenceLink {
		for _, f := range event.ConferenceFields {
			rec[f] = nil
		}
	}
	out, err := h.render(ctx, visibility.KindEvent, rec, v.Settings(), st.privileged, event.ImageFields)
	if err != nil {
		writeRenderError(w, r, visibility.KindEvent, id, err)
		return
	}

	writeJSON(w, r, http.StatusOK, EventResponse{Event: out, Counts: st.counts, Eligibility: st.decision})
}

// GetEligibility handles GET /events/{slug}/eligibility.
func (h *EventHandlers) GetEligibility(w http.ResponseWriter, r *http.Request) {
	id, ok := h.resolve(w, r)
	if !ok {
		return
	}
	st, err := h.load(r.Context(), id)
	if err != nil {
		h.writeLoadError(w, r, id, err)
		return
	}
	writeJSON(w, r, http.StatusOK, st.decision)
}

// Register handles POST /events/{slug}/participants.
func (h *EventHandlers) Register(w http.ResponseWriter, r *http.Request) {
	h.register(w, r, event.RoleParticipant, h.registration.Register)
}

// JoinWaitingList handles POST /events/{slug}/waiting-list.
func (h *EventHandlers) JoinWaitingList(w http.ResponseWriter, r *http.Request) {
	h.register(w, r, event.RoleWaitingList, h.registration.JoinWaitingList)
}

func (h *EventHandlers) register(w http.ResponseWriter, r *http.Request, role event.Role,
	action func(ctx context.Context, eventID, userID string) error) {
	id, ok := h.resolve(w, r)
	if !ok {
		return
	}
	if err := action(r.Context(), id, middleware.GetUserID(r.Context())); err != nil {
		writeRegistrationError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, RegistrationResponse{EventID: id, Role: role})
}

// Leave handles DELETE /events/{slug}/participants. It removes the viewer
// from the participants or, failing that, from the waiting list.
func (h *EventHandlers) Leave(w http.ResponseWriter, r *http.Request) {
	id, ok := h.resolve(w, r)
	if !ok {
		return
	}
	if err := h.registration.Leave(r.Context(), id, middleware.GetUserID(r.Context())); err != nil {
		writeRegistrationError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeRegistrationError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, event.ErrUserRequired):
		writeCode(w, r, ErrCodeAuthFailed, "Authentication required")
	case errors.Is(err, event.ErrEventNotFound):
		writeCode(w, r, ErrCodeNotFound, "Event not found")
	case errors.Is(err, event.ErrNotEligible):
		writeCode(w, r, ErrCodeNotEligible, err.Error())
	case errors.Is(err, event.ErrAlreadyMember):
		writeCode(w, r, ErrCodeConflict, "Already registered")
	case errors.Is(err, event.ErrNotMember):
		writeCode(w, r, ErrCodeConflict, "Not registered for this event")
	default:
		writeCode(w, r, ErrCodeInternal, "Registration failed")
	}
}

// Publish handles POST /events/{slug}/publish. The event and all of its
// descendants are written in one bulk update.
func (h *EventHandlers) Publish(w http.ResponseWriter, r *http.Request) {
	id, ok := h.resolve(w, r)
	if !ok || !h.requireAdmin(w, r, id) {
		return
	}

	var req PublishRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Publish == nil {
		writeCode(w, r, ErrCodeValidation, "publish is required")
		return
	}

	action := audit.ActionEventPublish
	if !*req.Publish {
		action = audit.ActionEventUnpublish
	}
	ids, err := h.tree.Publish(r.Context(), id, *req.Publish)
	h.record(r, id, action, err)
	if err != nil {
		h.writeStateError(w, r, id, err)
		return
	}
	writeJSON(w, r, http.StatusOK, PublishResponse{EventIDs: ids, Published: *req.Publish})
}

// Cancel handles POST /events/{slug}/cancel. Child events are not affected.
func (h *EventHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.resolve(w, r)
	if !ok || !h.requireAdmin(w, r, id) {
		return
	}

	var req CancelRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Cancel == nil {
		writeCode(w, r, ErrCodeValidation, "cancel is required")
		return
	}

	action := audit.ActionEventCancel
	if !*req.Cancel {
		action = audit.ActionEventRestore
	}
	err := h.tree.Cancel(r.Context(), id, *req.Cancel)
	h.record(r, id, action, err)
	if err != nil {
		h.writeStateError(w, r, id, err)
		return
	}
	writeJSON(w, r, http.StatusOK, CancelResponse{EventID: id, Canceled: *req.Cancel})
}

// record appends the outcome of an admin change to the audit log. The
// change has already been applied, so a failed append is only logged.
func (h *EventHandlers) record(r *http.Request, id, action string, changeErr error) {
	if h.audits == nil {
		return
	}
	outcome := audit.OutcomeSuccess
	if changeErr != nil {
		outcome = audit.OutcomeFailure
	}
	if _, err := audit.Record(r, h.audits, audit.EntityEvent, id, action, outcome); err != nil {
		slog.ErrorContext(r.Context(), "failed to write audit log", "error", err, "event_id", id, "action", action)
	}
}

// GetAuditLog handles GET /events/{slug}/audit. Only event admins may read
// it; entries are newest first.
func (h *EventHandlers) GetAuditLog(w http.ResponseWriter, r *http.Request) {
	id, ok := h.resolve(w, r)
	if !ok || !h.requireAdmin(w, r, id) {
		return
	}

	limit := defaultAuditLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeCode(w, r, ErrCodeValidation, "limit must be a positive integer")
			return
		}
		limit = min(n, maxAuditLimit)
	}

	logs := []*audit.Log{}
	if h.audits != nil {
		var err error
		if logs, err = h.audits.QueryByEntity(r.Context(), audit.EntityEvent, id, limit); err != nil {
			slog.ErrorContext(r.Context(), "failed to query audit log", "error", err, "event_id", id)
			writeCode(w, r, ErrCodeInternal, "Failed to retrieve audit log")
			return
		}
	}
	writeJSON(w, r, http.StatusOK, logs)
}

func (h *EventHandlers) requireAdmin(w http.ResponseWriter, r *http.Request, id string) bool {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeCode(w, r, ErrCodeAuthFailed, "Authentication required")
		return false
	}
	admin, err := h.repo.IsAdmin(r.Context(), id, userID)
	if err != nil {
		h.writeLoadError(w, r, id, err)
		return false
	}
	if !admin {
		writeCode(w, r, ErrCodeForbidden, "Only event admins may change this event")
		return false
	}
	return true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		msg := "Invalid JSON in request body"
		if errors.Is(err, io.EOF) {
			msg = "Request body is required"
		}
		writeCode(w, r, ErrCodeBadRequest, msg)
		return false
	}
	return true
}

func (h *EventHandlers) writeLoadError(w http.ResponseWriter, r *http.Request, id string, err error) {
	if errors.Is(err, event.ErrEventNotFound) {
		writeCode(w, r, ErrCodeNotFound, "Event not found")
		return
	}
	slog.ErrorContext(r.Context(), "failed to load event", "error", err, "event_id", id)
	writeCode(w, r, ErrCodeInternal, "Failed to retrieve event")
}

func (h *EventHandlers) writeStateError(w http.ResponseWriter, r *http.Request, id string, err error) {
	switch {
	case errors.Is(err, event.ErrEventNotFound):
		writeCode(w, r, ErrCodeNotFound, "Event not found")
	case errors.Is(err, hierarchy.ErrCycle):
		slog.ErrorContext(r.Context(), "event tree contains a cycle", "error", err, "event_id", id)
		writeCode(w, r, ErrCodeDataIntegrity, "Event tree is inconsistent")
	case errors.Is(err, event.ErrPartialUpdate):
		writeCode(w, r, ErrCodeConflict, "Event tree changed during the update, retry")
	default:
		slog.ErrorContext(r.Context(), "failed to update event state", "error", err, "event_id", id)
		writeCode(w, r, ErrCodeInternal, "Failed to update event")
	}
}
