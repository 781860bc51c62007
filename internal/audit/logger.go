package audit

import (
	"errors"
	"net/http"

	"github.com/onnwee/commons/internal/middleware"
)

var (
	// ErrNilRepository is returned when no repository is configured.
	ErrNilRepository = errors.New("audit repository cannot be nil")
	// ErrInvalidEntityType is returned for an empty or unknown entity type.
	ErrInvalidEntityType = errors.New("invalid audit entity type")
	// ErrInvalidEntityID is returned for an empty entity id.
	ErrInvalidEntityID = errors.New("audit entity id cannot be empty")
	// ErrInvalidAction is returned for an empty or unknown action.
	ErrInvalidAction = errors.New("invalid audit action")
	// ErrInvalidOutcome is returned for an outcome other than success or failure.
	ErrInvalidOutcome = errors.New("invalid audit outcome")
)

var validEntityTypes = map[string]bool{
	EntityEvent: true,
}

var validActions = map[string]bool{
	ActionEventPublish:   true,
	ActionEventUnpublish: true,
	ActionEventCancel:    true,
	ActionEventRestore:   true,
}

func validate(entry Entry) error {
	switch {
	case !validEntityTypes[entry.EntityType]:
		return ErrInvalidEntityType
	case entry.EntityID == "":
		return ErrInvalidEntityID
	case !validActions[entry.Action]:
		return ErrInvalidAction
	case entry.Outcome != OutcomeSuccess && entry.Outcome != OutcomeFailure:
		return ErrInvalidOutcome
	}
	return nil
}

// Record appends an entry for the action the request performed on an
// entity. The user id and request id come from the request context.
func Record(r *http.Request, repo Repository, entityType, entityID, action, outcome string) (*Log, error) {
	if repo == nil {
		return nil, ErrNilRepository
	}

	ctx := r.Context()
	entry := Entry{
		UserID:     middleware.GetUserID(ctx),
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Outcome:    outcome,
		RequestID:  middleware.GetRequestID(ctx),
		IPAddress:  middleware.ClientIP(r),
		UserAgent:  r.UserAgent(),
	}
	if err := validate(entry); err != nil {
		return nil, err
	}
	return repo.Append(ctx, entry)
}
