package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/onnwee/commons/internal/visibility"
)

// MediaResolver replaces object keys with URLs.
type MediaResolver interface {
	ResolveRecord(ctx context.Context, rec visibility.Record, fields []string) (visibility.Record, error)
}

// renderer turns an entity record into its response body. Privileged
// viewers see the record as stored.
type renderer struct {
	filter *visibility.Filter
	media  MediaResolver
}

func (rd renderer) render(ctx context.Context, kind visibility.Kind, rec visibility.Record,
	settings visibility.Settings, privileged bool, imageFields []string) (visibility.Record, error) {
	out := rec
	if !privileged {
		var err error
		if out, err = rd.filter.Apply(ctx, kind, rec, settings); err != nil {
			return nil, err
		}
	}
	if rd.media == nil {
		return out, nil
	}
	return rd.media.ResolveRecord(ctx, out, imageFields)
}

// writeRenderError answers a failed render. Schema drift in strict mode is
// reported as data_integrity and the record is not sent.
func writeRenderError(w http.ResponseWriter, r *http.Request, kind visibility.Kind, id string, err error) {
	if errors.Is(err, visibility.ErrSchemaDrift) {
		slog.ErrorContext(r.Context(), "refusing to serve record", "kind", kind, "id", id, "error", err)
		writeCode(w, r, ErrCodeDataIntegrity, "Record cannot be served")
		return
	}
	slog.ErrorContext(r.Context(), "failed to render record", "kind", kind, "id", id, "error", err)
	writeCode(w, r, ErrCodeInternal, "Failed to render record")
}
