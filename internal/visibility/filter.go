package visibility

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Reporter receives diagnostics produced while filtering.
type Reporter interface {
	Report(ctx context.Context, d Diagnostic)
}

// LogReporter logs diagnostics with slog and counts them when metrics are set.
type LogReporter struct {
	logger  *slog.Logger
	metrics *Metrics
}

// NewLogReporter creates a LogReporter. Both arguments may be nil; a nil
// logger falls back to slog.Default().
func NewLogReporter(logger *slog.Logger, metrics *Metrics) *LogReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogReporter{logger: logger, metrics: metrics}
}

// Report implements Reporter.
func (r *LogReporter) Report(ctx context.Context, d Diagnostic) {
	r.logger.WarnContext(ctx, "visibility schema drift",
		slog.String("kind", string(d.Kind)),
		slog.String("field", d.Field),
		slog.String("reason", d.Reason))
	if r.metrics != nil {
		r.metrics.IncDrift(d)
	}
}

// Filter applies per-kind classification tables to records.
// It is safe for concurrent use once all kinds are registered.
type Filter struct {
	mu       sync.RWMutex
	tables   map[Kind]Table
	reporter Reporter
	strict   bool
}

// Option configures a Filter.
type Option func(*Filter)

// WithReporter sets the diagnostic reporter.
func WithReporter(r Reporter) Option {
	return func(f *Filter) {
		f.reporter = r
	}
}

// WithStrict makes Apply fail with ErrSchemaDrift instead of passing
// unclassified fields through.
func WithStrict(strict bool) Option {
	return func(f *Filter) {
		f.strict = strict
	}
}

// NewFilter creates a Filter with no registered kinds.
func NewFilter(opts ...Option) *Filter {
	f := &Filter{
		tables: make(map[Kind]Table),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.reporter == nil {
		f.reporter = NewLogReporter(nil, nil)
	}
	return f
}

// Register validates table against the kind's settings fields and makes it
// available to Apply. A mismatch is returned and the kind stays unregistered.
func (f *Filter) Register(kind Kind, table Table, settingsFields []string) error {
	if err := ValidateSchema(kind, table, settingsFields); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[kind] = table
	return nil
}

// Apply redacts entity according to settings.
//
// In lenient mode diagnostics are reported and the best-effort record is
// returned. In strict mode any diagnostic makes Apply return ErrSchemaDrift
// and no record.
func (f *Filter) Apply(ctx context.Context, kind Kind, entity Record, settings Settings) (Record, error) {
	f.mu.RLock()
	table, ok := f.tables[kind]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	out, diags := Redact(kind, table, entity, settings)
	for _, d := range diags {
		f.reporter.Report(ctx, d)
	}
	if f.strict && len(diags) > 0 {
		return nil, fmt.Errorf("%w: %s has %d inconsistent fields (first: %s)", ErrSchemaDrift, kind, len(diags), diags[0].Field)
	}
	return out, nil
}
