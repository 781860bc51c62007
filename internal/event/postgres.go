package event

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/onnwee/commons/internal/eligibility"
	"github.com/onnwee/commons/internal/hierarchy"
	"github.com/onnwee/commons/internal/tracing"
)

const uniqueViolation = "23505"

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresRepository creates a PostgresRepository. A nil logger falls
// back to slog.Default().
func NewPostgresRepository(db *sql.DB, logger *slog.Logger) *PostgresRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRepository{db: db, logger: logger}
}

const selectEvent = `
	SELECT e.id, e.name, e.slug, e.description, e.subline,
	       e.start_time, e.end_time, e.participation_from, e.participation_until,
	       e.participant_limit, e.published, e.canceled, e.stage,
	       e.conference_link, e.conference_code,
	       e.venue_name, e.venue_street, e.venue_city, e.venue_zip_code,
	       e.background, e.parent_event_id, e.areas, e.tags,
	       e.created_at, e.updated_at,
	       ARRAY(SELECT c.id::text FROM events c
	             WHERE c.parent_event_id = e.id ORDER BY c.start_time, c.id),
	       ARRAY(SELECT m.profile_id::text FROM event_members m
	             WHERE m.event_id = e.id AND m.role = 'speaker' ORDER BY m.created_at),
	       ARRAY(SELECT m.profile_id::text FROM event_members m
	             WHERE m.event_id = e.id AND m.role = 'team_member' ORDER BY m.created_at),
	       ARRAY(SELECT o.organization_id::text FROM event_organizations o
	             WHERE o.event_id = e.id ORDER BY o.organization_id)
	FROM events e
`

// rollback is deferred after BeginTx. It is a no-op once the transaction
// has been committed.
func (r *PostgresRepository) rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		r.logger.Warn("failed to rollback transaction", slog.String("error", err.Error()))
	}
}

// GetByID implements Repository.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Event, error) {
	return r.get(ctx, selectEvent+`WHERE e.id = $1`, id)
}

// GetBySlug implements Repository.
func (r *PostgresRepository) GetBySlug(ctx context.Context, slug string) (*Event, error) {
	return r.get(ctx, selectEvent+`WHERE e.slug = $1`, slug)
}

func (r *PostgresRepository) get(ctx context.Context, query, arg string) (e *Event, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "events", tracing.DBOperationQuery)
	defer func() { end(err) }()

	e = &Event{}
	var limit sql.NullInt64
	err = r.db.QueryRowContext(ctx, query, arg).Scan(
		&e.ID, &e.Name, &e.Slug, &e.Description, &e.Subline,
		&e.StartTime, &e.EndTime, &e.ParticipationFrom, &e.ParticipationUntil,
		&limit, &e.Published, &e.Canceled, &e.Stage,
		&e.ConferenceLink, &e.ConferenceCode,
		&e.VenueName, &e.VenueStreet, &e.VenueCity, &e.VenueZipCode,
		&e.Background, &e.ParentEventID, pq.Array(&e.Areas), pq.Array(&e.Tags),
		&e.CreatedAt, &e.UpdatedAt,
		pq.Array(&e.ChildEvents), pq.Array(&e.Speakers), pq.Array(&e.TeamMembers),
		pq.Array(&e.ResponsibleOrganizations),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	if limit.Valid {
		n := int(limit.Int64)
		e.ParticipantLimit = &n
	}
	return e, nil
}

// windowOf loads the time window of id within tx.
func windowOf(ctx context.Context, tx *sql.Tx, id string) (hierarchy.Window, error) {
	w := hierarchy.Window{EventID: id}
	err := tx.QueryRowContext(ctx, `
		SELECT start_time, end_time, participation_from, participation_until
		FROM events WHERE id = $1
	`, id).Scan(&w.Start, &w.End, &w.ParticipationFrom, &w.ParticipationUntil)
	return w, err
}

// Create implements Repository.
func (r *PostgresRepository) Create(ctx context.Context, e *Event) (err error) {
	if err := e.Validate(); err != nil {
		return err
	}
	ctx, end := tracing.StartDBSpan(ctx, "events", tracing.DBOperationInsert)
	defer func() { end(err) }()

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	settings, err := json.Marshal(NewVisibility(e.ID))
	if err != nil {
		return fmt.Errorf("failed to encode visibility: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer r.rollback(tx)

	var parent *hierarchy.Window
	if e.ParentEventID != nil {
		w, err := windowOf(ctx, tx, *e.ParentEventID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrParentNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load parent event: %w", err)
		}
		parent = &w
	}
	if err := hierarchy.ValidateTimeWindow(e.Window(), parent, nil); err != nil {
		return err
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO events (
			id, name, slug, description, subline,
			start_time, end_time, participation_from, participation_until,
			participant_limit, published, canceled, stage,
			conference_link, conference_code,
			venue_name, venue_street, venue_city, venue_zip_code,
			background, parent_event_id, areas, tags
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		          $16, $17, $18, $19, $20, $21, $22, $23)
		RETURNING created_at, updated_at
	`,
		e.ID, e.Name, e.Slug, e.Description, e.Subline,
		e.StartTime, e.EndTime, e.ParticipationFrom, e.ParticipationUntil,
		e.ParticipantLimit, e.Published, e.Canceled, e.Stage,
		e.ConferenceLink, e.ConferenceCode,
		e.VenueName, e.VenueStreet, e.VenueCity, e.VenueZipCode,
		e.Background, e.ParentEventID, pq.Array(e.Areas), pq.Array(e.Tags),
	).Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			switch pqErr.Constraint {
			case "events_slug_key":
				return ErrSlugTaken
			case "events_pkey":
				return ErrEventExists
			}
		}
		return fmt.Errorf("failed to insert event: %w", err)
	}

	if err = replaceOrganizations(ctx, tx, e.ID, e.ResponsibleOrganizations); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO event_visibilities (event_id, settings) VALUES ($1, $2)`,
		e.ID, settings,
	); err != nil {
		return fmt.Errorf("failed to insert event visibility: %w", err)
	}
	if _, err = tx.ExecContext(ctx,
		`DELETE FROM event_slug_history WHERE old_slug = $1`, e.Slug,
	); err != nil {
		return fmt.Errorf("failed to release reused slug: %w", err)
	}

	return tx.Commit()
}

// Update implements Repository.
func (r *PostgresRepository) Update(ctx context.Context, e *Event) (err error) {
	if err := e.Validate(); err != nil {
		return err
	}
	ctx, end := tracing.StartDBSpan(ctx, "events", tracing.DBOperationUpdate)
	defer func() { end(err) }()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer r.rollback(tx)

	var oldSlug string
	err = tx.QueryRowContext(ctx,
		`SELECT slug FROM events WHERE id = $1 FOR UPDATE`, e.ID,
	).Scan(&oldSlug)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrEventNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock event: %w", err)
	}

	var parent *hierarchy.Window
	if e.ParentEventID != nil {
		if *e.ParentEventID == e.ID {
			return fmt.Errorf("%w: %s cannot be its own parent", hierarchy.ErrCycle, e.ID)
		}
		// UNION (not UNION ALL) terminates on corrupted, cyclic data.
		var isDescendant bool
		err = tx.QueryRowContext(ctx, `
			WITH RECURSIVE descendants(id) AS (
				SELECT id FROM events WHERE parent_event_id = $1
				UNION
				SELECT c.id FROM events c JOIN descendants d ON c.parent_event_id = d.id
			)
			SELECT EXISTS (SELECT 1 FROM descendants WHERE id = $2)
		`, e.ID, *e.ParentEventID).Scan(&isDescendant)
		if err != nil {
			return fmt.Errorf("failed to check event ancestry: %w", err)
		}
		if isDescendant {
			return fmt.Errorf("%w: %s is a descendant of %s", hierarchy.ErrCycle, *e.ParentEventID, e.ID)
		}

		w, err := windowOf(ctx, tx, *e.ParentEventID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrParentNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load parent event: %w", err)
		}
		parent = &w
	}

	children, err := childWindows(ctx, tx, e.ID)
	if err != nil {
		return err
	}
	if err := hierarchy.ValidateTimeWindow(e.Window(), parent, children); err != nil {
		return err
	}

	err = tx.QueryRowContext(ctx, `
		UPDATE events SET
			name = $2, slug = $3, description = $4, subline = $5,
			start_time = $6, end_time = $7, participation_from = $8, participation_until = $9,
			participant_limit = $10, published = $11, canceled = $12, stage = $13,
			conference_link = $14, conference_code = $15,
			venue_name = $16, venue_street = $17, venue_city = $18, venue_zip_code = $19,
			background = $20, parent_event_id = $21, areas = $22, tags = $23,
			updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at
	`,
		e.ID, e.Name, e.Slug, e.Description, e.Subline,
		e.StartTime, e.EndTime, e.ParticipationFrom, e.ParticipationUntil,
		e.ParticipantLimit, e.Published, e.Canceled, e.Stage,
		e.ConferenceLink, e.ConferenceCode,
		e.VenueName, e.VenueStreet, e.VenueCity, e.VenueZipCode,
		e.Background, e.ParentEventID, pq.Array(e.Areas), pq.Array(e.Tags),
	).Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation && pqErr.Constraint == "events_slug_key" {
			return ErrSlugTaken
		}
		return fmt.Errorf("failed to update event: %w", err)
	}

	if oldSlug != e.Slug {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO event_slug_history (old_slug, event_id) VALUES ($1, $2)
			ON CONFLICT (old_slug) DO UPDATE SET event_id = EXCLUDED.event_id, created_at = NOW()
		`, oldSlug, e.ID); err != nil {
			return fmt.Errorf("failed to record slug history: %w", err)
		}
		if _, err = tx.ExecContext(ctx,
			`DELETE FROM event_slug_history WHERE old_slug = $1`, e.Slug,
		); err != nil {
			return fmt.Errorf("failed to release reused slug: %w", err)
		}
	}

	if err = replaceOrganizations(ctx, tx, e.ID, e.ResponsibleOrganizations); err != nil {
		return err
	}
	return tx.Commit()
}

func childWindows(ctx context.Context, tx *sql.Tx, id string) ([]hierarchy.Window, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, start_time, end_time, participation_from, participation_until
		FROM events WHERE parent_event_id = $1
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load child events: %w", err)
	}
	defer rows.Close()

	var windows []hierarchy.Window
	for rows.Next() {
		var w hierarchy.Window
		if err := rows.Scan(&w.EventID, &w.Start, &w.End, &w.ParticipationFrom, &w.ParticipationUntil); err != nil {
			return nil, fmt.Errorf("failed to scan child event: %w", err)
		}
		windows = append(windows, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating child events: %w", err)
	}
	return windows, nil
}

func replaceOrganizations(ctx context.Context, tx *sql.Tx, eventID string, orgIDs []string) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM event_organizations WHERE event_id = $1`, eventID,
	); err != nil {
		return fmt.Errorf("failed to clear event organizations: %w", err)
	}
	if len(orgIDs) == 0 {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO event_organizations (event_id, organization_id)
		SELECT $1, unnest($2::uuid[])
		ON CONFLICT DO NOTHING
	`, eventID, pq.Array(orgIDs)); err != nil {
		return fmt.Errorf("failed to link event organizations: %w", err)
	}
	return nil
}

// ChildIDs implements hierarchy.ChildLister.
func (r *PostgresRepository) ChildIDs(ctx context.Context, eventID string) (ids []string, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "events", tracing.DBOperationQuery)
	defer func() { end(err) }()

	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM events WHERE parent_event_id = $1 ORDER BY start_time, id`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list child events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan child event id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating child events: %w", err)
	}
	return ids, nil
}

// SetPublished implements hierarchy.Store. All ids are updated in one
// statement; if any id does not exist the transaction is rolled back and
// ErrPartialUpdate is returned. ids must be distinct.
func (r *PostgresRepository) SetPublished(ctx context.Context, ids []string, published bool) (err error) {
	ctx, end := tracing.StartDBSpan(ctx, "events", tracing.DBOperationUpdate)
	defer func() { end(err) }()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer r.rollback(tx)

	res, err := tx.ExecContext(ctx, `
		UPDATE events SET published = $1, updated_at = NOW()
		WHERE id = ANY($2::uuid[])
	`, published, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to update events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n != int64(len(ids)) {
		return fmt.Errorf("%w: updated %d of %d events", ErrPartialUpdate, n, len(ids))
	}
	return tx.Commit()
}

// SetCanceled implements hierarchy.Store.
func (r *PostgresRepository) SetCanceled(ctx context.Context, id string, canceled bool) (err error) {
	ctx, end := tracing.StartDBSpan(ctx, "events", tracing.DBOperationUpdate)
	defer func() { end(err) }()

	res, err := r.db.ExecContext(ctx,
		`UPDATE events SET canceled = $2, updated_at = NOW() WHERE id = $1`, id, canceled)
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	} else if n == 0 {
		return ErrEventNotFound
	}
	return nil
}

// EventIDBySlug implements hierarchy.SlugLookup.
func (r *PostgresRepository) EventIDBySlug(ctx context.Context, slug string) (id string, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "events", tracing.DBOperationQuery)
	defer func() { end(err) }()

	err = r.db.QueryRowContext(ctx, `SELECT id FROM events WHERE slug = $1`, slug).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", hierarchy.ErrSlugNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up event slug: %w", err)
	}
	return id, nil
}

// CurrentSlug implements hierarchy.SlugLookup.
func (r *PostgresRepository) CurrentSlug(ctx context.Context, oldSlug string) (slug string, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "event_slug_history", tracing.DBOperationQuery)
	defer func() { end(err) }()

	err = r.db.QueryRowContext(ctx, `
		SELECT e.slug FROM event_slug_history h
		JOIN events e ON e.id = h.event_id
		WHERE h.old_slug = $1
	`, oldSlug).Scan(&slug)
	if errors.Is(err, sql.ErrNoRows) {
		return "", hierarchy.ErrSlugNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up slug history: %w", err)
	}
	return slug, nil
}

// GetVisibility implements Repository.
func (r *PostgresRepository) GetVisibility(ctx context.Context, eventID string) (v *Visibility, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "event_visibilities", tracing.DBOperationQuery)
	defer func() { end(err) }()

	var raw []byte
	err = r.db.QueryRowContext(ctx,
		`SELECT settings FROM event_visibilities WHERE event_id = $1`, eventID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event visibility: %w", err)
	}

	v = &Visibility{}
	if err = json.Unmarshal(raw, v); err != nil {
		return nil, fmt.Errorf("failed to decode event visibility: %w", err)
	}
	v.EventID = eventID
	return v, nil
}

// UpdateVisibility implements Repository.
func (r *PostgresRepository) UpdateVisibility(ctx context.Context, v *Visibility) (err error) {
	ctx, end := tracing.StartDBSpan(ctx, "event_visibilities", tracing.DBOperationUpdate)
	defer func() { end(err) }()

	settings, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode visibility: %w", err)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE event_visibilities SET settings = $2 WHERE event_id = $1`, v.EventID, settings)
	if err != nil {
		return fmt.Errorf("failed to update event visibility: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	} else if n == 0 {
		return ErrEventNotFound
	}
	return nil
}

// Counts implements Repository.
func (r *PostgresRepository) Counts(ctx context.Context, eventID string) (c Counts, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "event_members", tracing.DBOperationQuery)
	defer func() { end(err) }()

	err = r.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM event_members WHERE event_id = e.id AND role = 'participant'),
			(SELECT COUNT(*) FROM event_members WHERE event_id = e.id AND role = 'waiting_list'),
			(SELECT COUNT(*) FROM events WHERE parent_event_id = e.id),
			(SELECT COUNT(*) FROM event_members WHERE event_id = e.id AND role = 'admin')
		FROM events e WHERE e.id = $1
	`, eventID).Scan(&c.Participants, &c.WaitingList, &c.ChildEvents, &c.Admins)
	if errors.Is(err, sql.ErrNoRows) {
		return Counts{}, ErrEventNotFound
	}
	if err != nil {
		return Counts{}, fmt.Errorf("failed to count event relations: %w", err)
	}
	return c, nil
}

// Relationship implements Repository. Every flag is resolved in SQL, so a
// user without rows gets false for each.
func (r *PostgresRepository) Relationship(ctx context.Context, eventID, userID string) (v eligibility.Viewer, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "event_members", tracing.DBOperationQuery)
	defer func() { end(err) }()

	if userID == "" {
		var exists bool
		if err = r.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM events WHERE id = $1)`, eventID,
		).Scan(&exists); err != nil {
			return v, fmt.Errorf("failed to look up event: %w", err)
		}
		if !exists {
			return v, ErrEventNotFound
		}
		return v, nil
	}

	err = r.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(bool_or(m.role = 'participant'), false),
			COALESCE(bool_or(m.role = 'waiting_list'), false),
			COALESCE(bool_or(m.role = 'team_member'), false),
			COALESCE(bool_or(m.role = 'speaker'), false)
		FROM events e
		LEFT JOIN event_members m ON m.event_id = e.id AND m.profile_id = $2
		WHERE e.id = $1
		GROUP BY e.id
	`, eventID, userID).Scan(&v.IsParticipant, &v.IsOnWaitingList, &v.IsTeamMember, &v.IsSpeaker)
	if errors.Is(err, sql.ErrNoRows) {
		return eligibility.Viewer{}, ErrEventNotFound
	}
	if err != nil {
		return eligibility.Viewer{}, fmt.Errorf("failed to resolve relationship: %w", err)
	}
	return v, nil
}

// IsAdmin implements Repository.
func (r *PostgresRepository) IsAdmin(ctx context.Context, eventID, userID string) (ok bool, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "event_members", tracing.DBOperationQuery)
	defer func() { end(err) }()

	var exists bool
	err = r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM events WHERE id = $1),
		       EXISTS (SELECT 1 FROM event_members
		               WHERE event_id = $1 AND profile_id::text = $2 AND role = 'admin')
	`, eventID, userID).Scan(&exists, &ok)
	if err != nil {
		return false, fmt.Errorf("failed to check event admin: %w", err)
	}
	if !exists {
		return false, ErrEventNotFound
	}
	return ok, nil
}

// AddParticipant implements Repository. Writers for the same event are
// serialized by a transaction-scoped advisory lock, and the participant
// count is taken after the lock is held.
func (r *PostgresRepository) AddParticipant(ctx context.Context, eventID, userID string) (err error) {
	ctx, end := tracing.StartDBSpan(ctx, "event_members", tracing.DBOperationInsert)
	defer func() { end(err) }()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer r.rollback(tx)

	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, eventID); err != nil {
		return fmt.Errorf("failed to lock event: %w", err)
	}

	var limit sql.NullInt64
	var count int
	err = tx.QueryRowContext(ctx, `
		SELECT e.participant_limit,
		       (SELECT COUNT(*) FROM event_members m WHERE m.event_id = e.id AND m.role = 'participant')
		FROM events e WHERE e.id = $1
	`, eventID).Scan(&limit, &count)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrEventNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to count participants: %w", err)
	}
	if limit.Valid && int64(count) >= limit.Int64 {
		return ErrEventFull
	}

	if err = insertMember(ctx, tx, eventID, userID, RoleParticipant); err != nil {
		return err
	}
	return tx.Commit()
}

// AddMember implements Repository.
func (r *PostgresRepository) AddMember(ctx context.Context, eventID, userID string, role Role) (err error) {
	ctx, end := tracing.StartDBSpan(ctx, "event_members", tracing.DBOperationInsert)
	defer func() { end(err) }()

	if !role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer r.rollback(tx)

	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, eventID); err != nil {
		return fmt.Errorf("failed to lock event: %w", err)
	}
	if err = insertMember(ctx, tx, eventID, userID, role); err != nil {
		return err
	}
	return tx.Commit()
}

func insertMember(ctx context.Context, tx *sql.Tx, eventID, userID string, role Role) error {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO event_members (event_id, profile_id, role)
		SELECT id, $2, $3 FROM events WHERE id = $1
		ON CONFLICT DO NOTHING
	`, eventID, userID, string(role))
	if err != nil {
		return fmt.Errorf("failed to insert event member: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM events WHERE id = $1)`, eventID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("failed to look up event: %w", err)
		}
		if !exists {
			return ErrEventNotFound
		}
		return ErrAlreadyMember
	}
	return nil
}

// RemoveMember implements Repository.
func (r *PostgresRepository) RemoveMember(ctx context.Context, eventID, userID string, role Role) (err error) {
	ctx, end := tracing.StartDBSpan(ctx, "event_members", tracing.DBOperationDelete)
	defer func() { end(err) }()

	res, err := r.db.ExecContext(ctx,
		`DELETE FROM event_members WHERE event_id = $1 AND profile_id = $2 AND role = $3`,
		eventID, userID, string(role))
	if err != nil {
		return fmt.Errorf("failed to remove event member: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	} else if n == 0 {
		return ErrNotMember
	}
	return nil
}
