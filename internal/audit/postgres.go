package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/onnwee/commons/internal/tracing"
)

// chainLockKey serializes appends so that two writers never link to the
// same predecessor.
const chainLockKey = 0x61756469

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewPostgresRepository creates a PostgresRepository. A nil logger falls
// back to slog.Default().
func NewPostgresRepository(db *sql.DB, logger *slog.Logger) *PostgresRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRepository{db: db, logger: logger, now: time.Now}
}

const selectLog = `
	SELECT id, user_id, entity_type, entity_id, action, outcome, created_at,
	       request_id, ip_address, user_agent, previous_hash
	FROM audit_logs
`

func scanLog(row interface{ Scan(...any) error }) (*Log, error) {
	l := &Log{}
	err := row.Scan(&l.ID, &l.UserID, &l.EntityType, &l.EntityID, &l.Action, &l.Outcome,
		&l.CreatedAt, &l.RequestID, &l.IPAddress, &l.UserAgent, &l.PreviousHash)
	if err != nil {
		return nil, err
	}
	l.CreatedAt = l.CreatedAt.UTC()
	return l, nil
}

// Append implements Repository.
func (r *PostgresRepository) Append(ctx context.Context, entry Entry) (l *Log, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "audit_logs", tracing.DBOperationInsert)
	defer func() { end(err) }()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			r.logger.Warn("failed to rollback transaction", slog.String("error", rbErr.Error()))
		}
	}()

	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, chainLockKey); err != nil {
		return nil, fmt.Errorf("failed to lock audit chain: %w", err)
	}

	l = newLog(entry, r.now())
	last, err := scanLog(tx.QueryRowContext(ctx, selectLog+`ORDER BY seq DESC LIMIT 1`))
	switch {
	case err == nil:
		l.PreviousHash = last.Hash()
	case errors.Is(err, sql.ErrNoRows):
	default:
		return nil, fmt.Errorf("failed to read last audit log: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_logs (id, user_id, entity_type, entity_id, action, outcome, created_at,
		                        request_id, ip_address, user_agent, previous_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		l.ID, l.UserID, l.EntityType, l.EntityID, l.Action, l.Outcome, l.CreatedAt,
		l.RequestID, l.IPAddress, l.UserAgent, l.PreviousHash)
	if err != nil {
		return nil, fmt.Errorf("failed to insert audit log: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit audit log: %w", err)
	}
	return l, nil
}

// QueryByEntity implements Repository.
func (r *PostgresRepository) QueryByEntity(ctx context.Context, entityType, entityID string, limit int) ([]*Log, error) {
	return r.query(ctx, `WHERE entity_type = $1 AND entity_id = $2 ORDER BY seq DESC`, limit, entityType, entityID)
}

// QueryByUser implements Repository.
func (r *PostgresRepository) QueryByUser(ctx context.Context, userID string, limit int) ([]*Log, error) {
	return r.query(ctx, `WHERE user_id = $1 ORDER BY seq DESC`, limit, userID)
}

// Verify implements Repository.
func (r *PostgresRepository) Verify(ctx context.Context) error {
	logs, err := r.query(ctx, `ORDER BY seq`, 0)
	if err != nil {
		return err
	}
	return VerifyChain(logs)
}

func (r *PostgresRepository) query(ctx context.Context, clause string, limit int, args ...any) (logs []*Log, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "audit_logs", tracing.DBOperationQuery)
	defer func() { end(err) }()

	query := selectLog + clause
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	logs = []*Log{}
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
