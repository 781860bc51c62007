package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/onnwee/commons/internal/tracing"
)

// uniqueViolation is the Postgres error code for unique constraint violations.
const uniqueViolation = "23505"

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a PostgresRepository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectProfile = `
	SELECT id, username, email, first_name, last_name, bio, phone, website,
	       avatar, background, areas, memberships, score, terms_accepted,
	       created_at, updated_at
	FROM profiles
`

// Create implements Repository. The profile and its settings row are
// inserted in one transaction.
func (r *PostgresRepository) Create(ctx context.Context, p *Profile) (err error) {
	if err := validateProfile(p); err != nil {
		return err
	}
	ctx, end := tracing.StartDBSpan(ctx, "profiles", tracing.DBOperationInsert)
	defer func() { end(err) }()

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	settings, err := json.Marshal(NewVisibility(p.ID))
	if err != nil {
		return fmt.Errorf("failed to encode visibility: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			err = errors.Join(err, fmt.Errorf("failed to rollback: %w", rbErr))
		}
	}()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO profiles (
			id, username, email, first_name, last_name, bio, phone, website,
			avatar, background, areas, memberships, score, terms_accepted
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at
	`,
		p.ID, p.Username, p.Email, p.FirstName, p.LastName, p.Bio, p.Phone, p.Website,
		p.Avatar, p.Background, pq.Array(p.Areas), pq.Array(p.Memberships), p.Score, p.TermsAccepted,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			switch pqErr.Constraint {
			case "profiles_username_key":
				return ErrUsernameTaken
			case "profiles_pkey":
				return ErrProfileExists
			}
		}
		return fmt.Errorf("failed to insert profile: %w", err)
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO profile_visibilities (profile_id, settings) VALUES ($1, $2)`,
		p.ID, settings,
	); err != nil {
		return fmt.Errorf("failed to insert profile visibility: %w", err)
	}

	return tx.Commit()
}

// GetByID implements Repository.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Profile, error) {
	return r.get(ctx, selectProfile+`WHERE id = $1`, id)
}

// GetByUsername implements Repository.
func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*Profile, error) {
	return r.get(ctx, selectProfile+`WHERE username = $1`, username)
}

func (r *PostgresRepository) get(ctx context.Context, query string, arg string) (p *Profile, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "profiles", tracing.DBOperationQuery)
	defer func() { end(err) }()

	p = &Profile{}
	err = r.db.QueryRowContext(ctx, query, arg).Scan(
		&p.ID, &p.Username, &p.Email, &p.FirstName, &p.LastName, &p.Bio, &p.Phone, &p.Website,
		&p.Avatar, &p.Background, pq.Array(&p.Areas), pq.Array(&p.Memberships), &p.Score, &p.TermsAccepted,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// GetVisibility implements Repository.
func (r *PostgresRepository) GetVisibility(ctx context.Context, profileID string) (v *Visibility, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "profile_visibilities", tracing.DBOperationQuery)
	defer func() { end(err) }()

	var raw []byte
	err = r.db.QueryRowContext(ctx,
		`SELECT settings FROM profile_visibilities WHERE profile_id = $1`, profileID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile visibility: %w", err)
	}

	// Flags missing from the stored document decode as private.
	v = &Visibility{}
	if err = json.Unmarshal(raw, v); err != nil {
		return nil, fmt.Errorf("failed to decode profile visibility: %w", err)
	}
	v.ProfileID = profileID
	return v, nil
}

// UpdateVisibility implements Repository.
func (r *PostgresRepository) UpdateVisibility(ctx context.Context, v *Visibility) (err error) {
	ctx, end := tracing.StartDBSpan(ctx, "profile_visibilities", tracing.DBOperationUpdate)
	defer func() { end(err) }()

	settings, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode visibility: %w", err)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE profile_visibilities SET settings = $2 WHERE profile_id = $1`,
		v.ProfileID, settings,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile visibility: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrProfileNotFound
	}
	return nil
}
