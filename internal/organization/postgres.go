package organization

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

const uniqueViolation = "23505"

// PostgresRepository implements Repository using PostgreSQL. Team members
// and projects are read from their join tables.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a PostgresRepository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectOrganization = `
	SELECT o.id, o.name, o.slug, o.email, o.phone, o.website, o.description,
	       o.logo, o.background, o.areas, o.tags,
	       ARRAY(SELECT m.profile_id::text FROM organization_team_members m
	             WHERE m.organization_id = o.id ORDER BY m.created_at),
	       ARRAY(SELECT p.project_id::text FROM project_organizations p
	             WHERE p.organization_id = o.id ORDER BY p.project_id),
	       o.created_at, o.updated_at
	FROM organizations o
`

// Create implements Repository.
func (r *PostgresRepository) Create(ctx context.Context, o *Organization) (err error) {
	if err := validateOrganization(o); err != nil {
		return err
	}
	ctx, end := tracing.StartDBSpan(ctx, "organizations", tracing.DBOperationInsert)
	defer func() { end(err) }()

	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	settings, err := json.Marshal(NewVisibility(o.ID))
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
		INSERT INTO organizations (
			id, name, slug, email, phone, website, description, logo, background, areas, tags
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`,
		o.ID, o.Name, o.Slug, o.Email, o.Phone, o.Website, o.Description,
		o.Logo, o.Background, pq.Array(o.Areas), pq.Array(o.Tags),
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			switch pqErr.Constraint {
			case "organizations_slug_key":
				return ErrSlugTaken
			case "organizations_pkey":
				return ErrOrganizationExists
			}
		}
		return fmt.Errorf("failed to insert organization: %w", err)
	}

	if len(o.TeamMembers) > 0 {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO organization_team_members (organization_id, profile_id)
			SELECT $1, unnest($2::uuid[])
		`, o.ID, pq.Array(o.TeamMembers)); err != nil {
			return fmt.Errorf("failed to insert organization team: %w", err)
		}
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO organization_visibilities (organization_id, settings) VALUES ($1, $2)`,
		o.ID, settings,
	); err != nil {
		return fmt.Errorf("failed to insert organization visibility: %w", err)
	}

	return tx.Commit()
}

// GetByID implements Repository.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Organization, error) {
	return r.get(ctx, selectOrganization+`WHERE o.id = $1`, id)
}

// GetBySlug implements Repository.
func (r *PostgresRepository) GetBySlug(ctx context.Context, slug string) (*Organization, error) {
	return r.get(ctx, selectOrganization+`WHERE o.slug = $1`, slug)
}

func (r *PostgresRepository) get(ctx context.Context, query, arg string) (o *Organization, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "organizations", tracing.DBOperationQuery)
	defer func() { end(err) }()

	o = &Organization{}
	err = r.db.QueryRowContext(ctx, query, arg).Scan(
		&o.ID, &o.Name, &o.Slug, &o.Email, &o.Phone, &o.Website, &o.Description,
		&o.Logo, &o.Background, pq.Array(&o.Areas), pq.Array(&o.Tags),
		pq.Array(&o.TeamMembers), pq.Array(&o.Projects),
		&o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrganizationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return o, nil
}

// GetVisibility implements Repository.
func (r *PostgresRepository) GetVisibility(ctx context.Context, organizationID string) (v *Visibility, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "organization_visibilities", tracing.DBOperationQuery)
	defer func() { end(err) }()

	var raw []byte
	err = r.db.QueryRowContext(ctx,
		`SELECT settings FROM organization_visibilities WHERE organization_id = $1`, organizationID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrganizationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization visibility: %w", err)
	}

	v = &Visibility{}
	if err = json.Unmarshal(raw, v); err != nil {
		return nil, fmt.Errorf("failed to decode organization visibility: %w", err)
	}
	v.OrganizationID = organizationID
	return v, nil
}

// UpdateVisibility implements Repository.
func (r *PostgresRepository) UpdateVisibility(ctx context.Context, v *Visibility) (err error) {
	ctx, end := tracing.StartDBSpan(ctx, "organization_visibilities", tracing.DBOperationUpdate)
	defer func() { end(err) }()

	settings, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode visibility: %w", err)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE organization_visibilities SET settings = $2 WHERE organization_id = $1`,
		v.OrganizationID, settings,
	)
	if err != nil {
		return fmt.Errorf("failed to update organization visibility: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	} else if n == 0 {
		return ErrOrganizationNotFound
	}
	return nil
}
