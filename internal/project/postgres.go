package project

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

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a PostgresRepository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create implements Repository.
func (r *PostgresRepository) Create(ctx context.Context, p *Project) (err error) {
	if err := validateProject(p); err != nil {
		return err
	}
	ctx, end := tracing.StartDBSpan(ctx, "projects", tracing.DBOperationInsert)
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
		INSERT INTO projects (
			id, name, slug, email, website, description, logo, background,
			areas, tags, team_members, published
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`,
		p.ID, p.Name, p.Slug, p.Email, p.Website, p.Description, p.Logo, p.Background,
		pq.Array(p.Areas), pq.Array(p.Tags), pq.Array(p.TeamMembers), p.Published,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			switch pqErr.Constraint {
			case "projects_slug_key":
				return ErrSlugTaken
			case "projects_pkey":
				return ErrProjectExists
			}
		}
		return fmt.Errorf("failed to insert project: %w", err)
	}

	if len(p.ResponsibleOrganizations) > 0 {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO project_organizations (project_id, organization_id)
			SELECT $1, unnest($2::uuid[])
		`, p.ID, pq.Array(p.ResponsibleOrganizations)); err != nil {
			return fmt.Errorf("failed to link project organizations: %w", err)
		}
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO project_visibilities (project_id, settings) VALUES ($1, $2)`,
		p.ID, settings,
	); err != nil {
		return fmt.Errorf("failed to insert project visibility: %w", err)
	}

	return tx.Commit()
}

// GetBySlug implements Repository.
func (r *PostgresRepository) GetBySlug(ctx context.Context, slug string) (p *Project, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "projects", tracing.DBOperationQuery)
	defer func() { end(err) }()

	p = &Project{}
	err = r.db.QueryRowContext(ctx, `
		SELECT p.id, p.name, p.slug, p.email, p.website, p.description, p.logo, p.background,
		       p.areas, p.tags, p.team_members,
		       ARRAY(SELECT o.organization_id::text FROM project_organizations o
		             WHERE o.project_id = p.id ORDER BY o.organization_id),
		       p.published, p.created_at, p.updated_at
		FROM projects p
		WHERE p.slug = $1
	`, slug).Scan(
		&p.ID, &p.Name, &p.Slug, &p.Email, &p.Website, &p.Description, &p.Logo, &p.Background,
		pq.Array(&p.Areas), pq.Array(&p.Tags), pq.Array(&p.TeamMembers),
		pq.Array(&p.ResponsibleOrganizations),
		&p.Published, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

// GetVisibility implements Repository.
func (r *PostgresRepository) GetVisibility(ctx context.Context, projectID string) (v *Visibility, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "project_visibilities", tracing.DBOperationQuery)
	defer func() { end(err) }()

	var raw []byte
	err = r.db.QueryRowContext(ctx,
		`SELECT settings FROM project_visibilities WHERE project_id = $1`, projectID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project visibility: %w", err)
	}

	v = &Visibility{}
	if err = json.Unmarshal(raw, v); err != nil {
		return nil, fmt.Errorf("failed to decode project visibility: %w", err)
	}
	v.ProjectID = projectID
	return v, nil
}

// UpdateVisibility implements Repository.
func (r *PostgresRepository) UpdateVisibility(ctx context.Context, v *Visibility) (err error) {
	ctx, end := tracing.StartDBSpan(ctx, "project_visibilities", tracing.DBOperationUpdate)
	defer func() { end(err) }()

	settings, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode visibility: %w", err)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE project_visibilities SET settings = $2 WHERE project_id = $1`,
		v.ProjectID, settings,
	)
	if err != nil {
		return fmt.Errorf("failed to update project visibility: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	} else if n == 0 {
		return ErrProjectNotFound
	}
	return nil
}
