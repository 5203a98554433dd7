// organization_repository.go implements OrganizationRepository: organization lookups,
// the transactional organization + owner creation used by onboarding, and logo updates.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/cesarg777/marketing-ai-engine-sub001/internal/db/models"
)

// OrganizationRepository handles database operations for organizations
type OrganizationRepository struct {
	db *sql.DB
}

// NewOrganizationRepository creates a new organization repository
func NewOrganizationRepository(db *sql.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

const orgColumns = `id, name, slug, logo_url, is_active, created_at, updated_at`

func scanOrganization(row *sql.Row) (*models.Organization, error) {
	org := &models.Organization{}
	err := row.Scan(
		&org.ID,
		&org.Name,
		&org.Slug,
		&org.LogoURL,
		&org.IsActive,
		&org.CreatedAt,
		&org.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

// GetByID retrieves an organization by ID
func (r *OrganizationRepository) GetByID(ctx context.Context, id string) (*models.Organization, error) {
	query := `SELECT ` + orgColumns + ` FROM organizations WHERE id = $1`
	return scanOrganization(r.db.QueryRowContext(ctx, query, id))
}

// SlugExists reports whether an organization already uses slug.
func (r *OrganizationRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM organizations WHERE slug = $1)`, slug,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check organization slug: %w", err)
	}
	return exists, nil
}

// CreateWithOwner inserts org and owner in one transaction. owner.OrgID and
// owner.Role are set here. Unique violations are reported as ErrSlugTaken or
// ErrAlreadyOnboarded so concurrent onboarding attempts resolve cleanly.
func (r *OrganizationRepository) CreateWithOwner(ctx context.Context, org *models.Organization, owner *models.UserProfile) error {
	if org.ID == "" {
		org.ID = uuid.NewString()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck

	err = tx.QueryRowContext(ctx, `
		INSERT INTO organizations (id, name, slug)
		VALUES ($1, $2, $3)
		RETURNING logo_url, is_active, created_at, updated_at`,
		org.ID, org.Name, org.Slug,
	).Scan(&org.LogoURL, &org.IsActive, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return mapCreateError("organization", err)
	}

	owner.OrgID = org.ID
	owner.Role = models.RoleOwner
	err = tx.QueryRowContext(ctx, `
		INSERT INTO user_profiles (id, org_id, email, role)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		owner.ID, owner.OrgID, owner.Email, owner.Role,
	).Scan(&owner.CreatedAt)
	if err != nil {
		return mapCreateError("owner profile", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit organization: %w", err)
	}
	return nil
}

func mapCreateError(what string, err error) error {
	if constraint, ok := uniqueViolation(err); ok {
		switch constraint {
		case constraintOrgSlug:
			return ErrSlugTaken
		case constraintProfileUser:
			return ErrAlreadyOnboarded
		}
	}
	return fmt.Errorf("failed to create %s: %w", what, err)
}

// UpdateLogoURL sets the logo of organization id.
func (r *OrganizationRepository) UpdateLogoURL(ctx context.Context, id, logoURL string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE organizations SET logo_url = $1, updated_at = NOW() WHERE id = $2`,
		logoURL, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update organization logo: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update organization logo: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
