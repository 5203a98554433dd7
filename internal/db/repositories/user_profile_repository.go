// user_profile_repository.go implements UserProfileRepository, which resolves the
// organization membership of an authenticated identity.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cesarg777/marketing-ai-engine-sub001/internal/db/models"
)

// UserProfileRepository handles database operations for user profiles
type UserProfileRepository struct {
	db *sqlx.DB
}

// NewUserProfileRepository creates a new user profile repository
func NewUserProfileRepository(db *sqlx.DB) *UserProfileRepository {
	return &UserProfileRepository{db: db}
}

// GetByID retrieves the profile of identity id, or nil when the user has not onboarded.
func (r *UserProfileRepository) GetByID(ctx context.Context, id string) (*models.UserProfile, error) {
	var profile models.UserProfile
	query := `
		SELECT id, org_id, email, full_name, role, avatar_url, created_at
		FROM user_profiles
		WHERE id = $1`
	if err := r.db.GetContext(ctx, &profile, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user profile: %w", err)
	}
	return &profile, nil
}

// membershipRow is the flat result of the profile/organization join.
type membershipRow struct {
	ProfileID      string    `db:"profile_id"`
	Email          string    `db:"email"`
	FullName       string    `db:"full_name"`
	Role           string    `db:"role"`
	AvatarURL      string    `db:"avatar_url"`
	ProfileCreated time.Time `db:"profile_created_at"`
	OrgID          string    `db:"org_id"`
	OrgName        string    `db:"org_name"`
	OrgSlug        string    `db:"org_slug"`
	OrgLogoURL     string    `db:"org_logo_url"`
	OrgActive      bool      `db:"org_is_active"`
	OrgCreated     time.Time `db:"org_created_at"`
	OrgUpdated     time.Time `db:"org_updated_at"`
}

// GetMembership returns the profile of identity id joined with its organization,
// or nil when the user has not onboarded.
func (r *UserProfileRepository) GetMembership(ctx context.Context, id string) (*models.Membership, error) {
	var row membershipRow
	query := `
		SELECT p.id AS profile_id, p.email, p.full_name, p.role, p.avatar_url,
		       p.created_at AS profile_created_at,
		       o.id AS org_id, o.name AS org_name, o.slug AS org_slug,
		       o.logo_url AS org_logo_url, o.is_active AS org_is_active,
		       o.created_at AS org_created_at, o.updated_at AS org_updated_at
		FROM user_profiles p
		JOIN organizations o ON o.id = p.org_id
		WHERE p.id = $1`
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}

	return &models.Membership{
		Profile: models.UserProfile{
			ID:        row.ProfileID,
			OrgID:     row.OrgID,
			Email:     row.Email,
			FullName:  row.FullName,
			Role:      row.Role,
			AvatarURL: row.AvatarURL,
			CreatedAt: row.ProfileCreated,
		},
		Organization: models.Organization{
			ID:        row.OrgID,
			Name:      row.OrgName,
			Slug:      row.OrgSlug,
			LogoURL:   row.OrgLogoURL,
			IsActive:  row.OrgActive,
			CreatedAt: row.OrgCreated,
			UpdatedAt: row.OrgUpdated,
		},
	}, nil
}
