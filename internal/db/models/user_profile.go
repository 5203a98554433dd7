package models

import "time"

// Roles a user may hold inside an organization.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// UserProfile links an authenticated identity to its organization. ID is the
// identity provider's subject; a user belongs to at most one organization.
type UserProfile struct {
	ID        string    `db:"id"`
	OrgID     string    `db:"org_id"`
	Email     string    `db:"email"`
	FullName  string    `db:"full_name"`
	Role      string    `db:"role"`
	AvatarURL string    `db:"avatar_url"`
	CreatedAt time.Time `db:"created_at"`
}

// CanManageOrganization reports whether the profile may change organization settings
// such as the logo.
func (p *UserProfile) CanManageOrganization() bool {
	return p.Role == RoleOwner || p.Role == RoleAdmin
}

// Membership is a profile joined with its organization.
type Membership struct {
	Profile      UserProfile
	Organization Organization
}
