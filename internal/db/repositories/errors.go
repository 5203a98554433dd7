package repositories

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrSlugTaken is returned when an organization slug is already in use.
	ErrSlugTaken = errors.New("organization slug is already taken")
	// ErrAlreadyOnboarded is returned when the user already has a profile.
	ErrAlreadyOnboarded = errors.New("user already belongs to an organization")
	// ErrNotFound is returned by updates that matched no row.
	ErrNotFound = errors.New("record not found")
)

const (
	pqUniqueViolation = "23505"

	constraintOrgSlug     = "organizations_slug_key"
	constraintProfileUser = "user_profiles_pkey"
)

// uniqueViolation returns the violated constraint name when err is a PostgreSQL
// unique violation.
func uniqueViolation(err error) (constraint string, ok bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return pqErr.Constraint, true
	}
	return "", false
}
