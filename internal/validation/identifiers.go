package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/cesarg777/marketing-ai-engine-sub001/internal/bootstrap"
)

var (
	// ErrInvalidUUID is returned by ValidateUUID.
	ErrInvalidUUID = errors.New("invalid UUID format")
	// ErrBlankOrganizationName is returned when the organization name is empty.
	ErrBlankOrganizationName = errors.New("organization name is required")
	// ErrOrganizationNameTooLong is returned when the name exceeds bootstrap.MaxNameLength.
	ErrOrganizationNameTooLong = errors.New("organization name is too long")
	// ErrInvalidSlug is returned for slugs that are blank or not in normalized form.
	ErrInvalidSlug = errors.New("invalid organization slug")
)

// ValidateUUID checks that value is a canonical UUID. field names the parameter in
// the returned error message.
func ValidateUUID(value, field string) error {
	if len(value) != 36 {
		return fmt.Errorf("%w for %s", ErrInvalidUUID, field)
	}
	if _, err := uuid.Parse(value); err != nil {
		return fmt.Errorf("%w for %s", ErrInvalidUUID, field)
	}
	return nil
}

// OrganizationInput validates the onboarding form and returns the trimmed name and slug.
func OrganizationInput(name, slug string) (string, string, error) {
	name = strings.TrimSpace(name)
	slug = strings.TrimSpace(slug)

	if name == "" {
		return "", "", ErrBlankOrganizationName
	}
	if utf8.RuneCountInString(name) > bootstrap.MaxNameLength {
		return "", "", fmt.Errorf("%w: maximum is %d characters", ErrOrganizationNameTooLong, bootstrap.MaxNameLength)
	}
	if !bootstrap.ValidSlug(slug) {
		return "", "", fmt.Errorf("%w: use lowercase letters, digits and single hyphens", ErrInvalidSlug)
	}
	return name, slug, nil
}
