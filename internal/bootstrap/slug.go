// Package bootstrap implements first-run onboarding: deriving an organization slug
// from its display name and submitting the create-organization request.
package bootstrap

import (
	"regexp"
	"strings"
)

// MaxSlugLength and MaxNameLength are the storage limits of an organization.
const (
	MaxSlugLength = 100
	MaxNameLength = 200
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// DeriveSlug turns a display name into a URL-safe slug: lowercase, every run of
// characters outside [a-z0-9] collapsed to one hyphen, no leading or trailing hyphen.
// Letters outside ASCII count as separators, so "Édge" becomes "dge".
// The result is truncated to MaxSlugLength.
func DeriveSlug(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	pendingHyphen := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}

	slug := b.String()
	if len(slug) > MaxSlugLength {
		slug = strings.TrimRight(slug[:MaxSlugLength], "-")
	}
	return slug
}

// ValidSlug reports whether slug is already in normalized form.
func ValidSlug(slug string) bool {
	return len(slug) <= MaxSlugLength && slugPattern.MatchString(slug)
}
