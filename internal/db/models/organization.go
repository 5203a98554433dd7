// Package models holds the persisted entities of the marketing engine.
package models

import "time"

// Organization is a tenant. Slug is unique and URL-safe.
type Organization struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Slug      string    `db:"slug" json:"slug"`
	LogoURL   string    `db:"logo_url" json:"logo_url"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
