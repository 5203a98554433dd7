package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func newProfileRepo(t *testing.T) (*UserProfileRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewUserProfileRepository(sqlx.NewDb(db, "sqlmock")), mock
}

var profileCols = []string{"id", "org_id", "email", "full_name", "role", "avatar_url", "created_at"}

var membershipCols = []string{
	"profile_id", "email", "full_name", "role", "avatar_url", "profile_created_at",
	"org_id", "org_name", "org_slug", "org_logo_url", "org_is_active", "org_created_at", "org_updated_at",
}

func TestProfileGetByID_Found(t *testing.T) {
	repo, mock := newProfileRepo(t)
	mock.ExpectQuery("SELECT .* FROM user_profiles").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(profileCols).
			AddRow("user-1", "org-1", "a@example.com", "", "owner", "", time.Now()))

	p, err := repo.GetByID(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil || p.OrgID != "org-1" || p.Role != "owner" {
		t.Errorf("profile = %+v", p)
	}
}

func TestProfileGetByID_NotFound(t *testing.T) {
	repo, mock := newProfileRepo(t)
	mock.ExpectQuery("SELECT .* FROM user_profiles").
		WithArgs("user-2").
		WillReturnRows(sqlmock.NewRows(profileCols))

	p, err := repo.GetByID(context.Background(), "user-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != nil {
		t.Errorf("expected nil profile, got %+v", p)
	}
}

func TestGetMembership_Found(t *testing.T) {
	repo, mock := newProfileRepo(t)
	now := time.Now()
	mock.ExpectQuery("FROM user_profiles p\\s+JOIN organizations o").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(membershipCols).AddRow(
			"user-1", "a@example.com", "Ana", "admin", "", now,
			"org-1", "Acme", "acme", "/api/files/logo.png", true, now, now,
		))

	m, err := repo.GetMembership(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m == nil {
		t.Fatal("expected membership")
	}
	if m.Profile.Role != "admin" || m.Profile.OrgID != "org-1" {
		t.Errorf("profile = %+v", m.Profile)
	}
	if m.Organization.Slug != "acme" || m.Organization.LogoURL != "/api/files/logo.png" {
		t.Errorf("organization = %+v", m.Organization)
	}
}

func TestGetMembership_NotOnboarded(t *testing.T) {
	repo, mock := newProfileRepo(t)
	mock.ExpectQuery("FROM user_profiles p").
		WillReturnRows(sqlmock.NewRows(membershipCols))

	m, err := repo.GetMembership(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m != nil {
		t.Errorf("expected nil membership, got %+v", m)
	}
}

func TestGetMembership_DBError(t *testing.T) {
	repo, mock := newProfileRepo(t)
	dbErr := errors.New("boom")
	mock.ExpectQuery("FROM user_profiles p").WillReturnError(dbErr)

	if _, err := repo.GetMembership(context.Background(), "user-1"); !errors.Is(err, dbErr) {
		t.Errorf("err = %v, want wrapped boom", err)
	}
}
