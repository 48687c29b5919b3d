// Package user provides PostgreSQL-backed storage for user profiles and their
// moderation fields. Profiles are durable: they outlive any connection or room
// and are never deleted by this service.
package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/lib/pq"
)

// DefaultEmailPattern is the institutional domain pattern a profile email
// must match. Enforced at the persistence layer, like the rest of the schema
// constraints.
const DefaultEmailPattern = `@nitc\.ac\.in$`

// ErrInvalidEmail is returned by Create when the email does not match the
// institutional domain pattern.
var ErrInvalidEmail = errors.New("user: email does not match institutional domain")

// User is a stored profile with its moderation state.
type User struct {
	Email          string     `json:"email"`
	Name           string     `json:"name"`
	ProfilePic     string     `json:"profilePic,omitempty"`
	Keywords       []string   `json:"keywords"`
	ReportCount    int        `json:"reportCount"`
	LastReportedAt *time.Time `json:"lastReportedAt,omitempty"`
	BanLevel       int        `json:"banLevel"`
	BanUntil       *time.Time `json:"banUntil,omitempty"`
	SavedSessions  []string   `json:"savedSessions"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// Banned reports whether the user is currently banned.
func (u *User) Banned(now time.Time) bool {
	return u.BanUntil != nil && now.Before(*u.BanUntil)
}

// Store manages user profiles in PostgreSQL.
type Store struct {
	db           *sql.DB
	emailPattern *regexp.Regexp
}

// NewStore creates a user store over the given database handle. emailPattern
// may be empty, in which case DefaultEmailPattern applies.
func NewStore(db *sql.DB, emailPattern string) (*Store, error) {
	if emailPattern == "" {
		emailPattern = DefaultEmailPattern
	}
	re, err := regexp.Compile(emailPattern)
	if err != nil {
		return nil, fmt.Errorf("user: invalid email pattern: %w", err)
	}
	return &Store{db: db, emailPattern: re}, nil
}

// Create inserts a new profile. The email must match the institutional
// domain pattern; violations fail here, before the insert.
func (s *Store) Create(ctx context.Context, u *User) error {
	if !s.emailPattern.MatchString(u.Email) {
		return fmt.Errorf("%w: %q", ErrInvalidEmail, u.Email)
	}

	const query = `
		INSERT INTO users (email, name, profile_pic, keywords)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`

	err := s.db.QueryRowContext(ctx, query,
		u.Email,
		u.Name,
		u.ProfilePic,
		pq.Array(u.Keywords),
	).Scan(&u.CreatedAt)
	if err != nil {
		return fmt.Errorf("user: insert %s: %w", u.Email, err)
	}

	if u.Keywords == nil {
		u.Keywords = []string{}
	}
	u.SavedSessions = []string{}
	return nil
}

// GetByEmail retrieves a profile. Returns nil if no profile exists.
func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	const query = `
		SELECT email, name, profile_pic, keywords,
		       report_count, last_reported_at, ban_level, ban_until,
		       saved_sessions, created_at
		FROM users
		WHERE email = $1`

	u := &User{}
	err := s.db.QueryRowContext(ctx, query, email).Scan(
		&u.Email,
		&u.Name,
		&u.ProfilePic,
		pq.Array(&u.Keywords),
		&u.ReportCount,
		&u.LastReportedAt,
		&u.BanLevel,
		&u.BanUntil,
		pq.Array(&u.SavedSessions),
		&u.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("user: get %s: %w", email, err)
	}
	return u, nil
}

// UpdateModeration persists the moderation fields for a profile.
func (s *Store) UpdateModeration(ctx context.Context, u *User) error {
	const query = `
		UPDATE users
		SET report_count = $2, last_reported_at = $3, ban_level = $4, ban_until = $5
		WHERE email = $1`

	res, err := s.db.ExecContext(ctx, query,
		u.Email,
		u.ReportCount,
		u.LastReportedAt,
		u.BanLevel,
		u.BanUntil,
	)
	if err != nil {
		return fmt.Errorf("user: update moderation %s: %w", u.Email, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("user: update moderation %s: no such profile", u.Email)
	}
	return nil
}
