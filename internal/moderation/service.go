// Package moderation implements the durable report counter and escalating ban
// policy. Reports mutate the reported user's profile; bans are enforced by
// rejecting further reports and kicking the parties' live connections.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/campusmeet/meet-app/internal/metrics"
	"github.com/campusmeet/meet-app/internal/user"
)

// Sentinel outcomes surfaced to the HTTP layer.
var (
	// ErrNotFound means the reporter or the reported identity has no profile.
	ErrNotFound = errors.New("moderation: user not found")

	// ErrAlreadyBanned means the reported user is inside an active ban
	// window; no counters are mutated.
	ErrAlreadyBanned = errors.New("moderation: user is currently banned")
)

// Escalation table: cumulative report count to ban level and duration.
// Counts never decay; levels only grow.
const (
	BanLevel5Min  = 1
	BanLevel1Hour = 2
	BanLevel1Day  = 3
	BanLevelPerm  = 4

	PermBanDuration = 365 * 24 * time.Hour
)

// escalation returns the ban level and duration for a cumulative report count.
// A duration of zero means no ban is applied at this count.
func escalation(count int) (level int, duration time.Duration) {
	switch {
	case count <= 1:
		return 0, 0
	case count == 2:
		return BanLevel5Min, 5 * time.Minute
	case count == 3:
		return BanLevel1Hour, 1 * time.Hour
	case count == 4:
		return BanLevel1Day, 24 * time.Hour
	default:
		return BanLevelPerm, PermBanDuration
	}
}

// ProfileStore is the slice of the user store the moderation service needs.
type ProfileStore interface {
	GetByEmail(ctx context.Context, email string) (*user.User, error)
	UpdateModeration(ctx context.Context, u *user.User) error
}

// Presence resolves a user identity to its live connection id, or "" when
// the user is offline.
type Presence interface {
	Lookup(ctx context.Context, email string) (string, error)
}

// Kicker force-disconnects live connections, wherever they are hosted.
type Kicker interface {
	Kick(ctx context.Context, connIDs []string) error
}

// Service applies the report/ban policy. Reports against the same user are
// serialized by a per-identity mutex; reports against different users proceed
// concurrently. Persistence never happens under any room-table lock.
type Service struct {
	users    ProfileStore
	presence Presence // may be nil
	kicker   Kicker   // may be nil

	now func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex // reported email -> serialization lock
}

// NewService creates a moderation service. presence and kicker are optional;
// without them reports are still recorded but no live connection is kicked.
func NewService(users ProfileStore, presence Presence, kicker Kicker) *Service {
	return &Service{
		users:    users,
		presence: presence,
		kicker:   kicker,
		now:      time.Now,
		locks:    make(map[string]*sync.Mutex),
	}
}

// Report records a report by reporterEmail against reportedEmail and applies
// the escalation policy. On success it returns the updated reported profile.
//
// Fails with ErrNotFound if either profile is missing and with
// ErrAlreadyBanned (leaving all counters untouched) while the reported user
// is inside an active ban window. Persistence failures are returned as-is;
// the caller retries.
func (s *Service) Report(ctx context.Context, reporterEmail, reportedEmail string) (*user.User, error) {
	lock := s.userLock(reportedEmail)
	lock.Lock()
	defer lock.Unlock()

	reporter, err := s.users.GetByEmail(ctx, reporterEmail)
	if err != nil {
		metrics.ReportsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	reported, err := s.users.GetByEmail(ctx, reportedEmail)
	if err != nil {
		metrics.ReportsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if reporter == nil || reported == nil {
		metrics.ReportsTotal.WithLabelValues("not_found").Inc()
		return nil, ErrNotFound
	}

	now := s.now()
	if reported.Banned(now) {
		metrics.ReportsTotal.WithLabelValues("already_banned").Inc()
		return nil, ErrAlreadyBanned
	}

	reported.ReportCount++
	reported.LastReportedAt = &now

	level, duration := escalation(reported.ReportCount)
	if level > reported.BanLevel {
		reported.BanLevel = level
	}
	if duration > 0 {
		until := now.Add(duration)
		reported.BanUntil = &until
	}

	if err := s.users.UpdateModeration(ctx, reported); err != nil {
		metrics.ReportsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("moderation: persist report against %s: %w", reportedEmail, err)
	}

	outcome := "recorded"
	if duration > 0 {
		outcome = "banned"
	}
	metrics.ReportsTotal.WithLabelValues(outcome).Inc()
	log.Printf("moderation: report %s -> %s count=%d level=%d",
		reporterEmail, reportedEmail, reported.ReportCount, reported.BanLevel)

	// Best-effort: tear down any live session of either party. Stale or
	// missing connection ids are expected when a user is offline.
	s.kickParties(ctx, reporterEmail, reportedEmail)

	return reported, nil
}

// kickParties resolves both identities to live connections and asks the
// kicker to force-disconnect them. All failures are logged and swallowed.
func (s *Service) kickParties(ctx context.Context, emails ...string) {
	if s.presence == nil || s.kicker == nil {
		return
	}

	var connIDs []string
	for _, email := range emails {
		connID, err := s.presence.Lookup(ctx, email)
		if err != nil {
			log.Printf("moderation: presence lookup %s: %v", email, err)
			continue
		}
		if connID != "" {
			connIDs = append(connIDs, connID)
		}
	}
	if len(connIDs) == 0 {
		return
	}

	if err := s.kicker.Kick(ctx, connIDs); err != nil {
		log.Printf("moderation: kick %v: %v", connIDs, err)
	}
}

// userLock returns the serialization lock for a reported identity.
func (s *Service) userLock(email string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[email]
	if !ok {
		l = &sync.Mutex{}
		s.locks[email] = l
	}
	return l
}
