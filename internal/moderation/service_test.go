package moderation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/campusmeet/meet-app/internal/user"
)

// memStore is an in-memory ProfileStore for tests.
type memStore struct {
	mu      sync.Mutex
	users   map[string]*user.User
	failUpd bool
}

func newMemStore(emails ...string) *memStore {
	m := &memStore{users: make(map[string]*user.User)}
	for _, e := range emails {
		m.users[e] = &user.User{Email: e, Name: e}
	}
	return m
}

func (m *memStore) GetByEmail(_ context.Context, email string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[email]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) UpdateModeration(_ context.Context, u *user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpd {
		return errors.New("connection refused")
	}
	stored, ok := m.users[u.Email]
	if !ok {
		return errors.New("no such profile")
	}
	stored.ReportCount = u.ReportCount
	stored.LastReportedAt = u.LastReportedAt
	stored.BanLevel = u.BanLevel
	stored.BanUntil = u.BanUntil
	return nil
}

type fakeKicker struct {
	mu     sync.Mutex
	kicked [][]string
}

func (f *fakeKicker) Kick(_ context.Context, connIDs []string) error {
	f.mu.Lock()
	f.kicked = append(f.kicked, connIDs)
	f.mu.Unlock()
	return nil
}

type fakePresence struct {
	online map[string]string
}

func (f *fakePresence) Lookup(_ context.Context, email string) (string, error) {
	return f.online[email], nil
}

func newTestService(store *memStore) (*Service, *fakeKicker, func(time.Time)) {
	kicker := &fakeKicker{}
	presence := &fakePresence{online: map[string]string{
		"reporter@nitc.ac.in": "conn-r",
		"bad@nitc.ac.in":      "conn-b",
	}}
	svc := NewService(store, presence, kicker)

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }
	setClock := func(t time.Time) { clock = t; svc.now = func() time.Time { return clock } }
	return svc, kicker, setClock
}

// ---------- Escalation tests ----------

func TestReport_EscalationSequenceIsDeterministic(t *testing.T) {
	store := newMemStore("reporter@nitc.ac.in", "bad@nitc.ac.in")
	svc, _, setClock := newTestService(store)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	wantLevels := []int{0, 1, 2, 3, 4}
	wantOffsets := []time.Duration{0, 5 * time.Minute, time.Hour, 24 * time.Hour, 365 * 24 * time.Hour}

	for i := 0; i < 5; i++ {
		// Advance past the previous ban window so each report is accepted.
		now := base.Add(time.Duration(i) * 400 * 24 * time.Hour)
		setClock(now)

		u, err := svc.Report(context.Background(), "reporter@nitc.ac.in", "bad@nitc.ac.in")
		if err != nil {
			t.Fatalf("report %d: unexpected error: %v", i+1, err)
		}
		if u.ReportCount != i+1 {
			t.Errorf("report %d: count=%d, want %d", i+1, u.ReportCount, i+1)
		}
		if u.BanLevel != wantLevels[i] {
			t.Errorf("report %d: banLevel=%d, want %d", i+1, u.BanLevel, wantLevels[i])
		}
		if wantOffsets[i] == 0 {
			if i == 0 && u.BanUntil != nil {
				t.Errorf("report 1: expected no ban, got banUntil=%v", u.BanUntil)
			}
			continue
		}
		if u.BanUntil == nil {
			t.Fatalf("report %d: expected banUntil set", i+1)
		}
		if got := u.BanUntil.Sub(now); got != wantOffsets[i] {
			t.Errorf("report %d: ban offset=%v, want %v", i+1, got, wantOffsets[i])
		}
		if u.LastReportedAt == nil || !u.LastReportedAt.Equal(now) {
			t.Errorf("report %d: lastReportedAt=%v, want %v", i+1, u.LastReportedAt, now)
		}
	}
}

func TestReport_SixthReportStaysAtLevelFour(t *testing.T) {
	store := newMemStore("reporter@nitc.ac.in", "bad@nitc.ac.in")
	svc, _, setClock := newTestService(store)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		setClock(base.Add(time.Duration(i) * 400 * 24 * time.Hour))
		if _, err := svc.Report(context.Background(), "reporter@nitc.ac.in", "bad@nitc.ac.in"); err != nil {
			t.Fatalf("report %d: %v", i+1, err)
		}
	}

	u, _ := store.GetByEmail(context.Background(), "bad@nitc.ac.in")
	if u.ReportCount != 6 || u.BanLevel != BanLevelPerm {
		t.Errorf("expected count=6 level=4, got count=%d level=%d", u.ReportCount, u.BanLevel)
	}
}

// ---------- Policy violation tests ----------

func TestReport_AlreadyBannedLeavesCountersUntouched(t *testing.T) {
	store := newMemStore("reporter@nitc.ac.in", "bad@nitc.ac.in")
	svc, _, _ := newTestService(store)
	ctx := context.Background()

	// Two reports: second applies a 5 minute ban.
	svc.Report(ctx, "reporter@nitc.ac.in", "bad@nitc.ac.in")
	if _, err := svc.Report(ctx, "reporter@nitc.ac.in", "bad@nitc.ac.in"); err != nil {
		t.Fatalf("second report: %v", err)
	}

	// Third report lands inside the ban window.
	_, err := svc.Report(ctx, "reporter@nitc.ac.in", "bad@nitc.ac.in")
	if !errors.Is(err, ErrAlreadyBanned) {
		t.Fatalf("expected ErrAlreadyBanned, got %v", err)
	}

	u, _ := store.GetByEmail(ctx, "bad@nitc.ac.in")
	if u.ReportCount != 2 {
		t.Errorf("rejected report must not mutate counters, got count=%d", u.ReportCount)
	}
}

func TestReport_UnknownUsersFailWithNotFound(t *testing.T) {
	store := newMemStore("reporter@nitc.ac.in")
	svc, _, _ := newTestService(store)
	ctx := context.Background()

	if _, err := svc.Report(ctx, "reporter@nitc.ac.in", "ghost@nitc.ac.in"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown reported user, got %v", err)
	}
	if _, err := svc.Report(ctx, "ghost@nitc.ac.in", "reporter@nitc.ac.in"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown reporter, got %v", err)
	}
}

func TestReport_PersistenceFailureSurfaced(t *testing.T) {
	store := newMemStore("reporter@nitc.ac.in", "bad@nitc.ac.in")
	store.failUpd = true
	svc, kicker, _ := newTestService(store)

	_, err := svc.Report(context.Background(), "reporter@nitc.ac.in", "bad@nitc.ac.in")
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyBanned) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if len(kicker.kicked) != 0 {
		t.Error("no kick should happen when persistence fails")
	}
}

// ---------- Kick tests ----------

func TestReport_KicksBothLiveConnections(t *testing.T) {
	store := newMemStore("reporter@nitc.ac.in", "bad@nitc.ac.in")
	svc, kicker, _ := newTestService(store)

	if _, err := svc.Report(context.Background(), "reporter@nitc.ac.in", "bad@nitc.ac.in"); err != nil {
		t.Fatalf("report: %v", err)
	}

	if len(kicker.kicked) != 1 {
		t.Fatalf("expected one kick batch, got %d", len(kicker.kicked))
	}
	got := kicker.kicked[0]
	if len(got) != 2 || got[0] != "conn-r" || got[1] != "conn-b" {
		t.Errorf("expected both connections kicked, got %v", got)
	}
}

func TestReport_OfflinePartiesAreNotAnError(t *testing.T) {
	store := newMemStore("a@nitc.ac.in", "b@nitc.ac.in")
	kicker := &fakeKicker{}
	svc := NewService(store, &fakePresence{online: map[string]string{}}, kicker)

	if _, err := svc.Report(context.Background(), "a@nitc.ac.in", "b@nitc.ac.in"); err != nil {
		t.Fatalf("report: %v", err)
	}
	if len(kicker.kicked) != 0 {
		t.Errorf("no kick expected for offline parties, got %v", kicker.kicked)
	}
}

// ---------- Concurrency ----------

func TestReport_ConcurrentReportsOfSameUserAreNotLost(t *testing.T) {
	store := newMemStore("bad@nitc.ac.in")
	// Many distinct reporters.
	for i := 0; i < 10; i++ {
		email := string(rune('a'+i)) + "@nitc.ac.in"
		store.users[email] = &user.User{Email: email}
	}
	svc := NewService(store, nil, nil)
	// Freeze the clock far apart from any ban window check issues: allow all
	// reports by keeping the reported user unbanned (level grows but windows
	// only bite when now < banUntil; use a clock that jumps forward per call).
	var mu sync.Mutex
	clock := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(400 * 24 * time.Hour)
		return clock
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		email := string(rune('a'+i)) + "@nitc.ac.in"
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Report(context.Background(), email, "bad@nitc.ac.in")
		}()
	}
	wg.Wait()

	u, _ := store.GetByEmail(context.Background(), "bad@nitc.ac.in")
	if u.ReportCount != 10 {
		t.Errorf("lost updates: count=%d, want 10", u.ReportCount)
	}
	if u.BanLevel != BanLevelPerm {
		t.Errorf("expected level 4 after 10 reports, got %d", u.BanLevel)
	}
}

// ---------- Table ----------

func TestEscalationTable(t *testing.T) {
	cases := []struct {
		count    int
		level    int
		duration time.Duration
	}{
		{1, 0, 0},
		{2, 1, 5 * time.Minute},
		{3, 2, time.Hour},
		{4, 3, 24 * time.Hour},
		{5, 4, 365 * 24 * time.Hour},
		{9, 4, 365 * 24 * time.Hour},
	}
	for _, tc := range cases {
		level, duration := escalation(tc.count)
		if level != tc.level || duration != tc.duration {
			t.Errorf("escalation(%d) = (%d, %v), want (%d, %v)",
				tc.count, level, duration, tc.level, tc.duration)
		}
	}
}
