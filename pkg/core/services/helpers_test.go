package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/streetmed/rounds/pkg/core/apperr"
	"github.com/streetmed/rounds/pkg/core/model"
	"github.com/streetmed/rounds/pkg/core/roundlock"
	"github.com/streetmed/rounds/pkg/db"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// mockIdentity resolves users from a fixed map
type mockIdentity struct {
	mu    sync.Mutex
	users map[string]model.User
	err   error
}

func (m *mockIdentity) GetUser(ctx context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.users[id]
	if !ok {
		return nil, apperr.NotFound("user %s not found", id)
	}
	return &u, nil
}

func (m *mockIdentity) add(u model.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.Email == "" {
		u.Email = u.ID + "@example.com"
	}
	m.users[u.ID] = u
}

type sentNotification struct {
	address string
	kind    model.NotificationKind
	data    model.NotificationData
}

// mockNotifier records notifications
type mockNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (m *mockNotifier) Notify(address string, kind model.NotificationKind, data model.NotificationData) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentNotification{address: address, kind: kind, data: data})
}

func (m *mockNotifier) ofKind(kind model.NotificationKind) []sentNotification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []sentNotification
	for _, n := range m.sent {
		if n.kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// flakyDB fails the next failures transactions with a store error
type flakyDB struct {
	*db.MemoryDB
	failures atomic.Int32
	calls    atomic.Int32
}

func (f *flakyDB) RunInTx(ctx context.Context, fn func(tx db.Tx) error) error {
	f.calls.Add(1)
	if f.failures.Load() > 0 {
		f.failures.Add(-1)
		return errors.New("could not serialize access")
	}
	return f.MemoryDB.RunInTx(ctx, fn)
}

type harness struct {
	store    *db.MemoryDB
	identity *mockIdentity
	notifier *mockNotifier
	registry *RoundRegistry
	engine   *SignupEngine
	now      time.Time
}

// descendingDraw hands out 1000, 999, 998... so later waitlisters get lower numbers
func descendingDraw() func() int {
	var n atomic.Int32
	return func() int { return 1000 - int(n.Add(1)) + 1 }
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	return newHarnessWithDB(t, db.NewMemoryDB(), nil, opts...)
}

func newHarnessWithDB(t *testing.T, store *db.MemoryDB, database db.Database, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		store:    store,
		identity: &mockIdentity{users: map[string]model.User{}},
		notifier: &mockNotifier{},
		now:      testNow,
	}
	if database == nil {
		database = store
	}

	h.identity.add(model.User{ID: "admin", FirstName: "Ada", Role: model.UserAdmin})
	h.identity.add(model.User{ID: "client", Role: model.UserClient})
	for i := 1; i <= 60; i++ {
		h.identity.add(model.User{ID: fmt.Sprintf("v%d", i), FirstName: fmt.Sprintf("Vol%d", i), Role: model.UserVolunteer})
	}
	for i := 1; i <= 20; i++ {
		h.identity.add(model.User{ID: fmt.Sprintf("lead%d", i), Role: model.UserVolunteer, SubRoles: []model.SubRole{model.SubRoleTeamLead}})
	}
	h.identity.add(model.User{ID: "clin", Role: model.UserVolunteer, SubRoles: []model.SubRole{model.SubRoleClinician}})

	all := append([]Option{
		WithClock(func() time.Time { return h.now }),
		WithLotteryDraw(descendingDraw()),
	}, opts...)

	locks := roundlock.New()
	h.registry = NewRoundRegistry(database, locks, zap.NewNop(), all...)
	h.engine = NewSignupEngine(database, locks, h.identity, h.notifier, zap.NewNop(), all...)
	h.registry.SetRoleAssigner(h.engine)
	return h
}

// newRound creates a SCHEDULED round starting startIn from the harness clock
func (h *harness) newRound(t *testing.T, max int, startIn time.Duration) *model.Round {
	t.Helper()
	start := h.now.Add(startIn)
	round, err := h.registry.Create(context.Background(), RoundSpec{
		Title:           "Evening round",
		StartTime:       start,
		EndTime:         start.Add(2 * time.Hour),
		Location:        "East Liberty",
		MaxParticipants: max,
	})
	require.NoError(t, err)
	return round
}

func (h *harness) signup(t *testing.T, roundID, userID string, role model.SignupRole) *model.Signup {
	t.Helper()
	s, err := h.engine.Signup(context.Background(), roundID, userID, role)
	require.NoError(t, err)
	return s
}

func assertKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, apperr.KindOf(err), "unexpected error: %v", err)
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }
