package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/streetmed/rounds/internal/config"
	"github.com/streetmed/rounds/pkg/core/apperr"
	"github.com/streetmed/rounds/pkg/core/model"
	"github.com/streetmed/rounds/pkg/core/roundlock"
	"github.com/streetmed/rounds/pkg/db"
)

func TestCreate_Validation(t *testing.T) {
	h := newHarness(t)
	start := testNow.Add(24 * time.Hour)

	valid := RoundSpec{
		Title:           "Morning round",
		StartTime:       start,
		EndTime:         start.Add(time.Hour),
		Location:        "Downtown",
		MaxParticipants: 3,
	}

	round, err := h.registry.Create(context.Background(), valid)
	require.NoError(t, err)
	assert.NotEmpty(t, round.ID)
	assert.Equal(t, model.RoundScheduled, round.Status)
	assert.Equal(t, testNow, round.CreatedAt)
	assert.Equal(t, testNow, round.UpdatedAt)

	tests := []struct {
		name   string
		mutate func(s *RoundSpec)
		msg    string
	}{
		{"missing title", func(s *RoundSpec) { s.Title = "" }, "Title is required"},
		{"missing location", func(s *RoundSpec) { s.Location = "" }, "Location is required"},
		{"missing start", func(s *RoundSpec) { s.StartTime = time.Time{} }, "StartTime is required"},
		{"end equals start", func(s *RoundSpec) { s.EndTime = s.StartTime }, "EndTime must be after StartTime"},
		{"end before start", func(s *RoundSpec) { s.EndTime = s.StartTime.Add(-time.Hour) }, "EndTime must be after StartTime"},
		{"zero capacity", func(s *RoundSpec) { s.MaxParticipants = 0 }, "MaxParticipants must be at least 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := valid
			tt.mutate(&spec)
			_, err := h.registry.Create(context.Background(), spec)
			assertKind(t, err, apperr.KindValidation)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestUpdate_PatchFields(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	round := h.newRound(t, 3, 48*time.Hour)

	h.now = testNow.Add(time.Minute)
	title := "Renamed round"
	updated, err := h.registry.Update(ctx, round.ID, RoundPatch{Title: &title, Location: strPtr("Oakland")})
	require.NoError(t, err)
	assert.Equal(t, "Renamed round", updated.Title)
	assert.Equal(t, "Oakland", updated.Location)
	assert.Equal(t, round.Description, updated.Description)
	assert.Equal(t, h.now, updated.UpdatedAt)

	badEnd := round.StartTime.Add(-time.Minute)
	_, err = h.registry.Update(ctx, round.ID, RoundPatch{EndTime: &badEnd})
	assertKind(t, err, apperr.KindValidation)

	_, err = h.registry.Update(ctx, "missing", RoundPatch{Title: &title})
	assertKind(t, err, apperr.KindNotFound)
}

func TestUpdate_Status(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	round := h.newRound(t, 3, 48*time.Hour)

	bogus := model.RoundStatus("POSTPONED")
	_, err := h.registry.Update(ctx, round.ID, RoundPatch{Status: &bogus})
	assertKind(t, err, apperr.KindValidation)

	completed := model.RoundCompleted
	_, err = h.registry.Update(ctx, round.ID, RoundPatch{Status: &completed})
	require.NoError(t, err)

	scheduled := model.RoundScheduled
	_, err = h.registry.Update(ctx, round.ID, RoundPatch{Status: &scheduled})
	assertKind(t, err, apperr.KindInvalidState)
}

func TestUpdate_CapacityBelowConfirmedIsLoggedNotRejected(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	store := db.NewMemoryDB()
	locks := roundlock.New()
	clock := WithClock(func() time.Time { return testNow })
	registry := NewRoundRegistry(store, locks, zap.New(core), clock)
	identity := &mockIdentity{users: map[string]model.User{}}
	identity.add(model.User{ID: "v1", Role: model.UserVolunteer})
	identity.add(model.User{ID: "v2", Role: model.UserVolunteer})
	engine := NewSignupEngine(store, locks, identity, &mockNotifier{}, zap.NewNop(), clock)

	ctx := context.Background()
	start := testNow.Add(48 * time.Hour)
	round, err := registry.Create(ctx, RoundSpec{Title: "R", StartTime: start, EndTime: start.Add(time.Hour), Location: "L", MaxParticipants: 2})
	require.NoError(t, err)
	_, err = engine.Signup(ctx, round.ID, "v1", model.RoleVolunteer)
	require.NoError(t, err)
	_, err = engine.Signup(ctx, round.ID, "v2", model.RoleVolunteer)
	require.NoError(t, err)

	updated, err := registry.Update(ctx, round.ID, RoundPatch{MaxParticipants: intPtr(1)})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.MaxParticipants)
	assert.Equal(t, 1, logs.FilterMessage("Round capacity reduced below confirmed volunteers").Len())
}

func TestUpdate_RoleFieldsRouteThroughEngine(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	round := h.newRound(t, 3, 48*time.Hour)

	updated, err := h.registry.Update(ctx, round.ID, RoundPatch{TeamLeadID: strPtr("lead1")})
	require.NoError(t, err)
	require.NotNil(t, updated.TeamLeadID)
	assert.Equal(t, "lead1", *updated.TeamLeadID)

	signup, err := h.store.FindSignup(ctx, round.ID, "lead1")
	require.NoError(t, err)
	assert.Equal(t, model.RoleTeamLead, signup.Role)
	assert.Equal(t, model.SignupConfirmed, signup.Status)

	_, err = h.registry.Update(ctx, round.ID, RoundPatch{TeamLeadID: strPtr("lead2")})
	assertKind(t, err, apperr.KindConflict)

	cleared, err := h.registry.Update(ctx, round.ID, RoundPatch{TeamLeadID: strPtr("")})
	require.NoError(t, err)
	assert.Nil(t, cleared.TeamLeadID)

	signup, err = h.store.FindSignup(ctx, round.ID, "lead1")
	require.NoError(t, err)
	assert.Equal(t, model.SignupRejected, signup.Status)

	_, err = h.registry.Update(ctx, round.ID, RoundPatch{ClinicianID: strPtr("v1")})
	assertKind(t, err, apperr.KindAuthorization)
}

func TestUpdate_RoleFieldsWithoutAssigner(t *testing.T) {
	registry := NewRoundRegistry(db.NewMemoryDB(), roundlock.New(), zap.NewNop())
	_, err := registry.Update(context.Background(), "r1", RoundPatch{TeamLeadID: strPtr("lead1")})
	assert.Error(t, err)
}

func TestUpdate_RoleConflictLeavesRoundUntouched(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	round := h.newRound(t, 3, 48*time.Hour)
	_, err := h.registry.Update(ctx, round.ID, RoundPatch{TeamLeadID: strPtr("lead1")})
	require.NoError(t, err)

	_, err = h.registry.Update(ctx, round.ID, RoundPatch{Title: strPtr("Renamed"), TeamLeadID: strPtr("lead2")})
	assertKind(t, err, apperr.KindConflict)

	_, err = h.registry.Update(ctx, round.ID, RoundPatch{Location: strPtr("Berkeley"), ClinicianID: strPtr("v1")})
	assertKind(t, err, apperr.KindAuthorization)

	completed := model.RoundCompleted
	_, err = h.registry.Update(ctx, round.ID, RoundPatch{Status: &completed, ClinicianID: strPtr("clin")})
	assertKind(t, err, apperr.KindValidation)

	stored, err := h.store.GetRound(ctx, round.ID)
	require.NoError(t, err)
	assert.Equal(t, round.Title, stored.Title)
	assert.Equal(t, round.Location, stored.Location)
	assert.Equal(t, model.RoundScheduled, stored.Status)
	require.NotNil(t, stored.TeamLeadID)
	assert.Equal(t, "lead1", *stored.TeamLeadID)
	assert.Nil(t, stored.ClinicianID)
}

type failingAssigner struct {
	err error
}

func (f *failingAssigner) CheckExclusiveRole(ctx context.Context, roundID string, role model.SignupRole, userID string) error {
	return nil
}

func (f *failingAssigner) SetExclusiveRole(ctx context.Context, roundID string, role model.SignupRole, userID string) (*model.Round, error) {
	return nil, f.err
}

func TestUpdate_LateRoleFailureReturnsCommittedRound(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	round := h.newRound(t, 3, 48*time.Hour)
	h.registry.SetRoleAssigner(&failingAssigner{err: apperr.Conflict("this round already has a team lead assigned")})

	updated, err := h.registry.Update(ctx, round.ID, RoundPatch{Title: strPtr("Renamed"), TeamLeadID: strPtr("lead1")})
	assertKind(t, err, apperr.KindConflict)
	require.NotNil(t, updated)
	assert.Equal(t, "Renamed", updated.Title)
	assert.Nil(t, updated.TeamLeadID)

	stored, err := h.store.GetRound(ctx, round.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", stored.Title)
}

func TestCancelAndComplete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	round := h.newRound(t, 3, 48*time.Hour)

	canceled, err := h.registry.Cancel(ctx, round.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoundCanceled, canceled.Status)

	again, err := h.registry.Cancel(ctx, round.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoundCanceled, again.Status)

	_, err = h.registry.Complete(ctx, round.ID)
	assertKind(t, err, apperr.KindInvalidState)

	other := h.newRound(t, 3, 48*time.Hour)
	completed, err := h.registry.Complete(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoundCompleted, completed.Status)

	_, err = h.registry.Cancel(ctx, other.ID)
	assertKind(t, err, apperr.KindInvalidState)

	_, err = h.registry.Cancel(ctx, "missing")
	assertKind(t, err, apperr.KindNotFound)
}

func TestListQueries(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	past := h.newRound(t, 3, -48*time.Hour)
	soon := h.newRound(t, 3, 24*time.Hour)
	later := h.newRound(t, 3, 72*time.Hour)
	canceled := h.newRound(t, 3, 96*time.Hour)
	_, err := h.registry.Cancel(ctx, canceled.ID)
	require.NoError(t, err)

	h.signup(t, soon.ID, "lead1", model.RoleTeamLead)
	h.signup(t, later.ID, "clin", model.RoleClinician)

	upcoming, err := h.registry.ListUpcoming(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{soon.ID, later.ID}, roundIDs(upcoming))

	count, err := h.registry.CountUpcoming(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	byStatus, err := h.registry.ListByStatus(ctx, model.RoundCanceled)
	require.NoError(t, err)
	assert.Equal(t, []string{canceled.ID}, roundIDs(byStatus))

	_, err = h.registry.ListByStatus(ctx, "BOGUS")
	assertKind(t, err, apperr.KindValidation)

	inRange, err := h.registry.ListInRange(ctx, past.StartTime, soon.StartTime)
	require.NoError(t, err)
	assert.Equal(t, []string{past.ID, soon.ID}, roundIDs(inRange))

	_, err = h.registry.ListInRange(ctx, soon.StartTime, past.StartTime)
	assertKind(t, err, apperr.KindValidation)

	needLead, err := h.registry.ListNeedingTeamLead(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{later.ID}, roundIDs(needLead))

	needClin, err := h.registry.ListNeedingClinician(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{soon.ID}, roundIDs(needClin))

	forLead, err := h.registry.ListForTeamLead(ctx, "lead1")
	require.NoError(t, err)
	assert.Equal(t, []string{soon.ID}, roundIDs(forLead))

	forClin, err := h.registry.ListForClinician(ctx, "clin")
	require.NoError(t, err)
	assert.Equal(t, []string{later.ID}, roundIDs(forClin))

	none, err := h.registry.ListForClinician(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestCreateSeries(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	series := config.RoundSeries{
		Name:            "tuesday-evening",
		RRule:           "FREQ=WEEKLY;BYDAY=TU;BYHOUR=18",
		Title:           "Tuesday evening round",
		Location:        "East Liberty",
		DurationMinutes: 120,
		MaxParticipants: 6,
	}

	// March 2026: Tuesdays are the 3rd, 10th, 17th, 24th and 31st
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2026, 3, 31, 23, 59, 0, 0, time.UTC)

	rounds, err := h.registry.CreateSeries(ctx, series, from, until)
	require.NoError(t, err)
	require.Len(t, rounds, 5)

	first := rounds[0]
	assert.Equal(t, time.Date(2026, 3, 3, 18, 0, 0, 0, time.UTC), first.StartTime)
	assert.Equal(t, time.Date(2026, 3, 3, 20, 0, 0, 0, time.UTC), first.EndTime)
	assert.Equal(t, 6, first.MaxParticipants)
	assert.Equal(t, model.RoundScheduled, first.Status)

	stored, err := h.registry.ListInRange(ctx, from, until)
	require.NoError(t, err)
	assert.Len(t, stored, 5)

	_, err = h.registry.CreateSeries(ctx, series, until, from)
	assertKind(t, err, apperr.KindValidation)

	empty := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	_, err = h.registry.CreateSeries(ctx, series, empty, empty.Add(24*time.Hour))
	assertKind(t, err, apperr.KindValidation)

	series.RRule = "FREQ=SOMETIMES"
	_, err = h.registry.CreateSeries(ctx, series, from, until)
	assertKind(t, err, apperr.KindValidation)
}

func roundIDs(rounds []model.Round) []string {
	ids := make([]string, len(rounds))
	for i, r := range rounds {
		ids[i] = r.ID
	}
	return ids
}
