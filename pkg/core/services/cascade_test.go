package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/streetmed/rounds/pkg/core/apperr"
	"github.com/streetmed/rounds/pkg/core/model"
)

func TestCascadeRoundCancellation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	round := h.newRound(t, 1, 72*time.Hour)

	h.signup(t, round.ID, "v1", model.RoleVolunteer)
	h.signup(t, round.ID, "v2", model.RoleVolunteer)
	r := h.signup(t, round.ID, "v3", model.RoleVolunteer)
	_, err := h.engine.AdminReject(ctx, "admin", r.ID)
	require.NoError(t, err)

	_, err = h.engine.CascadeRoundCancellation(ctx, round.ID)
	assertKind(t, err, apperr.KindInvalidState)

	_, err = h.registry.Cancel(ctx, round.ID)
	require.NoError(t, err)

	released, err := h.engine.CascadeRoundCancellation(ctx, round.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, released)

	signups, err := h.store.ListSignupsByRound(ctx, round.ID)
	require.NoError(t, err)
	for _, s := range signups {
		assert.Equal(t, model.SignupCanceled, s.Status)
		assert.Nil(t, s.LotteryNumber)
	}

	// the rejected volunteer is not told about the cancellation
	notified := h.notifier.ofKind(model.NotifyRoundCanceled)
	require.Len(t, notified, 2)
	addresses := []string{notified[0].address, notified[1].address}
	assert.ElementsMatch(t, []string{"v1@example.com", "v2@example.com"}, addresses)

	again, err := h.engine.CascadeRoundCancellation(ctx, round.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, again)
	assert.Len(t, h.notifier.ofKind(model.NotifyRoundCanceled), 2)

}

type mockCanceler struct {
	round *model.Round
	err   error
	calls int
}

func (m *mockCanceler) Cancel(ctx context.Context, id string) (*model.Round, error) {
	m.calls++
	return m.round, m.err
}

type mockReleaser struct {
	released int
	errs     []error
	calls    int
}

func (m *mockReleaser) CascadeRoundCancellation(ctx context.Context, roundID string) (int, error) {
	m.calls++
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return 0, err
		}
	}
	return m.released, nil
}

func TestCancelRoundWithSignups_ResumesAfterPartialFailure(t *testing.T) {
	round := &model.Round{ID: "r1", Status: model.RoundCanceled}
	canceler := &mockCanceler{round: round}
	releaser := &mockReleaser{released: 4, errs: []error{errors.New("db down")}}

	_, err := CancelRoundWithSignups(context.Background(), canceler, releaser, zap.NewNop(), "r1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry to resume")

	result, err := CancelRoundWithSignups(context.Background(), canceler, releaser, zap.NewNop(), "r1")
	require.NoError(t, err)
	assert.Equal(t, 4, result.Released)
	assert.Equal(t, 2, canceler.calls)
	assert.Equal(t, 2, releaser.calls)
}

func TestCancelRoundWithSignups_StopsWhenCancelFails(t *testing.T) {
	canceler := &mockCanceler{err: apperr.InvalidState("round is already COMPLETED")}
	releaser := &mockReleaser{}

	_, err := CancelRoundWithSignups(context.Background(), canceler, releaser, zap.NewNop(), "r1")
	assertKind(t, err, apperr.KindInvalidState)
	assert.Equal(t, 0, releaser.calls)
}

func TestCancelRoundWithSignups_EndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	round := h.newRound(t, 2, 72*time.Hour)
	h.signup(t, round.ID, "v1", model.RoleVolunteer)
	h.signup(t, round.ID, "lead1", model.RoleTeamLead)

	result, err := CancelRoundWithSignups(ctx, h.registry, h.engine, zap.NewNop(), round.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoundCanceled, result.Round.Status)
	assert.Equal(t, 2, result.Released)

	_, err = h.engine.Signup(ctx, round.ID, "v2", model.RoleVolunteer)
	assertKind(t, err, apperr.KindInvalidState)
}

func TestSendRoundReminders(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// testNow is 12:00 on 1 March; tomorrow is 2 March
	tomorrowMorning := h.newRound(t, 1, 21*time.Hour)
	tomorrowEvening := h.newRound(t, 5, 30*time.Hour)
	dayAfter := h.newRound(t, 5, 40*time.Hour)
	canceledTomorrow := h.newRound(t, 5, 25*time.Hour)

	h.signup(t, tomorrowMorning.ID, "v1", model.RoleVolunteer)
	h.signup(t, tomorrowMorning.ID, "v2", model.RoleVolunteer) // waitlisted
	h.signup(t, tomorrowEvening.ID, "v3", model.RoleVolunteer)
	h.signup(t, tomorrowEvening.ID, "lead1", model.RoleTeamLead)
	h.signup(t, dayAfter.ID, "v4", model.RoleVolunteer)
	h.signup(t, canceledTomorrow.ID, "v5", model.RoleVolunteer)
	_, err := h.registry.Cancel(ctx, canceledTomorrow.ID)
	require.NoError(t, err)

	count, err := h.engine.SendRoundReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	reminders := h.notifier.ofKind(model.NotifyRoundReminder)
	require.Len(t, reminders, 3)
	var addresses []string
	for _, r := range reminders {
		addresses = append(addresses, r.address)
	}
	assert.ElementsMatch(t, []string{"v1@example.com", "v3@example.com", "lead1@example.com"}, addresses)
}
