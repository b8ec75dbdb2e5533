package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streetmed/rounds/pkg/core/model"
)

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func seedRound(t *testing.T, db *MemoryDB, id string, start time.Time) *model.Round {
	t.Helper()
	r := &model.Round{
		ID:              id,
		Title:           "Round " + id,
		StartTime:       start,
		EndTime:         start.Add(2 * time.Hour),
		Location:        "Oakland",
		MaxParticipants: 3,
		Status:          model.RoundScheduled,
	}
	require.NoError(t, db.InsertRound(context.Background(), r))
	return r
}

func TestMemoryDB_RunInTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDB()
	base := time.Date(2026, 11, 1, 18, 0, 0, 0, time.UTC)
	round := seedRound(t, db, "round-1", base)

	existing := &model.Signup{ID: "s-0", RoundID: "round-1", UserID: "u-0", Role: model.RoleVolunteer, Status: model.SignupConfirmed}
	require.NoError(t, db.InsertSignup(ctx, existing))

	boom := errors.New("boom")
	err := db.RunInTx(ctx, func(tx Tx) error {
		round.TeamLeadID = strPtr("u-1")
		if err := tx.UpdateRound(ctx, round); err != nil {
			return err
		}
		if err := tx.InsertSignup(ctx, &model.Signup{ID: "s-1", RoundID: "round-1", UserID: "u-1", Role: model.RoleTeamLead, Status: model.SignupConfirmed}); err != nil {
			return err
		}
		if err := tx.DeleteSignup(ctx, "s-0"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	stored, err := db.GetRound(ctx, "round-1")
	require.NoError(t, err)
	assert.Nil(t, stored.TeamLeadID)

	_, err = db.GetSignup(ctx, "s-1")
	assert.ErrorIs(t, err, ErrNotFound)

	restored, err := db.GetSignup(ctx, "s-0")
	require.NoError(t, err)
	assert.Equal(t, "u-0", restored.UserID)
}

func TestMemoryDB_RunInTx_CommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDB()
	seedRound(t, db, "round-1", time.Date(2026, 11, 1, 18, 0, 0, 0, time.UTC))

	err := db.RunInTx(ctx, func(tx Tx) error {
		return tx.InsertSignup(ctx, &model.Signup{ID: "s-1", RoundID: "round-1", UserID: "u-1", Role: model.RoleVolunteer, Status: model.SignupConfirmed})
	})
	require.NoError(t, err)

	count, err := db.CountConfirmedVolunteers(ctx, "round-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMemoryDB_InsertSignup_DuplicateUser(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDB()
	seedRound(t, db, "round-1", time.Date(2026, 11, 1, 18, 0, 0, 0, time.UTC))

	require.NoError(t, db.InsertSignup(ctx, &model.Signup{ID: "s-1", RoundID: "round-1", UserID: "u-1", Role: model.RoleVolunteer, Status: model.SignupConfirmed}))
	err := db.InsertSignup(ctx, &model.Signup{ID: "s-2", RoundID: "round-1", UserID: "u-1", Role: model.RoleClinician, Status: model.SignupConfirmed})

	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestMemoryDB_InsertSignup_SecondConfirmedTeamLead(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDB()
	seedRound(t, db, "round-1", time.Date(2026, 11, 1, 18, 0, 0, 0, time.UTC))

	require.NoError(t, db.InsertSignup(ctx, &model.Signup{ID: "s-1", RoundID: "round-1", UserID: "u-1", Role: model.RoleTeamLead, Status: model.SignupConfirmed}))
	err := db.InsertSignup(ctx, &model.Signup{ID: "s-2", RoundID: "round-1", UserID: "u-2", Role: model.RoleTeamLead, Status: model.SignupConfirmed})

	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestMemoryDB_ListSignupsByStatus_WaitlistOrderedByLottery(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDB()
	seedRound(t, db, "round-1", time.Date(2026, 11, 1, 18, 0, 0, 0, time.UTC))
	signupTime := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	for i, n := range []int{4200, 17, 980} {
		require.NoError(t, db.InsertSignup(ctx, &model.Signup{
			ID:            []string{"s-a", "s-b", "s-c"}[i],
			RoundID:       "round-1",
			UserID:        []string{"u-a", "u-b", "u-c"}[i],
			Role:          model.RoleVolunteer,
			Status:        model.SignupWaitlisted,
			SignupTime:    signupTime.Add(time.Duration(i) * time.Minute),
			LotteryNumber: intPtr(n),
		}))
	}

	waitlist, err := db.ListSignupsByStatus(ctx, "round-1", model.SignupWaitlisted)
	require.NoError(t, err)
	require.Len(t, waitlist, 3)
	assert.Equal(t, "s-b", waitlist[0].ID)
	assert.Equal(t, "s-c", waitlist[1].ID)
	assert.Equal(t, "s-a", waitlist[2].ID)
}

func TestMemoryDB_ListRounds_Filters(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDB()
	base := time.Date(2026, 11, 1, 18, 0, 0, 0, time.UTC)

	seedRound(t, db, "round-1", base)
	r2 := seedRound(t, db, "round-2", base.AddDate(0, 0, 7))
	r2.TeamLeadID = strPtr("lead-1")
	require.NoError(t, db.UpdateRound(ctx, r2))
	r3 := seedRound(t, db, "round-3", base.AddDate(0, 0, 14))
	r3.Status = model.RoundCanceled
	require.NoError(t, db.UpdateRound(ctx, r3))

	scheduled, err := db.ListRounds(ctx, RoundFilter{Status: model.RoundScheduled})
	require.NoError(t, err)
	require.Len(t, scheduled, 2)
	assert.Equal(t, "round-1", scheduled[0].ID)

	needingLead, err := db.ListRounds(ctx, RoundFilter{Status: model.RoundScheduled, MissingTeamLead: true})
	require.NoError(t, err)
	require.Len(t, needingLead, 1)
	assert.Equal(t, "round-1", needingLead[0].ID)

	led, err := db.ListRounds(ctx, RoundFilter{TeamLeadID: "lead-1"})
	require.NoError(t, err)
	require.Len(t, led, 1)
	assert.Equal(t, "round-2", led[0].ID)

	after := base.Add(time.Hour)
	later, err := db.ListRounds(ctx, RoundFilter{StartAfter: &after})
	require.NoError(t, err)
	assert.Len(t, later, 2)
}

func TestMemoryDB_GetRound_ReturnsCopy(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDB()
	seedRound(t, db, "round-1", time.Date(2026, 11, 1, 18, 0, 0, 0, time.UTC))

	r, err := db.GetRound(ctx, "round-1")
	require.NoError(t, err)
	r.Title = "changed"

	again, err := db.GetRound(ctx, "round-1")
	require.NoError(t, err)
	assert.Equal(t, "Round round-1", again.Title)
}
