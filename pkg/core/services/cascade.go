package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/streetmed/rounds/pkg/core/apperr"
	"github.com/streetmed/rounds/pkg/core/model"
	"github.com/streetmed/rounds/pkg/db"
)

// CascadeRoundCancellation marks every signup of a CANCELED round as CANCELED and
// notifies confirmed and waitlisted users. Running it again releases nothing new.
func (e *SignupEngine) CascadeRoundCancellation(ctx context.Context, roundID string) (int, error) {
	released := 0
	err := e.exec.withRoundLock(ctx, roundID, "release signups", func(tx db.Tx, out *outbox) error {
		released = 0

		round, err := tx.GetRound(ctx, roundID)
		if err != nil {
			return lookupError(err, "round", roundID)
		}
		if round.Status != model.RoundCanceled {
			return apperr.InvalidState("round is %s, only canceled rounds release their signups", round.Status)
		}

		signups, err := tx.ListSignupsByRound(ctx, roundID)
		if err != nil {
			return fmt.Errorf("failed to list signups: %w", err)
		}

		now := e.opts.now()
		for _, s := range signups {
			if s.Status == model.SignupCanceled {
				continue
			}
			notify := s.Status == model.SignupConfirmed || s.Status == model.SignupWaitlisted

			s.Status = model.SignupCanceled
			s.LotteryNumber = nil
			s.UpdatedAt = now
			if err := tx.UpdateSignup(ctx, &s); err != nil {
				return writeError(err, "release signup")
			}
			if notify {
				out.add(s.UserID, model.NotifyRoundCanceled, round, &s)
			}
			released++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	e.logger.Info("Round signups released",
		zap.String("round_id", roundID),
		zap.Int("released", released))
	return released, nil
}

// SendRoundReminders notifies every confirmed signup of the SCHEDULED rounds
// starting tomorrow (in the clock's location) and returns how many were queued
func (e *SignupEngine) SendRoundReminders(ctx context.Context) (int, error) {
	now := e.opts.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	tomorrow := midnight.AddDate(0, 0, 1)
	dayAfter := midnight.AddDate(0, 0, 2)
	from := tomorrow.Add(-time.Nanosecond)

	rounds, err := e.db.ListRounds(ctx, db.RoundFilter{
		Status:      model.RoundScheduled,
		StartAfter:  &from,
		StartBefore: &dayAfter,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list tomorrow's rounds: %w", err)
	}

	e.logger.Debug("Sending round reminders", zap.Int("rounds", len(rounds)))

	var out outbox
	for i := range rounds {
		round := &rounds[i]
		confirmed, err := e.db.ListSignupsByStatus(ctx, round.ID, model.SignupConfirmed)
		if err != nil {
			return 0, fmt.Errorf("failed to list confirmed signups for round %s: %w", round.ID, err)
		}
		for j := range confirmed {
			out.add(confirmed[j].UserID, model.NotifyRoundReminder, round, &confirmed[j])
		}
	}

	e.exec.send(ctx, out.pending)

	e.logger.Info("Round reminders queued",
		zap.Int("rounds", len(rounds)),
		zap.Int("reminders", len(out.pending)))
	return len(out.pending), nil
}

// RoundCanceler is the registry side of round cancellation
type RoundCanceler interface {
	Cancel(ctx context.Context, id string) (*model.Round, error)
}

// SignupReleaser is the engine side of round cancellation
type SignupReleaser interface {
	CascadeRoundCancellation(ctx context.Context, roundID string) (int, error)
}

// RoundCancellation is the outcome of CancelRoundWithSignups
type RoundCancellation struct {
	Round    *model.Round `json:"round"`
	Released int          `json:"released"`
}

// CancelRoundWithSignups cancels a round and then releases its signups.
// The two steps are separate transactions. If the second fails the round stays
// CANCELED and calling this again resumes at the release step.
func CancelRoundWithSignups(ctx context.Context, registry RoundCanceler, engine SignupReleaser, logger *zap.Logger, roundID string) (*RoundCancellation, error) {
	logger.Debug("Canceling round", zap.String("round_id", roundID))

	round, err := registry.Cancel(ctx, roundID)
	if err != nil {
		return nil, err
	}

	released, err := engine.CascadeRoundCancellation(ctx, roundID)
	if err != nil {
		logger.Error("Round canceled but releasing signups failed",
			zap.String("round_id", roundID),
			zap.Error(err))
		return &RoundCancellation{Round: round}, fmt.Errorf("round %s canceled but releasing signups failed, retry to resume: %w", roundID, err)
	}

	return &RoundCancellation{Round: round, Released: released}, nil
}
