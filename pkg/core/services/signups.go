package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/streetmed/rounds/pkg/core/apperr"
	"github.com/streetmed/rounds/pkg/core/model"
	"github.com/streetmed/rounds/pkg/core/roundlock"
	"github.com/streetmed/rounds/pkg/db"
)

// SignupEngine owns signup records and the exclusive-role fields on rounds.
// Every mutation touching a round runs under that round's lock.
type SignupEngine struct {
	exec     *executor
	db       db.Database
	identity IdentityLookup
	logger   *zap.Logger
	opts     options
}

// CancelResult reports what a signup cancellation did
type CancelResult struct {
	Signup     model.Signup   `json:"signup"`
	LotteryRan bool           `json:"lotteryRan"`
	Promoted   []model.Signup `json:"promoted"`
}

func NewSignupEngine(database db.Database, locks *roundlock.Locker, identity IdentityLookup, notifier Notifier, logger *zap.Logger, opts ...Option) *SignupEngine {
	return &SignupEngine{
		exec: &executor{
			db:       database,
			locks:    locks,
			identity: identity,
			notifier: notifier,
			logger:   logger,
		},
		db:       database,
		identity: identity,
		logger:   logger,
		opts:     buildOptions(opts),
	}
}

func roleName(role model.SignupRole) string {
	return strings.ToLower(strings.ReplaceAll(string(role), "_", " "))
}

// Signup admits userID to the round in the requested role. An empty role means VOLUNTEER.
// Volunteers beyond capacity are waitlisted with a lottery number.
func (e *SignupEngine) Signup(ctx context.Context, roundID, userID string, role model.SignupRole) (*model.Signup, error) {
	if role == "" {
		role = model.RoleVolunteer
	}
	if !role.IsValid() {
		return nil, apperr.Validation("invalid signup role %q", role)
	}

	logger := e.logger.With(
		zap.String("round_id", roundID),
		zap.String("user_id", userID),
		zap.String("role", string(role)))
	logger.Debug("Processing signup")

	// Resolved before taking the lock; a lookup failure is reported in check order below.
	user, userErr := e.identity.GetUser(ctx, userID)
	if userErr != nil && !apperr.IsDomain(userErr) {
		return nil, fmt.Errorf("failed to look up user %s: %w", userID, userErr)
	}

	var created *model.Signup
	err := e.exec.withRoundLock(ctx, roundID, "signup", func(tx db.Tx, out *outbox) error {
		round, err := tx.GetRound(ctx, roundID)
		if err != nil {
			return lookupError(err, "round", roundID)
		}

		if userErr != nil {
			return userErr
		}
		if !user.IsVolunteer() {
			return apperr.Authorization("only volunteers can sign up for rounds")
		}

		now := e.opts.now()
		if !round.StartTime.After(now) {
			return apperr.InvalidState("cannot sign up for past rounds")
		}
		if round.Status != model.RoundScheduled {
			return apperr.InvalidState("cannot sign up for a %s round", strings.ToLower(string(round.Status)))
		}

		if _, err := tx.FindSignup(ctx, roundID, userID); err == nil {
			return apperr.Conflict("user already signed up for this round")
		} else if !isNotFound(err) {
			return fmt.Errorf("failed to check existing signup: %w", err)
		}

		if role.IsExclusive() && !user.CanHold(role) {
			return apperr.Authorization("user is not qualified as a %s", roleName(role))
		}

		signup := &model.Signup{
			ID:         uuid.New().String(),
			RoundID:    roundID,
			UserID:     userID,
			Role:       role,
			SignupTime: now,
			UpdatedAt:  now,
		}

		if role.IsExclusive() {
			if round.ExclusiveHolder(role) != nil {
				return apperr.Conflict("this round already has a %s assigned", roleName(role))
			}
			signup.Status = model.SignupConfirmed
			round.SetExclusiveHolder(role, &userID)
			round.UpdatedAt = now
			if err := tx.UpdateRound(ctx, round); err != nil {
				return fmt.Errorf("failed to assign %s: %w", roleName(role), err)
			}
		} else {
			confirmed, err := tx.CountConfirmedVolunteers(ctx, roundID)
			if err != nil {
				return fmt.Errorf("failed to count confirmed volunteers: %w", err)
			}
			if confirmed < round.MaxParticipants {
				signup.Status = model.SignupConfirmed
			} else {
				lottery := e.opts.draw()
				signup.Status = model.SignupWaitlisted
				signup.LotteryNumber = &lottery
			}
		}

		if err := tx.InsertSignup(ctx, signup); err != nil {
			return writeError(err, "create signup")
		}

		out.add(userID, model.NotifySignupConfirmation, round, signup)
		created = signup
		return nil
	})
	if err != nil {
		logger.Debug("Signup rejected", zap.Error(err))
		return nil, err
	}

	logger.Info("Signup created",
		zap.String("signup_id", created.ID),
		zap.String("status", string(created.Status)))
	return created, nil
}

// RunLottery promotes waitlisted volunteers into free capacity, lowest lottery
// number first. Lottery numbers are drawn once at waitlist time, so promotion
// order is fixed from that point rather than re-randomized on each run.
// Canceled and completed rounds are not drawn.
func (e *SignupEngine) RunLottery(ctx context.Context, roundID string) ([]model.Signup, error) {
	var promoted []model.Signup
	err := e.exec.withRoundLock(ctx, roundID, "run lottery", func(tx db.Tx, out *outbox) error {
		round, err := tx.GetRound(ctx, roundID)
		if err != nil {
			return lookupError(err, "round", roundID)
		}
		if round.Status.IsTerminal() {
			return apperr.InvalidState("round is %s", round.Status)
		}
		promoted, err = e.runLotteryTx(ctx, tx, round, out)
		return err
	})
	if err != nil {
		return nil, err
	}
	return promoted, nil
}

// runLotteryTx must run inside withRoundLock
func (e *SignupEngine) runLotteryTx(ctx context.Context, tx db.Tx, round *model.Round, out *outbox) ([]model.Signup, error) {
	confirmed, err := tx.CountConfirmedVolunteers(ctx, round.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count confirmed volunteers: %w", err)
	}

	available := round.MaxParticipants - confirmed
	if available <= 0 {
		e.logger.Debug("Lottery run with no free slots", zap.String("round_id", round.ID))
		return []model.Signup{}, nil
	}

	waitlist, err := tx.ListSignupsByStatus(ctx, round.ID, model.SignupWaitlisted)
	if err != nil {
		return nil, fmt.Errorf("failed to list waitlist: %w", err)
	}

	n := min(available, len(waitlist))
	now := e.opts.now()
	promoted := make([]model.Signup, 0, n)
	for _, s := range waitlist[:n] {
		s.Status = model.SignupConfirmed
		s.LotteryNumber = nil
		s.UpdatedAt = now
		if err := tx.UpdateSignup(ctx, &s); err != nil {
			return nil, writeError(err, "promote signup")
		}
		out.add(s.UserID, model.NotifyLotterySelected, round, &s)
		promoted = append(promoted, s)
	}

	e.logger.Info("Lottery run",
		zap.String("round_id", round.ID),
		zap.Int("available_slots", available),
		zap.Int("waitlisted", len(waitlist)),
		zap.Int("promoted", len(promoted)))

	return promoted, nil
}

// roundOfSignup finds the round a signup belongs to so the right lock can be taken
func (e *SignupEngine) roundOfSignup(ctx context.Context, signupID string) (string, error) {
	signup, err := e.db.GetSignup(ctx, signupID)
	if err != nil {
		return "", lookupError(err, "signup", signupID)
	}
	return signup.RoundID, nil
}

// Cancel deletes the caller's own signup. It fails inside the cancellation cutoff.
// Cancelling a confirmed volunteer backfills the slot from the waitlist in the same transaction.
func (e *SignupEngine) Cancel(ctx context.Context, signupID, userID string) (*CancelResult, error) {
	roundID, err := e.roundOfSignup(ctx, signupID)
	if err != nil {
		return nil, err
	}

	var result CancelResult
	err = e.exec.withRoundLock(ctx, roundID, "cancel signup", func(tx db.Tx, out *outbox) error {
		result = CancelResult{}

		signup, err := tx.GetSignup(ctx, signupID)
		if err != nil {
			return lookupError(err, "signup", signupID)
		}
		if signup.UserID != userID {
			return apperr.Authorization("cannot cancel another user's signup")
		}

		round, err := tx.GetRound(ctx, signup.RoundID)
		if err != nil {
			return lookupError(err, "round", signup.RoundID)
		}

		now := e.opts.now()
		if round.StartTime.Sub(now) < e.opts.cutoff {
			return apperr.InvalidState("cannot cancel less than %s before the round", formatCutoff(e.opts.cutoff))
		}

		if signup.Role.IsExclusive() {
			if holder := round.ExclusiveHolder(signup.Role); holder != nil && *holder == userID {
				round.SetExclusiveHolder(signup.Role, nil)
				round.UpdatedAt = now
				if err := tx.UpdateRound(ctx, round); err != nil {
					return fmt.Errorf("failed to clear %s: %w", roleName(signup.Role), err)
				}
			}
		}

		if err := tx.DeleteSignup(ctx, signupID); err != nil {
			return writeError(err, "delete signup")
		}
		result.Signup = *signup

		if signup.IsConfirmedVolunteer() {
			promoted, err := e.runLotteryTx(ctx, tx, round, out)
			if err != nil {
				return err
			}
			result.LotteryRan = true
			result.Promoted = promoted
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Signup canceled",
		zap.String("signup_id", signupID),
		zap.String("round_id", roundID),
		zap.String("user_id", userID),
		zap.Int("promoted", len(result.Promoted)))
	return &result, nil
}

func formatCutoff(d time.Duration) string {
	if d%time.Hour == 0 {
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	}
	return d.String()
}

// requireAdmin checks the caller carries administrator capability
func (e *SignupEngine) requireAdmin(ctx context.Context, adminID string) error {
	admin, err := e.identity.GetUser(ctx, adminID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return apperr.Authorization("caller is not an administrator")
		}
		return fmt.Errorf("failed to look up user %s: %w", adminID, err)
	}
	if !admin.IsAdmin() {
		return apperr.Authorization("caller is not an administrator")
	}
	return nil
}

// AdminConfirm promotes a WAITLISTED signup outside lottery order.
// It fails with a conflict when the round has no free capacity and with an
// invalid-state error when the round is canceled or completed.
func (e *SignupEngine) AdminConfirm(ctx context.Context, adminID, signupID string) (*model.Signup, error) {
	if err := e.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	roundID, err := e.roundOfSignup(ctx, signupID)
	if err != nil {
		return nil, err
	}

	var confirmed *model.Signup
	err = e.exec.withRoundLock(ctx, roundID, "confirm signup", func(tx db.Tx, out *outbox) error {
		signup, err := tx.GetSignup(ctx, signupID)
		if err != nil {
			return lookupError(err, "signup", signupID)
		}
		if signup.Status != model.SignupWaitlisted {
			return apperr.InvalidState("signup is %s, only waitlisted signups can be confirmed", strings.ToLower(string(signup.Status)))
		}

		round, err := tx.GetRound(ctx, signup.RoundID)
		if err != nil {
			return lookupError(err, "round", signup.RoundID)
		}
		if round.Status.IsTerminal() {
			return apperr.InvalidState("round is %s", round.Status)
		}

		if signup.Role == model.RoleVolunteer {
			count, err := tx.CountConfirmedVolunteers(ctx, round.ID)
			if err != nil {
				return fmt.Errorf("failed to count confirmed volunteers: %w", err)
			}
			if count >= round.MaxParticipants {
				return apperr.Conflict("round is full (%d of %d confirmed)", count, round.MaxParticipants)
			}
		}

		signup.Status = model.SignupConfirmed
		signup.LotteryNumber = nil
		signup.UpdatedAt = e.opts.now()
		if err := tx.UpdateSignup(ctx, signup); err != nil {
			return writeError(err, "confirm signup")
		}

		out.add(signup.UserID, model.NotifySignupConfirmation, round, signup)
		confirmed = signup
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Signup confirmed by admin",
		zap.String("signup_id", signupID),
		zap.String("admin_id", adminID))
	return confirmed, nil
}

// AdminReject sets a signup to REJECTED from any state. A rejected team lead or
// clinician releases the round's role field. The lottery is not re-run.
func (e *SignupEngine) AdminReject(ctx context.Context, adminID, signupID string) (*model.Signup, error) {
	if err := e.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	roundID, err := e.roundOfSignup(ctx, signupID)
	if err != nil {
		return nil, err
	}

	var rejected *model.Signup
	err = e.exec.withRoundLock(ctx, roundID, "reject signup", func(tx db.Tx, _ *outbox) error {
		signup, err := tx.GetSignup(ctx, signupID)
		if err != nil {
			return lookupError(err, "signup", signupID)
		}

		now := e.opts.now()
		if signup.Role.IsExclusive() && signup.Status == model.SignupConfirmed {
			if err := e.releaseRoleTx(ctx, tx, signup.RoundID, signup.Role, signup.UserID, now); err != nil {
				return err
			}
		}

		signup.Status = model.SignupRejected
		signup.LotteryNumber = nil
		signup.UpdatedAt = now
		if err := tx.UpdateSignup(ctx, signup); err != nil {
			return writeError(err, "reject signup")
		}
		rejected = signup
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Signup rejected by admin",
		zap.String("signup_id", signupID),
		zap.String("admin_id", adminID))
	return rejected, nil
}

// releaseRoleTx clears the round's field for role if userID currently holds it
func (e *SignupEngine) releaseRoleTx(ctx context.Context, tx db.Tx, roundID string, role model.SignupRole, userID string, now time.Time) error {
	round, err := tx.GetRound(ctx, roundID)
	if err != nil {
		return lookupError(err, "round", roundID)
	}
	holder := round.ExclusiveHolder(role)
	if holder == nil || *holder != userID {
		return nil
	}
	round.SetExclusiveHolder(role, nil)
	round.UpdatedAt = now
	if err := tx.UpdateRound(ctx, round); err != nil {
		return fmt.Errorf("failed to clear %s: %w", roleName(role), err)
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, db.ErrNotFound)
}
