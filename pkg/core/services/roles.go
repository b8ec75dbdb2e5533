package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/streetmed/rounds/pkg/core/apperr"
	"github.com/streetmed/rounds/pkg/core/model"
	"github.com/streetmed/rounds/pkg/db"
)

// AssignExclusiveRole lets an administrator make userID the round's team lead or clinician
func (e *SignupEngine) AssignExclusiveRole(ctx context.Context, adminID, roundID, userID string, role model.SignupRole) (*model.Round, error) {
	if err := e.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, apperr.Validation("user id is required")
	}
	return e.SetExclusiveRole(ctx, roundID, role, userID)
}

// SetExclusiveRole assigns or, when userID is empty, clears an exclusive role on a round.
//
// Assigning upserts the user's signup as CONFIRMED in that role. If that turns a
// confirmed volunteer into the role holder, the freed volunteer slot is offered
// to the waitlist. Clearing marks the previous holder's signup REJECTED.
// Assigning a role already held by someone else is a conflict.
func (e *SignupEngine) SetExclusiveRole(ctx context.Context, roundID string, role model.SignupRole, userID string) (*model.Round, error) {
	if !role.IsExclusive() {
		return nil, apperr.Validation("%s is not an exclusive role", role)
	}

	if userID == "" {
		return e.clearExclusiveRole(ctx, roundID, role)
	}

	if err := e.qualifyForRole(ctx, role, userID); err != nil {
		return nil, err
	}

	var result *model.Round
	err := e.exec.withRoundLock(ctx, roundID, "assign "+roleName(role), func(tx db.Tx, out *outbox) error {
		round, err := tx.GetRound(ctx, roundID)
		if err != nil {
			return lookupError(err, "round", roundID)
		}
		if round.Status.IsTerminal() {
			return apperr.InvalidState("round is %s", round.Status)
		}

		holder := round.ExclusiveHolder(role)
		if holder != nil && *holder == userID {
			result = round
			return nil
		}
		if holder != nil {
			return apperr.Conflict("this round already has a %s assigned", roleName(role))
		}

		now := e.opts.now()
		existing, err := tx.FindSignup(ctx, roundID, userID)
		switch {
		case err == nil:
			if existing.Role.IsExclusive() && existing.Status == model.SignupConfirmed {
				return apperr.Conflict("user already holds the %s role on this round", roleName(existing.Role))
			}
			wasConfirmedVolunteer := existing.IsConfirmedVolunteer()
			existing.Role = role
			existing.Status = model.SignupConfirmed
			existing.LotteryNumber = nil
			existing.UpdatedAt = now
			if err := tx.UpdateSignup(ctx, existing); err != nil {
				return writeError(err, "assign "+roleName(role))
			}
			out.add(userID, model.NotifySignupConfirmation, round, existing)
			if wasConfirmedVolunteer {
				if _, err := e.runLotteryTx(ctx, tx, round, out); err != nil {
					return err
				}
			}
		case isNotFound(err):
			signup := &model.Signup{
				ID:         uuid.New().String(),
				RoundID:    roundID,
				UserID:     userID,
				Role:       role,
				Status:     model.SignupConfirmed,
				SignupTime: now,
				UpdatedAt:  now,
			}
			if err := tx.InsertSignup(ctx, signup); err != nil {
				return writeError(err, "assign "+roleName(role))
			}
			out.add(userID, model.NotifySignupConfirmation, round, signup)
		default:
			return fmt.Errorf("failed to check existing signup: %w", err)
		}

		round.SetExclusiveHolder(role, &userID)
		round.UpdatedAt = now
		if err := tx.UpdateRound(ctx, round); err != nil {
			return fmt.Errorf("failed to assign %s: %w", roleName(role), err)
		}
		result = round
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Exclusive role assigned",
		zap.String("round_id", roundID),
		zap.String("user_id", userID),
		zap.String("role", string(role)))
	return result, nil
}

// CheckExclusiveRole reports whether SetExclusiveRole would accept userID for
// role on the round as it stands now. It takes no lock and writes nothing.
func (e *SignupEngine) CheckExclusiveRole(ctx context.Context, roundID string, role model.SignupRole, userID string) error {
	if !role.IsExclusive() {
		return apperr.Validation("%s is not an exclusive role", role)
	}
	if userID == "" {
		return nil
	}
	if err := e.qualifyForRole(ctx, role, userID); err != nil {
		return err
	}

	round, err := e.db.GetRound(ctx, roundID)
	if err != nil {
		return lookupError(err, "round", roundID)
	}
	if round.Status.IsTerminal() {
		return apperr.InvalidState("round is %s", round.Status)
	}
	if holder := round.ExclusiveHolder(role); holder != nil && *holder != userID {
		return apperr.Conflict("this round already has a %s assigned", roleName(role))
	}
	return nil
}

func (e *SignupEngine) qualifyForRole(ctx context.Context, role model.SignupRole, userID string) error {
	user, err := e.identity.GetUser(ctx, userID)
	if err != nil {
		if apperr.IsDomain(err) {
			return err
		}
		return fmt.Errorf("failed to look up user %s: %w", userID, err)
	}
	if !user.IsVolunteer() || !user.CanHold(role) {
		return apperr.Authorization("user is not qualified as a %s", roleName(role))
	}
	return nil
}

func (e *SignupEngine) clearExclusiveRole(ctx context.Context, roundID string, role model.SignupRole) (*model.Round, error) {
	var result *model.Round
	err := e.exec.withRoundLock(ctx, roundID, "clear "+roleName(role), func(tx db.Tx, _ *outbox) error {
		round, err := tx.GetRound(ctx, roundID)
		if err != nil {
			return lookupError(err, "round", roundID)
		}

		holder := round.ExclusiveHolder(role)
		if holder == nil {
			result = round
			return nil
		}

		now := e.opts.now()
		signup, err := tx.FindSignup(ctx, roundID, *holder)
		switch {
		case err == nil:
			if signup.Role == role && signup.Status == model.SignupConfirmed {
				signup.Status = model.SignupRejected
				signup.UpdatedAt = now
				if err := tx.UpdateSignup(ctx, signup); err != nil {
					return writeError(err, "release "+roleName(role))
				}
			}
		case !isNotFound(err):
			return fmt.Errorf("failed to find %s signup: %w", roleName(role), err)
		}

		e.logger.Info("Exclusive role cleared",
			zap.String("round_id", roundID),
			zap.String("user_id", *holder),
			zap.String("role", string(role)))

		round.SetExclusiveHolder(role, nil)
		round.UpdatedAt = now
		if err := tx.UpdateRound(ctx, round); err != nil {
			return fmt.Errorf("failed to clear %s: %w", roleName(role), err)
		}
		result = round
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
