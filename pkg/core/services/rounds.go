package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/streetmed/rounds/pkg/core/apperr"
	"github.com/streetmed/rounds/pkg/core/model"
	"github.com/streetmed/rounds/pkg/core/roundlock"
	"github.com/streetmed/rounds/pkg/db"
)

// RoundSpec holds the fields needed to create a round
type RoundSpec struct {
	Title           string `validate:"required"`
	Description     string
	StartTime       time.Time `validate:"required"`
	EndTime         time.Time `validate:"required,gtfield=StartTime"`
	Location        string    `validate:"required"`
	MaxParticipants int       `validate:"min=1"`
}

// RoundPatch is a partial update. Nil fields are left unchanged.
// For TeamLeadID and ClinicianID an empty string clears the assignment.
type RoundPatch struct {
	Title           *string
	Description     *string
	StartTime       *time.Time
	EndTime         *time.Time
	Location        *string
	MaxParticipants *int
	TeamLeadID      *string
	ClinicianID     *string
	Status          *model.RoundStatus
}

// ExclusiveRoleAssigner owns the team lead and clinician fields of a round.
// An empty userID clears the role.
type ExclusiveRoleAssigner interface {
	CheckExclusiveRole(ctx context.Context, roundID string, role model.SignupRole, userID string) error
	SetExclusiveRole(ctx context.Context, roundID string, role model.SignupRole, userID string) (*model.Round, error)
}

// RoundRegistry manages round records other than their role assignments
type RoundRegistry struct {
	exec   *executor
	db     db.Database
	roles  ExclusiveRoleAssigner
	logger *zap.Logger
	opts   options
}

func NewRoundRegistry(database db.Database, locks *roundlock.Locker, logger *zap.Logger, opts ...Option) *RoundRegistry {
	return &RoundRegistry{
		exec:   &executor{db: database, locks: locks, logger: logger},
		db:     database,
		logger: logger,
		opts:   buildOptions(opts),
	}
}

// SetRoleAssigner routes role-id patches to the signup engine
func (r *RoundRegistry) SetRoleAssigner(roles ExclusiveRoleAssigner) {
	r.roles = roles
}

// Create validates spec and stores a new SCHEDULED round
func (r *RoundRegistry) Create(ctx context.Context, spec RoundSpec) (*model.Round, error) {
	if err := validate.Struct(spec); err != nil {
		return nil, validationError("round", err)
	}

	round := newRound(spec, r.opts.now())

	r.logger.Debug("Creating round",
		zap.String("round_id", round.ID),
		zap.String("title", round.Title),
		zap.Time("start_time", round.StartTime))

	if err := r.db.InsertRound(ctx, round); err != nil {
		return nil, fmt.Errorf("failed to insert round: %w", err)
	}

	r.logger.Info("Round created", zap.String("round_id", round.ID), zap.String("title", round.Title))
	return round, nil
}

func newRound(spec RoundSpec, now time.Time) *model.Round {
	return &model.Round{
		ID:              uuid.New().String(),
		Title:           spec.Title,
		Description:     spec.Description,
		StartTime:       spec.StartTime,
		EndTime:         spec.EndTime,
		Location:        spec.Location,
		MaxParticipants: spec.MaxParticipants,
		Status:          model.RoundScheduled,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Update applies patch to the round. Capacity is not re-validated against
// existing confirmed signups; a reduction below the confirmed count is logged.
// Role-id fields are checked by the signup engine before anything is written
// and applied after the other fields commit. If the role write still fails,
// the committed round is returned along with the error.
func (r *RoundRegistry) Update(ctx context.Context, id string, patch RoundPatch) (*model.Round, error) {
	roleFields := []struct {
		role   model.SignupRole
		userID *string
	}{
		{model.RoleTeamLead, patch.TeamLeadID},
		{model.RoleClinician, patch.ClinicianID},
	}
	assigning := false
	for _, f := range roleFields {
		if f.userID == nil {
			continue
		}
		if r.roles == nil {
			return nil, fmt.Errorf("round role assignment is not configured")
		}
		if *f.userID != "" {
			assigning = true
		}
		if err := r.roles.CheckExclusiveRole(ctx, id, f.role, *f.userID); err != nil {
			return nil, err
		}
	}
	if assigning && patch.Status != nil && patch.Status.IsTerminal() {
		return nil, apperr.Validation("cannot assign roles while moving the round to %s", *patch.Status)
	}

	var updated *model.Round
	err := r.exec.withRoundLock(ctx, id, "update round", func(tx db.Tx, _ *outbox) error {
		round, err := tx.GetRound(ctx, id)
		if err != nil {
			return lookupError(err, "round", id)
		}

		if err := applyPatch(round, patch); err != nil {
			return err
		}

		if patch.MaxParticipants != nil {
			confirmed, err := tx.CountConfirmedVolunteers(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to count confirmed volunteers: %w", err)
			}
			if confirmed > round.MaxParticipants {
				r.logger.Warn("Round capacity reduced below confirmed volunteers",
					zap.String("round_id", id),
					zap.Int("max_participants", round.MaxParticipants),
					zap.Int("confirmed", confirmed))
			}
		}

		round.UpdatedAt = r.opts.now()
		if err := tx.UpdateRound(ctx, round); err != nil {
			return fmt.Errorf("failed to update round: %w", err)
		}
		updated = round
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, f := range roleFields {
		if f.userID == nil {
			continue
		}
		assigned, err := r.roles.SetExclusiveRole(ctx, id, f.role, *f.userID)
		if err != nil {
			r.logger.Warn("Round updated but role assignment failed",
				zap.String("round_id", id),
				zap.String("role", string(f.role)),
				zap.Error(err))
			return updated, fmt.Errorf("round updated but %s assignment failed: %w", roleName(f.role), err)
		}
		updated = assigned
	}

	r.logger.Info("Round updated", zap.String("round_id", id))
	return updated, nil
}

// applyPatch merges patch into round and validates the result
func applyPatch(round *model.Round, patch RoundPatch) error {
	if patch.Status != nil && *patch.Status != round.Status {
		if !patch.Status.IsValid() {
			return apperr.Validation("invalid round status %q", *patch.Status)
		}
		if round.Status.IsTerminal() {
			return apperr.InvalidState("round is %s and its status can no longer change", round.Status)
		}
		round.Status = *patch.Status
	}

	if patch.Title != nil {
		round.Title = *patch.Title
	}
	if patch.Description != nil {
		round.Description = *patch.Description
	}
	if patch.StartTime != nil {
		round.StartTime = *patch.StartTime
	}
	if patch.EndTime != nil {
		round.EndTime = *patch.EndTime
	}
	if patch.Location != nil {
		round.Location = *patch.Location
	}
	if patch.MaxParticipants != nil {
		round.MaxParticipants = *patch.MaxParticipants
	}

	spec := RoundSpec{
		Title:           round.Title,
		Description:     round.Description,
		StartTime:       round.StartTime,
		EndTime:         round.EndTime,
		Location:        round.Location,
		MaxParticipants: round.MaxParticipants,
	}
	if err := validate.Struct(spec); err != nil {
		return validationError("round update", err)
	}
	return nil
}

// Cancel marks the round CANCELED. Cancelling an already canceled round is a no-op
// so the cancellation saga can be resumed. Signups are released separately by
// SignupEngine.CascadeRoundCancellation.
func (r *RoundRegistry) Cancel(ctx context.Context, id string) (*model.Round, error) {
	return r.transition(ctx, id, model.RoundCanceled)
}

// Complete marks a SCHEDULED round COMPLETED
func (r *RoundRegistry) Complete(ctx context.Context, id string) (*model.Round, error) {
	return r.transition(ctx, id, model.RoundCompleted)
}

func (r *RoundRegistry) transition(ctx context.Context, id string, to model.RoundStatus) (*model.Round, error) {
	var result *model.Round
	err := r.exec.withRoundLock(ctx, id, "set round status", func(tx db.Tx, _ *outbox) error {
		round, err := tx.GetRound(ctx, id)
		if err != nil {
			return lookupError(err, "round", id)
		}

		if round.Status == to && to == model.RoundCanceled {
			result = round
			return nil
		}
		if round.Status.IsTerminal() {
			return apperr.InvalidState("round is already %s", round.Status)
		}

		round.Status = to
		round.UpdatedAt = r.opts.now()
		if err := tx.UpdateRound(ctx, round); err != nil {
			return fmt.Errorf("failed to update round: %w", err)
		}
		result = round
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("Round status changed", zap.String("round_id", id), zap.String("status", string(result.Status)))
	return result, nil
}

// Get returns a round by id
func (r *RoundRegistry) Get(ctx context.Context, id string) (*model.Round, error) {
	round, err := r.db.GetRound(ctx, id)
	if err != nil {
		return nil, lookupError(err, "round", id)
	}
	return round, nil
}

// ListUpcoming returns SCHEDULED rounds starting after now
func (r *RoundRegistry) ListUpcoming(ctx context.Context) ([]model.Round, error) {
	now := r.opts.now()
	return r.list(ctx, db.RoundFilter{Status: model.RoundScheduled, StartAfter: &now})
}

// ListByStatus returns all rounds with the given status
func (r *RoundRegistry) ListByStatus(ctx context.Context, status model.RoundStatus) ([]model.Round, error) {
	if !status.IsValid() {
		return nil, apperr.Validation("invalid round status %q", status)
	}
	return r.list(ctx, db.RoundFilter{Status: status})
}

// ListInRange returns SCHEDULED rounds starting within [start, end]
func (r *RoundRegistry) ListInRange(ctx context.Context, start, end time.Time) ([]model.Round, error) {
	if end.Before(start) {
		return nil, apperr.Validation("range end must not be before range start")
	}
	after := start.Add(-time.Nanosecond)
	before := end.Add(time.Nanosecond)
	return r.list(ctx, db.RoundFilter{Status: model.RoundScheduled, StartAfter: &after, StartBefore: &before})
}

// ListNeedingTeamLead returns upcoming SCHEDULED rounds without a team lead
func (r *RoundRegistry) ListNeedingTeamLead(ctx context.Context) ([]model.Round, error) {
	now := r.opts.now()
	return r.list(ctx, db.RoundFilter{Status: model.RoundScheduled, StartAfter: &now, MissingTeamLead: true})
}

// ListNeedingClinician returns upcoming SCHEDULED rounds without a clinician
func (r *RoundRegistry) ListNeedingClinician(ctx context.Context) ([]model.Round, error) {
	now := r.opts.now()
	return r.list(ctx, db.RoundFilter{Status: model.RoundScheduled, StartAfter: &now, MissingClinician: true})
}

// ListForTeamLead returns every round the user leads, in any status
func (r *RoundRegistry) ListForTeamLead(ctx context.Context, userID string) ([]model.Round, error) {
	return r.list(ctx, db.RoundFilter{TeamLeadID: userID})
}

// ListForClinician returns every round the user is clinician for, in any status
func (r *RoundRegistry) ListForClinician(ctx context.Context, userID string) ([]model.Round, error) {
	return r.list(ctx, db.RoundFilter{ClinicianID: userID})
}

// CountUpcoming returns the number of SCHEDULED rounds starting after now
func (r *RoundRegistry) CountUpcoming(ctx context.Context) (int, error) {
	rounds, err := r.ListUpcoming(ctx)
	if err != nil {
		return 0, err
	}
	return len(rounds), nil
}

func (r *RoundRegistry) list(ctx context.Context, filter db.RoundFilter) ([]model.Round, error) {
	rounds, err := r.db.ListRounds(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list rounds: %w", err)
	}
	if rounds == nil {
		rounds = []model.Round{}
	}
	return rounds, nil
}
