package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/streetmed/rounds/pkg/core/model"
)

// SignupDetail is a signup enriched with the user's contact fields
type SignupDetail struct {
	model.Signup
	Username  string `json:"username,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// RoundSignup pairs a user's signup with its round
type RoundSignup struct {
	Signup model.Signup `json:"signup"`
	Round  model.Round  `json:"round"`
}

// UserSignups splits a user's signups by whether the round has started
type UserSignups struct {
	Upcoming []RoundSignup `json:"upcoming"`
	Past     []RoundSignup `json:"past"`
}

// ParticipantCounts summarises a round's admission state
type ParticipantCounts struct {
	Confirmed       int  `json:"confirmed"`
	Waitlisted      int  `json:"waitlisted"`
	HasTeamLead     bool `json:"hasTeamLead"`
	HasClinician    bool `json:"hasClinician"`
	MaxParticipants int  `json:"maxParticipants"`
	AvailableSlots  int  `json:"availableSlots"`
}

func (e *SignupEngine) getRound(ctx context.Context, roundID string) (*model.Round, error) {
	round, err := e.db.GetRound(ctx, roundID)
	if err != nil {
		return nil, lookupError(err, "round", roundID)
	}
	return round, nil
}

// ListSignupsForRound returns every signup of a round with identity fields filled in.
// Users the identity lookup cannot resolve are returned without contact fields.
func (e *SignupEngine) ListSignupsForRound(ctx context.Context, roundID string) ([]SignupDetail, error) {
	if _, err := e.getRound(ctx, roundID); err != nil {
		return nil, err
	}

	signups, err := e.db.ListSignupsByRound(ctx, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to list signups: %w", err)
	}

	details := make([]SignupDetail, 0, len(signups))
	for _, s := range signups {
		d := SignupDetail{Signup: s}
		user, err := e.identity.GetUser(ctx, s.UserID)
		if err != nil {
			e.logger.Warn("Failed to look up signup user",
				zap.String("signup_id", s.ID),
				zap.String("user_id", s.UserID),
				zap.Error(err))
		} else {
			d.Username = user.Username
			d.FirstName = user.FirstName
			d.LastName = user.LastName
			d.Email = user.Email
			d.Phone = user.Phone
		}
		details = append(details, d)
	}
	return details, nil
}

// ListUserSignups returns the user's signups split into upcoming and past rounds
func (e *SignupEngine) ListUserSignups(ctx context.Context, userID string) (*UserSignups, error) {
	signups, err := e.db.ListSignupsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list signups for user %s: %w", userID, err)
	}

	now := e.opts.now()
	result := &UserSignups{Upcoming: []RoundSignup{}, Past: []RoundSignup{}}
	for _, s := range signups {
		round, err := e.db.GetRound(ctx, s.RoundID)
		if err != nil {
			if isNotFound(err) {
				e.logger.Warn("Signup references missing round",
					zap.String("signup_id", s.ID),
					zap.String("round_id", s.RoundID))
				continue
			}
			return nil, fmt.Errorf("failed to get round %s: %w", s.RoundID, err)
		}

		rs := RoundSignup{Signup: s, Round: *round}
		if round.StartTime.After(now) {
			result.Upcoming = append(result.Upcoming, rs)
		} else {
			result.Past = append(result.Past, rs)
		}
	}
	return result, nil
}

// ParticipantCounts returns confirmed and waitlisted counts and role coverage for a round
func (e *SignupEngine) ParticipantCounts(ctx context.Context, roundID string) (*ParticipantCounts, error) {
	round, err := e.getRound(ctx, roundID)
	if err != nil {
		return nil, err
	}

	confirmed, err := e.db.CountConfirmedVolunteers(ctx, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to count confirmed volunteers: %w", err)
	}
	waitlist, err := e.db.ListSignupsByStatus(ctx, roundID, model.SignupWaitlisted)
	if err != nil {
		return nil, fmt.Errorf("failed to list waitlist: %w", err)
	}

	return &ParticipantCounts{
		Confirmed:       confirmed,
		Waitlisted:      len(waitlist),
		HasTeamLead:     round.TeamLeadID != nil,
		HasClinician:    round.ClinicianID != nil,
		MaxParticipants: round.MaxParticipants,
		AvailableSlots:  round.MaxParticipants - confirmed,
	}, nil
}

// IsSignedUp reports whether the user has any signup on the round
func (e *SignupEngine) IsSignedUp(ctx context.Context, roundID, userID string) (bool, error) {
	_, err := e.db.FindSignup(ctx, roundID, userID)
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to find signup: %w", err)
}

// ListConfirmed returns the round's confirmed signups in signup order
func (e *SignupEngine) ListConfirmed(ctx context.Context, roundID string) ([]model.Signup, error) {
	return e.listByStatus(ctx, roundID, model.SignupConfirmed)
}

// ListWaitlist returns the round's waitlist in promotion order
func (e *SignupEngine) ListWaitlist(ctx context.Context, roundID string) ([]model.Signup, error) {
	return e.listByStatus(ctx, roundID, model.SignupWaitlisted)
}

func (e *SignupEngine) listByStatus(ctx context.Context, roundID string, status model.SignupStatus) ([]model.Signup, error) {
	if _, err := e.getRound(ctx, roundID); err != nil {
		return nil, err
	}
	signups, err := e.db.ListSignupsByStatus(ctx, roundID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s signups: %w", status, err)
	}
	if signups == nil {
		signups = []model.Signup{}
	}
	return signups, nil
}
