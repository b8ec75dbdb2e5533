package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/streetmed/rounds/pkg/core/model"
	"github.com/streetmed/rounds/pkg/db"
)

const signupColumns = `id, round_id, user_id, role, status, signup_time, lottery_number, updated_at`

func scanSignup(row pgx.CollectableRow) (model.Signup, error) {
	var s model.Signup
	var role, status string
	err := row.Scan(&s.ID, &s.RoundID, &s.UserID, &role, &status, &s.SignupTime, &s.LotteryNumber, &s.UpdatedAt)
	s.Role = model.SignupRole(role)
	s.Status = model.SignupStatus(status)
	return s, err
}

func (s *store) collectSignups(ctx context.Context, query string, args ...any) ([]model.Signup, error) {
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query signups: %w", err)
	}
	signups, err := pgx.CollectRows(rows, scanSignup)
	if err != nil {
		return nil, fmt.Errorf("failed to scan signups: %w", err)
	}
	return signups, nil
}

func (s *store) getSignup(ctx context.Context, query string, args ...any) (*model.Signup, error) {
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query signup: %w", mapError(err))
	}
	signup, err := pgx.CollectExactlyOneRow(rows, scanSignup)
	if err != nil {
		return nil, mapError(err)
	}
	return &signup, nil
}

// InsertSignup inserts a new signup record
func (s *store) InsertSignup(ctx context.Context, signup *model.Signup) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO round_signup (`+signupColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, signup.ID, signup.RoundID, signup.UserID, string(signup.Role), string(signup.Status),
		signup.SignupTime.UTC(), signup.LotteryNumber, signup.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert signup: %w", mapError(err))
	}
	return nil
}

// UpdateSignup overwrites role, status, lottery number and updated_at
func (s *store) UpdateSignup(ctx context.Context, signup *model.Signup) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE round_signup SET role = $2, status = $3, lottery_number = $4, updated_at = $5
		WHERE id = $1
	`, signup.ID, string(signup.Role), string(signup.Status), signup.LotteryNumber, signup.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to update signup: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

// DeleteSignup hard-deletes a signup record
func (s *store) DeleteSignup(ctx context.Context, id string) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM round_signup WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete signup: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (s *store) GetSignup(ctx context.Context, id string) (*model.Signup, error) {
	return s.getSignup(ctx, `SELECT `+signupColumns+` FROM round_signup WHERE id = $1`, id)
}

func (s *store) FindSignup(ctx context.Context, roundID, userID string) (*model.Signup, error) {
	return s.getSignup(ctx, `SELECT `+signupColumns+` FROM round_signup WHERE round_id = $1 AND user_id = $2`, roundID, userID)
}

func (s *store) ListSignupsByRound(ctx context.Context, roundID string) ([]model.Signup, error) {
	return s.collectSignups(ctx, `
		SELECT `+signupColumns+` FROM round_signup
		WHERE round_id = $1
		ORDER BY signup_time ASC, id ASC
	`, roundID)
}

func (s *store) ListSignupsByUser(ctx context.Context, userID string) ([]model.Signup, error) {
	return s.collectSignups(ctx, `
		SELECT `+signupColumns+` FROM round_signup
		WHERE user_id = $1
		ORDER BY signup_time ASC, id ASC
	`, userID)
}

func (s *store) ListSignupsByStatus(ctx context.Context, roundID string, status model.SignupStatus) ([]model.Signup, error) {
	order := `signup_time ASC, id ASC`
	if status == model.SignupWaitlisted {
		order = `lottery_number ASC NULLS LAST, signup_time ASC, id ASC`
	}
	return s.collectSignups(ctx, `
		SELECT `+signupColumns+` FROM round_signup
		WHERE round_id = $1 AND status = $2
		ORDER BY `+order, roundID, string(status))
}

// CountConfirmedVolunteers counts confirmed signups holding the plain volunteer role
func (s *store) CountConfirmedVolunteers(ctx context.Context, roundID string) (int, error) {
	var count int
	err := s.q.QueryRow(ctx, `
		SELECT COUNT(*) FROM round_signup
		WHERE round_id = $1 AND status = 'CONFIRMED' AND role = 'VOLUNTEER'
	`, roundID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count confirmed volunteers: %w", err)
	}
	return count, nil
}
