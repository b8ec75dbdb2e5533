package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/streetmed/rounds/pkg/core/model"
	"github.com/streetmed/rounds/pkg/db"
)

const roundColumns = `id, title, description, start_time, end_time, location, max_participants,
	team_lead_id, clinician_id, status, created_at, updated_at`

func scanRound(row pgx.CollectableRow) (model.Round, error) {
	var r model.Round
	var status string
	err := row.Scan(&r.ID, &r.Title, &r.Description, &r.StartTime, &r.EndTime, &r.Location,
		&r.MaxParticipants, &r.TeamLeadID, &r.ClinicianID, &status, &r.CreatedAt, &r.UpdatedAt)
	r.Status = model.RoundStatus(status)
	return r, err
}

// InsertRound inserts a new round record
func (s *store) InsertRound(ctx context.Context, round *model.Round) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO round (`+roundColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, round.ID, round.Title, round.Description, round.StartTime.UTC(), round.EndTime.UTC(), round.Location,
		round.MaxParticipants, round.TeamLeadID, round.ClinicianID, string(round.Status),
		round.CreatedAt.UTC(), round.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert round: %w", mapError(err))
	}
	return nil
}

// UpdateRound overwrites every mutable column of a round
func (s *store) UpdateRound(ctx context.Context, round *model.Round) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE round SET
			title = $2, description = $3, start_time = $4, end_time = $5, location = $6,
			max_participants = $7, team_lead_id = $8, clinician_id = $9, status = $10, updated_at = $11
		WHERE id = $1
	`, round.ID, round.Title, round.Description, round.StartTime.UTC(), round.EndTime.UTC(), round.Location,
		round.MaxParticipants, round.TeamLeadID, round.ClinicianID, string(round.Status), round.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to update round: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

// GetRound retrieves a round by id, locking the row when called inside a transaction
func (s *store) GetRound(ctx context.Context, id string) (*model.Round, error) {
	query := `SELECT ` + roundColumns + ` FROM round WHERE id = $1`
	if s.lockRound {
		query += ` FOR UPDATE`
	}

	rows, err := s.q.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query round: %w", mapError(err))
	}
	r, err := pgx.CollectExactlyOneRow(rows, scanRound)
	if err != nil {
		return nil, mapError(err)
	}
	return &r, nil
}

// ListRounds retrieves rounds matching the filter ordered by start time
func (s *store) ListRounds(ctx context.Context, filter db.RoundFilter) ([]model.Round, error) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.StartAfter != nil {
		add("start_time > $%d", filter.StartAfter.UTC())
	}
	if filter.StartBefore != nil {
		add("start_time < $%d", filter.StartBefore.UTC())
	}
	if filter.TeamLeadID != "" {
		add("team_lead_id = $%d", filter.TeamLeadID)
	}
	if filter.ClinicianID != "" {
		add("clinician_id = $%d", filter.ClinicianID)
	}
	if filter.MissingTeamLead {
		conds = append(conds, "team_lead_id IS NULL")
	}
	if filter.MissingClinician {
		conds = append(conds, "clinician_id IS NULL")
	}

	query := `SELECT ` + roundColumns + ` FROM round`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY start_time ASC, id ASC`

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rounds: %w", err)
	}
	rounds, err := pgx.CollectRows(rows, scanRound)
	if err != nil {
		return nil, fmt.Errorf("failed to scan rounds: %w", err)
	}
	return rounds, nil
}
