package services

import (
	"context"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
	"go.uber.org/zap"

	"github.com/streetmed/rounds/internal/config"
	"github.com/streetmed/rounds/pkg/core/apperr"
	"github.com/streetmed/rounds/pkg/core/model"
	"github.com/streetmed/rounds/pkg/db"
)

// maxSeriesRounds caps how many rounds one series expansion may create
const maxSeriesRounds = 366

// SeriesOccurrences expands a series rule into start times within [from, until]
func SeriesOccurrences(series config.RoundSeries, from, until time.Time) ([]time.Time, error) {
	if until.Before(from) {
		return nil, apperr.Validation("series end must not be before series start")
	}

	opt, err := rrule.StrToROption(series.RRule)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, fmt.Sprintf("invalid rrule for series %s", series.Name))
	}
	if opt.Dtstart.IsZero() {
		opt.Dtstart = time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	}

	rule, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, fmt.Sprintf("invalid rrule for series %s", series.Name))
	}

	return rule.Between(from, until, true), nil
}

// CreateSeries creates one round per occurrence of the series within [from, until].
// All rounds are inserted in a single transaction.
func (r *RoundRegistry) CreateSeries(ctx context.Context, series config.RoundSeries, from, until time.Time) ([]model.Round, error) {
	r.logger.Debug("Expanding round series",
		zap.String("series", series.Name),
		zap.Time("from", from),
		zap.Time("until", until))

	starts, err := SeriesOccurrences(series, from, until)
	if err != nil {
		return nil, err
	}
	if len(starts) == 0 {
		return nil, apperr.Validation("series %s has no occurrences between %s and %s",
			series.Name, from.Format(time.DateOnly), until.Format(time.DateOnly))
	}
	if len(starts) > maxSeriesRounds {
		return nil, apperr.Validation("series %s would create %d rounds, the limit is %d",
			series.Name, len(starts), maxSeriesRounds)
	}

	duration := time.Duration(series.DurationMinutes) * time.Minute
	now := r.opts.now()

	rounds := make([]model.Round, 0, len(starts))
	for _, start := range starts {
		spec := RoundSpec{
			Title:           series.Title,
			Description:     series.Description,
			StartTime:       start,
			EndTime:         start.Add(duration),
			Location:        series.Location,
			MaxParticipants: series.MaxParticipants,
		}
		if err := validate.Struct(spec); err != nil {
			return nil, validationError("series "+series.Name, err)
		}
		rounds = append(rounds, *newRound(spec, now))
	}

	err = r.db.RunInTx(ctx, func(tx db.Tx) error {
		for i := range rounds {
			if err := tx.InsertRound(ctx, &rounds[i]); err != nil {
				return fmt.Errorf("failed to insert round for %s: %w", rounds[i].StartTime.Format(time.RFC3339), err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("Round series created",
		zap.String("series", series.Name),
		zap.Int("count", len(rounds)))

	return rounds, nil
}
