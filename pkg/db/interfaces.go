package db

import (
	"context"
	"errors"
	"time"

	"github.com/streetmed/rounds/pkg/core/model"
)

// ErrNotFound is returned by single-record lookups when no record matches
var ErrNotFound = errors.New("record not found")

// RoundFilter narrows ListRounds. Zero values are ignored.
// Results are ordered by start time ascending.
type RoundFilter struct {
	Status           model.RoundStatus
	StartAfter       *time.Time
	StartBefore      *time.Time
	TeamLeadID       string
	ClinicianID      string
	MissingTeamLead  bool
	MissingClinician bool
}

// RoundStore defines the round record operations
type RoundStore interface {
	InsertRound(ctx context.Context, round *model.Round) error
	UpdateRound(ctx context.Context, round *model.Round) error
	GetRound(ctx context.Context, id string) (*model.Round, error)
	ListRounds(ctx context.Context, filter RoundFilter) ([]model.Round, error)
}

// SignupStore defines the signup record operations
type SignupStore interface {
	InsertSignup(ctx context.Context, signup *model.Signup) error
	UpdateSignup(ctx context.Context, signup *model.Signup) error
	DeleteSignup(ctx context.Context, id string) error
	GetSignup(ctx context.Context, id string) (*model.Signup, error)
	FindSignup(ctx context.Context, roundID, userID string) (*model.Signup, error)
	ListSignupsByRound(ctx context.Context, roundID string) ([]model.Signup, error)
	ListSignupsByUser(ctx context.Context, userID string) ([]model.Signup, error)
	// ListSignupsByStatus returns signups for a round with the given status.
	// Waitlisted signups are ordered by lottery number, everything else by signup time.
	ListSignupsByStatus(ctx context.Context, roundID string, status model.SignupStatus) ([]model.Signup, error)
	CountConfirmedVolunteers(ctx context.Context, roundID string) (int, error)
}

// Tx is the set of operations available inside a transaction
type Tx interface {
	RoundStore
	SignupStore
}

// Database defines the interface for all database operations.
// Both the in-memory MemoryDB and postgres.DB implement this interface.
type Database interface {
	Tx
	// RunInTx runs fn in a transaction. Writes made through tx are discarded if fn returns an error.
	RunInTx(ctx context.Context, fn func(tx Tx) error) error
}
