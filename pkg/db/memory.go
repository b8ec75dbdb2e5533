package db

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/streetmed/rounds/pkg/core/model"
)

// ErrDuplicate is returned when a write would break a uniqueness constraint:
// one signup per (round, user) and one confirmed holder per exclusive role.
var ErrDuplicate = errors.New("duplicate record")

// MemoryDB is an in-process Database used when no database URL is configured
// and in tests. Each call takes the store mutex briefly; transactions keep an
// undo log rather than holding the mutex for their whole duration.
type MemoryDB struct {
	mu      sync.RWMutex
	rounds  map[string]model.Round
	signups map[string]model.Signup
}

var _ Database = (*MemoryDB)(nil)

// NewMemoryDB creates an empty in-memory database
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		rounds:  make(map[string]model.Round),
		signups: make(map[string]model.Signup),
	}
}

// memTx records inverse operations so a failed transaction can be rolled back
type memTx struct {
	db   *MemoryDB
	undo []func()
}

func (db *MemoryDB) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	tx := &memTx{db: db}
	if err := fn(tx); err != nil {
		db.mu.Lock()
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		db.mu.Unlock()
		return err
	}
	return nil
}

// record is called with db.mu held
func (tx *memTx) record(fn func()) {
	tx.undo = append(tx.undo, fn)
}

func cloneRound(r model.Round) model.Round {
	if r.TeamLeadID != nil {
		v := *r.TeamLeadID
		r.TeamLeadID = &v
	}
	if r.ClinicianID != nil {
		v := *r.ClinicianID
		r.ClinicianID = &v
	}
	return r
}

func cloneSignup(s model.Signup) model.Signup {
	if s.LotteryNumber != nil {
		v := *s.LotteryNumber
		s.LotteryNumber = &v
	}
	return s
}

// Rounds

func (db *MemoryDB) InsertRound(ctx context.Context, round *model.Round) error {
	return db.insertRound(round, nil)
}

func (db *MemoryDB) UpdateRound(ctx context.Context, round *model.Round) error {
	return db.updateRound(round, nil)
}

func (db *MemoryDB) GetRound(ctx context.Context, id string) (*model.Round, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	r, ok := db.rounds[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneRound(r)
	return &out, nil
}

func (db *MemoryDB) ListRounds(ctx context.Context, filter RoundFilter) ([]model.Round, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var rounds []model.Round
	for _, r := range db.rounds {
		if matchesRound(r, filter) {
			rounds = append(rounds, cloneRound(r))
		}
	}
	sort.Slice(rounds, func(i, j int) bool {
		if rounds[i].StartTime.Equal(rounds[j].StartTime) {
			return rounds[i].ID < rounds[j].ID
		}
		return rounds[i].StartTime.Before(rounds[j].StartTime)
	})
	return rounds, nil
}

func matchesRound(r model.Round, f RoundFilter) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.StartAfter != nil && !r.StartTime.After(*f.StartAfter) {
		return false
	}
	if f.StartBefore != nil && !r.StartTime.Before(*f.StartBefore) {
		return false
	}
	if f.TeamLeadID != "" && (r.TeamLeadID == nil || *r.TeamLeadID != f.TeamLeadID) {
		return false
	}
	if f.ClinicianID != "" && (r.ClinicianID == nil || *r.ClinicianID != f.ClinicianID) {
		return false
	}
	if f.MissingTeamLead && r.TeamLeadID != nil {
		return false
	}
	if f.MissingClinician && r.ClinicianID != nil {
		return false
	}
	return true
}

func (db *MemoryDB) insertRound(round *model.Round, tx *memTx) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, exists := db.rounds[round.ID]; exists {
		return fmt.Errorf("failed to insert round %s: %w", round.ID, ErrDuplicate)
	}
	db.rounds[round.ID] = cloneRound(*round)
	if tx != nil {
		id := round.ID
		tx.record(func() { delete(db.rounds, id) })
	}
	return nil
}

func (db *MemoryDB) updateRound(round *model.Round, tx *memTx) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	prev, exists := db.rounds[round.ID]
	if !exists {
		return ErrNotFound
	}
	db.rounds[round.ID] = cloneRound(*round)
	if tx != nil {
		tx.record(func() { db.rounds[prev.ID] = prev })
	}
	return nil
}

// Signups

func (db *MemoryDB) InsertSignup(ctx context.Context, signup *model.Signup) error {
	return db.insertSignup(signup, nil)
}

func (db *MemoryDB) UpdateSignup(ctx context.Context, signup *model.Signup) error {
	return db.updateSignup(signup, nil)
}

func (db *MemoryDB) DeleteSignup(ctx context.Context, id string) error {
	return db.deleteSignup(id, nil)
}

func (db *MemoryDB) GetSignup(ctx context.Context, id string) (*model.Signup, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	s, ok := db.signups[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneSignup(s)
	return &out, nil
}

func (db *MemoryDB) FindSignup(ctx context.Context, roundID, userID string) (*model.Signup, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	for _, s := range db.signups {
		if s.RoundID == roundID && s.UserID == userID {
			out := cloneSignup(s)
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (db *MemoryDB) ListSignupsByRound(ctx context.Context, roundID string) ([]model.Signup, error) {
	return db.listSignups(func(s model.Signup) bool { return s.RoundID == roundID }, bySignupTime), nil
}

func (db *MemoryDB) ListSignupsByUser(ctx context.Context, userID string) ([]model.Signup, error) {
	return db.listSignups(func(s model.Signup) bool { return s.UserID == userID }, bySignupTime), nil
}

func (db *MemoryDB) ListSignupsByStatus(ctx context.Context, roundID string, status model.SignupStatus) ([]model.Signup, error) {
	less := bySignupTime
	if status == model.SignupWaitlisted {
		less = byLotteryNumber
	}
	return db.listSignups(func(s model.Signup) bool {
		return s.RoundID == roundID && s.Status == status
	}, less), nil
}

func (db *MemoryDB) CountConfirmedVolunteers(ctx context.Context, roundID string) (int, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	count := 0
	for _, s := range db.signups {
		if s.RoundID == roundID && s.IsConfirmedVolunteer() {
			count++
		}
	}
	return count, nil
}

func bySignupTime(a, b model.Signup) bool {
	if a.SignupTime.Equal(b.SignupTime) {
		return a.ID < b.ID
	}
	return a.SignupTime.Before(b.SignupTime)
}

// byLotteryNumber orders ascending by lottery number; ties fall back to signup time
func byLotteryNumber(a, b model.Signup) bool {
	la, lb := lotteryValue(a), lotteryValue(b)
	if la != lb {
		return la < lb
	}
	return bySignupTime(a, b)
}

func lotteryValue(s model.Signup) int {
	if s.LotteryNumber == nil {
		return math.MaxInt
	}
	return *s.LotteryNumber
}

func (db *MemoryDB) listSignups(match func(model.Signup) bool, less func(a, b model.Signup) bool) []model.Signup {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var out []model.Signup
	for _, s := range db.signups {
		if match(s) {
			out = append(out, cloneSignup(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// checkUnique is called with db.mu held
func (db *MemoryDB) checkUnique(signup *model.Signup) error {
	for id, s := range db.signups {
		if id == signup.ID || s.RoundID != signup.RoundID {
			continue
		}
		if s.UserID == signup.UserID {
			return fmt.Errorf("user %s already has a signup for round %s: %w", signup.UserID, signup.RoundID, ErrDuplicate)
		}
		if signup.Role.IsExclusive() && signup.Status == model.SignupConfirmed &&
			s.Role == signup.Role && s.Status == model.SignupConfirmed {
			return fmt.Errorf("round %s already has a confirmed %s: %w", signup.RoundID, signup.Role, ErrDuplicate)
		}
	}
	return nil
}

func (db *MemoryDB) insertSignup(signup *model.Signup, tx *memTx) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, exists := db.signups[signup.ID]; exists {
		return fmt.Errorf("failed to insert signup %s: %w", signup.ID, ErrDuplicate)
	}
	if err := db.checkUnique(signup); err != nil {
		return err
	}
	db.signups[signup.ID] = cloneSignup(*signup)
	if tx != nil {
		id := signup.ID
		tx.record(func() { delete(db.signups, id) })
	}
	return nil
}

func (db *MemoryDB) updateSignup(signup *model.Signup, tx *memTx) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	prev, exists := db.signups[signup.ID]
	if !exists {
		return ErrNotFound
	}
	if err := db.checkUnique(signup); err != nil {
		return err
	}
	db.signups[signup.ID] = cloneSignup(*signup)
	if tx != nil {
		tx.record(func() { db.signups[prev.ID] = prev })
	}
	return nil
}

func (db *MemoryDB) deleteSignup(id string, tx *memTx) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	prev, exists := db.signups[id]
	if !exists {
		return ErrNotFound
	}
	delete(db.signups, id)
	if tx != nil {
		tx.record(func() { db.signups[prev.ID] = prev })
	}
	return nil
}

// memTx forwards reads to the store and routes writes through the undo log

func (tx *memTx) InsertRound(ctx context.Context, round *model.Round) error {
	return tx.db.insertRound(round, tx)
}

func (tx *memTx) UpdateRound(ctx context.Context, round *model.Round) error {
	return tx.db.updateRound(round, tx)
}

func (tx *memTx) GetRound(ctx context.Context, id string) (*model.Round, error) {
	return tx.db.GetRound(ctx, id)
}

func (tx *memTx) ListRounds(ctx context.Context, filter RoundFilter) ([]model.Round, error) {
	return tx.db.ListRounds(ctx, filter)
}

func (tx *memTx) InsertSignup(ctx context.Context, signup *model.Signup) error {
	return tx.db.insertSignup(signup, tx)
}

func (tx *memTx) UpdateSignup(ctx context.Context, signup *model.Signup) error {
	return tx.db.updateSignup(signup, tx)
}

func (tx *memTx) DeleteSignup(ctx context.Context, id string) error {
	return tx.db.deleteSignup(id, tx)
}

func (tx *memTx) GetSignup(ctx context.Context, id string) (*model.Signup, error) {
	return tx.db.GetSignup(ctx, id)
}

func (tx *memTx) FindSignup(ctx context.Context, roundID, userID string) (*model.Signup, error) {
	return tx.db.FindSignup(ctx, roundID, userID)
}

func (tx *memTx) ListSignupsByRound(ctx context.Context, roundID string) ([]model.Signup, error) {
	return tx.db.ListSignupsByRound(ctx, roundID)
}

func (tx *memTx) ListSignupsByUser(ctx context.Context, userID string) ([]model.Signup, error) {
	return tx.db.ListSignupsByUser(ctx, userID)
}

func (tx *memTx) ListSignupsByStatus(ctx context.Context, roundID string, status model.SignupStatus) ([]model.Signup, error) {
	return tx.db.ListSignupsByStatus(ctx, roundID, status)
}

func (tx *memTx) CountConfirmedVolunteers(ctx context.Context, roundID string) (int, error) {
	return tx.db.CountConfirmedVolunteers(ctx, roundID)
}
