package identity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/streetmed/rounds/pkg/core/apperr"
	"github.com/streetmed/rounds/pkg/core/model"
)

// UserSource loads the full user roster, e.g. sheetsclient.Client
type UserSource interface {
	ListUsers(ctx context.Context) ([]model.User, error)
}

// Directory answers identity lookups from a cached copy of the roster.
// The roster is reloaded once it is older than the TTL. If a reload fails
// and a previous copy exists, the stale copy keeps serving.
type Directory struct {
	source UserSource
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	users    map[string]model.User
	loadedAt time.Time
}

func NewDirectory(source UserSource, ttl time.Duration, logger *zap.Logger) *Directory {
	return &Directory{
		source: source,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// GetUser returns a copy of the user with the given id
func (d *Directory) GetUser(ctx context.Context, id string) (*model.User, error) {
	users, err := d.roster(ctx)
	if err != nil {
		return nil, err
	}

	user, ok := users[id]
	if !ok {
		return nil, apperr.NotFound("user %s not found", id)
	}
	user.SubRoles = append([]model.SubRole(nil), user.SubRoles...)
	return &user, nil
}

// Refresh forces a reload of the roster
func (d *Directory) Refresh(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.load(ctx)
}

func (d *Directory) roster(ctx context.Context) (map[string]model.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.users != nil && d.now().Sub(d.loadedAt) < d.ttl {
		return d.users, nil
	}

	if err := d.load(ctx); err != nil {
		if d.users == nil {
			return nil, err
		}
		d.logger.Warn("Failed to refresh user roster, serving cached copy",
			zap.Time("loaded_at", d.loadedAt),
			zap.Error(err))
	}
	return d.users, nil
}

// load must be called with d.mu held
func (d *Directory) load(ctx context.Context) error {
	list, err := d.source.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to load user roster: %w", err)
	}

	users := make(map[string]model.User, len(list))
	for _, u := range list {
		users[u.ID] = u
	}

	d.users = users
	d.loadedAt = d.now()
	d.logger.Debug("User roster loaded", zap.Int("count", len(users)))
	return nil
}
