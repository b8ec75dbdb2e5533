package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/streetmed/rounds/pkg/core/apperr"
	"github.com/streetmed/rounds/pkg/core/model"
	"github.com/streetmed/rounds/pkg/core/roundlock"
	"github.com/streetmed/rounds/pkg/db"
)

// DefaultCancellationCutoff is the minimum notice needed to cancel a signup
const DefaultCancellationCutoff = 24 * time.Hour

// lotteryRange bounds the lottery number handed to a waitlisted signup
const lotteryRange = 10000

// IdentityLookup resolves a user id to role and sub-role capabilities
type IdentityLookup interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
}

// Notifier queues a best-effort notification. Implementations must not block.
type Notifier interface {
	Notify(address string, kind model.NotificationKind, data model.NotificationData)
}

type options struct {
	now    func() time.Time
	draw   func() int
	cutoff time.Duration
}

// Option customizes the registry and engine
type Option func(*options)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLotteryDraw replaces the random lottery number source
func WithLotteryDraw(draw func() int) Option {
	return func(o *options) { o.draw = draw }
}

// WithCancellationCutoff changes the minimum notice for signup cancellation
func WithCancellationCutoff(d time.Duration) Option {
	return func(o *options) { o.cutoff = d }
}

func buildOptions(opts []Option) options {
	o := options{
		now:    time.Now,
		draw:   func() int { return rand.Intn(lotteryRange) },
		cutoff: DefaultCancellationCutoff,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// validationError converts validator field errors into a single Validation error
func validationError(what string, err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperr.Wrap(apperr.KindValidation, err, "invalid "+what)
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "gtfield":
			msgs = append(msgs, fe.Field()+" must be after "+fe.Param())
		case "min":
			msgs = append(msgs, fe.Field()+" must be at least "+fe.Param())
		default:
			msgs = append(msgs, fe.Field()+" failed "+fe.Tag())
		}
	}
	return apperr.Validation("invalid %s: %s", what, strings.Join(msgs, ", "))
}

// lookupError maps a store read error, turning db.ErrNotFound into a NotFound domain error
func lookupError(err error, what, id string) error {
	if errors.Is(err, db.ErrNotFound) {
		return apperr.NotFound("%s %s not found", what, id)
	}
	return fmt.Errorf("failed to get %s %s: %w", what, id, err)
}

// writeError maps a store write error, turning db.ErrDuplicate into a Conflict domain error
func writeError(err error, action string) error {
	if errors.Is(err, db.ErrDuplicate) {
		return apperr.Wrap(apperr.KindConflict, err, action+" conflicts with an existing signup")
	}
	if errors.Is(err, db.ErrNotFound) {
		return apperr.Wrap(apperr.KindNotFound, err, action+" target no longer exists")
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}

type pendingNotification struct {
	userID string
	kind   model.NotificationKind
	data   model.NotificationData
}

// outbox collects notifications inside a transaction; they are sent only after commit
type outbox struct {
	pending []pendingNotification
}

func (o *outbox) add(userID string, kind model.NotificationKind, round *model.Round, signup *model.Signup) {
	data := model.NotificationData{
		RoundTitle: round.Title,
		StartTime:  round.StartTime,
		Location:   round.Location,
	}
	if signup != nil {
		data.Status = signup.Status
		data.Role = signup.Role
	}
	o.pending = append(o.pending, pendingNotification{userID: userID, kind: kind, data: data})
}

// executor runs round-scoped mutations under the round lock inside a store transaction
type executor struct {
	db       db.Database
	locks    *roundlock.Locker
	identity IdentityLookup
	notifier Notifier
	logger   *zap.Logger
}

// withRoundLock runs fn under the round's lock in a transaction. A failure that
// is not a domain error is retried once with the lock released and re-acquired.
// Notifications queued by fn are sent only once the transaction has committed.
func (x *executor) withRoundLock(ctx context.Context, roundID, op string, fn func(tx db.Tx, out *outbox) error) error {
	var out outbox
	attempt := func() error {
		unlock := x.locks.Lock(roundID)
		defer unlock()

		out = outbox{}
		return x.db.RunInTx(ctx, func(tx db.Tx) error {
			return fn(tx, &out)
		})
	}

	err := attempt()
	if err != nil && !apperr.IsDomain(err) && ctx.Err() == nil {
		x.logger.Warn("Round operation failed, retrying",
			zap.String("operation", op),
			zap.String("round_id", roundID),
			zap.Error(err))
		err = attempt()
		if err != nil && !apperr.IsDomain(err) {
			return fmt.Errorf("%s failed after retry: %w", op, err)
		}
	}
	if err != nil {
		return err
	}

	x.send(ctx, out.pending)
	return nil
}

// send resolves each recipient's address and hands the notification to the notifier.
// Lookup failures are logged and skipped.
func (x *executor) send(ctx context.Context, pending []pendingNotification) {
	if x.notifier == nil {
		return
	}
	for _, n := range pending {
		user, err := x.identity.GetUser(ctx, n.userID)
		if err != nil {
			x.logger.Warn("Failed to resolve notification recipient",
				zap.String("user_id", n.userID),
				zap.String("kind", string(n.kind)),
				zap.Error(err))
			continue
		}
		x.notifier.Notify(user.Email, n.kind, n.data)
	}
}
