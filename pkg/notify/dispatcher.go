package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/streetmed/rounds/pkg/core/model"
)

// sendTimeout bounds a single sink call so a stuck transport cannot pin a worker
const sendTimeout = 30 * time.Second

type message struct {
	to   string
	kind model.NotificationKind
	data model.NotificationData
}

// Dispatcher delivers notifications on a fixed set of background workers.
// Notify never blocks: when the queue is full the message is dropped and logged.
type Dispatcher struct {
	sink   Sink
	logger *zap.Logger
	queue  chan message
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts workers goroutines reading from a queue of queueSize
func NewDispatcher(sink Sink, logger *zap.Logger, workers, queueSize int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}

	d := &Dispatcher{
		sink:   sink,
		logger: logger,
		queue:  make(chan message, queueSize),
	}

	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.work()
	}
	return d
}

// Notify queues a notification for address. Failures are only logged.
func (d *Dispatcher) Notify(address string, kind model.NotificationKind, data model.NotificationData) {
	if address == "" {
		d.logger.Warn("Skipping notification with no address", zap.String("kind", string(kind)))
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Warn("Dropping notification after shutdown",
			zap.String("email", address),
			zap.String("kind", string(kind)))
		return
	}

	select {
	case d.queue <- message{to: address, kind: kind, data: data}:
	default:
		d.logger.Warn("Notification queue full, dropping notification",
			zap.String("email", address),
			zap.String("kind", string(kind)))
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for msg := range d.queue {
		d.deliver(msg)
	}
}

func (d *Dispatcher) deliver(msg message) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Notification sink panicked",
				zap.String("email", msg.to),
				zap.String("kind", string(msg.kind)),
				zap.Any("panic", r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if err := d.sink.Send(ctx, msg.to, msg.kind, msg.data); err != nil {
		d.logger.Warn("Failed to deliver notification",
			zap.String("email", msg.to),
			zap.String("kind", string(msg.kind)),
			zap.Error(err))
		return
	}

	d.logger.Debug("Notification delivered",
		zap.String("email", msg.to),
		zap.String("kind", string(msg.kind)))
}

// Close stops accepting notifications and waits for queued ones to drain
// or for ctx to end, whichever comes first
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		d.logger.Warn("Notification queue not drained before shutdown", zap.Int("pending", len(d.queue)))
		return ctx.Err()
	}
}
