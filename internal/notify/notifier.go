// Package notify delivers booking events to users after a booking commits.
// Delivery is fire-and-forget: a failed or dropped notification never affects
// the booking that produced it.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wolfman30/barber-booking/internal/events"
	"github.com/wolfman30/barber-booking/internal/observability/metrics"
	"github.com/wolfman30/barber-booking/pkg/logging"
)

// Notifier is the collaborator the booking engine calls. Implementations must
// not block on delivery.
type Notifier interface {
	Notify(ctx context.Context, userID string, evt events.CanonicalEvent)
}

// Sender performs the actual delivery on one channel.
type Sender interface {
	Send(ctx context.Context, userID string, evt events.CanonicalEvent) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, userID string, evt events.CanonicalEvent) error

func (f SenderFunc) Send(ctx context.Context, userID string, evt events.CanonicalEvent) error {
	return f(ctx, userID, evt)
}

// Nop drops every notification.
type Nop struct{}

func (Nop) Notify(context.Context, string, events.CanonicalEvent) {}

type job struct {
	ctx    context.Context
	userID string
	evt    events.CanonicalEvent
}

// Dispatcher fans notifications out to a Sender through a bounded queue served
// by a fixed number of workers. When the queue is full the notification is
// dropped.
type Dispatcher struct {
	sender      Sender
	queue       chan job
	workers     int
	sendTimeout time.Duration
	logger      *logging.Logger
	metrics     *metrics.BookingMetrics

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher; call Start to launch the workers.
func NewDispatcher(sender Sender, workers, queueSize int, logger *logging.Logger) *Dispatcher {
	if sender == nil {
		panic("notify: sender required")
	}
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{
		sender:      sender,
		queue:       make(chan job, queueSize),
		workers:     workers,
		sendTimeout: 10 * time.Second,
		logger:      logger.Component("notify"),
	}
}

// WithMetrics records dispatch outcomes.
func (d *Dispatcher) WithMetrics(m *metrics.BookingMetrics) *Dispatcher {
	d.metrics = m
	return d
}

// WithSendTimeout bounds each delivery attempt.
func (d *Dispatcher) WithSendTimeout(timeout time.Duration) *Dispatcher {
	if timeout > 0 {
		d.sendTimeout = timeout
	}
	return d
}

// Start launches the workers. It is safe to call once.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for j := range d.queue {
		d.deliver(j)
	}
}

func (d *Dispatcher) deliver(j job) {
	ctx, cancel := context.WithTimeout(j.ctx, d.sendTimeout)
	defer cancel()

	eventType := j.evt.EventType()
	if err := d.sender.Send(ctx, j.userID, j.evt); err != nil {
		d.logger.Warn("notification delivery failed", "user_id", j.userID, "event_type", eventType, "error", err)
		d.metrics.ObserveNotification(eventType, "failed")
		return
	}
	d.metrics.ObserveNotification(eventType, "sent")
}

// Notify enqueues a notification without blocking. The request context's
// values are kept but its cancellation is not, so delivery can outlive the
// request.
func (d *Dispatcher) Notify(ctx context.Context, userID string, evt events.CanonicalEvent) {
	if evt == nil || userID == "" {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.metrics.ObserveNotification(evt.EventType(), "dropped")
		return
	}
	select {
	case d.queue <- job{ctx: context.WithoutCancel(ctx), userID: userID, evt: evt}:
		d.metrics.ObserveNotification(evt.EventType(), "queued")
	default:
		d.logger.Warn("notification queue full, dropping", "user_id", userID, "event_type", evt.EventType())
		d.metrics.ObserveNotification(evt.EventType(), "dropped")
	}
}

// Close stops accepting notifications and waits for queued ones to drain or
// for ctx to expire.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()

	if !started {
		for j := range d.queue {
			d.deliver(j)
		}
		return nil
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogSender writes notifications to the log; used when no channel is configured.
type LogSender struct {
	logger *logging.Logger
}

func NewLogSender(logger *logging.Logger) *LogSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, userID string, evt events.CanonicalEvent) error {
	s.logger.Info("notification", "user_id", userID, "event_type", evt.EventType())
	return nil
}

// MultiSender delivers to every sender and joins their errors.
type MultiSender []Sender

func (m MultiSender) Send(ctx context.Context, userID string, evt events.CanonicalEvent) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Send(ctx, userID, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Notifier = (*Dispatcher)(nil)
	_ Notifier = Nop{}
	_ Sender   = (*LogSender)(nil)
	_ Sender   = MultiSender(nil)
)
