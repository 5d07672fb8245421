package bookings

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/barber-booking/internal/apperrors"
	"github.com/wolfman30/barber-booking/internal/availability"
	"github.com/wolfman30/barber-booking/internal/config"
	"github.com/wolfman30/barber-booking/internal/events"
	"github.com/wolfman30/barber-booking/internal/identity"
	"github.com/wolfman30/barber-booking/internal/ledger"
	"github.com/wolfman30/barber-booking/internal/notify"
	"github.com/wolfman30/barber-booking/internal/observability/metrics"
	"github.com/wolfman30/barber-booking/internal/slotcache"
	"github.com/wolfman30/barber-booking/internal/timezone"
	"github.com/wolfman30/barber-booking/pkg/logging"
)

var bookingsTracer = otel.Tracer("barber.internal.bookings")

const maxIdempotencyKeyLen = 255

// Manager is the only writer of appointments and ledger entries.
type Manager struct {
	store     Store
	rules     availability.RuleStore
	generator *availability.Generator
	conv      *timezone.Converter
	settings  config.EngineSettings
	cache     slotcache.Cache
	notifier  notify.Notifier
	metrics   *metrics.BookingMetrics
	logger    *logging.Logger
	now       func() time.Time
}

func NewManager(store Store, rules availability.RuleStore, generator *availability.Generator, settings config.EngineSettings, logger *logging.Logger) *Manager {
	if store == nil || rules == nil || generator == nil {
		panic("bookings: store, rules and generator required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Manager{
		store:     store,
		rules:     rules,
		generator: generator,
		conv:      generator.Converter(),
		settings:  settings,
		cache:     slotcache.Nop{},
		notifier:  notify.Nop{},
		logger:    logger.Component("bookings"),
		now:       time.Now,
	}
}

func (m *Manager) WithCache(c slotcache.Cache) *Manager {
	if c != nil {
		m.cache = c
	}
	return m
}

func (m *Manager) WithNotifier(n notify.Notifier) *Manager {
	if n != nil {
		m.notifier = n
	}
	return m
}

func (m *Manager) WithMetrics(mt *metrics.BookingMetrics) *Manager {
	m.metrics = mt
	return m
}

func (m *Manager) WithClock(now func() time.Time) *Manager {
	if now != nil {
		m.now = now
	}
	return m
}

func (m *Manager) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.settings.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.settings.StoreTimeout)
}

// Book reserves the requested slot for the client and debits the points its
// kind costs, in one transaction. A request carrying an idempotency key that
// was already used returns the appointment created by the first request.
func (m *Manager) Book(ctx context.Context, req BookRequest) (BookResult, error) {
	const op = "bookings.book"
	ctx, span := bookingsTracer.Start(ctx, op)
	defer span.End()

	clientID := strings.TrimSpace(req.ClientID)
	providerID := strings.TrimSpace(req.ProviderID)
	key := strings.TrimSpace(req.IdempotencyKey)
	if clientID == "" {
		return BookResult{}, apperrors.InvalidArgument(op, "client id is required")
	}
	if providerID == "" {
		return BookResult{}, apperrors.InvalidArgument(op, "provider id is required")
	}
	if len(key) > maxIdempotencyKeyLen {
		return BookResult{}, apperrors.InvalidArgument(op, "idempotency key is too long")
	}
	kind, ok := ParseKind(req.Kind)
	if !ok {
		return BookResult{}, apperrors.InvalidArgument(op, "unknown appointment kind "+req.Kind)
	}
	date, clock, _, err := m.conv.Parse(req.Date, req.Time)
	if err != nil {
		return BookResult{}, err
	}
	span.SetAttributes(
		attribute.String("barber.client_id", clientID),
		attribute.String("barber.provider_id", providerID),
		attribute.String("barber.date", date.String()),
		attribute.String("barber.time", clock.String()),
		attribute.String("barber.kind", string(kind)),
	)

	ctx, cancel := m.bounded(ctx)
	defer cancel()

	if key != "" {
		existing, err := m.store.FindByIdempotencyKey(ctx, key)
		if err != nil {
			return m.failBook(span, op, kind, storeError(op, err))
		}
		if existing != nil {
			return m.replay(op, kind, existing, clientID)
		}
	}

	exists, err := m.rules.ProviderExists(ctx, providerID)
	if err != nil {
		return m.failBook(span, op, kind, apperrors.Unavailable(op, err))
	}
	if !exists {
		return m.failBook(span, op, kind, apperrors.InvalidArgument(op, "unknown provider "+providerID))
	}
	slot, offered, err := m.generator.SlotAt(ctx, providerID, date, clock)
	if err != nil {
		return m.failBook(span, op, kind, apperrors.Unavailable(op, err))
	}
	if !offered {
		return m.failBook(span, op, kind, apperrors.SlotUnavailable(op, "the provider does not offer "+date.String()+" "+clock.String()))
	}

	points := m.settings.PointsFor(string(kind))
	now := m.now().UTC()
	appt := &Appointment{
		ID:             uuid.New(),
		ClientID:       clientID,
		ProviderID:     providerID,
		StartAt:        slot.From,
		EndAt:          slot.To,
		Status:         StatusBooked,
		Kind:           kind,
		PriceCents:     m.settings.PriceCentsFor(string(kind)),
		PointsCost:     points,
		PaymentStatus:  PaymentNotRequired,
		IdempotencyKey: key,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if points > 0 {
		appt.PaymentStatus = PaymentPointsDebited
	}

	var replayed *Appointment
	err = m.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if key != "" {
			existing, err := tx.FindByIdempotencyKey(ctx, key)
			if err != nil {
				return err
			}
			if existing != nil {
				replayed = existing
				return nil
			}
		}
		busy, err := tx.ListActiveBetween(ctx, providerID, appt.StartAt, appt.EndAt)
		if err != nil {
			return err
		}
		if len(busy) > 0 {
			return apperrors.SlotUnavailable(op, "slot already booked")
		}
		if points > 0 {
			if err := tx.LockUser(ctx, clientID); err != nil {
				return err
			}
			balance, err := tx.Balance(ctx, clientID)
			if err != nil {
				return err
			}
			if balance < points {
				return apperrors.InsufficientPoints(op, points, balance)
			}
		}
		if err := tx.InsertAppointment(ctx, appt); err != nil {
			return err
		}
		if points > 0 {
			return tx.AppendLedger(ctx, &ledger.Entry{
				UserID:    clientID,
				Delta:     -points,
				Reason:    ledger.ReasonBookingDebit,
				RefType:   ledger.RefTypeAppointment,
				RefID:     appt.ID.String(),
				CreatedAt: now,
			})
		}
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrDuplicateIdempotencyKey):
		winner, findErr := m.store.FindByIdempotencyKey(ctx, key)
		if findErr == nil && winner != nil {
			return m.replay(op, kind, winner, clientID)
		}
		return m.failBook(span, op, kind, apperrors.Unavailable(op, err))
	case errors.Is(err, ErrSlotTaken):
		return m.failBook(span, op, kind, apperrors.SlotUnavailable(op, "slot already booked"))
	default:
		return m.failBook(span, op, kind, storeError(op, err))
	}
	if replayed != nil {
		return m.replay(op, kind, replayed, clientID)
	}

	m.cache.InvalidateDay(ctx, providerID, date.String())
	m.metrics.ObserveBooking(string(kind), "booked")
	m.logger.Info("appointment booked",
		"appointment_id", appt.ID.String(),
		"client_id", clientID,
		"provider_id", providerID,
		"start_at", appt.StartAt,
		"kind", string(kind),
		"points", points,
	)

	evt := events.BookingCreatedV1{
		AppointmentID: appt.ID.String(),
		ClientID:      clientID,
		ProviderID:    providerID,
		Kind:          string(kind),
		StartAt:       appt.StartAt,
		EndAt:         appt.EndAt,
		LocalDate:     date.String(),
		LocalTime:     clock.String(),
		PointsDebited: points,
		CreatedAt:     now,
	}
	m.notifier.Notify(ctx, clientID, evt)
	m.notifier.Notify(ctx, providerID, evt)

	return BookResult{Appointment: appt}, nil
}

func (m *Manager) replay(op string, kind Kind, existing *Appointment, clientID string) (BookResult, error) {
	if existing.ClientID != clientID {
		err := apperrors.InvalidArgument(op, "idempotency key already used by another client")
		m.metrics.ObserveBooking(string(kind), apperrors.KindOf(err).String())
		return BookResult{}, err
	}
	m.metrics.ObserveBooking(string(existing.Kind), "replayed")
	m.logger.Info("idempotent booking replayed", "appointment_id", existing.ID.String(), "client_id", clientID)
	return BookResult{Appointment: existing, Replayed: true}, nil
}

func (m *Manager) failBook(span trace.Span, op string, kind Kind, err error) (BookResult, error) {
	kindOf := apperrors.KindOf(err)
	m.metrics.ObserveBooking(string(kind), kindOf.String())
	if kindOf == apperrors.KindInternal || kindOf == apperrors.KindUnavailable {
		span.RecordError(err)
		m.logger.Error("booking failed", "op", op, "error", err)
	}
	return BookResult{}, err
}

// Cancel cancels an appointment on behalf of actor and refunds the points it
// debited. Canceling an already canceled appointment succeeds without effect.
// With opts.Release an admin removes the row entirely.
func (m *Manager) Cancel(ctx context.Context, rawID string, actor identity.User, opts CancelOptions) (*Appointment, error) {
	const op = "bookings.cancel"
	ctx, span := bookingsTracer.Start(ctx, op)
	defer span.End()

	if err := identity.RequireActor(op, actor); err != nil {
		m.metrics.ObserveCancel(apperrors.KindOf(err).String())
		return nil, err
	}
	id, err := uuid.Parse(strings.TrimSpace(rawID))
	if err != nil {
		m.metrics.ObserveCancel(apperrors.KindInvalidArgument.String())
		return nil, apperrors.InvalidArgument(op, "invalid appointment id")
	}
	if opts.Release && !actor.IsAdmin() {
		m.metrics.ObserveCancel(apperrors.KindPermissionDenied.String())
		return nil, apperrors.PermissionDenied(op, "only an admin may release an appointment")
	}
	span.SetAttributes(
		attribute.String("barber.appointment_id", id.String()),
		attribute.String("barber.actor_id", actor.ID),
		attribute.Bool("barber.release", opts.Release),
	)

	ctx, cancel := m.bounded(ctx)
	defer cancel()

	var (
		result   *Appointment
		refunded int64
		noop     bool
	)
	now := m.now().UTC()
	err = m.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		appt, err := tx.GetForUpdate(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return apperrors.NotFound(op, "appointment "+id.String()+" not found")
		}
		if err != nil {
			return err
		}
		if !identity.CanActOn(actor, appt.ClientID, appt.ProviderID) {
			return apperrors.PermissionDenied(op, "caller may not cancel this appointment")
		}
		switch appt.Status {
		case StatusCanceled:
			if !opts.Release {
				noop = true
				result = appt
				return nil
			}
			result = appt
			return tx.Delete(ctx, id)
		case StatusCompleted, StatusNoShow:
			return apperrors.InvalidArgument(op, "a "+strings.ToLower(string(appt.Status))+" appointment cannot be canceled")
		}

		net, err := tx.NetForRef(ctx, appt.ClientID, ledger.RefTypeAppointment, id.String())
		if err != nil {
			return err
		}
		payment := appt.PaymentStatus
		if net < 0 {
			refunded = -net
			if err := tx.AppendLedger(ctx, &ledger.Entry{
				UserID:    appt.ClientID,
				Delta:     refunded,
				Reason:    ledger.ReasonBookingRefund,
				RefType:   ledger.RefTypeAppointment,
				RefID:     id.String(),
				CreatedAt: now,
			}); err != nil {
				return err
			}
			payment = PaymentRefunded
		}

		if opts.Release {
			if err := tx.Delete(ctx, id); err != nil {
				return err
			}
		} else if err := tx.UpdateStatus(ctx, id, StatusCanceled, payment, now); err != nil {
			return err
		}
		canceledAt := now
		appt.Status = StatusCanceled
		appt.PaymentStatus = payment
		appt.UpdatedAt = now
		appt.CanceledAt = &canceledAt
		result = appt
		return nil
	})
	if err != nil {
		err = storeError(op, err)
		kindOf := apperrors.KindOf(err)
		m.metrics.ObserveCancel(kindOf.String())
		if kindOf == apperrors.KindInternal || kindOf == apperrors.KindUnavailable {
			span.RecordError(err)
			m.logger.Error("cancel failed", "appointment_id", id.String(), "error", err)
		}
		return nil, err
	}
	if noop {
		m.metrics.ObserveCancel("noop")
		return result, nil
	}

	date, clock := m.conv.ToLocal(result.StartAt)
	m.cache.InvalidateDay(ctx, result.ProviderID, date.String())
	m.metrics.ObserveCancel("canceled")
	m.logger.Info("appointment canceled",
		"appointment_id", id.String(),
		"actor_id", actor.ID,
		"refunded", refunded,
		"released", opts.Release,
	)

	evt := events.BookingCanceledV1{
		AppointmentID:  id.String(),
		ClientID:       result.ClientID,
		ProviderID:     result.ProviderID,
		CanceledBy:     actor.ID,
		StartAt:        result.StartAt,
		LocalDate:      date.String(),
		LocalTime:      clock.String(),
		PointsRefunded: refunded,
		Released:       opts.Release,
		CanceledAt:     now,
	}
	m.notifier.Notify(ctx, result.ClientID, evt)
	m.notifier.Notify(ctx, result.ProviderID, evt)
	return result, nil
}

// Transition moves an appointment along BOOKED -> CONFIRMED -> COMPLETED or
// NO_SHOW. Only the assigned provider or an admin may do so.
func (m *Manager) Transition(ctx context.Context, rawID string, actor identity.User, rawStatus string) (*Appointment, error) {
	const op = "bookings.transition"
	ctx, span := bookingsTracer.Start(ctx, op)
	defer span.End()

	if err := identity.RequireActor(op, actor); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(strings.TrimSpace(rawID))
	if err != nil {
		return nil, apperrors.InvalidArgument(op, "invalid appointment id")
	}
	next, ok := ParseStatus(rawStatus)
	if !ok {
		return nil, apperrors.InvalidArgument(op, "unknown status "+rawStatus)
	}
	if next == StatusCanceled {
		return nil, apperrors.InvalidArgument(op, "use cancel to cancel an appointment")
	}
	span.SetAttributes(
		attribute.String("barber.appointment_id", id.String()),
		attribute.String("barber.status", string(next)),
	)

	ctx, cancel := m.bounded(ctx)
	defer cancel()

	var (
		result  *Appointment
		from    Status
		changed bool
	)
	now := m.now().UTC()
	err = m.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		appt, err := tx.GetForUpdate(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return apperrors.NotFound(op, "appointment "+id.String()+" not found")
		}
		if err != nil {
			return err
		}
		if !actor.IsAdmin() && !(actor.Role == identity.RoleProvider && actor.ID == appt.ProviderID) {
			return apperrors.PermissionDenied(op, "only the assigned provider or an admin may change status")
		}
		result = appt
		if appt.Status == next {
			return nil
		}
		if !appt.Status.CanTransition(next) {
			return apperrors.InvalidArgument(op, "cannot move "+string(appt.Status)+" to "+string(next))
		}
		if err := tx.UpdateStatus(ctx, id, next, appt.PaymentStatus, now); err != nil {
			return err
		}
		from = appt.Status
		changed = true
		appt.Status = next
		appt.UpdatedAt = now
		return nil
	})
	if err != nil {
		err = storeError(op, err)
		if k := apperrors.KindOf(err); k == apperrors.KindInternal || k == apperrors.KindUnavailable {
			span.RecordError(err)
			m.logger.Error("status change failed", "appointment_id", id.String(), "error", err)
		}
		return nil, err
	}
	if !changed {
		return result, nil
	}

	m.logger.Info("appointment status changed", "appointment_id", id.String(), "from", string(from), "to", string(next), "actor_id", actor.ID)
	m.notifier.Notify(ctx, result.ClientID, events.BookingStatusChangedV1{
		AppointmentID: id.String(),
		ClientID:      result.ClientID,
		ProviderID:    result.ProviderID,
		From:          string(from),
		To:            string(next),
		ChangedBy:     actor.ID,
		ChangedAt:     now,
	})
	return result, nil
}

// Get returns an appointment the actor is allowed to see.
func (m *Manager) Get(ctx context.Context, rawID string, actor identity.User) (*Appointment, error) {
	const op = "bookings.get"
	if err := identity.RequireActor(op, actor); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(strings.TrimSpace(rawID))
	if err != nil {
		return nil, apperrors.InvalidArgument(op, "invalid appointment id")
	}
	ctx, cancel := m.bounded(ctx)
	defer cancel()

	appt, err := m.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apperrors.NotFound(op, "appointment "+id.String()+" not found")
	}
	if err != nil {
		return nil, storeError(op, err)
	}
	if !identity.CanActOn(actor, appt.ClientID, appt.ProviderID) {
		return nil, apperrors.PermissionDenied(op, "caller may not view this appointment")
	}
	return appt, nil
}

// storeError classifies a store failure. Server-side SQL errors are internal
// except connection, resource and serialization classes, which are transient.
func storeError(op string, err error) error {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"), strings.HasPrefix(pgErr.Code, "40"),
			strings.HasPrefix(pgErr.Code, "53"), strings.HasPrefix(pgErr.Code, "57"):
			return apperrors.Unavailable(op, err)
		default:
			return apperrors.E(apperrors.KindInternal, op, "", err)
		}
	}
	return apperrors.Unavailable(op, err)
}
