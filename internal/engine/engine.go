// Package engine is the entry point front ends call: availability queries,
// booking, cancellation and points balances behind one type.
package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/wolfman30/barber-booking/internal/apperrors"
	"github.com/wolfman30/barber-booking/internal/availability"
	"github.com/wolfman30/barber-booking/internal/bookings"
	"github.com/wolfman30/barber-booking/internal/identity"
	"github.com/wolfman30/barber-booking/internal/ledger"
)

// Engine delegates to the availability service, the booking manager and the
// ledger reader. It holds no state of its own.
type Engine struct {
	slots    *availability.Service
	bookings *bookings.Manager
	points   *ledger.Reader
	resolver identity.Resolver
}

func New(slots *availability.Service, manager *bookings.Manager, points *ledger.Reader, resolver identity.Resolver) *Engine {
	if slots == nil || manager == nil || points == nil || resolver == nil {
		panic("engine: availability, bookings, ledger and identity are required")
	}
	return &Engine{slots: slots, bookings: manager, points: points, resolver: resolver}
}

func (e *Engine) GetAvailableSlots(ctx context.Context, providerID, date, plan string) (availability.Result, error) {
	return e.slots.GetAvailableSlots(ctx, providerID, date, plan)
}

func (e *Engine) OpenProviders(ctx context.Context, date string, providerIDs []string) ([]string, error) {
	return e.slots.OpenProviders(ctx, date, providerIDs)
}

func (e *Engine) Book(ctx context.Context, req bookings.BookRequest) (bookings.BookResult, error) {
	return e.bookings.Book(ctx, req)
}

func (e *Engine) Cancel(ctx context.Context, appointmentID string, actor identity.User, opts bookings.CancelOptions) (*bookings.Appointment, error) {
	return e.bookings.Cancel(ctx, appointmentID, actor, opts)
}

func (e *Engine) Transition(ctx context.Context, appointmentID string, actor identity.User, status string) (*bookings.Appointment, error) {
	return e.bookings.Transition(ctx, appointmentID, actor, status)
}

func (e *Engine) GetAppointment(ctx context.Context, appointmentID string, actor identity.User) (*bookings.Appointment, error) {
	return e.bookings.Get(ctx, appointmentID, actor)
}

func (e *Engine) GetPointsBalance(ctx context.Context, userID string) (int64, error) {
	return e.points.Balance(ctx, userID)
}

func (e *Engine) PointsHistory(ctx context.Context, userID string, limit int) ([]ledger.Entry, error) {
	return e.points.History(ctx, userID, limit)
}

// ResolveActor turns a bearer token into a user. The engine never inspects
// credentials itself.
func (e *Engine) ResolveActor(ctx context.Context, token string) (identity.User, error) {
	const op = "engine.resolve_actor"
	token = strings.TrimSpace(token)
	if token == "" {
		return identity.User{}, apperrors.E(apperrors.KindPermissionDenied, op, "missing credentials", identity.ErrUnauthenticated)
	}
	user, err := e.resolver.ResolveUser(ctx, token)
	if errors.Is(err, identity.ErrUnauthenticated) {
		return identity.User{}, apperrors.E(apperrors.KindPermissionDenied, op, "invalid credentials", err)
	}
	if err != nil {
		return identity.User{}, apperrors.Unavailable(op, err)
	}
	return user, nil
}
