package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/barber-booking/internal/availability"
	"github.com/wolfman30/barber-booking/internal/bookings"
	"github.com/wolfman30/barber-booking/internal/identity"
	"github.com/wolfman30/barber-booking/internal/ledger"
	"github.com/wolfman30/barber-booking/pkg/logging"
)

// BookingEngine is the subset of engine.Engine the HTTP surface calls.
type BookingEngine interface {
	GetAvailableSlots(ctx context.Context, providerID, date, plan string) (availability.Result, error)
	OpenProviders(ctx context.Context, date string, providerIDs []string) ([]string, error)
	Book(ctx context.Context, req bookings.BookRequest) (bookings.BookResult, error)
	Cancel(ctx context.Context, appointmentID string, actor identity.User, opts bookings.CancelOptions) (*bookings.Appointment, error)
	Transition(ctx context.Context, appointmentID string, actor identity.User, status string) (*bookings.Appointment, error)
	GetAppointment(ctx context.Context, appointmentID string, actor identity.User) (*bookings.Appointment, error)
	GetPointsBalance(ctx context.Context, userID string) (int64, error)
	PointsHistory(ctx context.Context, userID string, limit int) ([]ledger.Entry, error)
}

const maxBodyBytes = 1 << 16

// BookingHandler serves availability, appointment and points endpoints.
type BookingHandler struct {
	engine BookingEngine
	logger *logging.Logger
}

func NewBookingHandler(engine BookingEngine, logger *logging.Logger) *BookingHandler {
	if engine == nil {
		panic("handlers: booking engine required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &BookingHandler{engine: engine, logger: logger.Component("http.booking")}
}

type availabilityResponse struct {
	ProviderID string   `json:"provider_id"`
	Date       string   `json:"date"`
	Plan       string   `json:"plan"`
	Slots      []string `json:"slots"`
	FromCache  bool     `json:"from_cache"`
}

// GetAvailability handles GET /providers/{providerID}/availability?date=&plan=.
func (h *BookingHandler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	providerID := chi.URLParam(r, "providerID")
	date := r.URL.Query().Get("date")
	plan := availability.NormalizePlan(r.URL.Query().Get("plan"))

	res, err := h.engine.GetAvailableSlots(r.Context(), providerID, date, plan)
	if err != nil {
		writeEngineError(w, h.logger, r, err)
		return
	}
	slots := res.Slots
	if slots == nil {
		slots = []string{}
	}
	writeJSON(w, http.StatusOK, availabilityResponse{
		ProviderID: providerID,
		Date:       date,
		Plan:       plan,
		Slots:      slots,
		FromCache:  res.FromCache,
	})
}

// GetOpenProviders handles GET /availability/open?date=&provider=a&provider=b.
func (h *BookingHandler) GetOpenProviders(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	ids := r.URL.Query()["provider"]
	open, err := h.engine.OpenProviders(r.Context(), date, ids)
	if err != nil {
		writeEngineError(w, h.logger, r, err)
		return
	}
	if open == nil {
		open = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "providers": open})
}

type bookRequestBody struct {
	ProviderID     string `json:"provider_id"`
	Date           string `json:"date"`
	Time           string `json:"time"`
	Kind           string `json:"kind"`
	IdempotencyKey string `json:"idempotency_key"`
}

// CreateAppointment handles POST /appointments. A replayed idempotency key
// answers 200 with the original appointment, a new booking answers 201.
func (h *BookingHandler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var body bookRequestBody
	if err := decodeBody(r, &body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key == "" {
		key = body.IdempotencyKey
	}

	res, err := h.engine.Book(r.Context(), bookings.BookRequest{
		ClientID:       actor.ID,
		ProviderID:     body.ProviderID,
		Date:           body.Date,
		Time:           body.Time,
		Kind:           body.Kind,
		IdempotencyKey: key,
	})
	if err != nil {
		writeEngineError(w, h.logger, r, err)
		return
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
		w.Header().Set("Idempotent-Replayed", "true")
	}
	writeJSON(w, status, res.Appointment)
}

// GetAppointment handles GET /appointments/{appointmentID}.
func (h *BookingHandler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	appt, err := h.engine.GetAppointment(r.Context(), chi.URLParam(r, "appointmentID"), actor)
	if err != nil {
		writeEngineError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// CancelAppointment handles POST /appointments/{appointmentID}/cancel[?release=true].
func (h *BookingHandler) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	release := false
	if raw := r.URL.Query().Get("release"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			jsonError(w, "release must be a boolean", http.StatusBadRequest)
			return
		}
		release = parsed
	}
	appt, err := h.engine.Cancel(r.Context(), chi.URLParam(r, "appointmentID"), actor, bookings.CancelOptions{Release: release})
	if err != nil {
		writeEngineError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

type statusRequestBody struct {
	Status string `json:"status"`
}

// UpdateStatus handles POST /appointments/{appointmentID}/status.
func (h *BookingHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var body statusRequestBody
	if err := decodeBody(r, &body); err != nil || strings.TrimSpace(body.Status) == "" {
		jsonError(w, "status is required", http.StatusBadRequest)
		return
	}
	appt, err := h.engine.Transition(r.Context(), chi.URLParam(r, "appointmentID"), actor, body.Status)
	if err != nil {
		writeEngineError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

type pointsResponse struct {
	UserID  string         `json:"user_id"`
	Balance int64          `json:"balance"`
	History []ledger.Entry `json:"history,omitempty"`
}

// GetMyPoints handles GET /me/points[?history=N].
func (h *BookingHandler) GetMyPoints(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	balance, err := h.engine.GetPointsBalance(r.Context(), actor.ID)
	if err != nil {
		writeEngineError(w, h.logger, r, err)
		return
	}
	resp := pointsResponse{UserID: actor.ID, Balance: balance}
	if raw := r.URL.Query().Get("history"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			jsonError(w, "history must be a positive integer", http.StatusBadRequest)
			return
		}
		resp.History, err = h.engine.PointsHistory(r.Context(), actor.ID, limit)
		if err != nil {
			writeEngineError(w, h.logger, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *BookingHandler) actor(w http.ResponseWriter, r *http.Request) (identity.User, bool) {
	user, ok := identity.UserFromContext(r.Context())
	if !ok {
		jsonError(w, "authentication required", http.StatusUnauthorized)
		return identity.User{}, false
	}
	return user, true
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
