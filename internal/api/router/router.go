package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/barber-booking/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/barber-booking/internal/http/middleware"
	"github.com/wolfman30/barber-booking/internal/identity"
	"github.com/wolfman30/barber-booking/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Booking            *handlers.BookingHandler
	Health             *handlers.HealthHandler
	Resolver           identity.Resolver
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// Per-caller limit on POST /appointments; zero disables it.
	BookRateLimit float64
	BookRateBurst int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	if cfg.Booking == nil || cfg.Resolver == nil {
		panic("router: booking handler and identity resolver required")
	}
	health := cfg.Health
	if health == nil {
		health = handlers.NewHealthHandler(nil)
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", health.Health)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		public.Get("/providers/{providerID}/availability", cfg.Booking.GetAvailability)
		public.Get("/availability/open", cfg.Booking.GetOpenProviders)
	})

	// Authenticated endpoints
	r.Group(func(authed chi.Router) {
		authed.Use(httpmiddleware.Authenticate(cfg.Resolver, cfg.Logger))

		authed.Route("/appointments", func(appts chi.Router) {
			if cfg.BookRateLimit > 0 {
				appts.With(httpmiddleware.RateLimit(cfg.BookRateLimit, cfg.BookRateBurst)).Post("/", cfg.Booking.CreateAppointment)
			} else {
				appts.Post("/", cfg.Booking.CreateAppointment)
			}
			appts.Route("/{appointmentID}", func(appt chi.Router) {
				appt.Get("/", cfg.Booking.GetAppointment)
				appt.Post("/cancel", cfg.Booking.CancelAppointment)
				appt.With(requireRole(identity.RoleProvider, identity.RoleAdmin)).Post("/status", cfg.Booking.UpdateStatus)
			})
		})
		authed.Get("/me/points", cfg.Booking.GetMyPoints)
	})

	return r
}
