package api

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"seatbook/internal/config"
	"seatbook/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const requestIDHeader = "X-Request-ID"

// HTTPServer serves the REST API.
type HTTPServer struct {
	cfg    config.APIConfig
	server *http.Server
	logger *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, handler *Handler, logger *zerolog.Logger) *HTTPServer {
	port := cfg.HTTP.Port
	if port == 0 {
		port = 8080
	}
	srv := &HTTPServer{cfg: cfg, logger: logger}
	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           NewRouter(cfg, handler, logger),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// NewRouter wires middleware and routes. Everything under /api/v1 requires a
// bearer token.
func NewRouter(cfg config.APIConfig, h *Handler, logger *zerolog.Logger) http.Handler {
	auth := NewJWTAuth(cfg.JWTSecret)
	limiter := newRateLimiter(cfg.RateLimit)

	r := chi.NewRouter()
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg.CORSOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.healthz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware)
		r.Use(limiter.Middleware)

		r.Get("/availability", h.availability)

		r.Route("/bookings", func(r chi.Router) {
			r.Post("/", h.createBooking)
			r.Get("/", h.listBookings)
			r.Get("/{id}", h.getBooking)
			r.Post("/{id}/cancel", h.cancelBooking)
			r.Post("/{id}/check-in", h.checkIn)
			r.Post("/{id}/check-out", h.checkOut)
			r.With(RequireRole(roleStaff...)).Post("/{id}/reject", h.rejectBooking)
		})

		r.Route("/monthly-bookings", func(r chi.Router) {
			r.Post("/", h.createMonthly)
			r.Post("/legacy", h.createMonthlyLegacy)
			r.Post("/{id}/cancel", h.cancelMonthly)
			r.Post("/{id}/check-in", h.monthlyCheckIn)
			r.Post("/{id}/check-out", h.monthlyCheckOut)
			r.Get("/{id}/attendance", h.monthlyAttendance)
		})

		r.Post("/attendance/{action}", h.attend)
		r.Get("/attendance/today", h.todayAttendance)

		r.Route("/wallet", func(r chi.Router) {
			r.Get("/", h.wallet)
			r.Get("/transactions", h.transactions)
			r.With(RequireRole(roleStaff...)).Post("/withdraw", h.withdraw)
			r.With(RequireRole(roleAdmin...)).Post("/topup", h.topUp)
		})

		r.Get("/notifications", h.notificationStream)

		r.With(RequireRole(roleStaff...)).Get("/libraries/{id}/export", h.exportLibrary)

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireRole(roleAdmin...))
			r.Post("/sweep", h.runSweep)
			r.Get("/wallets/{userID}/reconcile", h.reconcile)
		})
	})

	return r
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

// requestLogger tags each request with an id, attaches a request-scoped
// logger to the context and records the access log line and metrics.
func requestLogger(logger *zerolog.Logger) func(http.Handler) http.Handler {
	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "http").Logger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, requestID)

			reqLogger := base.With().Str("request_id", requestID).Logger()
			ctx := reqLogger.WithContext(r.Context())

			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r.WithContext(ctx))
			dur := time.Since(start)

			route := r.URL.Path
			if rc := chi.RouteContext(ctx); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			metrics.IncHTTP(route, strconv.Itoa(recorder.status))
			metrics.ObserveHTTP(route, dur.Seconds())

			reqLogger.Info().
				Str("method", r.Method).
				Str("route", route).
				Int("status", recorder.status).
				Dur("duration", dur).
				Msg("http request")
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack is required by the websocket upgrade.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return h.Hijack()
}
