// Package api exposes the bet engine over HTTP. Handlers decode the request,
// call the engine or the stats service, and map rejections onto status codes.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fitbet/bet-engine/internal/betting"
	"github.com/fitbet/bet-engine/internal/clock"
	"github.com/fitbet/bet-engine/internal/stats"
)

// WSServer attaches a websocket connection to a user.
type WSServer interface {
	Serve(w http.ResponseWriter, r *http.Request, userID string)
}

// Options configures a Handler.
type Options struct {
	// CronSecret, when set, must be presented as a bearer token on the
	// sweep endpoint.
	CronSecret string
	// SweepBudget bounds one HTTP-triggered sweep; zero means unbounded.
	SweepBudget time.Duration
	// WS serves /ws; nil leaves the route unregistered.
	WS WSServer
}

// Handler holds the HTTP handlers.
type Handler struct {
	engine   *betting.Engine
	stats    *stats.Service
	identity *Identity
	clock    clock.Clock
	opts     Options
	log      *slog.Logger
}

// NewHandler creates the HTTP layer over the engine and stats service.
func NewHandler(eng *betting.Engine, st *stats.Service, identity *Identity, clk clock.Clock, opts Options) *Handler {
	return &Handler{
		engine:   eng,
		stats:    st,
		identity: identity,
		clock:    clk,
		opts:     opts,
		log:      slog.Default().With("component", "api"),
	}
}

// Routes mounts the API on r, normally under /api/v1.
func (h *Handler) Routes(r chi.Router) {
	// The scheduler authenticates with the cron secret, not a user identity.
	r.Get("/cron/resolve-bets", h.SweepStatus)
	r.Post("/cron/resolve-bets", h.Sweep)

	r.Group(func(r chi.Router) {
		r.Use(h.identity.Middleware)

		if h.opts.WS != nil {
			r.Get("/ws", h.ServeWS)
		}

		r.Get("/bets", h.ListBets)
		r.Post("/bets", h.PlaceBet)

		r.Get("/schedules", h.ListSchedules)
		r.Post("/schedules", h.CreateSchedule)
		r.Patch("/schedules/{id}", h.UpdateSchedule)
		r.Delete("/schedules/{id}", h.DeleteSchedule)

		r.Get("/notifications", h.ListNotifications)
		r.Patch("/notifications", h.MarkNotifications)
		r.Post("/notifications/mark-all-read", h.MarkAllNotificationsRead)

		r.Get("/users", h.ListUsers)
		r.Get("/users/{userId}/stats", h.UserStats)
		r.Get("/dashboard/stats", h.Dashboard)
	})
}

// statusFor maps a rejection code to its HTTP status.
func statusFor(code betting.Code) int {
	switch code {
	case betting.CodeNotFound:
		return http.StatusNotFound
	case betting.CodeForbidden:
		return http.StatusForbidden
	case betting.CodeDuplicateBet, betting.CodeSlotTaken, betting.CodeBlockedByActive:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

// writeEngineError writes a rejection with its code, or a 500 that hides
// the internal error text.
func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var re *betting.RejectionError
	if errors.As(err, &re) {
		writeError(w, re.Error(), string(re.Code), statusFor(re.Code))
		return
	}
	h.log.Error(fallback, "method", r.Method, "path", r.URL.Path, "err", err)
	writeError(w, fallback, "INTERNAL", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message, code string, status int) {
	writeJSON(w, status, map[string]string{"error": message, "code": code})
}
