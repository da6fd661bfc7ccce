package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fitbet/bet-engine/internal/betting"
	"github.com/fitbet/bet-engine/internal/model"
	"github.com/fitbet/bet-engine/internal/stats"
)

// --- Bets ---

// PlaceBet handles POST /api/v1/bets
func (h *Handler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	var req betting.PlaceBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", string(betting.CodeInvalidInput), http.StatusBadRequest)
		return
	}

	view, err := h.engine.PlaceBet(r.Context(), UserID(r.Context()), req)
	if err != nil {
		h.writeEngineError(w, r, err, "failed to create bet")
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// ListBets handles GET /api/v1/bets?userId=
func (h *Handler) ListBets(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		userID = UserID(r.Context())
	}

	overview, err := h.engine.ListBets(r.Context(), userID)
	if err != nil {
		h.writeEngineError(w, r, err, "failed to fetch bets")
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

// --- Schedules ---

type createScheduleBody struct {
	Date         string         `json:"date"`
	ExerciseType string         `json:"exerciseType"`
	TimeSlot     model.TimeSlot `json:"timeSlot"`
}

// CreateSchedule handles POST /api/v1/schedules
func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var body createScheduleBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, "invalid request body", string(betting.CodeInvalidInput), http.StatusBadRequest)
		return
	}
	var date time.Time
	if body.Date != "" {
		var err error
		if date, err = parseTime(body.Date); err != nil {
			writeError(w, "date must be RFC 3339 or YYYY-MM-DD", string(betting.CodeInvalidInput), http.StatusBadRequest)
			return
		}
	}

	entry, err := h.engine.CreateSchedule(r.Context(), UserID(r.Context()), betting.CreateScheduleRequest{
		Date:         date,
		ExerciseType: body.ExerciseType,
		TimeSlot:     body.TimeSlot,
	})
	if err != nil {
		h.writeEngineError(w, r, err, "failed to create schedule")
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// ListSchedules handles GET /api/v1/schedules?userId=&start=&end=
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := q.Get("userId")
	if userID == "" {
		userID = UserID(r.Context())
	}

	var from, to time.Time
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"start", &from}, {"end", &to}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		t, err := parseTime(raw)
		if err != nil {
			writeError(w, p.name+" must be RFC 3339 or YYYY-MM-DD", string(betting.CodeInvalidInput), http.StatusBadRequest)
			return
		}
		*p.dst = t
	}

	list, err := h.engine.ListSchedules(r.Context(), userID, from, to)
	if err != nil {
		h.writeEngineError(w, r, err, "failed to fetch schedules")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type updateScheduleBody struct {
	Completed   *bool      `json:"completed"`
	CompletedAt *time.Time `json:"completedAt"`
}

// UpdateSchedule handles PATCH /api/v1/schedules/{id}. Only the completion
// flag can change; a real change resolves the entry's ACTIVE bets.
func (h *Handler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	var body updateScheduleBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Completed == nil {
		writeError(w, "completed is required", string(betting.CodeInvalidInput), http.StatusBadRequest)
		return
	}

	res, err := h.engine.SetCompleted(r.Context(), UserID(r.Context()), chi.URLParam(r, "id"), *body.Completed, body.CompletedAt)
	if err != nil {
		h.writeEngineError(w, r, err, "failed to update schedule")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// DeleteSchedule handles DELETE /api/v1/schedules/{id}
func (h *Handler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeleteSchedule(r.Context(), chi.URLParam(r, "id"), UserID(r.Context())); err != nil {
		h.writeEngineError(w, r, err, "failed to delete schedule")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Schedule deleted successfully"})
}

// --- Notifications ---

// ListNotifications handles GET /api/v1/notifications?unreadOnly=&limit=
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, "limit must be an integer", string(betting.CodeInvalidInput), http.StatusBadRequest)
			return
		}
		limit = n
	}

	page, err := h.engine.ListNotifications(r.Context(), UserID(r.Context()), q.Get("unreadOnly") == "true", limit)
	if err != nil {
		h.writeEngineError(w, r, err, "failed to fetch notifications")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

type markNotificationsBody struct {
	NotificationIDs []string `json:"notificationIds"`
	MarkAsRead      *bool    `json:"markAsRead"`
}

// MarkNotifications handles PATCH /api/v1/notifications. markAsRead
// defaults to true.
func (h *Handler) MarkNotifications(w http.ResponseWriter, r *http.Request) {
	var body markNotificationsBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, "invalid request body", string(betting.CodeInvalidInput), http.StatusBadRequest)
		return
	}
	read := true
	if body.MarkAsRead != nil {
		read = *body.MarkAsRead
	}

	n, err := h.engine.MarkNotifications(r.Context(), UserID(r.Context()), body.NotificationIDs, read)
	if err != nil {
		h.writeEngineError(w, r, err, "failed to update notifications")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": n})
}

// MarkAllNotificationsRead handles POST /api/v1/notifications/mark-all-read
func (h *Handler) MarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.engine.MarkAllNotificationsRead(r.Context(), UserID(r.Context()))
	if err != nil {
		h.writeEngineError(w, r, err, "failed to mark notifications as read")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": n})
}

// --- Users and stats ---

// ListUsers handles GET /api/v1/users
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	friends, err := h.stats.Friends(r.Context(), UserID(r.Context()))
	if err != nil {
		h.writeEngineError(w, r, err, "failed to fetch users")
		return
	}
	writeJSON(w, http.StatusOK, friends)
}

// UserStats handles GET /api/v1/users/{userId}/stats
func (h *Handler) UserStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.stats.UserStats(r.Context(), chi.URLParam(r, "userId"))
	if errors.Is(err, stats.ErrUserNotFound) {
		writeError(w, "User not found", string(betting.CodeNotFound), http.StatusNotFound)
		return
	}
	if err != nil {
		h.writeEngineError(w, r, err, "failed to fetch user stats")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Dashboard handles GET /api/v1/dashboard/stats
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := h.stats.Dashboard(r.Context(), UserID(r.Context()))
	if err != nil {
		h.writeEngineError(w, r, err, "failed to fetch dashboard stats")
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

// --- Sweep ---

// Sweep handles POST /api/v1/cron/resolve-bets
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	if !h.cronAuthorized(r) {
		writeError(w, "Unauthorized", "UNAUTHORIZED", http.StatusUnauthorized)
		return
	}

	var cutoff time.Time
	if h.opts.SweepBudget > 0 {
		cutoff = h.clock.Now().Add(h.opts.SweepBudget)
	}
	report, err := h.engine.Sweep(r.Context(), cutoff)
	if err != nil {
		h.writeEngineError(w, r, err, "failed to resolve bets")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Bets resolved successfully",
		"report":  report,
	})
}

// SweepStatus handles GET /api/v1/cron/resolve-bets
func (h *Handler) SweepStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message":     "Bet resolution endpoint is ready",
		"gracePeriod": h.engine.GracePeriod().String(),
	})
}

func (h *Handler) cronAuthorized(r *http.Request) bool {
	if h.opts.CronSecret == "" {
		return true
	}
	got := bearerToken(r)
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.opts.CronSecret)) == 1
}

// --- WebSocket ---

// ServeWS handles GET /api/v1/ws, streaming the caller's new notifications.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	h.opts.WS.Serve(w, r, UserID(r.Context()))
}

// parseTime accepts RFC 3339 timestamps and bare YYYY-MM-DD dates (UTC
// midnight).
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}
