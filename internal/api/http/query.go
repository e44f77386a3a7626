package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	verrors "github.com/vitalog/vitalog/internal/errors"
	"github.com/vitalog/vitalog/internal/report"
	"github.com/vitalog/vitalog/pkg/types"
)

// Reporter is the report service as seen by the HTTP layer.
type Reporter interface {
	Weekly(ctx context.Context, userID int64, end types.Date) ([]types.DailyAggregate, error)
	Daily(ctx context.Context, date types.Date) ([]types.DailyAggregate, error)
}

// WeeklyResponse is the body of GET /v1/users/{user_id}/weekly.
type WeeklyResponse struct {
	UserID    int64                  `json:"user_id"`
	Start     types.Date             `json:"start"`
	End       types.Date             `json:"end"`
	Days      []types.DailyAggregate `json:"days"`
	RequestID string                 `json:"request_id"`
}

// DailyResponse is the body of GET /v1/daily.
type DailyResponse struct {
	Date      types.Date             `json:"date"`
	Users     []types.DailyAggregate `json:"users"`
	RequestID string                 `json:"request_id"`
}

// QueryHandler serves the read endpoints.
type QueryHandler struct {
	reports Reporter
	now     func() time.Time
}

// NewQueryHandler creates a new query handler. now defaults to time.Now.
func NewQueryHandler(reports Reporter, now func() time.Time) *QueryHandler {
	if now == nil {
		now = time.Now
	}
	return &QueryHandler{reports: reports, now: now}
}

// Weekly handles GET /v1/users/{user_id}/weekly?end=YYYY-MM-DD[&dense=true].
func (h *QueryHandler) Weekly(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.PathValue("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		writeError(w, http.StatusBadRequest, verrors.CodeInvalidUser, "user_id must be a positive integer", GetRequestID(r.Context()))
		return
	}

	end, ok := dateParam(w, r, "end", types.DateOf(h.now()))
	if !ok {
		return
	}

	days, err := h.reports.Weekly(r.Context(), userID, end)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if dense, _ := strconv.ParseBool(r.URL.Query().Get("dense")); dense {
		days = report.Dense(userID, end, days)
	}

	writeJSON(w, http.StatusOK, WeeklyResponse{
		UserID:    userID,
		Start:     report.WeekStart(end),
		End:       end,
		Days:      days,
		RequestID: GetRequestID(r.Context()),
	})
}

// Daily handles GET /v1/daily?date=YYYY-MM-DD.
func (h *QueryHandler) Daily(w http.ResponseWriter, r *http.Request) {
	date, ok := dateParam(w, r, "date", types.DateOf(h.now()))
	if !ok {
		return
	}

	users, err := h.reports.Daily(r.Context(), date)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, DailyResponse{
		Date:      date,
		Users:     users,
		RequestID: GetRequestID(r.Context()),
	})
}

// dateParam reads a YYYY-MM-DD query parameter, writing a 400 when malformed.
func dateParam(w http.ResponseWriter, r *http.Request, name string, def types.Date) (types.Date, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	d, err := types.ParseDate(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, verrors.CodeInvalidDate, name+" must be YYYY-MM-DD", GetRequestID(r.Context()))
		return types.Date{}, false
	}
	return d, true
}
