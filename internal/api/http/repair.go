package http

import (
	"context"
	"net/http"
	"time"

	verrors "github.com/vitalog/vitalog/internal/errors"
	"github.com/vitalog/vitalog/internal/repair"
	"github.com/vitalog/vitalog/pkg/types"
)

// maxRepairSpan bounds a range repair request.
const maxRepairSpan = 366

// Repairer is the batch aggregator as seen by the HTTP layer.
type Repairer interface {
	RepairDay(ctx context.Context, date types.Date) (*repair.Result, error)
	RepairRange(ctx context.Context, from, to types.Date) ([]*repair.Result, error)
	Diff(ctx context.Context, date types.Date) ([]repair.Drift, error)
}

// RepairResponse is the body of POST /v1/repair.
type RepairResponse struct {
	Results   []*repair.Result `json:"results"`
	RequestID string           `json:"request_id"`
}

// DiffResponse is the body of GET /v1/repair/diff.
type DiffResponse struct {
	Date      types.Date     `json:"date"`
	Drift     []repair.Drift `json:"drift"`
	RequestID string         `json:"request_id"`
}

// RepairHandler serves on-demand repairs.
type RepairHandler struct {
	repairer Repairer
	now      func() time.Time
}

// NewRepairHandler creates a new repair handler. now defaults to time.Now.
func NewRepairHandler(repairer Repairer, now func() time.Time) *RepairHandler {
	if now == nil {
		now = time.Now
	}
	return &RepairHandler{repairer: repairer, now: now}
}

// Repair handles POST /v1/repair?date=YYYY-MM-DD or ?from=..&to=..
// With no parameters yesterday (UTC) is repaired.
func (h *RepairHandler) Repair(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	yesterday := types.DateOf(h.now()).AddDays(-1)

	if q.Get("from") != "" || q.Get("to") != "" {
		from, ok := dateParam(w, r, "from", yesterday)
		if !ok {
			return
		}
		to, ok := dateParam(w, r, "to", from)
		if !ok {
			return
		}
		if to.Before(from) || to.Start().Sub(from.Start()) > maxRepairSpan*24*time.Hour {
			writeError(w, http.StatusBadRequest, verrors.CodeInvalidDate, "to must be on or after from and within a year", GetRequestID(r.Context()))
			return
		}

		results, err := h.repairer.RepairRange(r.Context(), from, to)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, RepairResponse{Results: results, RequestID: GetRequestID(r.Context())})
		return
	}

	date, ok := dateParam(w, r, "date", yesterday)
	if !ok {
		return
	}
	res, err := h.repairer.RepairDay(r.Context(), date)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RepairResponse{Results: []*repair.Result{res}, RequestID: GetRequestID(r.Context())})
}

// Diff handles GET /v1/repair/diff?date=YYYY-MM-DD and reports aggregates
// that disagree with the event log without changing them.
func (h *RepairHandler) Diff(w http.ResponseWriter, r *http.Request) {
	date, ok := dateParam(w, r, "date", types.DateOf(h.now()).AddDays(-1))
	if !ok {
		return
	}
	drift, err := h.repairer.Diff(r.Context(), date)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if drift == nil {
		drift = []repair.Drift{}
	}
	writeJSON(w, http.StatusOK, DiffResponse{Date: date, Drift: drift, RequestID: GetRequestID(r.Context())})
}
