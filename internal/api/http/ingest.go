package http

import (
	"context"
	"io"
	"net/http"

	verrors "github.com/vitalog/vitalog/internal/errors"
	"github.com/vitalog/vitalog/internal/ingest"
	"github.com/vitalog/vitalog/pkg/types"
)

// maxEventBody bounds a single event request.
const maxEventBody = 64 << 10

// EventSubmitter is the ingestion service as seen by the HTTP layer.
type EventSubmitter interface {
	Submit(ctx context.Context, req ingest.Request) (*ingest.Receipt, error)
	SubmitBackfill(ctx context.Context, req ingest.Request) (string, error)
}

// EventResponse is returned for an accepted event.
type EventResponse struct {
	EventID   string                `json:"event_id"`
	Date      types.Date            `json:"date"`
	Aggregate *types.DailyAggregate `json:"aggregate,omitempty"`
	RequestID string                `json:"request_id"`
}

// IngestHandler handles POST /v1/events and POST /v1/backfill.
type IngestHandler struct {
	svc EventSubmitter
}

// NewIngestHandler creates a new ingest handler.
func NewIngestHandler(svc EventSubmitter) *IngestHandler {
	return &IngestHandler{svc: svc}
}

// Events records one event at the current time.
func (h *IngestHandler) Events(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeEvent(w, r)
	if !ok {
		return
	}

	receipt, err := h.svc.Submit(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	agg := receipt.Aggregate
	writeJSON(w, http.StatusCreated, EventResponse{
		EventID:   receipt.EventID,
		Date:      receipt.Date,
		Aggregate: &agg,
		RequestID: GetRequestID(r.Context()),
	})
}

// Backfill records one event at the timestamp given in the body. The
// aggregate for that date is updated by the next repair.
func (h *IngestHandler) Backfill(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeEvent(w, r)
	if !ok {
		return
	}

	id, err := h.svc.SubmitBackfill(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, EventResponse{
		EventID:   id,
		Date:      types.DateOf(*req.Timestamp),
		RequestID: GetRequestID(r.Context()),
	})
}

func decodeEvent(w http.ResponseWriter, r *http.Request) (ingest.Request, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, verrors.CodeInvalidValue, "request body too large", GetRequestID(r.Context()))
		return ingest.Request{}, false
	}
	req, err := ingest.DecodeRequest(body)
	if err != nil {
		writeServiceError(w, r, err)
		return ingest.Request{}, false
	}
	return req, true
}
