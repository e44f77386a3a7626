package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	verrors "github.com/vitalog/vitalog/internal/errors"
	"github.com/vitalog/vitalog/internal/metrics"
	"github.com/vitalog/vitalog/internal/rule"
	"github.com/vitalog/vitalog/pkg/types"
	"github.com/vitalog/vitalog/pkg/units"
)

// Request is an event as submitted by a producer over HTTP, gRPC or Kafka.
//
// Value is a JSON number in the kind's unit. Sleep and screen also accept a
// duration string ("7h15m", "7:15", "7.25" hours), steps a whole-number
// string and mood a numeric string.
type Request struct {
	UserID    int64           `json:"user_id"`
	Kind      string          `json:"kind"`
	Value     json.RawMessage `json:"value"`
	Timestamp *time.Time      `json:"timestamp,omitempty"`
}

// DecodeRequest parses a JSON request body.
func DecodeRequest(data []byte) (Request, error) {
	var req Request
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&req); err != nil {
		return Request{}, verrors.Wrap(verrors.ErrCategoryValidation, verrors.CodeInvalidValue, "malformed event payload", err)
	}
	return req, nil
}

// Resolve checks the user and kind and converts Value to the kind's unit.
func (r Request) Resolve() (types.Kind, float64, error) {
	if r.UserID <= 0 {
		return 0, 0, verrors.NewValidationError(verrors.CodeInvalidUser, fmt.Sprintf("user_id must be positive, got %d", r.UserID)).
			WithDetails(map[string]interface{}{"user_id": r.UserID})
	}
	kind, err := types.ParseKind(r.Kind)
	if err != nil {
		return 0, 0, rule.InvalidKind(r.Kind)
	}

	raw := bytes.TrimSpace(r.Value)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return kind, 0, valueError(kind, "value is required")
	}

	if raw[0] != '"' {
		var v float64
		if err := json.Unmarshal(raw, &v); err != nil {
			return kind, 0, valueError(kind, "value must be a number")
		}
		return kind, v, nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return kind, 0, valueError(kind, "value must be a number or string")
	}
	switch kind {
	case types.KindSleep, types.KindScreen:
		v, err := units.ParseMinutes(text)
		if err != nil {
			return kind, 0, valueError(kind, err.Error())
		}
		return kind, v, nil
	case types.KindSteps:
		n, ok := units.ParseCount(text)
		if !ok {
			return kind, 0, valueError(kind, fmt.Sprintf("value %q is not a whole number of steps", text))
		}
		return kind, float64(n), nil
	default:
		v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return kind, 0, valueError(kind, fmt.Sprintf("value %q is not a number", text))
		}
		return kind, v, nil
	}
}

func valueError(kind types.Kind, msg string) error {
	return verrors.NewValidationError(verrors.CodeInvalidValue, fmt.Sprintf("%s: %s", kind, msg)).
		WithDetails(map[string]interface{}{"kind": kind.String()})
}

// Submit resolves req and ingests it stamped with the current time.
// req.Timestamp is ignored; use SubmitBackfill for historical events.
func (s *Service) Submit(ctx context.Context, req Request) (*Receipt, error) {
	kind, value, err := req.Resolve()
	if err != nil {
		s.metrics.Ingest(kindLabel(kind), metrics.OutcomeInvalid, 0)
		return nil, err
	}
	return s.IngestNamed(ctx, req.UserID, kind.String(), value)
}

// SubmitBackfill resolves req and appends it at req.Timestamp.
func (s *Service) SubmitBackfill(ctx context.Context, req Request) (string, error) {
	kind, value, err := req.Resolve()
	if err != nil {
		return "", err
	}
	if req.Timestamp == nil {
		return "", verrors.NewValidationError(verrors.CodeInvalidDate, "backfill requires a timestamp")
	}
	return s.Backfill(ctx, req.UserID, kind, value, *req.Timestamp)
}
