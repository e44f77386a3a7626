package ingest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	verrors "github.com/vitalog/vitalog/internal/errors"
	"github.com/vitalog/vitalog/pkg/types"
)

func TestRequestResolve(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		kind  types.Kind
		value float64
		code  string
	}{
		{"number", `{"user_id":1,"kind":"steps","value":8000}`, types.KindSteps, 8000, ""},
		{"numeric string", `{"user_id":1,"kind":"steps","value":"8000"}`, types.KindSteps, 8000, ""},
		{"sleep minutes", `{"user_id":1,"kind":"sleep","value":435}`, types.KindSleep, 435, ""},
		{"sleep duration", `{"user_id":1,"kind":"sleep","value":"7h15m"}`, types.KindSleep, 435, ""},
		{"screen clock", `{"user_id":1,"kind":"Screen","value":"1:30"}`, types.KindScreen, 90, ""},
		{"sleep decimal hours", `{"user_id":1,"kind":"sleep","value":"7.25"}`, types.KindSleep, 435, ""},
		{"mood", `{"user_id":1,"kind":"mood","value":3}`, types.KindMood, 3, ""},
		{"missing user", `{"kind":"mood","value":3}`, 0, 0, verrors.CodeInvalidUser},
		{"unknown kind", `{"user_id":1,"kind":"water","value":3}`, 0, 0, verrors.CodeInvalidKind},
		{"missing value", `{"user_id":1,"kind":"steps"}`, types.KindSteps, 0, verrors.CodeInvalidValue},
		{"null value", `{"user_id":1,"kind":"steps","value":null}`, types.KindSteps, 0, verrors.CodeInvalidValue},
		{"bad duration", `{"user_id":1,"kind":"sleep","value":"a while"}`, types.KindSleep, 0, verrors.CodeInvalidValue},
		{"bad steps string", `{"user_id":1,"kind":"steps","value":"lots"}`, types.KindSteps, 0, verrors.CodeInvalidValue},
		{"fractional steps string", `{"user_id":1,"kind":"steps","value":"10.5"}`, types.KindSteps, 0, verrors.CodeInvalidValue},
		{"negative steps string", `{"user_id":1,"kind":"steps","value":"-20"}`, types.KindSteps, 0, verrors.CodeInvalidValue},
		{"oversized sleep duration", `{"user_id":1,"kind":"sleep","value":"99999999999999999999h90"}`, types.KindSleep, 0, verrors.CodeInvalidValue},
		{"oversized screen clock", `{"user_id":1,"kind":"screen","value":"99999999999999999999:30"}`, types.KindScreen, 0, verrors.CodeInvalidValue},
		{"mood string", `{"user_id":1,"kind":"mood","value":"2"}`, types.KindMood, 2, ""},
		{"bool value", `{"user_id":1,"kind":"steps","value":true}`, types.KindSteps, 0, verrors.CodeInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := DecodeRequest([]byte(tt.body))
			require.NoError(t, err)

			kind, value, err := req.Resolve()
			if tt.code != "" {
				require.Error(t, err)
				assert.Equal(t, tt.code, verrors.GetCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, kind)
			assert.InDelta(t, tt.value, value, 1e-9)
		})
	}
}

func TestDecodeRequest_Malformed(t *testing.T) {
	_, err := DecodeRequest([]byte(`{"user_id":`))
	require.Error(t, err)
	assert.Equal(t, verrors.ErrCategoryValidation, verrors.GetCategory(err))
}

func TestSubmit(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()

	receipt, err := svc.Submit(ctx, Request{UserID: 4, Kind: "sleep", Value: json.RawMessage(`"8:00"`)})
	require.NoError(t, err)
	assert.Equal(t, 480.0, receipt.Aggregate.TotalSleep)

	_, err = svc.Submit(ctx, Request{UserID: 4, Kind: "sleep", Value: json.RawMessage(`"25:00"`)})
	assert.ErrorIs(t, err, verrors.ErrInvalidValue)

	events, err := s.EventsFor(ctx, 4, receipt.Date)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestSubmitBackfill(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()
	ts := time.Date(2026, 2, 14, 9, 0, 0, 0, time.UTC)

	id, err := svc.SubmitBackfill(ctx, Request{UserID: 2, Kind: "steps", Value: json.RawMessage(`5000`), Timestamp: &ts})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	events, err := s.EventsFor(ctx, 2, types.DateOf(ts))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].Timestamp.Equal(ts))

	_, err = svc.SubmitBackfill(ctx, Request{UserID: 2, Kind: "steps", Value: json.RawMessage(`5000`)})
	assert.Equal(t, verrors.CodeInvalidDate, verrors.GetCode(err))
}
