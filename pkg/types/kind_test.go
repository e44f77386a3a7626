package types

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		input string
		want  Kind
	}{
		{"sleep", KindSleep},
		{"screen", KindScreen},
		{"steps", KindSteps},
		{"mood", KindMood},
		{" Mood ", KindMood},
		{"SLEEP", KindSleep},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.input)
		if err != nil {
			t.Errorf("ParseKind(%q) unexpected error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseKind(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestParseKind_Unknown(t *testing.T) {
	for _, input := range []string{"", "weight", "steps2"} {
		if _, err := ParseKind(input); !errors.Is(err, ErrUnknownKind) {
			t.Errorf("ParseKind(%q) error = %v, want ErrUnknownKind", input, err)
		}
	}
}

func TestKind_Valid(t *testing.T) {
	for _, k := range Kinds() {
		if !k.Valid() {
			t.Errorf("%v should be valid", k)
		}
	}
	if Kind(0).Valid() || Kind(9).Valid() {
		t.Error("out-of-range kinds should be invalid")
	}
	if Kind(9).String() != "kind(9)" {
		t.Errorf("String() = %q", Kind(9).String())
	}
}

func TestKind_JSON(t *testing.T) {
	var payload struct {
		Kind Kind `json:"kind"`
	}
	if err := json.Unmarshal([]byte(`{"kind":"screen"}`), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.Kind != KindScreen {
		t.Errorf("kind = %v, want screen", payload.Kind)
	}
	out, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"kind":"screen"}` {
		t.Errorf("marshal = %s", out)
	}
}
