// profile_test.go - Unit tests for tuning profiles
package servopid

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hipsterbrown/servopid/model"
)

func TestChannelTuningValidation(t *testing.T) {
	nan := float32(math.NaN())

	tests := []struct {
		name        string
		tuning      *ChannelTuning
		expectError bool
	}{
		{
			name:        "defaults",
			tuning:      NewChannelTuning(0),
			expectError: false,
		},
		{
			name: "valid tuning",
			tuning: &ChannelTuning{ID: 3, Params: model.Params{
				P: 1.2, I: 0.1, D: 0.05, DLambda: 0.8, SetPoint: 90, InputMin: 100, InputMax: 900,
			}},
			expectError: false,
		},
		{
			name:        "invalid ID",
			tuning:      &ChannelTuning{ID: 16, Params: model.DefaultParams()},
			expectError: true,
		},
		{
			name:        "NaN gain",
			tuning:      &ChannelTuning{ID: 1, Params: model.Params{P: nan, DLambda: 1}},
			expectError: true,
		},
		{
			name:        "negative d_lambda",
			tuning:      &ChannelTuning{ID: 1, Params: model.Params{DLambda: -1}},
			expectError: true,
		},
		{
			name:        "inverted input range",
			tuning:      &ChannelTuning{ID: 1, Params: model.Params{DLambda: 1, InputMin: 900, InputMax: 100}},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tuning.Validate()
			if tt.expectError && err == nil {
				t.Errorf("Expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestProfileFileOperations(t *testing.T) {
	profile := Profile{
		0: {ID: 0, Params: model.Params{P: 1, I: 0.5, D: 0.25, DLambda: 1, SetPoint: 45, InputMin: 1}},
		1: {ID: 1, Params: model.Params{P: 2, I: 0, D: 0, DLambda: 0.5, SetPoint: -10, InputMin: 1, InputMax: 1023}},
	}
	names := map[int]string{0: "pan"}

	filename := filepath.Join(t.TempDir(), "profile.json")
	if err := SaveProfile(filename, profile, names); err != nil {
		t.Fatalf("Failed to save profile: %v", err)
	}

	loaded, err := LoadProfile(filename)
	if err != nil {
		t.Fatalf("Failed to load profile: %v", err)
	}

	if len(loaded) != len(profile) {
		t.Fatalf("Expected %d tunings, got %d", len(profile), len(loaded))
	}
	for id, want := range profile {
		got, ok := loaded[id]
		if !ok {
			t.Errorf("Missing tuning for channel %d", id)
			continue
		}
		if *got != *want {
			t.Errorf("Tuning mismatch for channel %d: got %v, want %v", id, got, want)
		}
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	for _, key := range []string{`"pan"`, `"channel_1"`, `"set_point"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("profile JSON missing %s", key)
		}
	}
}

func TestLoadProfileRejectsDuplicates(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "dup.json")
	data := `{"a": {"id": 2, "d_lambda": 1}, "b": {"id": 2, "d_lambda": 1}}`
	if err := os.WriteFile(filename, []byte(data), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if _, err := LoadProfile(filename); err == nil {
		t.Error("Expected duplicate channel error")
	}
}

func TestLoadProfileMissingFile(t *testing.T) {
	if _, err := LoadProfile(filepath.Join(t.TempDir(), "nope.json")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadProfile: got %v, want os.ErrNotExist", err)
	}
}

func TestProfileApply(t *testing.T) {
	app := model.NewApp()
	if err := app.ResetChannels(2, model.OriginDevice); err != nil {
		t.Fatalf("ResetChannels failed: %v", err)
	}

	ch, _ := app.Channel(1)
	var events []model.ChannelEvent
	ch.Subscribe(func(ev model.ChannelEvent) { events = append(events, ev) })

	profile := Profile{
		1: {ID: 1, Params: model.Params{P: 3, DLambda: 1, InputMin: 1}},
		5: NewChannelTuning(5),
	}

	applied, err := profile.Apply(app)
	if applied != 1 {
		t.Errorf("applied: got %d, want 1", applied)
	}
	if !IsInvalidIndex(err) {
		t.Errorf("Apply: got %v, want invalid index", err)
	}

	if got := ch.Params().P; got != 3 {
		t.Errorf("P: got %v, want 3", got)
	}
	if len(events) != 1 || events[0].Field != model.FieldP || events[0].Origin != model.OriginLocal {
		t.Errorf("events: got %+v, want one local P change", events)
	}

	captured := ProfileFromApp(app)
	if len(captured) != 2 || captured[1].P != 3 {
		t.Errorf("ProfileFromApp: got %v", captured)
	}
	if err := captured.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestChannelTuningString(t *testing.T) {
	tuning := &ChannelTuning{ID: 2, Params: model.Params{P: 1.5, I: 0, D: 0, DLambda: 1, SetPoint: 90, InputMin: 1, InputMax: 0}}
	expected := "Channel 2: P=1.5 I=0 D=0 DLambda=1 SetPoint=90 Input=[1, 0]"

	if str := tuning.String(); str != expected {
		t.Errorf("String() = %q, want %q", str, expected)
	}
}
