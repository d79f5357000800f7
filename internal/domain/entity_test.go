package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseEntityType(t *testing.T) {
	tests := []struct {
		token   string
		want    EntityType
		wantErr bool
	}{
		{"userSettings", EntityUserSettings, false},
		{"flocks", EntityFlocks, false},
		{"chickens", EntityChickens, false},
		{"eggs", EntityEggs, false},
		{"roosters", EntityUnknown, true},
		{"", EntityUnknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			got, err := ParseEntityType(tt.token)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseEntityType(%q) error = %v, wantErr %v", tt.token, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrUnknownEntity) {
				t.Errorf("error = %v, want ErrUnknownEntity", err)
			}
			if got != tt.want {
				t.Errorf("ParseEntityType(%q) = %v, want %v", tt.token, got, tt.want)
			}
		})
	}
}

func TestEntityType_JSON(t *testing.T) {
	var payload struct {
		Entity EntityType `json:"entity"`
	}
	if err := json.Unmarshal([]byte(`{"entity":"chickens"}`), &payload); err != nil {
		t.Fatalf("Unmarshal error = %v", err)
	}
	if payload.Entity != EntityChickens {
		t.Errorf("Entity = %v, want chickens", payload.Entity)
	}

	if err := json.Unmarshal([]byte(`{"entity":"geese"}`), &payload); err == nil {
		t.Error("expected error for unknown entity token")
	}

	if _, err := json.Marshal(struct{ E EntityType }{EntityUnknown}); err == nil {
		t.Error("expected error marshaling EntityUnknown")
	}
}

func TestWeight_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in   string
		want Weight
	}{
		{`62.5`, 62.5},
		{`"58"`, 58},
		{`""`, 0},
		{`null`, 0},
	}
	for _, tt := range tests {
		var w Weight
		if err := json.Unmarshal([]byte(tt.in), &w); err != nil {
			t.Errorf("Unmarshal(%s) error = %v", tt.in, err)
			continue
		}
		if w != tt.want {
			t.Errorf("Unmarshal(%s) = %v, want %v", tt.in, w, tt.want)
		}
	}

	var w Weight
	if err := json.Unmarshal([]byte(`"heavy"`), &w); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("Unmarshal(\"heavy\") error = %v, want ErrInvalidPayload", err)
	}
}

func TestUserSettings_Memberships(t *testing.T) {
	s := UserSettings{Flocks: map[string]bool{"b": true, "a": true, "c": false}}
	got := s.Memberships()
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Memberships() = %v, want [a b]", got)
	}

	clone := s.Clone()
	clone.Flocks["z"] = true
	if s.Flocks["z"] {
		t.Error("Clone() shares the flocks map")
	}
}

func TestDecode(t *testing.T) {
	var settings UserSettings
	err := Decode(map[string]any{
		"currentFlockId": "flock1",
		"flocks":         map[string]any{"flock1": true},
	}, &settings)
	if err != nil {
		t.Fatalf("Decode error = %v", err)
	}
	if !settings.IsCurrent("flock1") {
		t.Errorf("Current() = %q, want flock1", settings.Current())
	}
	if !settings.Flocks["flock1"] {
		t.Error("membership flock1 missing")
	}

	var flock Flock
	if err := Decode("not an object", &flock); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("Decode(string) error = %v, want ErrInvalidPayload", err)
	}
}

func TestRemoteError(t *testing.T) {
	if NewRemoteError("get", "flocks/x", nil) != nil {
		t.Error("NewRemoteError(nil) should be nil")
	}

	err := NewRemoteError("get", "flocks/x", ErrNotFound)
	if !errors.Is(err, ErrNotFound) {
		t.Error("RemoteError should unwrap to ErrNotFound")
	}
	if err.Error() != "remote get flocks/x: not found" {
		t.Errorf("Error() = %q", err.Error())
	}

	again := NewRemoteError("set", "other", err)
	if again != err {
		t.Error("NewRemoteError should not double wrap")
	}

	if ErrorCode(err) != ErrCodeNotFound {
		t.Errorf("ErrorCode = %s, want %s", ErrorCode(err), ErrCodeNotFound)
	}
	if ErrorCode(NewValidationError("name", "required")) != ErrCodeInvalidPayload {
		t.Error("ValidationError should map to INVALID_PAYLOAD")
	}
}
