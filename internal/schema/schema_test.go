package schema

import (
	"errors"
	"testing"

	"github.com/brianly1003/flocksync/internal/domain"
)

func TestValidate(t *testing.T) {
	v, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	flockID := "f1"

	tests := []struct {
		name      string
		entity    domain.EntityType
		data      any
		wantErr   bool
		wantField string
	}{
		{"flock ok", domain.EntityFlocks, map[string]any{"name": "Backyard", "ownedBy": "u1"}, false, ""},
		{"flock typed", domain.EntityFlocks, domain.Flock{Name: "Backyard", OwnedBy: "u1"}, false, ""},
		{"flock missing owner", domain.EntityFlocks, map[string]any{"name": "Backyard"}, true, "flocks"},
		{"chicken ok", domain.EntityChickens, domain.Chicken{Name: "Henrietta", Breed: "Silkie"}, false, ""},
		{"chicken empty name", domain.EntityChickens, map[string]any{"name": ""}, true, "name"},
		{"egg ok", domain.EntityEggs, map[string]any{"chickenId": "c1", "date": "2024-03-01", "weight": "57.5"}, false, ""},
		{"egg numeric weight", domain.EntityEggs, domain.Egg{ChickenID: "c1", Date: "2024-03-01", Weight: 60}, false, ""},
		{"egg bad date", domain.EntityEggs, map[string]any{"chickenId": "c1", "date": "March 1"}, true, "date"},
		{"egg bad quantity", domain.EntityEggs, map[string]any{"chickenId": "c1", "date": "2024-03-01", "quantity": 0}, true, "quantity"},
		{"settings ok", domain.EntityUserSettings, domain.UserSettings{CurrentFlockID: &flockID, Flocks: map[string]bool{"f1": true}}, false, ""},
		{"settings cleared selection", domain.EntityUserSettings, map[string]any{"currentFlockId": nil}, false, ""},
		{"settings bad membership", domain.EntityUserSettings, map[string]any{"flocks": map[string]any{"f1": "yes"}}, true, "flocks.f1"},
		{"not an object", domain.EntityChickens, "Henrietta", true, "chickens"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.entity, tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				return
			}
			if !errors.Is(err, domain.ErrInvalidPayload) {
				t.Errorf("Validate() error = %v, want ErrInvalidPayload", err)
			}
			var ve *domain.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Validate() error type = %T, want *domain.ValidationError", err)
			}
			if ve.Field != tt.wantField {
				t.Errorf("Field = %q, want %q (%s)", ve.Field, tt.wantField, ve.Message)
			}
			if ve.Message == "" {
				t.Error("Message is empty")
			}
		})
	}
}

func TestValidate_UnknownEntity(t *testing.T) {
	v := MustNew()
	if err := v.Validate(domain.EntityUnknown, map[string]any{}); !errors.Is(err, domain.ErrUnknownEntity) {
		t.Errorf("Validate() error = %v, want ErrUnknownEntity", err)
	}
}
