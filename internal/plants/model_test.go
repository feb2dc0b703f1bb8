package plants

import (
	"errors"
	"strings"
	"testing"
)

func TestNewPlantIDValidation(t *testing.T) {
	id, err := NewPlantID("  plant-1  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.String() != "plant-1" {
		t.Fatalf("expected trimmed id, got %q", id.String())
	}

	if _, err := NewPlantID("   "); !errors.Is(err, ErrInvalidPlantID) {
		t.Fatalf("expected ErrInvalidPlantID for blank input, got %v", err)
	}
	if _, err := NewPlantID(strings.Repeat("a", 191)); !errors.Is(err, ErrInvalidPlantID) {
		t.Fatalf("expected ErrInvalidPlantID for oversized input, got %v", err)
	}
}

func TestNewUserIDValidation(t *testing.T) {
	id, err := NewUserID("user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.String() != "user-1" {
		t.Fatalf("unexpected id %q", id.String())
	}

	if _, err := NewUserID(""); !errors.Is(err, ErrInvalidUserID) {
		t.Fatalf("expected ErrInvalidUserID for empty input, got %v", err)
	}
}

func TestEffectiveWateringIntervalPrecedence(t *testing.T) {
	dynamic := Plant{WateringIntervalDays: 5, DynamicWateringIntervalDays: 2}
	if got := dynamic.EffectiveWateringInterval(); got != 2 {
		t.Fatalf("expected dynamic interval, got %d", got)
	}

	static := Plant{WateringIntervalDays: 5}
	if got := static.EffectiveWateringInterval(); got != 5 {
		t.Fatalf("expected static interval, got %d", got)
	}

	unset := Plant{}
	if got := unset.EffectiveWateringInterval(); got != 3 {
		t.Fatalf("expected default interval, got %d", got)
	}
}

func TestHasImage(t *testing.T) {
	if (Plant{ImageURL: "   "}).HasImage() {
		t.Fatalf("expected blank url to count as no image")
	}
	if !(Plant{ImageURL: "https://example.com/leaf.jpg"}).HasImage() {
		t.Fatalf("expected image to be detected")
	}
}
