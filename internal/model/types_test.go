package model

import (
	"testing"
	"time"
)

func TestDirection(t *testing.T) {
	tests := []struct {
		change float64
		want   string
	}{
		{5.0, DirectionUp},
		{0.001, DirectionUp},
		{0.0, DirectionDown},
		{-0.001, DirectionDown},
		{-12.5, DirectionDown},
	}

	for _, tt := range tests {
		if got := Direction(tt.change); got != tt.want {
			t.Errorf("Direction(%v) = %q, want %q", tt.change, got, tt.want)
		}
	}
}

func TestChangePct(t *testing.T) {
	tests := []struct {
		price    float64
		baseline float64
		want     float64
	}{
		{110, 100, 10},
		{90, 100, -10},
		{100, 100, 0},
		{95, 100, -5},
	}

	for _, tt := range tests {
		if got := ChangePct(tt.price, tt.baseline); got != tt.want {
			t.Errorf("ChangePct(%v, %v) = %v, want %v", tt.price, tt.baseline, got, tt.want)
		}
	}
}

func TestObservationExpired(t *testing.T) {
	now := time.Now()
	obs := Observation{ExpiresAt: now}

	if !obs.Expired(now) {
		t.Error("Expired(expiry instant) = false, want true")
	}
	if !obs.Expired(now.Add(time.Minute)) {
		t.Error("Expired(after expiry) = false, want true")
	}
	if obs.Expired(now.Add(-time.Minute)) {
		t.Error("Expired(before expiry) = true, want false")
	}
}
