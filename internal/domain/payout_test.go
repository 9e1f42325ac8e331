package domain

import (
	"testing"
	"time"
)

func TestPayoutStatus_CanTransitionTo(t *testing.T) {
	cases := []struct {
		from    PayoutStatus
		to      PayoutStatus
		allowed bool
	}{
		{PayoutStatusPending, PayoutStatusProcessing, true},
		{PayoutStatusPending, PayoutStatusCompleted, false},
		{PayoutStatusProcessing, PayoutStatusCompleted, true},
		{PayoutStatusProcessing, PayoutStatusFailed, true},
		{PayoutStatusFailed, PayoutStatusProcessing, true},
		{PayoutStatusFailed, PayoutStatusCompleted, false},
		{PayoutStatusCompleted, PayoutStatusProcessing, false},
	}

	for _, c := range cases {
		if got := c.from.CanTransitionTo(c.to); got != c.allowed {
			t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", c.from, c.to, got, c.allowed)
		}
	}
}

func TestRetryPolicy_NextDelay(t *testing.T) {
	p := DefaultRetryPolicy()

	cases := []struct {
		retryCount int32
		want       time.Duration
	}{
		{1, time.Hour},
		{2, 2 * time.Hour},
		{3, 4 * time.Hour},
		{4, 8 * time.Hour},
		{5, 16 * time.Hour},
		{6, 24 * time.Hour}, // capped
		{10, 24 * time.Hour},
	}

	for _, c := range cases {
		if got := p.NextDelay(c.retryCount); got != c.want {
			t.Errorf("NextDelay(%d) = %v, want %v", c.retryCount, got, c.want)
		}
	}
}

func TestRetryPolicy_Exhausted(t *testing.T) {
	p := DefaultRetryPolicy()

	if p.Exhausted(4) {
		t.Error("Expected 4 retries to not be exhausted")
	}
	if !p.Exhausted(5) {
		t.Error("Expected 5 retries to be exhausted")
	}
}
