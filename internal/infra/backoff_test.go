package infra

import (
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	tests := []struct {
		retry int
		want  time.Duration
	}{
		{-1, time.Second},
		{0, time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{5, 32 * time.Second},
		{6, 60 * time.Second},
		{40, 60 * time.Second},
	}

	for _, tt := range tests {
		if got := Backoff(tt.retry, time.Second, time.Minute); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.retry, got, tt.want)
		}
	}

	if got := Backoff(2, 100*time.Millisecond, 300*time.Millisecond); got != 300*time.Millisecond {
		t.Errorf("Backoff cap = %v, want 300ms", got)
	}
}
