package report

import (
	"testing"
	"time"

	"github.com/crmops/chatwatch/pkg/logger"
)

func TestParseTriggerTime(t *testing.T) {
	cases := []struct {
		in           string
		hour, minute int
		ok           bool
	}{
		{"23:00", 23, 0, true},
		{"09:30", 9, 30, true},
		{"0:05", 0, 5, true},
		{"24:00", 0, 0, false},
		{"12:60", 0, 0, false},
		{"noon", 0, 0, false},
		{"12", 0, 0, false},
	}
	for _, c := range cases {
		hour, minute, err := parseTriggerTime(c.in)
		if c.ok {
			if err != nil {
				t.Errorf("parseTriggerTime(%q): %v", c.in, err)
			} else if hour != c.hour || minute != c.minute {
				t.Errorf("parseTriggerTime(%q) = %d:%d, want %d:%d", c.in, hour, minute, c.hour, c.minute)
			}
		} else if err == nil {
			t.Errorf("parseTriggerTime(%q) succeeded, want error", c.in)
		}
	}
}

func TestNewSchedulerRejectsBadConfig(t *testing.T) {
	if _, err := NewScheduler(nil, nil, "25:00", "UTC", logger.NewNop()); err == nil {
		t.Error("bad trigger time accepted")
	}
	if _, err := NewScheduler(nil, nil, "23:00", "Mars/Olympus", logger.NewNop()); err == nil {
		t.Error("bad timezone accepted")
	}
}

func TestShouldFire(t *testing.T) {
	s, err := NewScheduler(nil, nil, "23:00", "UTC", logger.NewNop())
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	if s.shouldFire(day.Add(22*time.Hour + 59*time.Minute)) {
		t.Error("fired before trigger time")
	}
	if !s.shouldFire(day.Add(23 * time.Hour)) {
		t.Error("did not fire at trigger time")
	}
	if !s.shouldFire(day.Add(23*time.Hour + 45*time.Minute)) {
		t.Error("did not fire after trigger time")
	}

	s.lastFired = "2026-03-10"
	if s.shouldFire(day.Add(23*time.Hour + 45*time.Minute)) {
		t.Error("fired twice on the same day")
	}

	// Next day resets the guard.
	if !s.shouldFire(day.Add(47 * time.Hour)) {
		t.Error("did not fire on the next day")
	}
}
