package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/crmops/chatwatch/internal/model"
	"github.com/crmops/chatwatch/pkg/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), logger.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestAppendAndLoad(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	msgs := []struct {
		sender model.Sender
		text   string
	}{
		{model.SenderClient, "hello"},
		{model.SenderManager, "hi, how can I help?"},
		{model.SenderClient, "order status please"},
	}
	for i, m := range msgs {
		if err := s.Append(42, "79991234567", m.sender, m.text, base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	dialog, err := s.Load(42, "79991234567")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(dialog.Messages) != len(msgs) {
		t.Fatalf("got %d messages, want %d", len(dialog.Messages), len(msgs))
	}
	for i, m := range msgs {
		got := dialog.Messages[i]
		if got.Sender != m.sender || got.Text != m.text {
			t.Errorf("message %d = %q/%q, want %q/%q", i, got.Sender, got.Text, m.sender, m.text)
		}
		if !got.Time.Equal(base.Add(time.Duration(i) * time.Minute)) {
			t.Errorf("message %d time = %v", i, got.Time)
		}
	}
}

func TestLoadNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Load(1, "70000000000"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load = %v, want ErrNotFound", err)
	}
}

func TestUnknownPhonePlaceholder(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	if err := s.Append(7, "", model.SenderClient, "anonymous", now); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.activeDir, "dialog_7_unknown.txt")); err != nil {
		t.Fatalf("placeholder file missing: %v", err)
	}
	dialog, err := s.Load(7, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if dialog.Phone != PhoneUnknown {
		t.Errorf("Phone = %q, want %q", dialog.Phone, PhoneUnknown)
	}
}

func TestCloseMovesFileAndIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	if err := s.Append(9, "79990000001", model.SenderClient, "bye", now); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Close(9, "79990000001"); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.closedDir, "dialog_9_79990000001.txt")); err != nil {
		t.Fatalf("closed file missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.activeDir, "dialog_9_79990000001.txt")); !os.IsNotExist(err) {
		t.Fatalf("active file still present: %v", err)
	}

	// Duplicate trigger must not fail or truncate.
	if err := s.Close(9, "79990000001"); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	dialog, err := s.Load(9, "79990000001")
	if err != nil {
		t.Fatalf("Load after close: %v", err)
	}
	if len(dialog.Messages) != 1 {
		t.Errorf("got %d messages after duplicate close, want 1", len(dialog.Messages))
	}
}

func TestAppendAfterCloseReopens(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	if err := s.Append(11, "79990000002", model.SenderClient, "first", base); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Close(11, "79990000002"); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Append(11, "79990000002", model.SenderClient, "second", base.Add(time.Minute)); err != nil {
		t.Fatalf("Append after close: %v", err)
	}

	// The transcript is back in the active location with nothing lost.
	if _, err := os.Stat(filepath.Join(s.activeDir, "dialog_11_79990000002.txt")); err != nil {
		t.Fatalf("active file missing after reopen: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.closedDir, "dialog_11_79990000002.txt")); !os.IsNotExist(err) {
		t.Fatalf("closed file still present after reopen: %v", err)
	}
	dialog, err := s.Load(11, "79990000002")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(dialog.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(dialog.Messages))
	}
	if dialog.Messages[0].Text != "first" || dialog.Messages[1].Text != "second" {
		t.Errorf("messages = %q, %q", dialog.Messages[0].Text, dialog.Messages[1].Text)
	}

	// The reopened dialog can be closed again.
	if err := s.Close(11, "79990000002"); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestPurge(t *testing.T) {
	s := newTestStore(t)
	old := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	fresh := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)

	if err := s.Append(1, "79990000003", model.SenderClient, "stale", old); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Close(1, "79990000003"); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Append(2, "79990000004", model.SenderClient, "recent", fresh); err != nil {
		t.Fatalf("Append: %v", err)
	}

	removed, err := s.Purge(time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, err := s.Load(1, "79990000003"); !errors.Is(err, ErrNotFound) {
		t.Errorf("stale dialog still loadable: %v", err)
	}
	if _, err := s.Load(2, "79990000004"); err != nil {
		t.Errorf("fresh dialog purged: %v", err)
	}
}

func TestListActiveAndClosed(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	if err := s.Append(100, "79991112233", model.SenderClient, "a", now); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Append(200, "", model.SenderClient, "b", now); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Close(200, ""); err != nil {
		t.Fatalf("Close: %v", err)
	}

	active, err := s.ListActive()
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 1 || active[0].DialogID != 100 || active[0].Phone != "79991112233" {
		t.Errorf("ListActive = %+v", active)
	}

	closed, err := s.ListClosed()
	if err != nil {
		t.Fatalf("ListClosed: %v", err)
	}
	if len(closed) != 1 || closed[0].DialogID != 200 || closed[0].Phone != PhoneUnknown {
		t.Errorf("ListClosed = %+v", closed)
	}
}

func TestNormalizeKeyPhone(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"+7 999 123-45-67", "79991234567"},
		{"79991234567", "79991234567"},
		{"", "unknown"},
		{"---", "unknown"},
	}
	for _, c := range cases {
		if got := NormalizeKeyPhone(c.in); got != c.want {
			t.Errorf("NormalizeKeyPhone(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
