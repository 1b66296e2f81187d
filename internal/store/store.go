// Package store implements the durable per-dialog transcript store.
//
// Each dialog is one flat text file, one line per message. Lifecycle state
// is represented by location: files live under active/ while the dialog is
// open and are renamed into closed/ when it ends. A message arriving for a
// closed dialog moves the file back to active (reopen).
package store

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/crmops/chatwatch/internal/model"
	"github.com/crmops/chatwatch/pkg/logger"
	"github.com/crmops/chatwatch/pkg/metrics"
)

// ErrNotFound is returned when neither location holds the transcript.
var ErrNotFound = errors.New("transcript not found")

// PhoneUnknown is the filename placeholder for dialogs whose phone is not
// known. The placeholder stays for the dialog's lifetime so append, load
// and close address the same file.
const PhoneUnknown = "unknown"

var fileRe = regexp.MustCompile(`^dialog_(\d+)_(.+)\.txt$`)

// Ref identifies one stored transcript.
type Ref struct {
	DialogID int64
	Phone    string
}

// Store is a filesystem-backed transcript store with active and closed
// locations. The mutex serializes appends against renames so a forced
// closure cannot interleave with a partial write.
type Store struct {
	activeDir string
	closedDir string
	logger    *logger.Logger

	mu sync.Mutex
}

// New creates the store, making both locations if needed.
func New(root string, log *logger.Logger) (*Store, error) {
	s := &Store{
		activeDir: filepath.Join(root, "active"),
		closedDir: filepath.Join(root, "closed"),
		logger:    log,
	}
	for _, dir := range []string{s.activeDir, s.closedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory %s: %w", dir, err)
		}
	}
	return s, nil
}

// NormalizeKeyPhone maps an absent or unusable phone to the stable
// placeholder and strips characters unsafe in a filename.
func NormalizeKeyPhone(phone string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '+':
			return r
		default:
			return -1
		}
	}, phone)
	cleaned = strings.TrimPrefix(cleaned, "+")
	if cleaned == "" {
		return PhoneUnknown
	}
	return cleaned
}

func fileName(dialogID int64, phone string) string {
	return fmt.Sprintf("dialog_%d_%s.txt", dialogID, NormalizeKeyPhone(phone))
}

// Append writes one message to the dialog's active transcript, creating the
// file on first write. A message for a closed dialog moves the transcript
// back to active first (the platform can reopen dialogs), so no message is
// ever dropped and load always sees every appended message in order.
func (s *Store) Append(dialogID int64, phone string, sender model.Sender, text string, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := fileName(dialogID, phone)
	path := filepath.Join(s.activeDir, name)
	closed := filepath.Join(s.closedDir, name)
	if _, err := os.Stat(closed); err == nil {
		if err := os.Rename(closed, path); err != nil {
			return fmt.Errorf("failed to reopen transcript %s: %w", name, err)
		}
		s.logger.Info("dialog reopened, transcript moved back to active",
			zap.Int64("dialog_id", dialogID),
			zap.String("file", name),
		)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open transcript %s: %w", path, err)
	}
	defer f.Close()

	msg := model.Message{Time: ts, Sender: sender, Text: text}
	if _, err := f.WriteString(msg.Line() + "\n"); err != nil {
		return fmt.Errorf("failed to append to transcript %s: %w", path, err)
	}

	metrics.MessagesAppendedTotal.WithLabelValues(string(sender)).Inc()
	s.logger.Debug("message appended",
		zap.Int64("dialog_id", dialogID),
		zap.String("file", name),
		zap.String("sender", string(sender)),
	)
	return nil
}

// Load reads the dialog from whichever location holds it, preferring
// active. Returns ErrNotFound when neither does.
func (s *Store) Load(dialogID int64, phone string) (*model.Dialog, error) {
	name := fileName(dialogID, phone)
	for _, dir := range []string{s.activeDir, s.closedDir} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		return s.loadFile(path, dialogID, NormalizeKeyPhone(phone))
	}
	return nil, ErrNotFound
}

func (s *Store) loadFile(path string, dialogID int64, phone string) (*model.Dialog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript %s: %w", path, err)
	}
	defer f.Close()

	dialog := &model.Dialog{ID: dialogID, Phone: phone}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		msg, ok := model.ParseMessageLine(line)
		if !ok {
			s.logger.Warn("skipping unparseable transcript line",
				zap.String("file", filepath.Base(path)),
			)
			continue
		}
		dialog.Messages = append(dialog.Messages, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transcript %s: %w", path, err)
	}
	return dialog, nil
}

// Close moves the transcript from active to closed. Idempotent: when the
// active file is already gone the call logs a warning and succeeds, so a
// duplicate closure trigger is harmless.
func (s *Store) Close(dialogID int64, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := fileName(dialogID, phone)
	src := filepath.Join(s.activeDir, name)
	dst := filepath.Join(s.closedDir, name)

	if _, err := os.Stat(src); err != nil {
		s.logger.Warn("transcript not in active location, skipping move",
			zap.Int64("dialog_id", dialogID),
			zap.String("file", name),
		)
		return nil
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("failed to move transcript %s to closed: %w", name, err)
	}
	s.logger.Info("dialog moved to closed",
		zap.Int64("dialog_id", dialogID),
		zap.String("file", name),
	)
	return nil
}

// Purge deletes transcripts in both locations whose last message precedes
// the cutoff. Returns the number of files removed.
func (s *Store) Purge(olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, dir := range []string{s.activeDir, s.closedDir} {
		refs, err := s.listDir(dir)
		if err != nil {
			return removed, err
		}
		for _, ref := range refs {
			path := filepath.Join(dir, fileName(ref.DialogID, ref.Phone))
			dialog, err := s.loadFile(path, ref.DialogID, ref.Phone)
			if err != nil {
				s.logger.Warn("purge: failed to read transcript", zap.String("path", path), zap.Error(err))
				continue
			}
			last := dialog.LastMessageTime()
			if last.IsZero() || !last.Before(olderThan) {
				continue
			}
			if err := os.Remove(path); err != nil {
				s.logger.Warn("purge: failed to remove transcript", zap.String("path", path), zap.Error(err))
				continue
			}
			removed++
		}
	}
	return removed, nil
}

// ListActive returns refs for every transcript in the active location.
func (s *Store) ListActive() ([]Ref, error) {
	refs, err := s.listDir(s.activeDir)
	if err == nil {
		metrics.ActiveDialogs.Set(float64(len(refs)))
	}
	return refs, err
}

// ListClosed returns refs for every transcript in the closed location.
func (s *Store) ListClosed() ([]Ref, error) {
	return s.listDir(s.closedDir)
}

func (s *Store) listDir(dir string) ([]Ref, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	var refs []Ref
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := fileRe.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		id, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil {
			continue
		}
		refs = append(refs, Ref{DialogID: id, Phone: match[2]})
	}
	return refs, nil
}
