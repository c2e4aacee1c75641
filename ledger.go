package boardwatch

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Ledger is the durable set of post keys already processed. It is stored as
// a newline-delimited UTF-8 file, one opaque key per line, and is only ever
// appended to (or reset wholesale).
type Ledger struct {
	path string
}

// NewLedger creates a ledger backed by the given file path. The parent
// directory is created if it doesn't exist.
func NewLedger(path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}
	return &Ledger{path: path}, nil
}

// Path returns the backing file path.
func (l *Ledger) Path() string {
	return l.path
}

// Load reads the persisted key set. A missing or unreadable file yields an
// empty set rather than an error: losing dedup state degrades to possible
// duplicate notifications, which beats refusing to run at all.
func (l *Ledger) Load() map[string]struct{} {
	seen := make(map[string]struct{})

	f, err := os.Open(l.path)
	if err != nil {
		return seen
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key := strings.TrimSpace(scanner.Text())
		if key != "" {
			seen[key] = struct{}{}
		}
	}
	// A partially read file still yields the keys scanned so far.
	return seen
}

// Append durably adds keys to the ledger, preserving everything already
// persisted. Appending a key that is already present is harmless: Load
// collapses duplicates into a set.
func (l *Ledger) Append(keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open ledger for append: %w", err)
	}
	defer f.Close()

	for _, key := range keys {
		if _, err := fmt.Fprintln(f, key); err != nil {
			return fmt.Errorf("failed to append ledger key: %w", err)
		}
	}

	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync ledger: %w", err)
	}
	return nil
}

// Count returns the number of distinct keys currently persisted.
func (l *Ledger) Count() int {
	return len(l.Load())
}

// Reset removes all persisted keys. This is the only mutation besides
// Append; individual keys are never deleted.
func (l *Ledger) Reset() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to reset ledger: %w", err)
	}
	return nil
}
