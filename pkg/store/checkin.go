package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNoEntries is returned by Latest when the log is empty.
var ErrNoEntries = errors.New("store: no check-in entries")

// CheckIn is one completed wellness check-in.
type CheckIn struct {
	ID         string   `json:"id"`
	Date       string   `json:"date"`
	Time       string   `json:"time"`
	Timestamp  string   `json:"timestamp"`
	Mood       string   `json:"mood,omitempty"`
	Energy     string   `json:"energy,omitempty"`
	Stress     string   `json:"stress,omitempty"`
	Objectives []string `json:"objectives"`
	Notes      string   `json:"notes,omitempty"`
	Summary    string   `json:"summary"`
}

// Stamp fills the id and the date, time and timestamp fields from t.
func (c *CheckIn) Stamp(t time.Time) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.Date = t.Format("2006-01-02")
	c.Time = t.Format("15:04:05")
	c.Timestamp = t.Format(TimestampLayout)
}

// Mirror is notified after an entry has been durably appended.
type Mirror func(ctx context.Context, entry CheckIn)

// CheckInLog is an append-only JSON file of check-ins. Every append reads the
// whole file, adds the entry and rewrites it through a temp file and rename,
// under a mutex.
type CheckInLog struct {
	path string

	mu      sync.Mutex
	mirrors []Mirror
}

// logFile is the on-disk layout. A bare JSON array of entries is also
// accepted on read.
type logFile struct {
	Version   int       `json:"version"`
	UpdatedAt string    `json:"updated_at"`
	CheckIns  []CheckIn `json:"checkins"`
}

const logVersion = 1

// NewCheckInLog creates a log backed by path. The file and its directory are
// created on the first Append.
func NewCheckInLog(path string) *CheckInLog {
	return &CheckInLog{path: path}
}

// Path returns the backing file path.
func (l *CheckInLog) Path() string {
	return l.path
}

// OnAppend registers a mirror.
func (l *CheckInLog) OnAppend(m Mirror) {
	l.mu.Lock()
	l.mirrors = append(l.mirrors, m)
	l.mu.Unlock()
}

// Append adds entry to the end of the log and returns it as stored.
func (l *CheckInLog) Append(ctx context.Context, entry CheckIn) (CheckIn, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Objectives == nil {
		entry.Objectives = []string{}
	}

	l.mu.Lock()
	entries, err := l.read()
	if err != nil {
		l.mu.Unlock()
		return CheckIn{}, err
	}
	entries = append(entries, entry)
	err = l.write(entries)
	mirrors := l.mirrors
	l.mu.Unlock()

	if err != nil {
		return CheckIn{}, err
	}
	for _, m := range mirrors {
		m(ctx, entry)
	}
	return entry, nil
}

// Entries returns every entry, oldest first.
func (l *CheckInLog) Entries() ([]CheckIn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.read()
}

// Latest returns the most recently appended entry.
func (l *CheckInLog) Latest() (CheckIn, error) {
	entries, err := l.Entries()
	if err != nil {
		return CheckIn{}, err
	}
	if len(entries) == 0 {
		return CheckIn{}, ErrNoEntries
	}
	return entries[len(entries)-1], nil
}

// read must be called with mu held. A missing or empty file is an empty log.
func (l *CheckInLog) read() ([]CheckIn, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []CheckIn{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read check-in log: %w", err)
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return []CheckIn{}, nil
	}

	if data[0] == '[' {
		var entries []CheckIn
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("store: parse check-in log: %w", err)
		}
		return entries, nil
	}

	var f logFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("store: parse check-in log: %w", err)
	}
	if f.CheckIns == nil {
		f.CheckIns = []CheckIn{}
	}
	return f.CheckIns, nil
}

// write must be called with mu held.
func (l *CheckInLog) write(entries []CheckIn) error {
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("store: create directory: %w", err)
	}

	data, err := json.MarshalIndent(logFile{
		Version:   logVersion,
		UpdatedAt: time.Now().Format(time.RFC3339),
		CheckIns:  entries,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode check-in log: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(l.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("store: create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("store: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("store: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("store: close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, l.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("store: rename temp file: %w", err)
	}
	return nil
}
