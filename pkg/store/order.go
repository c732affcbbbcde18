// Package store persists completed records: one JSON file per coffee order
// and a single cumulative log of wellness check-ins.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// StatusCompleted marks an order that was saved by the completion tool.
const StatusCompleted = "completed"

// Timestamp layouts.
const (
	// FileStampLayout is the suffix of an order file name.
	FileStampLayout = "20060102_150405"

	// TimestampLayout is used for the timestamp field of saved records.
	TimestampLayout = "2006-01-02T15:04:05.000000"
)

// Order is a completed coffee order as written to disk.
type Order struct {
	DrinkType string   `json:"drinkType"`
	Size      string   `json:"size"`
	Milk      string   `json:"milk"`
	Extras    []string `json:"extras"`
	Name      string   `json:"name"`
	Timestamp string   `json:"timestamp"`
	Status    string   `json:"status"`
}

// ExtrasText returns the extras joined with commas, or "no extras".
func (o Order) ExtrasText() string {
	if len(o.Extras) == 0 {
		return "no extras"
	}
	return strings.Join(o.Extras, ", ")
}

// OrderStore writes each order to its own file under a directory.
type OrderStore struct {
	dir string
	mu  sync.Mutex
}

// NewOrderStore creates a store rooted at dir. The directory is created on
// the first Save.
func NewOrderStore(dir string) *OrderStore {
	return &OrderStore{dir: dir}
}

// Dir returns the directory orders are written to.
func (s *OrderStore) Dir() string {
	return s.dir
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// FileName returns the base name for an order placed by name at t,
// e.g. order_Sam_20250101_093000.json.
func FileName(name string, t time.Time) string {
	safe := strings.Trim(unsafeName.ReplaceAllString(strings.TrimSpace(name), "_"), "_")
	if safe == "" {
		safe = "customer"
	}
	return fmt.Sprintf("order_%s_%s.json", safe, t.Format(FileStampLayout))
}

// Save writes o as indented JSON and returns the file path. If a file for
// the same name and second already exists a numeric suffix is added.
func (s *OrderStore) Save(o Order, at time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("store: create orders dir: %w", err)
	}

	if o.Extras == nil {
		o.Extras = []string{}
	}
	data, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		return "", fmt.Errorf("store: encode order: %w", err)
	}

	base := FileName(o.Name, at)
	path := filepath.Join(s.dir, base)
	for i := 2; ; i++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, fs.ErrExist) {
			path = filepath.Join(s.dir, fmt.Sprintf("%s_%d.json", strings.TrimSuffix(base, ".json"), i))
			continue
		}
		if err != nil {
			return "", fmt.Errorf("store: create order file: %w", err)
		}
		if err := commit(f, path, data); err != nil {
			return "", err
		}
		return path, nil
	}
}

// commit writes data to the freshly created file at path and closes it.
// On any failure the partial file is removed.
func commit(f io.WriteCloser, path string, data []byte) error {
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("store: write order file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("store: close order file: %w", err)
	}
	return nil
}

// List reads every saved order, oldest first. A missing directory yields no
// orders. Files that fail to parse are skipped.
func (s *OrderStore) List() ([]Order, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, "order_*.json"))
	if err != nil {
		return nil, fmt.Errorf("store: list orders: %w", err)
	}

	orders := make([]Order, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("store: read %s: %w", filepath.Base(p), err)
		}
		var o Order
		if err := json.Unmarshal(data, &o); err != nil {
			continue
		}
		orders = append(orders, o)
	}

	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].Timestamp < orders[j].Timestamp
	})
	return orders, nil
}
