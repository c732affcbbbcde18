package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestFileName(t *testing.T) {
	at := time.Date(2025, 3, 14, 9, 5, 7, 0, time.UTC)

	tests := []struct {
		name string
		want string
	}{
		{"Sam", "order_Sam_20250314_090507.json"},
		{"Mary Jane", "order_Mary_Jane_20250314_090507.json"},
		{"../etc", "order_etc_20250314_090507.json"},
		{"  ", "order_customer_20250314_090507.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FileName(tt.name, at); got != tt.want {
				t.Errorf("FileName(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestOrderSaveAndList(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "orders")
	s := NewOrderStore(dir)
	at := time.Date(2025, 3, 14, 9, 5, 7, 0, time.UTC)

	o := Order{
		DrinkType: "latte",
		Size:      "large",
		Milk:      "oat milk",
		Name:      "Sam",
		Timestamp: at.Format(TimestampLayout),
		Status:    StatusCompleted,
	}

	path, err := s.Save(o, at)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if filepath.Base(path) != "order_Sam_20250314_090507.json" {
		t.Errorf("path = %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "\n  \"drinkType\"") {
		t.Error("order file should be indented")
	}

	var got Order
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Status != "completed" || got.Extras == nil {
		t.Errorf("unexpected order %+v", got)
	}

	// Same name and second must not overwrite.
	path2, err := s.Save(o, at)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if path2 == path {
		t.Error("second save overwrote the first file")
	}

	orders, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(orders) != 2 {
		t.Errorf("List returned %d orders, want 2", len(orders))
	}
}

func TestOrderListMissingDir(t *testing.T) {
	s := NewOrderStore(filepath.Join(t.TempDir(), "nope"))
	orders, err := s.List()
	if err != nil || len(orders) != 0 {
		t.Errorf("List = %v, %v", orders, err)
	}
}

type failingFile struct {
	*os.File
	writeErr, closeErr error
}

func (f failingFile) Write(p []byte) (int, error) {
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	return f.File.Write(p)
}

func (f failingFile) Close() error {
	f.File.Close()
	return f.closeErr
}

func TestCommitRemovesPartialFile(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name string
		file func(*os.File) failingFile
		want string
	}{
		{"write", func(f *os.File) failingFile { return failingFile{File: f, writeErr: boom} }, "write order file"},
		{"close", func(f *os.File) failingFile { return failingFile{File: f, closeErr: boom} }, "close order file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "order_Sam.json")
			f, err := os.Create(path)
			if err != nil {
				t.Fatal(err)
			}
			err = commit(tt.file(f), path, []byte(`{"name":"Sam"}`))
			if !errors.Is(err, boom) || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("commit error = %v", err)
			}
			if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
				t.Errorf("partial file left behind: %v", err)
			}
		})
	}
}

func TestExtrasText(t *testing.T) {
	if got := (Order{}).ExtrasText(); got != "no extras" {
		t.Errorf("got %q", got)
	}
	if got := (Order{Extras: []string{"cinnamon", "extra shot"}}).ExtrasText(); got != "cinnamon, extra shot" {
		t.Errorf("got %q", got)
	}
}

func TestCheckInAppendPreservesPrior(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "wellness_log.json")
	l := NewCheckInLog(path)
	ctx := context.Background()

	if _, err := l.Latest(); !errors.Is(err, ErrNoEntries) {
		t.Fatalf("Latest on empty log = %v, want ErrNoEntries", err)
	}

	first, err := l.Append(ctx, CheckIn{Mood: "tired", Objectives: []string{"walk"}})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if first.ID == "" {
		t.Error("Append should assign an id")
	}

	if _, err := l.Append(ctx, CheckIn{}); err != nil {
		t.Fatalf("Append empty: %v", err)
	}

	entries, err := l.Entries()
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 2 || entries[0].Mood != "tired" {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[1].Objectives == nil {
		t.Error("objectives should be an empty list, not null")
	}

	latest, err := l.Latest()
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.ID != entries[1].ID {
		t.Error("Latest should return the last appended entry")
	}

	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	if len(matches) != 0 {
		t.Errorf("temp files left behind: %v", matches)
	}
}

func TestCheckInReadsBareArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.json")
	os.WriteFile(path, []byte(`[{"id":"a","mood":"ok","objectives":[]}]`), 0644)

	l := NewCheckInLog(path)
	latest, err := l.Latest()
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.ID != "a" {
		t.Errorf("latest = %+v", latest)
	}

	if _, err := l.Append(context.Background(), CheckIn{Mood: "better"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), `"version": 1`) {
		t.Errorf("log should be rewritten in the versioned format: %s", data)
	}
	entries, _ := l.Entries()
	if len(entries) != 2 {
		t.Errorf("entries = %d, want 2", len(entries))
	}
}

func TestCheckInCorruptLogIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.json")
	os.WriteFile(path, []byte(`{not json`), 0644)

	l := NewCheckInLog(path)
	if _, err := l.Append(context.Background(), CheckIn{}); err == nil {
		t.Fatal("expected an error for a corrupt log")
	}
	data, _ := os.ReadFile(path)
	if string(data) != `{not json` {
		t.Error("a corrupt log must not be overwritten")
	}
}

func TestCheckInConcurrentAppends(t *testing.T) {
	l := NewCheckInLog(filepath.Join(t.TempDir(), "log.json"))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Append(context.Background(), CheckIn{Mood: "ok"}); err != nil {
				t.Errorf("Append: %v", err)
			}
		}()
	}
	wg.Wait()

	entries, _ := l.Entries()
	if len(entries) != 20 {
		t.Errorf("entries = %d, want 20", len(entries))
	}
}

func TestCheckInMirror(t *testing.T) {
	l := NewCheckInLog(filepath.Join(t.TempDir(), "log.json"))

	var mirrored []CheckIn
	l.OnAppend(func(ctx context.Context, e CheckIn) { mirrored = append(mirrored, e) })

	e, _ := l.Append(context.Background(), CheckIn{Mood: "calm"})
	if len(mirrored) != 1 || mirrored[0].ID != e.ID {
		t.Errorf("mirrored = %+v", mirrored)
	}
}

func TestStamp(t *testing.T) {
	var c CheckIn
	c.Stamp(time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC))
	if c.Date != "2025-01-02" || c.Time != "03:04:05" || c.ID == "" {
		t.Errorf("stamp = %+v", c)
	}
	if !strings.HasPrefix(c.Timestamp, "2025-01-02T03:04:05") {
		t.Errorf("timestamp = %s", c.Timestamp)
	}
}
