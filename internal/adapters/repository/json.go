package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/okian/laptimer/internal/domain/model"
	"github.com/okian/laptimer/internal/domain/types"
	"github.com/okian/laptimer/pkg/logger"
	"github.com/okian/laptimer/pkg/metrics"
)

const (
	filePrefix     = "race_result_"
	fileStampFmt   = "20060102_150405"
	legacyStampFmt = "2006-01-02T15:04:05.999999999"
)

// JSONStore writes one indented JSON file per result and serves reads from
// an in-memory index loaded when the store is opened.
type JSONStore struct {
	dir    string
	index  *MemoryStore
	logger logger.Logger

	mu    sync.Mutex // serializes file writes
	files map[string]string
}

// NewJSONStore opens dir, creating it when missing, and loads every
// race_result_*.json file in it. Unreadable files are skipped with a warning.
func NewJSONStore(ctx context.Context, dir string, opts ...Option) (*JSONStore, error) {
	o := applyOptions(opts)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s := &JSONStore{
		dir:    dir,
		index:  newMemoryStore(KindJSON),
		logger: o.logger.Named("json"),
		files:  make(map[string]string),
	}
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *JSONStore) load(ctx context.Context) error {
	paths, err := filepath.Glob(filepath.Join(s.dir, filePrefix+"*.json"))
	if err != nil {
		return fmt.Errorf("list results: %w", err)
	}
	sort.Strings(paths)
	for _, path := range paths {
		r, err := readResultFile(path)
		if err == nil {
			err = s.index.Save(ctx, r)
		}
		if err != nil {
			metrics.RecordStoreError(KindJSON, "load")
			s.logger.Warn(ctx, "skipping result file", logger.String("path", path), logger.Error(err))
			continue
		}
		s.files[r.ID] = path
	}
	s.logger.Info(ctx, "results loaded", logger.String("dir", s.dir), logger.Int("count", len(s.files)))
	return nil
}

// fileResult accepts timestamps with or without a zone offset.
type fileResult struct {
	model.RaceResult
	Timestamp string `json:"timestamp"`
}

func readResultFile(path string) (model.RaceResult, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return model.RaceResult{}, err
	}
	var fr fileResult
	if err := json.Unmarshal(b, &fr); err != nil {
		return model.RaceResult{}, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	r := fr.RaceResult
	if r.Timestamp, err = parseTimestamp(fr.Timestamp); err != nil {
		return model.RaceResult{}, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	if r.ID == "" {
		r.ID = strings.TrimSuffix(filepath.Base(path), ".json")
	}
	return r, nil
}

func parseTimestamp(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t, nil
	}
	return time.ParseInLocation(legacyStampFmt, v, time.Local)
}

// Save writes the result file and then indexes it. An ID that is already
// stored overwrites its existing file.
func (s *JSONStore) Save(ctx context.Context, r model.RaceResult) error {
	defer track(KindJSON, "save", time.Now())

	if err := validate(r); err != nil {
		metrics.RecordStoreError(KindJSON, "save")
		return err
	}
	r = normalize(r)

	s.mu.Lock()
	defer s.mu.Unlock()

	path, ok := s.files[r.ID]
	if !ok {
		path = s.nextPath(r.Timestamp)
	}
	if err := writeResultFile(path, r); err != nil {
		metrics.RecordStoreError(KindJSON, "save")
		return err
	}
	s.files[r.ID] = path
	s.logger.Info(ctx, "result saved", logger.String("path", path), logger.String("race_id", r.ID))
	return s.index.Save(ctx, r)
}

// nextPath returns race_result_<stamp>.json, adding _N until the name is free.
func (s *JSONStore) nextPath(ts time.Time) string {
	base := filePrefix + ts.Format(fileStampFmt)
	path := filepath.Join(s.dir, base+".json")
	for n := 1; exists(path); n++ {
		path = filepath.Join(s.dir, fmt.Sprintf("%s_%d.json", base, n))
	}
	return path
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, os.ErrNotExist)
}

func writeResultFile(path string, r model.RaceResult) error {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}

// Path returns the file a result was written to.
func (s *JSONStore) Path(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.files[id]
	return p, ok
}

// Dir returns the directory results are written to.
func (s *JSONStore) Dir() string { return s.dir }

// Get implements Store.Get.
func (s *JSONStore) Get(ctx context.Context, id string) (model.RaceResult, error) {
	return s.index.Get(ctx, id)
}

// List implements Store.List.
func (s *JSONStore) List(ctx context.Context, limit int) ([]model.RaceResult, error) {
	return s.index.List(ctx, limit)
}

// BestLaps implements Store.BestLaps.
func (s *JSONStore) BestLaps(ctx context.Context, n int) ([]types.LapEntry, error) {
	return s.index.BestLaps(ctx, n)
}

// Count implements Store.Count.
func (s *JSONStore) Count(ctx context.Context) int { return s.index.Count(ctx) }

// Close is a no-op; every Save is already on disk.
func (s *JSONStore) Close() error { return nil }
