// Package repository persists race results and ranks laps across races.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/laptimer/internal/domain/laps"
	"github.com/okian/laptimer/internal/domain/model"
	"github.com/okian/laptimer/internal/domain/types"
	"github.com/okian/laptimer/pkg/metrics"
)

// Store names.
const (
	KindJSON   = "json"
	KindSQLite = "sqlite"
	KindMemory = "memory"
)

// Store provides read/write access to finished race results.
type Store interface {
	// Save persists a result. Saving an existing ID replaces it.
	Save(ctx context.Context, r model.RaceResult) error

	// Get returns the result with the given ID or ErrNotFound.
	Get(ctx context.Context, id string) (model.RaceResult, error)

	// List returns up to limit results, newest first.
	List(ctx context.Context, limit int) ([]model.RaceResult, error)

	// BestLaps returns the n fastest laps across all results, ranked.
	// Equal lap times share a rank.
	BestLaps(ctx context.Context, n int) ([]types.LapEntry, error)

	// Count returns the number of stored results.
	Count(ctx context.Context) int

	// Close releases the store's resources.
	Close() error
}

func validate(r model.RaceResult) error {
	if r.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidResult)
	}
	if len(r.LapTimes) == 0 {
		return fmt.Errorf("%w: no laps", ErrInvalidResult)
	}
	for i, s := range r.LapTimes {
		if s <= 0 {
			return fmt.Errorf("%w: lap %d has time %v", ErrInvalidResult, i+1, s)
		}
	}
	return nil
}

// normalize fills the summary fields of results written with lap times only.
func normalize(r model.RaceResult) model.RaceResult {
	if len(r.LapTimes) == 0 {
		return r
	}
	sum := laps.Summarize(r.LapDurations())
	if r.LapCount == 0 {
		r.LapCount = len(r.LapTimes)
	}
	if r.TotalTime == 0 {
		r.TotalTime = laps.Round3(sum.Total.Seconds())
	}
	if r.AverageLap == 0 {
		r.AverageLap = laps.Round3(sum.Average.Seconds())
	}
	if r.BestLap == 0 {
		r.BestLap = laps.Round3(sum.Best.Seconds())
	}
	if r.WorstLap == 0 {
		r.WorstLap = laps.Round3(sum.Worst.Seconds())
	}
	if r.BestLapNumber == 0 {
		r.BestLapNumber = sum.BestLap
	}
	return r
}

// newestFirst orders results by timestamp descending, then ID descending.
func newestFirst(a, b model.RaceResult) int {
	if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
		return c
	}
	switch {
	case a.ID > b.ID:
		return -1
	case a.ID < b.ID:
		return 1
	}
	return 0
}

// track records the latency of a store operation started at start.
func track(store, op string, start time.Time) {
	metrics.RecordStoreLatency(store, op, float64(time.Since(start).Microseconds())/1000)
}

// Open builds the store named by kind.
func Open(ctx context.Context, kind, dataDir, sqlitePath string, opts ...Option) (Store, error) {
	switch kind {
	case KindJSON, "":
		return NewJSONStore(ctx, dataDir, opts...)
	case KindSQLite:
		return NewSQLiteStore(ctx, sqlitePath, opts...)
	case KindMemory:
		return NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStore, kind)
}
