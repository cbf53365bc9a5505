package service

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/okian/laptimer/internal/adapters/report"
	"github.com/okian/laptimer/internal/adapters/repository"
	"github.com/okian/laptimer/internal/domain/model"
	"github.com/okian/laptimer/pkg/logger"
	"github.com/okian/laptimer/pkg/metrics"
)

// resultSink persists finished races and draws their lap chart.
type resultSink struct {
	store   repository.Store
	dataDir string
	logger  logger.Logger
}

func newResultSink(store repository.Store, dataDir string, l logger.Logger) *resultSink {
	return &resultSink{store: store, dataDir: dataDir, logger: l}
}

// Record saves r. A chart that cannot be drawn is logged, not returned.
func (k *resultSink) Record(ctx context.Context, r model.RaceResult) error {
	if err := k.store.Save(ctx, r); err != nil {
		return fmt.Errorf("save result %s: %w", r.ID, err)
	}
	path := k.chartPath(r)
	if err := report.SaveLapChart(path, r); err != nil {
		metrics.RecordErrorByComponent("report", "chart")
		k.logger.Warn(ctx, "lap chart failed", logger.String("id", r.ID), logger.Error(err))
		return nil
	}
	k.logger.Info(ctx, "race result saved",
		logger.String("id", r.ID),
		logger.Int("laps", r.LapCount),
		logger.Float64("best", r.BestLap),
		logger.String("chart", path),
	)
	return nil
}

// chartPath places the chart next to the result file when the store keeps
// one, otherwise under data_dir/charts.
func (k *resultSink) chartPath(r model.RaceResult) string {
	if files, ok := k.store.(interface{ Path(id string) (string, bool) }); ok {
		if p, found := files.Path(r.ID); found {
			return report.ChartPath(p)
		}
	}
	return filepath.Join(k.dataDir, "charts", "race_"+r.ID+"_laps.png")
}
