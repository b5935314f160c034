package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-marks-api/internal/models"
	appErrors "github.com/noah-isme/sma-marks-api/pkg/errors"
)

type recordSnapshotter interface {
	Source() string
	Snapshot() (uint64, []models.StudentRecord)
}

// ReportServiceConfig tunes report caching.
type ReportServiceConfig struct {
	CacheTTL time.Duration
}

// ReportService composes read models over the record store. A composed report
// is cached per store version, so any load or mutation makes the next request
// rebuild it.
type ReportService struct {
	store  recordSnapshotter
	cache  *CacheService
	logger *zap.Logger
	cfg    ReportServiceConfig
}

// NewReportService constructs the report service. cache may be nil.
func NewReportService(store recordSnapshotter, cache *CacheService, logger *zap.Logger, cfg ReportServiceConfig) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{store: store, cache: cache, logger: logger, cfg: cfg}
}

// Report returns every read model for the current store content. The bool
// reports whether the result came from cache.
func (s *ReportService) Report(ctx context.Context) (*models.ClassReport, bool, error) {
	version, records := s.store.Snapshot()
	key := fmt.Sprintf("report:%s:v%d", s.store.Source(), version)

	if cached, hit, err := s.tryCache(ctx, key); err != nil {
		s.logger.Warn("report cache read failed", zap.String("key", key), zap.Error(err))
	} else if hit {
		return cached, true, nil
	}

	report := composeReport(version, records)
	s.persistCache(ctx, key, report)
	return report, false, nil
}

// Summary returns the class summary.
func (s *ReportService) Summary(ctx context.Context) (models.ClassSummary, bool, error) {
	report, hit, err := s.Report(ctx)
	if err != nil {
		return models.ClassSummary{}, false, err
	}
	return report.Summary, hit, nil
}

// Extreme returns the best or worst performer.
func (s *ReportService) Extreme(ctx context.Context, mode models.ExtremeMode) (*models.RecordView, bool, error) {
	if mode != models.ExtremeMax && mode != models.ExtremeMin {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "mode must be one of max min")
	}
	report, hit, err := s.Report(ctx)
	if err != nil {
		return nil, false, err
	}
	view := report.Extremes.Best
	if mode == models.ExtremeMin {
		view = report.Extremes.Worst
	}
	if view == nil {
		return nil, hit, appErrors.Clone(appErrors.ErrNotFound, "no students available")
	}
	return view, hit, nil
}

// Distribution returns the number of records per grade letter.
func (s *ReportService) Distribution(ctx context.Context) (models.GradeDistribution, bool, error) {
	report, hit, err := s.Report(ctx)
	if err != nil {
		return nil, false, err
	}
	return report.Distribution, hit, nil
}

// Ranking returns records ordered by overall percentage without reordering the store.
func (s *ReportService) Ranking(ctx context.Context) ([]models.RankedRecord, bool, error) {
	report, hit, err := s.Report(ctx)
	if err != nil {
		return nil, false, err
	}
	return report.Ranking, hit, nil
}

func composeReport(version uint64, records []models.StudentRecord) *models.ClassReport {
	report := &models.ClassReport{
		Version:      version,
		Summary:      models.SummarizeClass(records),
		Distribution: models.DistributeGrades(records),
		Ranking:      models.RankRecords(records),
	}
	if idx := models.ExtremeIndex(records, models.ExtremeMax); idx >= 0 {
		best := records[idx].View()
		report.Extremes.Best = &best
	}
	if idx := models.ExtremeIndex(records, models.ExtremeMin); idx >= 0 {
		worst := records[idx].View()
		report.Extremes.Worst = &worst
	}
	return report
}

func (s *ReportService) tryCache(ctx context.Context, key string) (*models.ClassReport, bool, error) {
	if s.cache == nil {
		return nil, false, nil
	}
	var cached models.ClassReport
	hit, err := s.cache.Get(ctx, key, &cached)
	if err != nil || !hit {
		return nil, false, err
	}
	return &cached, true, nil
}

func (s *ReportService) persistCache(ctx context.Context, key string, value *models.ClassReport) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("report cache write failed", zap.String("key", key), zap.Error(err))
	}
}
