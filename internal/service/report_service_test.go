package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-marks-api/internal/models"
	appErrors "github.com/noah-isme/sma-marks-api/pkg/errors"
)

type stubCacheRepo struct {
	store   map[string][]byte
	getErr  error
	gets    int
	sets    int
	deleted []string
}

func (s *stubCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	s.gets++
	if s.getErr != nil {
		return s.getErr
	}
	payload, ok := s.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(payload, dest)
}

func (s *stubCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	if s.store == nil {
		s.store = make(map[string][]byte)
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.sets++
	s.store[key] = payload
	return nil
}

func (s *stubCacheRepo) DeleteByPattern(_ context.Context, pattern string) error {
	s.deleted = append(s.deleted, pattern)
	return nil
}

type stubSnapshotter struct {
	source  string
	version uint64
	records []models.StudentRecord
}

func (s *stubSnapshotter) Source() string { return s.source }

func (s *stubSnapshotter) Snapshot() (uint64, []models.StudentRecord) {
	return s.version, append([]models.StudentRecord(nil), s.records...)
}

func sampleClass() []models.StudentRecord {
	return []models.StudentRecord{
		{Code: "1001", Name: "A", CW1: 20, CW2: 20, CW3: 0, Exam: 40},
		{Code: "1002", Name: "B", CW1: 20, CW2: 20, CW3: 20, Exam: 52},
		{Code: "1003", Name: "C", CW1: 20, CW2: 20, CW3: 20, Exam: 84},
	}
}

func TestReportServiceComposesReadModels(t *testing.T) {
	store := &stubSnapshotter{source: "marks.txt", version: 1, records: sampleClass()}
	svc := NewReportService(store, nil, zap.NewNop(), ReportServiceConfig{})

	report, hit, err := svc.Report(context.Background())
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, uint64(1), report.Version)
	assert.Equal(t, models.ClassSummary{Count: 3, Average: 70}, report.Summary)
	assert.Equal(t, "1003", report.Extremes.Best.Code)
	assert.Equal(t, "1001", report.Extremes.Worst.Code)
	assert.Equal(t, 2, report.Distribution[models.GradeA])
	assert.Equal(t, 1, report.Distribution[models.GradeC])

	require.Len(t, report.Ranking, 3)
	assert.Equal(t, []string{"1003", "1002", "1001"}, []string{report.Ranking[0].Code, report.Ranking[1].Code, report.Ranking[2].Code})
	assert.Equal(t, []int{1, 2, 3}, []int{report.Ranking[0].Rank, report.Ranking[1].Rank, report.Ranking[2].Rank})
}

func TestReportServiceCachesPerVersion(t *testing.T) {
	store := &stubSnapshotter{source: "marks.txt", version: 4, records: sampleClass()}
	cacheRepo := &stubCacheRepo{}
	cacheSvc := NewCacheService(cacheRepo, NewMetricsService(), time.Minute, zap.NewNop(), true)
	svc := NewReportService(store, cacheSvc, zap.NewNop(), ReportServiceConfig{CacheTTL: time.Minute})
	ctx := context.Background()

	first, hit, err := svc.Summary(ctx)
	require.NoError(t, err)
	assert.False(t, hit)

	second, hit, err := svc.Summary(ctx)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, first, second)
	assert.Contains(t, cacheRepo.store, "report:marks.txt:v4")

	store.version = 5
	store.records = store.records[:1]
	summary, hit, err := svc.Summary(ctx)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 1, summary.Count)
	assert.Equal(t, 2, cacheRepo.sets)
}

func TestReportServiceCacheFailureFallsBack(t *testing.T) {
	store := &stubSnapshotter{source: "marks.txt", version: 1, records: sampleClass()}
	cacheSvc := NewCacheService(&stubCacheRepo{getErr: assert.AnError}, nil, time.Minute, zap.NewNop(), true)
	svc := NewReportService(store, cacheSvc, zap.NewNop(), ReportServiceConfig{})

	dist, hit, err := svc.Distribution(context.Background())
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Len(t, dist, len(models.Grades))
}

func TestReportServiceExtreme(t *testing.T) {
	store := &stubSnapshotter{source: "marks.txt", version: 1, records: sampleClass()}
	svc := NewReportService(store, nil, nil, ReportServiceConfig{})
	ctx := context.Background()

	best, _, err := svc.Extreme(ctx, models.ExtremeMax)
	require.NoError(t, err)
	assert.Equal(t, "1003", best.Code)
	assert.Equal(t, models.GradeA, best.Grade)

	worst, _, err := svc.Extreme(ctx, models.ExtremeMin)
	require.NoError(t, err)
	assert.Equal(t, "1001", worst.Code)

	_, _, err = svc.Extreme(ctx, "avg")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestReportServiceEmptyClass(t *testing.T) {
	svc := NewReportService(&stubSnapshotter{source: "marks.txt"}, nil, nil, ReportServiceConfig{})
	ctx := context.Background()

	summary, _, err := svc.Summary(ctx)
	require.NoError(t, err)
	assert.True(t, summary.Empty)
	assert.Equal(t, models.NoStudentsMessage, summary.Message)

	_, _, err = svc.Extreme(ctx, models.ExtremeMax)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	ranking, _, err := svc.Ranking(ctx)
	require.NoError(t, err)
	assert.Empty(t, ranking)
}
