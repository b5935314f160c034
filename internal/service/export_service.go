package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-marks-api/internal/models"
	appErrors "github.com/noah-isme/sma-marks-api/pkg/errors"
	"github.com/noah-isme/sma-marks-api/pkg/export"
	"github.com/noah-isme/sma-marks-api/pkg/jobs"
	"github.com/noah-isme/sma-marks-api/pkg/storage"
)

const exportDir = "marks"

// ExportHeaders are the columns of every export.
var ExportHeaders = []string{"code", "name", "cw1", "cw2", "cw3", "coursework", "exam", "percent", "grade"}

const gradeColumn = 8

// ExportCleanupJob is the job type handled by ExportService.RunCleanup.
const ExportCleanupJob = "exports.cleanup"

type recordLister interface {
	Records() []models.StudentRecord
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

type datasetRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix    string
	DefaultTheme models.Theme
	ResultTTL    time.Duration
}

// ExportDownload is an opened export ready to stream.
type ExportDownload struct {
	File        *os.File
	Filename    string
	ContentType string
	ExpiresAt   time.Time
}

// ExportService renders the record list and hands out signed download links.
type ExportService struct {
	records recordLister
	storage fileStorage
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
	cfg     ExportConfig
	newID   func() string
	cleanup jobEnqueuer
}

// NewExportService constructs an ExportService.
func NewExportService(records recordLister, store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = signer.TTL()
	}
	if cfg.DefaultTheme == "" {
		cfg.DefaultTheme = models.ThemeBright
	}
	return &ExportService{
		records: records,
		storage: store,
		signer:  signer,
		logger:  logger,
		cfg:     cfg,
		newID:   uuid.NewString,
	}
}

// UseCleanupQueue moves expired export pruning onto queue. Without one,
// pruning runs inline after each export.
func (s *ExportService) UseCleanupQueue(queue jobEnqueuer) {
	s.cleanup = queue
}

// RunCleanup is the queue handler for ExportCleanupJob.
func (s *ExportService) RunCleanup(ctx context.Context, job jobs.Job) error {
	if job.Type != ExportCleanupJob {
		return fmt.Errorf("unexpected job type %q", job.Type)
	}
	removed, err := s.storage.CleanupOlderThan(s.cfg.ResultTTL)
	if err != nil {
		return err
	}
	if len(removed) > 0 {
		s.logger.Debug("expired exports removed", zap.String("trigger", job.ID), zap.Strings("files", removed))
	}
	return nil
}

// RenderRecords renders records in format using theme's palette. The format
// is matched case-insensitively.
func RenderRecords(records []models.StudentRecord, format models.ExportFormat, theme models.Theme) ([]byte, models.ExportFormat, error) {
	format = models.ExportFormat(strings.ToLower(strings.TrimSpace(string(format))))
	colors := models.ColorsFor(theme)

	renderer, err := rendererFor(format, colors)
	if err != nil {
		return nil, format, err
	}
	payload, err := renderer.Render(buildMarksDataset(records, colors))
	if err != nil {
		return nil, format, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	return payload, format, nil
}

// Export renders the current records and stores the file.
func (s *ExportService) Export(ctx context.Context, req models.ExportRequest) (*models.ExportResult, error) {
	theme := s.cfg.DefaultTheme
	if req.Theme != "" {
		theme = models.ParseTheme(string(req.Theme))
	}

	records := s.records.Records()
	payload, format, err := RenderRecords(records, req.Format, theme)
	if err != nil {
		return nil, err
	}

	id := s.newID()
	relPath, err := s.storage.Save(path.Join(exportDir, id+"."+string(format)), payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrIO.Code, appErrors.ErrIO.Status, "failed to store export")
	}
	token, expiresAt, err := s.signer.Generate(id, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export")
	}

	s.scheduleCleanup(id)
	s.logger.Info("export rendered",
		zap.String("id", id),
		zap.String("format", string(format)),
		zap.String("theme", string(theme)),
		zap.Int("rows", len(records)))

	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	return &models.ExportResult{
		ID:        id,
		Format:    format,
		Rows:      len(records),
		Token:     token,
		URL:       fmt.Sprintf("%s/exports/%s", prefix, token),
		ExpiresAt: expiresAt,
		Path:      relPath,
	}, nil
}

// Open validates a download token and opens the referenced file.
func (s *ExportService) Open(ctx context.Context, token string) (*ExportDownload, error) {
	parsed, err := s.signer.Parse(token, false)
	switch {
	case errors.Is(err, storage.ErrTokenExpired):
		return nil, appErrors.Clone(appErrors.ErrNotFound, "download link expired")
	case err != nil:
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid download token")
	}

	file, err := s.storage.Open(parsed.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrIO.Code, appErrors.ErrIO.Status, "failed to open export")
	}
	format := models.ExportFormat(strings.TrimPrefix(path.Ext(parsed.Path), "."))
	return &ExportDownload{
		File:        file,
		Filename:    "student-marks." + string(format),
		ContentType: format.ContentType(),
		ExpiresAt:   parsed.ExpiresAt,
	}, nil
}

func rendererFor(format models.ExportFormat, colors map[models.ColorRole]string) (datasetRenderer, error) {
	switch format {
	case models.ExportFormatCSV:
		return export.NewCSVExporter(), nil
	case models.ExportFormatPDF:
		return export.NewPDFExporter(paletteFrom(colors)), nil
	case models.ExportFormatXLSX:
		return export.NewXLSXExporter(paletteFrom(colors), "Marks"), nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be one of csv pdf xlsx")
	}
}

func (s *ExportService) scheduleCleanup(trigger string) {
	if s.cleanup != nil {
		err := s.cleanup.Enqueue(jobs.Job{ID: trigger, Type: ExportCleanupJob})
		if err == nil {
			return
		}
		s.logger.Warn("export cleanup not queued", zap.Error(err))
	}
	s.pruneExpired()
}

func (s *ExportService) pruneExpired() {
	removed, err := s.storage.CleanupOlderThan(s.cfg.ResultTTL)
	if err != nil {
		s.logger.Warn("export cleanup failed", zap.Error(err))
		return
	}
	if len(removed) > 0 {
		s.logger.Debug("expired exports removed", zap.Strings("files", removed))
	}
}

func buildMarksDataset(records []models.StudentRecord, colors map[models.ColorRole]string) export.Dataset {
	rows := make([][]string, 0, len(records))
	grades := make([]models.Grade, 0, len(records))
	for _, rec := range records {
		view := rec.View()
		rows = append(rows, []string{
			rec.Code,
			rec.Name,
			strconv.Itoa(rec.CW1),
			strconv.Itoa(rec.CW2),
			strconv.Itoa(rec.CW3),
			strconv.Itoa(view.CourseworkTotal),
			strconv.Itoa(rec.Exam),
			strconv.FormatFloat(view.OverallPercent, 'f', 2, 64),
			string(view.Grade),
		})
		grades = append(grades, view.Grade)
	}
	return export.Dataset{
		Title:   "Student Marks",
		Headers: ExportHeaders,
		Rows:    rows,
		CellColor: func(row, col int) (export.RGB, bool) {
			if col != gradeColumn {
				return export.RGB{}, false
			}
			return colorFor(colors, models.GradeRole(grades[row]))
		},
	}
}

func paletteFrom(colors map[models.ColorRole]string) export.Palette {
	palette := export.DefaultPalette
	if c, ok := colorFor(colors, models.RoleForeground); ok {
		palette.Foreground = c
		palette.HeaderText = c
	}
	if c, ok := colorFor(colors, models.RoleHeader); ok {
		palette.HeaderFill = c
	}
	if c, ok := colorFor(colors, models.RoleRowOdd); ok {
		palette.RowOdd = c
	}
	if c, ok := colorFor(colors, models.RoleRowEven); ok {
		palette.RowEven = c
	}
	return palette
}

func colorFor(colors map[models.ColorRole]string, role models.ColorRole) (export.RGB, bool) {
	hex, ok := colors[role]
	if !ok {
		return export.RGB{}, false
	}
	r, g, b, err := models.HexToRGB(hex)
	if err != nil {
		return export.RGB{}, false
	}
	return export.RGB{R: r, G: g, B: b}, true
}
