package service

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-marks-api/internal/models"
	appErrors "github.com/noah-isme/sma-marks-api/pkg/errors"
)

var importColumns = []string{"code", "name", "cw1", "cw2", "cw3", "exam"}

type recordAdder interface {
	AddRecord(ctx context.Context, req AddRecordRequest) (models.StudentRecord, error)
}

// ImportService adds records from the first sheet of an XLSX workbook.
type ImportService struct {
	store  recordAdder
	logger *zap.Logger
}

// NewImportService constructs an ImportService.
func NewImportService(store recordAdder, logger *zap.Logger) *ImportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImportService{store: store, logger: logger}
}

// ImportXLSX reads rows code,name,cw1,cw2,cw3,exam below a header row and adds
// each through the store. Rejected rows are reported and do not stop the
// import; accepted rows stay added. A failure to persist aborts the import.
func (s *ImportService) ImportXLSX(ctx context.Context, r io.Reader) (*models.ImportResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "file is not a readable xlsx workbook")
	}
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn("failed to close workbook", zap.Error(err))
		}
	}()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "workbook has no sheets")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("failed to read sheet %s", sheet))
	}

	result := &models.ImportResult{Sheet: sheet, Failures: []models.ImportRowError{}}
	for i, row := range rows {
		if i == 0 {
			continue
		}
		rowNum := i + 1
		if blankRow(row) {
			result.Skipped++
			continue
		}

		req, err := parseImportRow(row)
		if err != nil {
			result.Failures = append(result.Failures, models.ImportRowError{Row: rowNum, Code: cell(row, 0), Message: err.Error()})
			continue
		}
		if _, err := s.store.AddRecord(ctx, req); err != nil {
			if appErrors.IsCode(err, appErrors.ErrIO.Code) {
				s.logger.Error("import aborted", zap.Int("row", rowNum), zap.Error(err))
				return result, err
			}
			result.Failures = append(result.Failures, models.ImportRowError{Row: rowNum, Code: req.Code, Message: appErrors.FromError(err).Message})
			continue
		}
		result.Added++
	}

	s.logger.Info("xlsx import finished",
		zap.String("sheet", sheet),
		zap.Int("added", result.Added),
		zap.Int("failed", len(result.Failures)),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

func parseImportRow(row []string) (AddRecordRequest, error) {
	marks := make([]int, 4)
	for i := range marks {
		col := i + 2
		raw := cell(row, col)
		if raw == "" {
			return AddRecordRequest{}, fmt.Errorf("%s is required", importColumns[col])
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return AddRecordRequest{}, fmt.Errorf("%s must be a whole number", importColumns[col])
		}
		marks[i] = v
	}
	return AddRecordRequest{
		Code: cell(row, 0),
		Name: cell(row, 1),
		CW1:  marks[0],
		CW2:  marks[1],
		CW3:  marks[2],
		Exam: marks[3],
	}, nil
}

func cell(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func blankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
