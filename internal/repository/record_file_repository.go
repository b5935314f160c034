package repository

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-marks-api/internal/models"
)

const recordFieldCount = 6

// RecordFileRepository persists student records in the count-prefixed marks file:
//
//	<N>
//	<code>,<name>,<cw1>,<cw2>,<cw3>,<exam>
type RecordFileRepository struct {
	logger *zap.Logger
}

// NewRecordFileRepository constructs a RecordFileRepository.
func NewRecordFileRepository(logger *zap.Logger) *RecordFileRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordFileRepository{logger: logger}
}

// Load reads every valid record from path. Malformed lines are skipped and counted.
func (r *RecordFileRepository) Load(ctx context.Context, path string) (*models.LoadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read marks file %s: %w", path, err)
	}

	records, corruptedLines := DecodeRecords(data)
	if len(corruptedLines) > 0 {
		r.logger.Warn("skipped corrupted lines in marks file",
			zap.String("path", path),
			zap.Int("count", len(corruptedLines)),
			zap.Ints("lines", corruptedLines))
	}

	return &models.LoadResult{
		Source:    path,
		Records:   records,
		Loaded:    len(records),
		Corrupted: len(corruptedLines),
	}, nil
}

// Save replaces the file at path with the given records. The new content is
// written to a sibling temp file and renamed into place.
func (r *RecordFileRepository) Save(ctx context.Context, path string, records []models.StudentRecord) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp marks file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	if _, err := tmp.Write(EncodeRecords(records)); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write marks file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync marks file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close marks file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod marks file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace marks file %s: %w", path, err)
	}
	return nil
}

// EncodeRecords renders records in file order behind a count header.
func EncodeRecords(records []models.StudentRecord) []byte {
	buf := &bytes.Buffer{}
	fmt.Fprintf(buf, "%d\n", len(records))
	for _, rec := range records {
		fmt.Fprintf(buf, "%s,%s,%d,%d,%d,%d\n", rec.Code, rec.Name, rec.CW1, rec.CW2, rec.CW3, rec.Exam)
	}
	return buf.Bytes()
}

// DecodeRecords parses file content. It returns the valid records in order and
// the 1-based line numbers that were rejected.
//
// A first line holding an integer is a declared count: only that many following
// lines are read. Otherwise every line is data. Blank lines are ignored.
func DecodeRecords(data []byte) ([]models.StudentRecord, []int) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return []models.StudentRecord{}, nil
	}
	lines := strings.Split(text, "\n")

	start, end := 0, len(lines)
	if count, err := strconv.Atoi(strings.TrimSpace(lines[0])); err == nil {
		start = 1
		switch {
		case count < 0:
			count = 0
		case count > len(lines)-1:
			count = len(lines) - 1
		}
		end = start + count
	}

	records := make([]models.StudentRecord, 0, end-start)
	var corrupted []int
	for i := start; i < end; i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		rec, ok := parseRecordLine(line)
		if !ok {
			corrupted = append(corrupted, i+1)
			continue
		}
		records = append(records, rec)
	}
	return records, corrupted
}

func parseRecordLine(line string) (models.StudentRecord, bool) {
	parts := strings.Split(line, ",")
	if len(parts) != recordFieldCount {
		return models.StudentRecord{}, false
	}

	marks := make([]int, 0, 4)
	for _, raw := range parts[2:] {
		v, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return models.StudentRecord{}, false
		}
		marks = append(marks, v)
	}

	rec := models.StudentRecord{
		Code: strings.TrimSpace(parts[0]),
		Name: strings.TrimSpace(parts[1]),
		CW1:  marks[0],
		CW2:  marks[1],
		CW3:  marks[2],
		Exam: marks[3],
	}
	if rec.Code == "" || rec.Name == "" {
		return models.StudentRecord{}, false
	}
	return rec, true
}
