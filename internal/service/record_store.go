package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-marks-api/internal/models"
	appErrors "github.com/noah-isme/sma-marks-api/pkg/errors"
)

// RecordRepository reads and writes the whole record list at a source.
type RecordRepository interface {
	Load(ctx context.Context, source string) (*models.LoadResult, error)
	Save(ctx context.Context, source string, records []models.StudentRecord) error
}

// AddRecordRequest holds a candidate record. Fields are declared in the order
// they are checked: empty fields, code format, mark ranges. Uniqueness is
// checked last against the store.
type AddRecordRequest struct {
	Name string `json:"name" validate:"required,record_name"`
	Code string `json:"code" validate:"required,student_code"`
	CW1  int    `json:"cw1" validate:"min=0,max=20"`
	CW2  int    `json:"cw2" validate:"min=0,max=20"`
	CW3  int    `json:"cw3" validate:"min=0,max=20"`
	Exam int    `json:"exam" validate:"min=0,max=100"`
}

// EditMarksRequest replaces the four marks of an existing record.
type EditMarksRequest struct {
	CW1  int `json:"cw1" validate:"min=0,max=20"`
	CW2  int `json:"cw2" validate:"min=0,max=20"`
	CW3  int `json:"cw3" validate:"min=0,max=20"`
	Exam int `json:"exam" validate:"min=0,max=100"`
}

// RecordStore owns the authoritative, ordered list of student records and
// keeps the backing source in step with it. Every successful mutation is
// followed by a full save before the call returns.
//
// A failed save is reported but the in-memory change is kept, so memory and
// the source can diverge until the next successful save.
type RecordStore struct {
	repo      RecordRepository
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService

	mu      sync.Mutex
	source  string
	records []*models.StudentRecord
	version uint64
}

// NewRecordStore constructs an empty store; call Load to populate it.
func NewRecordStore(repo RecordRepository, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService) *RecordStore {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	RegisterRecordValidations(validate)
	return &RecordStore{repo: repo, validator: validate, logger: logger, metrics: metrics}
}

// RegisterRecordValidations installs the student_code and record_name rules
// and reports field names using their json tags.
func RegisterRecordValidations(validate *validator.Validate) {
	_ = validate.RegisterValidation("student_code", func(fl validator.FieldLevel) bool {
		return IsStudentCode(fl.Field().String())
	})
	_ = validate.RegisterValidation("record_name", func(fl validator.FieldLevel) bool {
		return IsRecordName(fl.Field().String())
	})
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
}

// IsStudentCode reports whether code is a 4-digit numeral between 1000 and 9999.
func IsStudentCode(code string) bool {
	if len(code) != 4 {
		return false
	}
	for _, ch := range code {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return code[0] != '0'
}

// IsRecordName reports whether name fits in one field of a data file line:
// no commas and no line breaks.
func IsRecordName(name string) bool {
	return !strings.ContainsAny(name, ",\r\n")
}

// Load replaces the store content with the records read from source and
// re-points the store at it. On failure the store is left unchanged.
func (s *RecordStore) Load(ctx context.Context, source string) (*models.LoadResult, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, appErrors.Clone(appErrors.ErrIO, "no data file selected")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.repo.Load(ctx, source)
	if err != nil {
		s.metrics.ObserveRecordOperation("load", "error")
		s.logger.Error("failed to load records", zap.String("source", source), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrIO.Code, appErrors.ErrIO.Status, fmt.Sprintf("failed to read records from %s", source))
	}

	records := make([]*models.StudentRecord, 0, len(result.Records))
	for i := range result.Records {
		rec := result.Records[i]
		records = append(records, &rec)
	}
	s.records = records
	s.source = source
	s.version++

	s.metrics.ObserveRecordOperation("load", "ok")
	s.metrics.AddCorruptedLines(result.Corrupted)
	s.metrics.SetRecordCount(len(records))
	s.logger.Info("records loaded",
		zap.String("source", source),
		zap.Int("loaded", len(records)),
		zap.Int("corrupted", result.Corrupted))
	return result, nil
}

// Reload reads the current source again.
func (s *RecordStore) Reload(ctx context.Context) (*models.LoadResult, error) {
	return s.Load(ctx, s.Source())
}

// Save writes the current list to the source.
func (s *RecordStore) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(ctx, "save")
}

// Source returns the location the store loads from and saves to.
func (s *RecordStore) Source() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// Version increases on every successful load and every mutation.
func (s *RecordStore) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Len returns the number of records held.
func (s *RecordStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Records returns a snapshot of the list in its current order.
func (s *RecordStore) Records() []models.StudentRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// AddRecord validates the candidate, appends it and saves.
func (s *RecordStore) AddRecord(ctx context.Context, req AddRecordRequest) (models.StudentRecord, error) {
	req.Code = strings.TrimSpace(req.Code)
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Struct(req); err != nil {
		s.metrics.ObserveRecordOperation("add", "invalid")
		return models.StudentRecord{}, validationError(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexLocked(req.Code) >= 0 {
		s.metrics.ObserveRecordOperation("add", "invalid")
		return models.StudentRecord{}, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("a student with code %s already exists", req.Code))
	}

	rec := &models.StudentRecord{Code: req.Code, Name: req.Name, CW1: req.CW1, CW2: req.CW2, CW3: req.CW3, Exam: req.Exam}
	s.records = append(s.records, rec)
	s.version++
	s.logger.Info("record added", zap.String("code", rec.Code))

	if err := s.saveLocked(ctx, "add"); err != nil {
		return models.StudentRecord{}, err
	}
	return *rec, nil
}

// EditRecord overwrites the marks of the record with code in place and saves.
func (s *RecordStore) EditRecord(ctx context.Context, code string, req EditMarksRequest) (models.StudentRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		s.metrics.ObserveRecordOperation("edit", "invalid")
		return models.StudentRecord{}, validationError(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(code)
	if idx < 0 {
		s.metrics.ObserveRecordOperation("edit", "not_found")
		return models.StudentRecord{}, notFound(code)
	}

	rec := s.records[idx]
	rec.CW1, rec.CW2, rec.CW3, rec.Exam = req.CW1, req.CW2, req.CW3, req.Exam
	s.version++
	s.logger.Info("record updated", zap.String("code", rec.Code))

	if err := s.saveLocked(ctx, "edit"); err != nil {
		return models.StudentRecord{}, err
	}
	return *rec, nil
}

// DeleteRecord removes the record with code and saves.
func (s *RecordStore) DeleteRecord(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(code)
	if idx < 0 {
		s.metrics.ObserveRecordOperation("delete", "not_found")
		return notFound(code)
	}

	s.records = append(s.records[:idx], s.records[idx+1:]...)
	s.version++
	s.logger.Info("record deleted", zap.String("code", code))

	return s.saveLocked(ctx, "delete")
}

// FindByCode returns the first record whose code equals code exactly.
func (s *RecordStore) FindByCode(code string) (models.StudentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(code)
	if idx < 0 {
		return models.StudentRecord{}, notFound(code)
	}
	return *s.records[idx], nil
}

// Search tries an exact code match, then an exact case-insensitive name
// match, then every record whose name contains the query.
func (s *RecordStore) Search(query string) (*models.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "search query is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if idx := s.indexLocked(query); idx >= 0 {
		return &models.SearchResult{Query: query, Kind: models.SearchByCode, Records: []models.StudentRecord{*s.records[idx]}}, nil
	}

	lowered := strings.ToLower(query)
	for _, rec := range s.records {
		if strings.ToLower(rec.Name) == lowered {
			return &models.SearchResult{Query: query, Kind: models.SearchByName, Records: []models.StudentRecord{*rec}}, nil
		}
	}

	matches := make([]models.StudentRecord, 0)
	for _, rec := range s.records {
		if strings.Contains(strings.ToLower(rec.Name), lowered) {
			matches = append(matches, *rec)
		}
	}
	return &models.SearchResult{Query: query, Kind: models.SearchByPartial, Records: matches}, nil
}

// Extreme returns the best (max) or worst (min) performer by overall
// percentage. Ties go to the record that comes first in the list.
func (s *RecordStore) Extreme(mode models.ExtremeMode) (models.StudentRecord, error) {
	if mode != models.ExtremeMax && mode != models.ExtremeMin {
		return models.StudentRecord{}, appErrors.Clone(appErrors.ErrValidation, "mode must be one of max min")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.snapshotLocked()
	idx := models.ExtremeIndex(records, mode)
	if idx < 0 {
		return models.StudentRecord{}, appErrors.Clone(appErrors.ErrNotFound, "no students available")
	}
	return records[idx], nil
}

// SortBy reorders the list itself and saves. The sort is stable in both
// directions. Grades compare as letters. An empty store is left as is and
// nothing is written.
func (s *RecordStore) SortBy(ctx context.Context, field models.SortField, direction models.SortDirection) error {
	if direction == "" {
		direction = models.SortAsc
	}
	if direction != models.SortAsc && direction != models.SortDesc {
		return appErrors.Clone(appErrors.ErrValidation, "direction must be one of asc desc")
	}
	less, ok := sortComparators[field]
	if !ok {
		return appErrors.Clone(appErrors.ErrValidation, "field must be one of code name coursework exam percent grade")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.records) == 0 {
		return nil
	}

	records := s.records
	sort.SliceStable(records, func(i, j int) bool {
		if direction == models.SortDesc {
			return less(records[j], records[i])
		}
		return less(records[i], records[j])
	})
	s.version++
	s.logger.Info("records sorted", zap.String("field", string(field)), zap.String("direction", string(direction)))

	return s.saveLocked(ctx, "sort")
}

// ClassSummary returns the record count and mean overall percentage.
func (s *RecordStore) ClassSummary() models.ClassSummary {
	return models.SummarizeClass(s.Records())
}

// GradeDistribution counts records per letter grade; every letter is present.
func (s *RecordStore) GradeDistribution() models.GradeDistribution {
	return models.DistributeGrades(s.Records())
}

// Snapshot returns the version together with the records it describes.
func (s *RecordStore) Snapshot() (uint64, []models.StudentRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version, s.snapshotLocked()
}

func (s *RecordStore) saveLocked(ctx context.Context, op string) error {
	s.metrics.SetRecordCount(len(s.records))
	if s.source == "" {
		s.metrics.ObserveRecordOperation(op, "error")
		return appErrors.Clone(appErrors.ErrIO, "no data file selected")
	}
	if err := s.repo.Save(ctx, s.source, s.snapshotLocked()); err != nil {
		s.metrics.ObserveRecordOperation(op, "error")
		s.logger.Error("failed to save records", zap.String("source", s.source), zap.String("op", op), zap.Error(err))
		return appErrors.Wrap(err, appErrors.ErrIO.Code, appErrors.ErrIO.Status, fmt.Sprintf("failed to save records to %s", s.source))
	}
	s.metrics.ObserveRecordOperation(op, "ok")
	return nil
}

func (s *RecordStore) snapshotLocked() []models.StudentRecord {
	out := make([]models.StudentRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, *rec)
	}
	return out
}

func (s *RecordStore) indexLocked(code string) int {
	for i, rec := range s.records {
		if rec.Code == code {
			return i
		}
	}
	return -1
}

type recordLess func(a, b *models.StudentRecord) bool

var sortComparators = map[models.SortField]recordLess{
	models.SortByCode: compareCodes,
	models.SortByName: func(a, b *models.StudentRecord) bool {
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	},
	models.SortByCoursework: func(a, b *models.StudentRecord) bool {
		return a.CourseworkTotal() < b.CourseworkTotal()
	},
	models.SortByExam: func(a, b *models.StudentRecord) bool {
		return a.Exam < b.Exam
	},
	models.SortByPercent: func(a, b *models.StudentRecord) bool {
		return a.OverallPercent() < b.OverallPercent()
	},
	models.SortByGrade: func(a, b *models.StudentRecord) bool {
		return a.Grade() < b.Grade()
	},
}

// compareCodes orders numeric codes by value. Codes that are not numerals can
// only arrive through Load; they sort after every numeric code, by text.
func compareCodes(a, b *models.StudentRecord) bool {
	av, aErr := strconv.Atoi(a.Code)
	bv, bErr := strconv.Atoi(b.Code)
	switch {
	case aErr == nil && bErr == nil:
		return av < bv
	case aErr == nil:
		return true
	case bErr == nil:
		return false
	default:
		return a.Code < b.Code
	}
}

var markBounds = map[string][2]int{
	"cw1":  {models.CourseworkMin, models.CourseworkMax},
	"cw2":  {models.CourseworkMin, models.CourseworkMax},
	"cw3":  {models.CourseworkMin, models.CourseworkMax},
	"exam": {models.ExamMin, models.ExamMax},
}

func validationError(err error) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, describeValidation(err))
}

// describeValidation turns the first failed rule into a user-facing message.
func describeValidation(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return appErrors.ErrValidation.Message
	}
	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "student_code":
		return "code must be a 4-digit number (1000-9999)"
	case "record_name":
		return "name must not contain commas or line breaks"
	case "min", "max":
		if bounds, ok := markBounds[fe.Field()]; ok {
			return fmt.Sprintf("%s must be between %d and %d", fe.Field(), bounds[0], bounds[1])
		}
		return fmt.Sprintf("%s is out of range", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

func notFound(code string) error {
	return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("student %s not found", code))
}
