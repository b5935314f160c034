package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-marks-api/internal/models"
	"github.com/noah-isme/sma-marks-api/internal/service"
	appErrors "github.com/noah-isme/sma-marks-api/pkg/errors"
)

type recordServiceMock struct {
	records    []models.StudentRecord
	addReq     service.AddRecordRequest
	addErr     error
	editCode   string
	editErr    error
	deleteErr  error
	findErr    error
	searchErr  error
	sortField  models.SortField
	sortDir    models.SortDirection
	sortErr    error
	loadSource string
	reloaded   bool
}

func (m *recordServiceMock) Source() string                  { return "studentMarks.txt" }
func (m *recordServiceMock) Records() []models.StudentRecord { return m.records }

func (m *recordServiceMock) Load(ctx context.Context, source string) (*models.LoadResult, error) {
	m.loadSource = source
	return &models.LoadResult{Source: source, Loaded: 2}, nil
}

func (m *recordServiceMock) Reload(ctx context.Context) (*models.LoadResult, error) {
	m.reloaded = true
	return &models.LoadResult{Source: m.Source(), Loaded: len(m.records)}, nil
}

func (m *recordServiceMock) AddRecord(ctx context.Context, req service.AddRecordRequest) (models.StudentRecord, error) {
	m.addReq = req
	if m.addErr != nil {
		return models.StudentRecord{}, m.addErr
	}
	return models.StudentRecord{Code: req.Code, Name: req.Name, CW1: req.CW1, CW2: req.CW2, CW3: req.CW3, Exam: req.Exam}, nil
}

func (m *recordServiceMock) EditRecord(ctx context.Context, code string, req service.EditMarksRequest) (models.StudentRecord, error) {
	m.editCode = code
	if m.editErr != nil {
		return models.StudentRecord{}, m.editErr
	}
	return models.StudentRecord{Code: code, Name: "X", CW1: req.CW1, CW2: req.CW2, CW3: req.CW3, Exam: req.Exam}, nil
}

func (m *recordServiceMock) DeleteRecord(ctx context.Context, code string) error {
	return m.deleteErr
}

func (m *recordServiceMock) FindByCode(code string) (models.StudentRecord, error) {
	if m.findErr != nil {
		return models.StudentRecord{}, m.findErr
	}
	return models.StudentRecord{Code: code, Name: "Ada", CW1: 20, CW2: 15, CW3: 10, Exam: 67}, nil
}

func (m *recordServiceMock) Search(query string) (*models.SearchResult, error) {
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return &models.SearchResult{Query: query, Kind: models.SearchByPartial, Records: m.records}, nil
}

func (m *recordServiceMock) SortBy(ctx context.Context, field models.SortField, direction models.SortDirection) error {
	m.sortField, m.sortDir = field, direction
	return m.sortErr
}

type envelope struct {
	Data  json.RawMessage        `json:"data"`
	Error *appErrors.Error       `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

func perform(t *testing.T, h gin.HandlerFunc, method, target, body string, params ...gin.Param) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, err := http.NewRequest(method, target, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	c.Request = req
	c.Params = params

	h(c)
	c.Writer.WriteHeaderNow()

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

// performRaw runs a GET without decoding the body.
func performRaw(t *testing.T, h gin.HandlerFunc, params ...gin.Param) (*httptest.ResponseRecorder, *gin.Context) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Params = params
	h(c)
	return w, c
}

func TestRecordHandlerList(t *testing.T) {
	mockSvc := &recordServiceMock{records: []models.StudentRecord{{Code: "1001", Name: "Ada", CW1: 20, CW2: 15, CW3: 10, Exam: 67}}}
	h := NewRecordHandler(mockSvc, nil)

	w, env := perform(t, h.List, http.MethodGet, "/records", "")
	require.Equal(t, http.StatusOK, w.Code)

	var views []models.RecordView
	require.NoError(t, json.Unmarshal(env.Data, &views))
	require.Len(t, views, 1)
	assert.Equal(t, 70.0, views[0].OverallPercent)
	assert.Equal(t, models.GradeA, views[0].Grade)
	assert.Equal(t, float64(1), env.Meta["count"])
}

func TestRecordHandlerCreate(t *testing.T) {
	mockSvc := &recordServiceMock{}
	h := NewRecordHandler(mockSvc, nil)

	w, env := perform(t, h.Create, http.MethodPost, "/records", `{"code":"1001","name":"Ada","cw1":20,"cw2":15,"cw3":10,"exam":67}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "1001", mockSvc.addReq.Code)

	var view models.RecordView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, 45, view.CourseworkTotal)
}

func TestRecordHandlerCreateErrors(t *testing.T) {
	h := NewRecordHandler(&recordServiceMock{}, nil)
	w, _ := perform(t, h.Create, http.MethodPost, "/records", `{"code":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = perform(t, h.Create, http.MethodPost, "/records", `{"code":"1001","cw1":"many"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	h = NewRecordHandler(&recordServiceMock{addErr: appErrors.Clone(appErrors.ErrConflict, "a student with code 1001 already exists")}, nil)
	w, env := perform(t, h.Create, http.MethodPost, "/records", `{"code":"1001","name":"Ada"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "CONFLICT", env.Error.Code)
}

func TestRecordHandlerGetUpdateDelete(t *testing.T) {
	mockSvc := &recordServiceMock{}
	h := NewRecordHandler(mockSvc, nil)
	code := gin.Param{Key: "code", Value: "1001"}

	w, _ := perform(t, h.Get, http.MethodGet, "/records/1001", "", code)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = perform(t, h.Update, http.MethodPut, "/records/1001", `{"cw1":1,"cw2":2,"cw3":3,"exam":4}`, code)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1001", mockSvc.editCode)

	w, _ = perform(t, h.Delete, http.MethodDelete, "/records/1001", "", code)
	assert.Equal(t, http.StatusNoContent, w.Code)

	mockSvc.findErr = appErrors.Clone(appErrors.ErrNotFound, "student 1001 not found")
	mockSvc.deleteErr = mockSvc.findErr
	w, _ = perform(t, h.Get, http.MethodGet, "/records/1001", "", code)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = perform(t, h.Delete, http.MethodDelete, "/records/1001", "", code)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRecordHandlerSearch(t *testing.T) {
	mockSvc := &recordServiceMock{records: []models.StudentRecord{{Code: "1001", Name: "Ann"}}}
	h := NewRecordHandler(mockSvc, nil)

	w, env := perform(t, h.Search, http.MethodGet, "/records/search?q=an", "")
	require.Equal(t, http.StatusOK, w.Code)
	var res SearchResponse
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, "an", res.Query)
	assert.Equal(t, models.SearchByPartial, res.Kind)
	assert.Len(t, res.Records, 1)

	mockSvc.searchErr = appErrors.Clone(appErrors.ErrValidation, "search query is required")
	w, _ = perform(t, h.Search, http.MethodGet, "/records/search", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecordHandlerSort(t *testing.T) {
	mockSvc := &recordServiceMock{}
	h := NewRecordHandler(mockSvc, nil)

	w, _ := perform(t, h.Sort, http.MethodPost, "/records/sort", `{"field":"exam","direction":"desc"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.SortByExam, mockSvc.sortField)
	assert.Equal(t, models.SortDesc, mockSvc.sortDir)

	w, _ = perform(t, h.Sort, http.MethodPost, "/records/sort", `{"direction":"desc"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecordHandlerReload(t *testing.T) {
	dir := t.TempDir()
	guard, err := service.NewSourceGuard(filepath.Join(dir, "studentMarks.txt"))
	require.NoError(t, err)
	mockSvc := &recordServiceMock{}
	h := NewRecordHandler(mockSvc, guard)

	w, _ := perform(t, h.Reload, http.MethodPost, "/records/reload", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, mockSvc.reloaded)

	w, env := perform(t, h.Reload, http.MethodPost, "/records/reload", `{"source":"other.txt"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, filepath.Join(guard.Dir(), "other.txt"), mockSvc.loadSource)
	var result models.LoadResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, 2, result.Loaded)
}

func TestRecordHandlerReloadRejectsSourceOutsideDataDir(t *testing.T) {
	dir := t.TempDir()
	guard, err := service.NewSourceGuard(filepath.Join(dir, "studentMarks.txt"))
	require.NoError(t, err)
	mockSvc := &recordServiceMock{}
	h := NewRecordHandler(mockSvc, guard)

	for _, source := range []string{
		"../etc/passwd",
		"/etc/passwd",
		"nested/marks.txt",
		filepath.Join(filepath.Dir(dir), "marks.txt"),
	} {
		w, env := perform(t, h.Reload, http.MethodPost, "/records/reload", `{"source":`+strconv.Quote(source)+`}`)
		require.Equal(t, http.StatusBadRequest, w.Code, source)
		require.NotNil(t, env.Error)
		assert.Equal(t, appErrors.ErrValidation.Code, env.Error.Code)
	}
	assert.Empty(t, mockSvc.loadSource, "store must not be re-pointed")
}

func TestRecordHandlerReloadWithoutGuardRefusesSource(t *testing.T) {
	mockSvc := &recordServiceMock{}
	h := NewRecordHandler(mockSvc, nil)

	w, _ := perform(t, h.Reload, http.MethodPost, "/records/reload", `{"source":"other.txt"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, mockSvc.loadSource)

	w, _ = perform(t, h.Reload, http.MethodPost, "/records/reload", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, mockSvc.reloaded)
}
