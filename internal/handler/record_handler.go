package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-marks-api/internal/models"
	"github.com/noah-isme/sma-marks-api/internal/service"
	appErrors "github.com/noah-isme/sma-marks-api/pkg/errors"
	"github.com/noah-isme/sma-marks-api/pkg/response"
)

type recordService interface {
	Source() string
	Records() []models.StudentRecord
	Load(ctx context.Context, source string) (*models.LoadResult, error)
	Reload(ctx context.Context) (*models.LoadResult, error)
	AddRecord(ctx context.Context, req service.AddRecordRequest) (models.StudentRecord, error)
	EditRecord(ctx context.Context, code string, req service.EditMarksRequest) (models.StudentRecord, error)
	DeleteRecord(ctx context.Context, code string) error
	FindByCode(code string) (models.StudentRecord, error)
	Search(query string) (*models.SearchResult, error)
	SortBy(ctx context.Context, field models.SortField, direction models.SortDirection) error
}

type sourceResolver interface {
	Resolve(source string) (string, error)
}

// RecordHandler exposes the student record endpoints.
type RecordHandler struct {
	records recordService
	sources sourceResolver
}

// NewRecordHandler constructs RecordHandler. Reload refuses to re-point the
// store when sources is nil.
func NewRecordHandler(records recordService, sources sourceResolver) *RecordHandler {
	return &RecordHandler{records: records, sources: sources}
}

// SearchResponse is a search result with derived metrics attached.
type SearchResponse struct {
	Query   string              `json:"query"`
	Kind    models.SearchKind   `json:"kind"`
	Records []models.RecordView `json:"records"`
}

// List godoc
// @Summary List student records in their current order
// @Tags Records
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /records [get]
func (h *RecordHandler) List(c *gin.Context) {
	records := h.records.Records()
	response.JSON(c, http.StatusOK, models.Views(records), map[string]interface{}{
		"count":  len(records),
		"source": h.records.Source(),
	})
}

// Get godoc
// @Summary Get a student record by code
// @Tags Records
// @Produce json
// @Param code path string true "Student code"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /records/{code} [get]
func (h *RecordHandler) Get(c *gin.Context) {
	rec, err := h.records.FindByCode(c.Param("code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, rec.View())
}

// Create godoc
// @Summary Add a student record
// @Tags Records
// @Accept json
// @Produce json
// @Param payload body service.AddRecordRequest true "Record payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /records [post]
func (h *RecordHandler) Create(c *gin.Context) {
	var req service.AddRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	rec, err := h.records.AddRecord(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, rec.View())
}

// Update godoc
// @Summary Replace the marks of a student record
// @Tags Records
// @Accept json
// @Produce json
// @Param code path string true "Student code"
// @Param payload body service.EditMarksRequest true "Marks payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /records/{code} [put]
func (h *RecordHandler) Update(c *gin.Context) {
	var req service.EditMarksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	rec, err := h.records.EditRecord(c.Request.Context(), c.Param("code"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, rec.View())
}

// Delete godoc
// @Summary Delete a student record
// @Tags Records
// @Param code path string true "Student code"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /records/{code} [delete]
func (h *RecordHandler) Delete(c *gin.Context) {
	if err := h.records.DeleteRecord(c.Request.Context(), c.Param("code")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Search godoc
// @Summary Search by code, exact name, then partial name
// @Tags Records
// @Produce json
// @Param q query string true "Code or name"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /records/search [get]
func (h *RecordHandler) Search(c *gin.Context) {
	result, err := h.records.Search(c.Query("q"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, SearchResponse{Query: result.Query, Kind: result.Kind, Records: models.Views(result.Records)})
}

// Sort godoc
// @Summary Reorder and persist the record list
// @Tags Records
// @Accept json
// @Produce json
// @Param payload body models.SortRequest true "Sort payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /records/sort [post]
func (h *RecordHandler) Sort(c *gin.Context) {
	var req models.SortRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "field is required"))
		return
	}
	if err := h.records.SortBy(c.Request.Context(), req.Field, req.Direction); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, models.Views(h.records.Records()))
}

// Reload godoc
// @Summary Reload records from the current source or re-point to another
// @Tags Records
// @Accept json
// @Produce json
// @Param payload body models.ReloadRequest false "Optional new source"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 500 {object} response.Envelope
// @Router /records/reload [post]
func (h *RecordHandler) Reload(c *gin.Context) {
	var req models.ReloadRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}

	var (
		result *models.LoadResult
		err    error
	)
	if req.Source != "" {
		if h.sources == nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "this store cannot be re-pointed"))
			return
		}
		source, resolveErr := h.sources.Resolve(req.Source)
		if resolveErr != nil {
			response.Error(c, resolveErr)
			return
		}
		result, err = h.records.Load(c.Request.Context(), source)
	} else {
		result, err = h.records.Reload(c.Request.Context())
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}
