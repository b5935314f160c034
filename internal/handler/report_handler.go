package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-marks-api/internal/middleware"
	"github.com/noah-isme/sma-marks-api/internal/models"
	"github.com/noah-isme/sma-marks-api/pkg/response"
)

type reportService interface {
	Summary(ctx context.Context) (models.ClassSummary, bool, error)
	Extreme(ctx context.Context, mode models.ExtremeMode) (*models.RecordView, bool, error)
	Distribution(ctx context.Context) (models.GradeDistribution, bool, error)
	Ranking(ctx context.Context) ([]models.RankedRecord, bool, error)
}

// ReportHandler exposes read-only class reports.
type ReportHandler struct {
	reports reportService
}

// NewReportHandler constructs ReportHandler.
func NewReportHandler(reports reportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// Summary godoc
// @Summary Class size and average overall percentage
// @Tags Reports
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /reports/summary [get]
func (h *ReportHandler) Summary(c *gin.Context) {
	summary, hit, err := h.reports.Summary(c.Request.Context())
	respond(c, summary, hit, err)
}

// Extreme godoc
// @Summary Best or worst performer
// @Tags Reports
// @Produce json
// @Param mode query string false "max (default) or min"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /reports/extreme [get]
func (h *ReportHandler) Extreme(c *gin.Context) {
	mode := models.ExtremeMode(strings.ToLower(c.DefaultQuery("mode", string(models.ExtremeMax))))
	view, hit, err := h.reports.Extreme(c.Request.Context(), mode)
	respond(c, view, hit, err)
}

// Distribution godoc
// @Summary Number of students per grade
// @Tags Reports
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /reports/distribution [get]
func (h *ReportHandler) Distribution(c *gin.Context) {
	dist, hit, err := h.reports.Distribution(c.Request.Context())
	respond(c, dist, hit, err)
}

// Ranking godoc
// @Summary Students ranked by overall percentage
// @Tags Reports
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /reports/ranking [get]
func (h *ReportHandler) Ranking(c *gin.Context) {
	ranking, hit, err := h.reports.Ranking(c.Request.Context())
	respond(c, ranking, hit, err)
}

func respond(c *gin.Context, data interface{}, cacheHit bool, err error) {
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, data, middleware.ExtractMeta(c))
}
