package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-marks-api/internal/models"
	appErrors "github.com/noah-isme/sma-marks-api/pkg/errors"
	"github.com/noah-isme/sma-marks-api/pkg/response"
)

const maxImportBytes = 10 << 20

type importService interface {
	ImportXLSX(ctx context.Context, r io.Reader) (*models.ImportResult, error)
}

// ImportHandler accepts spreadsheet uploads.
type ImportHandler struct {
	imports importService
}

// NewImportHandler constructs ImportHandler.
func NewImportHandler(imports importService) *ImportHandler {
	return &ImportHandler{imports: imports}
}

// Create godoc
// @Summary Import records from an xlsx workbook
// @Description Reads code,name,cw1,cw2,cw3,exam from the first sheet below a header row.
// @Tags Imports
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Workbook"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /imports [post]
func (h *ImportHandler) Create(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "file is required"))
		return
	}
	if header.Size > maxImportBytes {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file exceeds 10MB"))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unable to read upload"))
		return
	}
	defer file.Close() //nolint:errcheck

	result, err := h.imports.ImportXLSX(c.Request.Context(), file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}
