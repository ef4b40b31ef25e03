package handler

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/andika/product-import/internal/service"
	"github.com/gin-gonic/gin"
)

// ImportHandler handles product CSV import endpoints.
type ImportHandler struct {
	imports        *service.ImportService
	maxUploadBytes int64
}

// NewImportHandler creates a new import handler.
func NewImportHandler(imports *service.ImportService, maxUploadMB int64) *ImportHandler {
	return &ImportHandler{
		imports:        imports,
		maxUploadBytes: maxUploadMB * 1024 * 1024,
	}
}

// Import handles POST /api/v1/products/import. It accepts a multipart CSV
// upload and responds 202 with the job id; processing continues in the
// background.
func (h *ImportHandler) Import(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "CSV file is required"})
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext != ".csv" && ext != ".txt" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File must be a CSV"})
		return
	}
	if h.maxUploadBytes > 0 && header.Size > h.maxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File is too large"})
		return
	}

	result, err := h.imports.Submit(c.Request.Context(), header.Filename, file, header.Size)
	if err != nil {
		if errors.Is(err, service.ErrEmptyFile) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "CSV contains no data (excluding header)"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start import: " + err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, result)
}

// Status handles GET /api/v1/products/import/:id/status.
func (h *ImportHandler) Status(c *gin.Context) {
	job, err := h.imports.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Import job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load import job: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job_id":     job.ID,
		"status":     job.Status,
		"total":      job.Total,
		"success":    job.Success,
		"failed":     job.Failed,
		"updated_at": job.UpdatedAt.Format(time.RFC3339),
	})
}
