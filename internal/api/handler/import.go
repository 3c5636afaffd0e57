package handler

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/karimnasr/stockroom/internal/domain"
	"github.com/karimnasr/stockroom/internal/service"
)

// ImportHandler handles import job endpoints.
type ImportHandler struct {
	importService *service.ImportService
	maxUploadMB   int
}

// NewImportHandler creates a new import handler.
// Parameters:
//   - importService: import orchestrator instance.
//   - maxUploadMB: upload size cap in megabytes; 0 uses 20.
// Returns:
//   - *ImportHandler: initialized handler.
func NewImportHandler(importService *service.ImportService, maxUploadMB int) *ImportHandler {
	if maxUploadMB <= 0 {
		maxUploadMB = 20
	}
	return &ImportHandler{
		importService: importService,
		maxUploadMB:   maxUploadMB,
	}
}

// QueueImport handles POST /api/v1/imports/:type.
// Accepts a multipart upload with a "file" part and an optional "store_code"
// field; responds 202 with the queued job, or 409 when another import blocks.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ImportHandler) QueueImport(c *gin.Context) {
	importType := strings.ToLower(c.Param("type"))

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "A file upload named 'file' is required",
		})
		return
	}
	if fileHeader.Size > int64(h.maxUploadMB)*1024*1024 {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": service.ErrFileTooLarge.Error(),
		})
		return
	}
	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if ext != ".csv" && ext != ".xlsx" && ext != ".xlsm" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Unsupported file type, expected .csv or .xlsx",
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Failed to open uploaded file: " + err.Error(),
		})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Failed to read uploaded file: " + err.Error(),
		})
		return
	}

	req := &service.QueueImportRequest{
		FileName:  fileHeader.Filename,
		Data:      data,
		StoreCode: c.PostForm("store_code"),
		UserID:    c.GetHeader("X-User-ID"),
	}

	ctx := c.Request.Context()
	var job *domain.ImportJob
	switch importType {
	case "products":
		job, err = h.importService.QueueProductsImport(ctx, req)
	case "stock":
		job, err = h.importService.QueueStockImport(ctx, req)
	case "sales":
		job, err = h.importService.QueueSalesImport(ctx, req)
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Unknown import type, expected products, stock, or sales",
		})
		return
	}
	if err != nil {
		h.writeQueueError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"job": job.Summary(),
	})
}

func (h *ImportHandler) writeQueueError(c *gin.Context, err error) {
	switch {
	case service.IsBlocked(err):
		c.JSON(http.StatusConflict, gin.H{
			"error": err.Error(),
		})
	case errors.Is(err, service.ErrStoreNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error": err.Error(),
		})
	case errors.Is(err, service.ErrEmptyFile),
		errors.Is(err, service.ErrNoRecords),
		errors.Is(err, service.ErrStoreCodeRequired),
		errors.Is(err, service.ErrNoProducts):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to queue import: " + err.Error(),
		})
	}
}

// GetJob handles GET /api/v1/imports/jobs/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ImportHandler) GetJob(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Job ID is required",
		})
		return
	}

	job, err := h.importService.GetJobStatus(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Import job not found",
		})
		return
	}

	c.JSON(http.StatusOK, job)
}

// ListJobs handles GET /api/v1/imports/jobs.
// Without parameters it returns recent jobs; ?user= narrows to one user,
// ?limit= caps the recent listing.
func (h *ImportHandler) ListJobs(c *gin.Context) {
	ctx := c.Request.Context()

	if userID := c.Query("user"); userID != "" {
		jobs, err := h.importService.GetUserJobs(ctx, userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list jobs: " + err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"jobs": jobs, "total": len(jobs)})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	jobs, err := h.importService.GetRecentJobs(ctx, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "total": len(jobs)})
}

// GetStatus handles GET /api/v1/imports/status.
// Returns the aggregate admission and delete-guard view the imports page
// polls; ?store_code= scopes the sale delete guard.
func (h *ImportHandler) GetStatus(c *gin.Context) {
	status, err := h.importService.GetImportsStatus(c.Request.Context(), c.Query("store_code"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to read imports status: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, status)
}

// CleanupStale handles POST /api/v1/imports/cleanup.
// Administrative trigger for the stale job reaper; the same sweep also runs
// before every admission check.
func (h *ImportHandler) CleanupStale(c *gin.Context) {
	reaped, err := h.importService.Coordinator().CleanupStaleJobs(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to clean up stale jobs: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"reaped": reaped,
	})
}
