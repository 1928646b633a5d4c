package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sakai-mirror/mneme/internal/services"
	"github.com/sakai-mirror/mneme/internal/storage"
)

const attachmentURLExpiry = 15 * time.Minute

// AttachmentHandler stores and serves submission attachments (essay answer
// uploads, evaluator feedback files). Access follows the submission: whoever
// may see the submission may see its attachments.
type AttachmentHandler struct {
	BaseHandler
	submissionService services.SubmissionService
	store             storage.AttachmentStore
}

func NewAttachmentHandler(submissionService services.SubmissionService, store storage.AttachmentStore, logger *slog.Logger) *AttachmentHandler {
	return &AttachmentHandler{
		BaseHandler:       NewBaseHandler(logger),
		submissionService: submissionService,
		store:             store,
	}
}

// UploadAttachment stores one multipart file and returns its key
// @Summary Upload attachment
// @Tags submissions
// @Accept multipart/form-data
// @Produce json
// @Param id path uint true "Submission ID"
// @Param file formData file true "File to attach"
// @Success 201 {object} map[string]string
// @Router /submissions/{id}/attachments [post]
func (h *AttachmentHandler) UploadAttachment(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	if !h.storageReady(c) {
		return
	}
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	// The submission lookup doubles as the permission check.
	if _, err := h.submissionService.GetByID(c.Request.Context(), userID, id); err != nil {
		h.handleServiceError(c, err)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Missing file field", Details: err.Error()})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Unreadable file", Details: err.Error()})
		return
	}
	defer file.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key, err := h.store.Put(c.Request.Context(), id, fileHeader.Filename, file, fileHeader.Size, contentType)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"key": key})
}

// GetAttachmentURL returns a time-limited download link for an attachment
// key belonging to the submission.
func (h *AttachmentHandler) GetAttachmentURL(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	if !h.storageReady(c) {
		return
	}
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	key := c.Query("key")
	if !strings.HasPrefix(key, fmt.Sprintf("submissions/%d/", id)) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Key does not belong to this submission", Details: key})
		return
	}

	if _, err := h.submissionService.GetByID(c.Request.Context(), userID, id); err != nil {
		h.handleServiceError(c, err)
		return
	}

	url, err := h.store.PresignedURL(c.Request.Context(), key, attachmentURLExpiry)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url, "expires_in": int(attachmentURLExpiry.Seconds())})
}

func (h *AttachmentHandler) storageReady(c *gin.Context) bool {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Message: "Attachment storage is not configured"})
		return false
	}
	return true
}
