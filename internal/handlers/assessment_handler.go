package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sakai-mirror/mneme/internal/models"
	"github.com/sakai-mirror/mneme/internal/repositories"
	"github.com/sakai-mirror/mneme/internal/services"
)

type AssessmentHandler struct {
	BaseHandler
	assessmentService services.AssessmentService
	exportService     services.ExportService
}

func NewAssessmentHandler(assessmentService services.AssessmentService, exportService services.ExportService, logger *slog.Logger) *AssessmentHandler {
	return &AssessmentHandler{
		BaseHandler:       NewBaseHandler(logger),
		assessmentService: assessmentService,
		exportService:     exportService,
	}
}

// CreateAssessment creates a new assessment
// @Summary Create assessment
// @Tags assessments
// @Accept json
// @Produce json
// @Param assessment body services.CreateAssessmentRequest true "Assessment data"
// @Success 201 {object} models.Assessment
// @Failure 400 {object} ErrorResponse
// @Router /assessments [post]
func (h *AssessmentHandler) CreateAssessment(c *gin.Context) {
	var req services.CreateAssessmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid request payload", Details: err.Error()})
		return
	}
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	assessment, err := h.assessmentService.Create(c.Request.Context(), userID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, assessment)
}

// GetAssessment retrieves an assessment with its parts
// @Summary Get assessment
// @Tags assessments
// @Produce json
// @Param id path uint true "Assessment ID"
// @Success 200 {object} models.Assessment
// @Router /assessments/{id} [get]
func (h *AssessmentHandler) GetAssessment(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	assessment, err := h.assessmentService.GetByID(c.Request.Context(), userID, id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, assessment)
}

// ListAssessments lists assessments, filterable by context and status.
func (h *AssessmentHandler) ListAssessments(c *gin.Context) {
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	filters := parseAssessmentFilters(c)
	assessments, total, err := h.assessmentService.List(c.Request.Context(), userID, filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, ListResponse{Items: assessments, Total: total})
}

// UpdateAssessment applies a partial update. Structural changes version the
// assessment.
func (h *AssessmentHandler) UpdateAssessment(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	var req services.UpdateAssessmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid request payload", Details: err.Error()})
		return
	}
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	assessment, err := h.assessmentService.Update(c.Request.Context(), userID, id, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, assessment)
}

func (h *AssessmentHandler) DeleteAssessment(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	if err := h.assessmentService.Delete(c.Request.Context(), userID, id); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ===== LIFECYCLE =====

func (h *AssessmentHandler) PublishAssessment(c *gin.Context) {
	h.lifecycle(c, h.assessmentService.Publish)
}

func (h *AssessmentHandler) RetractAssessment(c *gin.Context) {
	h.lifecycle(c, h.assessmentService.Retract)
}

func (h *AssessmentHandler) ArchiveAssessment(c *gin.Context) {
	h.lifecycle(c, h.assessmentService.Archive)
}

func (h *AssessmentHandler) lifecycle(c *gin.Context, op func(ctx context.Context, userID string, id uint) error) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	if err := op(c.Request.Context(), userID, id); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ===== PARTS =====

func (h *AssessmentHandler) AddPart(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	var req services.PartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid request payload", Details: err.Error()})
		return
	}
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	part, err := h.assessmentService.AddPart(c.Request.Context(), userID, id, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, part)
}

func (h *AssessmentHandler) UpdatePart(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	partID := h.parseIDParam(c, "part_id")
	if partID == 0 {
		return
	}
	var req services.PartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid request payload", Details: err.Error()})
		return
	}
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	part, err := h.assessmentService.UpdatePart(c.Request.Context(), userID, id, partID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, part)
}

func (h *AssessmentHandler) DeletePart(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	partID := h.parseIDParam(c, "part_id")
	if partID == 0 {
		return
	}
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	if err := h.assessmentService.DeletePart(c.Request.Context(), userID, id, partID); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type reorderPartsRequest struct {
	PartIDs []uint `json:"part_ids" validate:"required,min=1"`
}

func (h *AssessmentHandler) ReorderParts(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	var req reorderPartsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid request payload", Details: err.Error()})
		return
	}
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	if err := h.assessmentService.ReorderParts(c.Request.Context(), userID, id, req.PartIDs); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetPartQuestions lists a part's questions in authored order, with full
// content including correct answers.
func (h *AssessmentHandler) GetPartQuestions(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	partID := h.parseIDParam(c, "part_id")
	if partID == 0 {
		return
	}
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	questions, err := h.assessmentService.GetPartQuestions(c.Request.Context(), userID, id, partID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, questions)
}

// GetValidity reports per-part composition problems.
func (h *AssessmentHandler) GetValidity(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	validity, err := h.assessmentService.GetValidity(c.Request.Context(), userID, id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, validity)
}

// ===== PREVIEW / STATS / EXPORT =====

// PreviewAssessment shows the composed assessment the way a learner would
// see it, with a stable authoring seed.
func (h *AssessmentHandler) PreviewAssessment(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	preview, err := h.assessmentService.Preview(c.Request.Context(), userID, id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, preview)
}

func (h *AssessmentHandler) GetAssessmentStats(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	stats, err := h.assessmentService.GetStats(c.Request.Context(), userID, id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ExportResults streams the roster spreadsheet.
func (h *AssessmentHandler) ExportResults(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=assessment-%d-results.xlsx", id))
	if err := h.exportService.ExportResults(c.Request.Context(), userID, id, c.Writer); err != nil {
		h.handleServiceError(c, err)
		return
	}
}

// ===== FILTER PARSING =====

func parseAssessmentFilters(c *gin.Context) repositories.AssessmentFilters {
	filters := repositories.AssessmentFilters{
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}
	if context := c.Query("context"); context != "" {
		filters.Context = &context
	}
	if status := c.Query("status"); status != "" {
		s := models.AssessmentStatus(status)
		filters.Status = &s
	}
	if kind := c.Query("type"); kind != "" {
		k := models.AssessmentType(kind)
		filters.Type = &k
	}
	if creator := c.Query("created_by"); creator != "" {
		filters.CreatedBy = &creator
	}
	filters.Limit = parseIntQuery(c, "limit", 20)
	filters.Offset = parseIntQuery(c, "offset", 0)
	return filters
}

func parseIntQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
