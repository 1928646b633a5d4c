package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sakai-mirror/mneme/internal/models"
	"github.com/sakai-mirror/mneme/internal/repositories"
	"github.com/sakai-mirror/mneme/internal/services"
)

type SubmissionHandler struct {
	BaseHandler
	submissionService services.SubmissionService
}

func NewSubmissionHandler(submissionService services.SubmissionService, logger *slog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		BaseHandler:       NewBaseHandler(logger),
		submissionService: submissionService,
	}
}

// BeginSubmission starts or resumes a delivery session
// @Summary Begin submission
// @Tags submissions
// @Produce json
// @Param id path uint true "Assessment ID"
// @Success 201 {object} models.Submission
// @Failure 422 {object} ErrorResponse
// @Router /assessments/{id}/submissions [post]
func (h *SubmissionHandler) BeginSubmission(c *gin.Context) {
	assessmentID := h.parseIDParam(c, "id")
	if assessmentID == 0 {
		return
	}
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	submission, err := h.submissionService.Begin(c.Request.Context(), userID, assessmentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, submission)
}

func (h *SubmissionHandler) GetSubmission(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	submission, err := h.submissionService.GetByID(c.Request.Context(), userID, id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, submission)
}

// GetSubmissionQuestions returns the composed question set bound to the
// submission. The order and selection never change between calls.
func (h *SubmissionHandler) GetSubmissionQuestions(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	questions, err := h.submissionService.GetQuestions(c.Request.Context(), userID, id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, questions)
}

// SaveAnswer upserts a single answer while the submission is open
// @Summary Save answer
// @Tags submissions
// @Accept json
// @Produce json
// @Param id path uint true "Submission ID"
// @Param answer body services.SaveAnswerRequest true "Answer data"
// @Success 200 {object} models.Answer
// @Failure 409 {object} ErrorResponse
// @Router /submissions/{id}/answers [put]
func (h *SubmissionHandler) SaveAnswer(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	var req services.SaveAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid request payload", Details: err.Error()})
		return
	}
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	answer, err := h.submissionService.SaveAnswer(c.Request.Context(), userID, id, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, answer)
}

// CompleteSubmission finalizes the session and triggers automatic scoring.
func (h *SubmissionHandler) CompleteSubmission(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	submission, err := h.submissionService.Complete(c.Request.Context(), userID, id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, submission)
}

// ReviewSubmission shows a finished submission with whatever detail the
// assessment's review policy allows the caller.
func (h *SubmissionHandler) ReviewSubmission(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	review, err := h.submissionService.Review(c.Request.Context(), userID, id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, review)
}

// ListSubmissions lists an assessment's submissions for evaluators.
func (h *SubmissionHandler) ListSubmissions(c *gin.Context) {
	assessmentID := h.parseIDParam(c, "id")
	if assessmentID == 0 {
		return
	}
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	filters := parseSubmissionFilters(c)
	submissions, total, err := h.submissionService.ListByAssessment(c.Request.Context(), userID, assessmentID, filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, ListResponse{Items: submissions, Total: total})
}

// ListMySubmissions lists the caller's own submissions to an assessment.
func (h *SubmissionHandler) ListMySubmissions(c *gin.Context) {
	assessmentID := h.parseIDParam(c, "id")
	if assessmentID == 0 {
		return
	}
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	submissions, err := h.submissionService.ListMine(c.Request.Context(), userID, assessmentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, submissions)
}

func parseSubmissionFilters(c *gin.Context) repositories.SubmissionFilters {
	filters := repositories.SubmissionFilters{
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}
	if status := c.Query("status"); status != "" {
		s := models.SubmissionStatus(status)
		filters.Status = &s
	}
	if user := c.Query("user_id"); user != "" {
		filters.UserID = &user
	}
	if graded := c.Query("is_graded"); graded != "" {
		v := graded == "true"
		filters.IsGraded = &v
	}
	filters.Limit = parseIntQuery(c, "limit", 20)
	filters.Offset = parseIntQuery(c, "offset", 0)
	return filters
}
