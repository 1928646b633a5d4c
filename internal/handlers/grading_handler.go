package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sakai-mirror/mneme/internal/services"
)

type GradingHandler struct {
	BaseHandler
	gradingService services.GradingService
}

func NewGradingHandler(gradingService services.GradingService, logger *slog.Logger) *GradingHandler {
	return &GradingHandler{
		BaseHandler:    NewBaseHandler(logger),
		gradingService: gradingService,
	}
}

// EvaluateAnswer records a manual score and comment for one answer
// @Summary Evaluate answer
// @Tags grading
// @Accept json
// @Produce json
// @Param id path uint true "Submission ID"
// @Param question_id path uint true "Question ID"
// @Param evaluation body services.EvaluateAnswerRequest true "Evaluation"
// @Success 200 {object} models.Answer
// @Failure 409 {object} ErrorResponse
// @Router /submissions/{id}/answers/{question_id}/evaluation [put]
func (h *GradingHandler) EvaluateAnswer(c *gin.Context) {
	submissionID := h.parseIDParam(c, "id")
	if submissionID == 0 {
		return
	}
	questionID := h.parseIDParam(c, "question_id")
	if questionID == 0 {
		return
	}
	var req services.EvaluateAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid request payload", Details: err.Error()})
		return
	}
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	answer, err := h.gradingService.EvaluateAnswer(c.Request.Context(), userID, submissionID, questionID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, answer)
}

// GetPendingEvaluation lists answers that still need a manual score.
func (h *GradingHandler) GetPendingEvaluation(c *gin.Context) {
	assessmentID := h.parseIDParam(c, "id")
	if assessmentID == 0 {
		return
	}
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	answers, err := h.gradingService.GetPendingEvaluation(c.Request.Context(), userID, assessmentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, answers)
}

func (h *GradingHandler) GetGradingStats(c *gin.Context) {
	assessmentID := h.parseIDParam(c, "id")
	if assessmentID == 0 {
		return
	}
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	stats, err := h.gradingService.GetGradingStats(c.Request.Context(), userID, assessmentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ReleaseGrades releases every completed submission and reports the
// official score per learner to the gradebook.
func (h *GradingHandler) ReleaseGrades(c *gin.Context) {
	assessmentID := h.parseIDParam(c, "id")
	if assessmentID == 0 {
		return
	}
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	released, err := h.gradingService.Release(c.Request.Context(), userID, assessmentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"released": released})
}

// ReScoreSubmissions re-runs automatic scoring after a question fix.
func (h *GradingHandler) ReScoreSubmissions(c *gin.Context) {
	assessmentID := h.parseIDParam(c, "id")
	if assessmentID == 0 {
		return
	}
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	rescored, err := h.gradingService.ReScore(c.Request.Context(), userID, assessmentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rescored": rescored})
}
