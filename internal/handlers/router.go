package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sakai-mirror/mneme/internal/config"
	"github.com/sakai-mirror/mneme/internal/models"
	"github.com/sakai-mirror/mneme/internal/repositories"
	"github.com/sakai-mirror/mneme/internal/services"
	"github.com/sakai-mirror/mneme/internal/storage"
)

type HandlerManager struct {
	assessmentHandler *AssessmentHandler
	poolHandler       *PoolHandler
	questionHandler   *QuestionHandler
	submissionHandler *SubmissionHandler
	gradingHandler    *GradingHandler
	attachmentHandler *AttachmentHandler
	userHandler       *UserHandler
	authMiddleware    *CasdoorAuthMiddleware
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	logger *slog.Logger,
	casdoorConfig config.CasdoorConfig,
	userRepo repositories.UserRepository,
	store storage.AttachmentStore,
) *HandlerManager {
	return &HandlerManager{
		assessmentHandler: NewAssessmentHandler(serviceManager.Assessment(), serviceManager.Export(), logger),
		poolHandler:       NewPoolHandler(serviceManager.Pool(), logger),
		questionHandler:   NewQuestionHandler(serviceManager.Question(), logger),
		submissionHandler: NewSubmissionHandler(serviceManager.Submission(), logger),
		gradingHandler:    NewGradingHandler(serviceManager.Grading(), logger),
		attachmentHandler: NewAttachmentHandler(serviceManager.Submission(), store, logger),
		userHandler:       NewUserHandler(userRepo, logger),
		authMiddleware:    NewCasdoorAuthMiddleware(casdoorConfig, userRepo),
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	v1.Use(hm.authMiddleware.AuthMiddleware())

	author := hm.authMiddleware.RequireRoleMiddleware(models.RoleInstructor, models.RoleAdmin)

	v1.GET("/me", hm.userHandler.GetCurrentUser)

	{
		assessments := v1.Group("/assessments")

		// Authoring - instructors and admins only
		assessments.POST("", author, hm.assessmentHandler.CreateAssessment)
		assessments.PUT("/:id", author, hm.assessmentHandler.UpdateAssessment)
		assessments.DELETE("/:id", author, hm.assessmentHandler.DeleteAssessment)
		assessments.POST("/:id/publish", author, hm.assessmentHandler.PublishAssessment)
		assessments.POST("/:id/retract", author, hm.assessmentHandler.RetractAssessment)
		assessments.POST("/:id/archive", author, hm.assessmentHandler.ArchiveAssessment)

		// Part composition - instructors and admins only
		assessments.POST("/:id/parts", author, hm.assessmentHandler.AddPart)
		assessments.PUT("/:id/parts", author, hm.assessmentHandler.ReorderParts)
		assessments.PUT("/:id/parts/:part_id", author, hm.assessmentHandler.UpdatePart)
		assessments.DELETE("/:id/parts/:part_id", author, hm.assessmentHandler.DeletePart)
		assessments.GET("/:id/parts/:part_id/questions", author, hm.assessmentHandler.GetPartQuestions)
		assessments.GET("/:id/validity", author, hm.assessmentHandler.GetValidity)

		// Viewing - all authenticated users; the service narrows further
		assessments.GET("", hm.assessmentHandler.ListAssessments)
		assessments.GET("/:id", hm.assessmentHandler.GetAssessment)

		assessments.GET("/:id/preview", author, hm.assessmentHandler.PreviewAssessment)
		assessments.GET("/:id/stats", author, hm.assessmentHandler.GetAssessmentStats)
		assessments.GET("/:id/export", author, hm.assessmentHandler.ExportResults)

		// Delivery
		assessments.POST("/:id/submissions", hm.submissionHandler.BeginSubmission)
		assessments.GET("/:id/submissions", author, hm.submissionHandler.ListSubmissions)
		assessments.GET("/:id/submissions/mine", hm.submissionHandler.ListMySubmissions)

		// Grading - instructors and admins only
		assessments.GET("/:id/grading/pending", author, hm.gradingHandler.GetPendingEvaluation)
		assessments.GET("/:id/grading/stats", author, hm.gradingHandler.GetGradingStats)
		assessments.POST("/:id/grading/release", author, hm.gradingHandler.ReleaseGrades)
		assessments.POST("/:id/grading/rescore", author, hm.gradingHandler.ReScoreSubmissions)
	}

	{
		submissions := v1.Group("/submissions")

		submissions.GET("/:id", hm.submissionHandler.GetSubmission)
		submissions.GET("/:id/questions", hm.submissionHandler.GetSubmissionQuestions)
		submissions.PUT("/:id/answers", hm.submissionHandler.SaveAnswer)
		submissions.POST("/:id/complete", hm.submissionHandler.CompleteSubmission)
		submissions.GET("/:id/review", hm.submissionHandler.ReviewSubmission)

		submissions.POST("/:id/attachments", hm.attachmentHandler.UploadAttachment)
		submissions.GET("/:id/attachments/url", hm.attachmentHandler.GetAttachmentURL)

		submissions.PUT("/:id/answers/:question_id/evaluation", author, hm.gradingHandler.EvaluateAnswer)
	}

	{
		pools := v1.Group("/pools")

		pools.POST("", author, hm.poolHandler.CreatePool)
		pools.PUT("/:id", author, hm.poolHandler.UpdatePool)
		pools.DELETE("/:id", author, hm.poolHandler.DeletePool)

		pools.GET("", author, hm.poolHandler.ListPools)
		pools.GET("/:id", author, hm.poolHandler.GetPool)
		pools.GET("/:id/stats", author, hm.poolHandler.GetPoolStats)
	}

	{
		questions := v1.Group("/questions")

		questions.POST("", author, hm.questionHandler.CreateQuestion)
		questions.PUT("/:id", author, hm.questionHandler.UpdateQuestion)
		questions.DELETE("/:id", author, hm.questionHandler.DeleteQuestion)
		questions.POST("/:id/copy", author, hm.questionHandler.CopyQuestion)

		questions.GET("", author, hm.questionHandler.ListQuestions)
		questions.GET("/:id", author, hm.questionHandler.GetQuestion)
	}

	{
		users := v1.Group("/users")

		users.GET("", author, hm.userHandler.ListUsers)
		users.GET("/:id", author, hm.userHandler.GetUser)
	}
}
