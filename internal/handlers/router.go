package handlers

import (
	"net/http"

	"github.com/SAP-F-2025/certification-service/internal/services"
	"github.com/SAP-F-2025/certification-service/internal/utils"
	"github.com/gin-gonic/gin"
)

type HandlerManager struct {
	proctoringHandler  *ProctoringHandler
	examHandler        *ExamHandler
	certificateHandler *CertificateHandler
	logger             utils.Logger
}

func NewHandlerManager(serviceManager services.ServiceManager, logger utils.Logger) *HandlerManager {
	return &HandlerManager{
		proctoringHandler:  NewProctoringHandler(serviceManager.Sessions(), logger),
		examHandler:        NewExamHandler(serviceManager.Exams(), logger),
		certificateHandler: NewCertificateHandler(serviceManager.Certificates(), logger),
		logger:             logger,
	}
}

// NewRouter builds a gin engine with logging and recovery middleware and all routes.
func (hm *HandlerManager) NewRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), utils.ContextLogger(hm.logger), utils.LoggerMiddleware(hm.logger))
	hm.SetupRoutes(router)
	return router
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	router.GET("/health", HealthCheck)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", HealthCheck)

		proctoring := v1.Group("/proctoring", RequireUser())
		{
			proctoring.POST("/sessions", hm.proctoringHandler.StartSession)
			proctoring.POST("/events", hm.proctoringHandler.RecordEvent)
			proctoring.GET("/sessions/:id/analysis", hm.proctoringHandler.AnalyzeSession)
		}

		exams := v1.Group("/exams", RequireUser())
		{
			exams.POST("/submit", hm.examHandler.SubmitExam)
		}

		// Verification is public.
		certificates := v1.Group("/certificates")
		{
			certificates.GET("/verify/:number", hm.certificateHandler.VerifyCertificate)
		}
	}
}

func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "certification-service",
	})
}
