package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/swad-platform/examprint-service/internal/services"
	"github.com/swad-platform/examprint-service/internal/utils"
	"github.com/swad-platform/examprint-service/internal/validator"
)

type HandlerManager struct {
	printHandler  *PrintHandler
	exportHandler *ExportHandler
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	validator *validator.Validator,
	logger utils.Logger,
) *HandlerManager {
	return &HandlerManager{
		printHandler:  NewPrintHandler(serviceManager.Print(), validator, logger),
		exportHandler: NewExportHandler(serviceManager.Export(), logger),
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	v1.Use(AuthMiddleware())
	{
		// Session-scoped routes
		sessions := v1.Group("/sessions")
		{
			// Taking an exam
			sessions.POST("/:id/prints", hm.printHandler.OpenPrint)
			sessions.GET("/:id/prints/me", hm.printHandler.GetMyPrint)

			// Staff review surfaces; role enforcement happens at the gateway
			sessions.GET("/:id/prints", hm.printHandler.ListSessionPrints)
			sessions.GET("/:id/export", hm.exportHandler.ExportSessionResults)
		}

		// Print-scoped routes
		prints := v1.Group("/prints")
		{
			prints.GET("/:id", hm.printHandler.GetPrint)
			prints.POST("/:id/answer", hm.printHandler.SubmitAnswer)
			prints.POST("/:id/finish", hm.printHandler.FinishPrint)

			// Cleanup hooks for external account and course lifecycle
			prints.DELETE("/user/:user_id", hm.printHandler.RemoveUserPrints)
			prints.DELETE("/user/:user_id/course/:course_id", hm.printHandler.RemoveUserCoursePrints)
			prints.DELETE("/course/:course_id", hm.printHandler.RemoveCoursePrints)
		}
	}

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "examprint-service",
		})
	})
}
