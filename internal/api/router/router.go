package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/iBHunt91/FossaWorkV2-sub002/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes.
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "dispenser-automation-service",
		})
	})

	automationHandler := handler.NewAutomationHandler(deps)

	v1 := r.Group("/api/v1")
	{
		jobs := v1.Group("/automation/jobs")
		{
			jobs.POST("", automationHandler.CreateJob)
			jobs.GET("", automationHandler.ListJobs)
			jobs.GET("/:job_id", automationHandler.GetJob)
			jobs.POST("/:job_id/cancel", automationHandler.CancelJob)
		}
	}

	return r
}
