package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/theblitlabs/fedsim/internal/api/handlers"
)

func registerRunRoutes(router *gin.RouterGroup, runHandler *handlers.SimulationRunHandler) {
	runs := router.Group("/runs")
	{
		runs.GET("", runHandler.ListRuns)
		runs.GET("/:id", runHandler.GetRun)
		runs.GET("/:id/rounds", runHandler.GetRounds)
		runs.GET("/:id/model", runHandler.GetModel)
	}
}

func RegisterRoutes(api *gin.RouterGroup, runHandler *handlers.SimulationRunHandler) {
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	registerRunRoutes(api, runHandler)
}
