package handlers

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the widget page, its API and assets on r
func RegisterRoutes(r *gin.Engine, widget *WidgetHandler, assets *AssetHandler) {
	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})

	// Widget page
	r.GET("/", widget.Index)
	r.POST("/file", widget.ChooseFile)
	r.POST("/submit", widget.Submit)
	r.POST("/more", widget.ShowMore)

	// Assets
	r.GET("/service-worker.js", assets.ServiceWorker)
	r.StaticFS("/static", assets.Static())

	// API routes
	api := r.Group("/api")
	{
		api.GET("/view", widget.View)
		api.GET("/submissions", widget.Submissions)
		api.POST("/sw/registration", assets.ReportRegistration)
	}
}
