package http

import (
	"github.com/gin-gonic/gin"

	"ragdoll/internal/bootstrap"
	"ragdoll/internal/transport/http/handler"
	"ragdoll/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(middleware.RequestLog(), gin.Recovery())
	router.MaxMultipartMemory = app.Config.MaxUploadBytes()

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/health", healthHandler.Live)
	router.GET("/healthz", healthHandler.Check)

	docHandler := handler.NewDocQAHandler(app.Service, app.Config.MaxUploadBytes())
	router.POST("/upload", docHandler.Upload)
	router.POST("/query", docHandler.Query)
	router.GET("/status", docHandler.Status)
	router.DELETE("/clear", docHandler.Clear)

	return router
}
