package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/ZanzyTHEbar/rx-fraud-scorer/internal/errors"
	"github.com/ZanzyTHEbar/rx-fraud-scorer/internal/monitoring"
)

func setupRouter(a *app) *gin.Engine {
	r := gin.New()

	// monitoring first so it sees every request
	r.Use(monitoring.MonitoringMiddleware(a.metrics, a.logger))
	r.Use(monitoring.SecurityMonitoringMiddleware(a.logger))

	r.Use(errors.ErrorHandler())
	r.Use(errors.RecoveryHandler())

	r.Use(a.security.CORSConfig())
	r.Use(a.security.SecurityHeaders())
	r.Use(a.security.RequestTimeout)
	r.Use(a.security.ValidateContentType)
	r.Use(a.compression.Handler())

	r.GET("/", a.handleRoot)
	r.GET("/health", a.handleHealth)
	r.GET("/metrics", gin.WrapH(a.metrics.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group("")
	if a.limiter != nil {
		api.Use(a.limiter.IPRateLimitMiddleware(a.metrics))
	}

	api.POST("/predict", a.handlePredict)
	api.GET("/predict/history", a.handleHistory)

	api.POST("/auth/login", a.handleLogin)

	user := api.Group("/user")
	user.Use(a.auth.OptionalSession())
	user.GET("/me", a.handleMe)

	return r
}
