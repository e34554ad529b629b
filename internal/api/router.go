package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vigilant-eye/facewatch/internal/api/handlers"
	"github.com/vigilant-eye/facewatch/internal/api/ws"
	"github.com/vigilant-eye/facewatch/internal/auth"
)

// Images is the object store surface the API needs.
type Images interface {
	handlers.ObjectStore
	handlers.ObjectOpener
}

// Store is the relational store surface the API needs.
type Store interface {
	handlers.CitizenStore
	handlers.EventReader
}

type RouterConfig struct {
	APIKeys        map[string]string
	MaxUploadBytes int64
	DB             Store
	Images         Images
	Detector       handlers.Detector     // nil answers /v1/detect with 503
	Jobs           handlers.JobPublisher // nil disables /v1/detect/async
	Reporter       handlers.Reporter
	Hub            *ws.Hub
	Checks         map[string]handlers.CheckFunc
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.New(corsConfig()))

	if cfg.MaxUploadBytes > 0 {
		r.MaxMultipartMemory = cfg.MaxUploadBytes
	}

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.Checks)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKeys))

	if cfg.Hub != nil {
		v1.GET("/ws", cfg.Hub.HandleWS)
	}

	// Citizens
	citizenH := handlers.NewCitizenHandler(cfg.DB, cfg.Images, cfg.MaxUploadBytes)
	v1.GET("/citizens", citizenH.List)
	v1.POST("/citizens", citizenH.Create)
	v1.GET("/citizens/:id", citizenH.Get)
	v1.POST("/citizens/:id/status/:action", citizenH.UpdateStatus)

	// Detection
	detectH := handlers.NewDetectHandler(cfg.Detector, cfg.Images, cfg.Jobs, cfg.MaxUploadBytes)
	v1.POST("/detect", detectH.Detect)
	v1.POST("/detect/async", detectH.DetectAsync)

	detectionH := handlers.NewDetectionHandler(cfg.DB)
	v1.GET("/detections", detectionH.List)
	v1.GET("/detections/:id", detectionH.Get)

	// Images
	imageH := handlers.NewImageHandler(cfg.Images)
	v1.GET("/images/*key", imageH.Get)

	// Reporting
	statsH := handlers.NewStatsHandler(cfg.Reporter)
	v1.GET("/statistics", statsH.Statistics)
	v1.GET("/alerts", statsH.Alerts)

	return r
}

func corsConfig() cors.Config {
	c := cors.DefaultConfig()
	c.AllowAllOrigins = true
	c.AllowHeaders = append(c.AllowHeaders, "X-API-Key", requestIDHeader)
	c.ExposeHeaders = append(c.ExposeHeaders, requestIDHeader)
	return c
}
