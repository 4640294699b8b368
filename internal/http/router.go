package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/fibredesk/backend/internal/config"
	"github.com/fibredesk/backend/internal/db"
	"github.com/fibredesk/backend/internal/geocode"
	"github.com/fibredesk/backend/internal/http/handlers"
	"github.com/fibredesk/backend/internal/http/middleware"
	"github.com/fibredesk/backend/internal/planning"

	_ "github.com/fibredesk/backend/docs"
)

func Router(cfg config.Config, store *db.Store, engine *planning.Engine, geocoder geocode.Geocoder, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Admin-Key", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = []string{cfg.CORSAllowed}
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Store:          store,
		Engine:         engine,
		Geocoder:       geocoder,
		Validator:      validator.New(),
		Logger:         logger,
		CountryDefault: cfg.CountryDefault,
	}

	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")
	{
		api.GET("/interventions", h.InterventionsList)
		api.GET("/interventions/:id", h.InterventionDetails)
		api.GET("/interventions/:id/history", h.InterventionHistory)
		api.GET("/technicians", h.TechniciansList)
		api.GET("/notifications", h.NotificationsList)
		api.GET("/reports/sla", h.SLAReport)
		api.GET("/dashboard/stats", h.DashboardStats)
	}

	admin := api.Group("")
	admin.Use(middleware.AdminKey(cfg.AdminKey))
	{
		admin.POST("/interventions", h.CreateIntervention)
		admin.POST("/interventions/:id/assign", h.Assign)
		admin.POST("/interventions/:id/replan", h.Replan)
		admin.POST("/interventions/:id/manual-assign", h.ManualAssign)
		admin.POST("/interventions/:id/cancel", h.CancelIntervention)
		admin.POST("/interventions/:id/start", h.StartIntervention)
		admin.POST("/interventions/:id/complete", h.CompleteIntervention)
		admin.POST("/interventions/:id/justify-delay", h.JustifyDelay)
		admin.PATCH("/technicians/:id/location", h.UpdateTechnicianGPS)
		admin.POST("/notifications/:id/read", h.MarkNotificationRead)
		admin.POST("/sla/check", h.CheckSLA)
		admin.GET("/debug/eligibility", h.DebugEligibility)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
