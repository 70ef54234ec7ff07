// internal/router/router.go
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/exportready/backend/internal/config"
	"github.com/exportready/backend/internal/handlers"
	"github.com/exportready/backend/internal/middleware"
	"github.com/exportready/backend/internal/services"
	"github.com/exportready/backend/internal/utils"
)

func Initialize(db *gorm.DB, cfg *config.Config) *gin.Engine {
	// Initialize services
	aiClient := services.NewKolosalClient(cfg.AI)
	judgmentClient := services.NewJudgmentClient(aiClient)
	evaluator := services.NewComplianceEvaluator(judgmentClient, cfg.Analysis.FallbackScoreFloor)
	recommender := services.NewRecommendationService(aiClient)
	regulationService := services.NewRegulationService(db)
	guideService := services.NewGuideService(db, aiClient)

	analysisService := services.NewAnalysisService(db, evaluator, recommender, regulationService, guideService, cfg.Analysis)

	// Initialize handlers
	analysisHandler := handlers.NewAnalysisHandler(analysisService)
	countryHandler := handlers.NewCountryHandler(regulationService)

	// Set JWT secret
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	// Initialize Gin router
	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.I18nMiddleware())
	r.Use(middleware.GeneralRateLimit())
	r.Use(middleware.AuditLogMiddleware(db))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Country routes
		countries := v1.Group("/countries")
		{
			countries.GET("", middleware.OptionalAuth(), countryHandler.GetCountries)
			countries.GET("/:code", middleware.OptionalAuth(), countryHandler.GetCountry)
			countries.GET("/:code/regulations", middleware.OptionalAuth(), countryHandler.GetCountryRegulations)
		}

		// Analysis routes
		analyses := v1.Group("/analyses")
		analyses.Use(middleware.AuthRequired())
		{
			analyses.GET("", analysisHandler.ListAnalyses)
			analyses.POST("", middleware.AnalysisRateLimit(), analysisHandler.CreateAnalysis)
			analyses.POST("/compare", middleware.AnalysisRateLimit(), analysisHandler.CompareAnalyses)
			analyses.GET("/:id", analysisHandler.GetAnalysis)
			analyses.POST("/:id/reanalyze", middleware.AnalysisRateLimit(), analysisHandler.ReanalyzeAnalysis)
			analyses.DELETE("/:id", analysisHandler.DeleteAnalysis)
			analyses.GET("/:id/guide", analysisHandler.GetRegulationGuide)
		}
	}

	return r
}
