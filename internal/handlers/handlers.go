package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"anysnap/internal/analysis"
	"anysnap/internal/config"
	"anysnap/internal/repository"
)

type HandlerSet struct {
	log         zerolog.Logger
	cfg         *config.AppConfig
	db          *pgxpool.Pool
	cache       *redis.Client
	images      *repository.ImageRepository
	users       *repository.UserRepository
	annotations *repository.AnnotationRepository
	dispatcher  *analysis.Dispatcher
	status      *analysis.StatusTracker
}

func NewHandlerSet(log zerolog.Logger, db *pgxpool.Pool, cache *redis.Client, images *repository.ImageRepository, users *repository.UserRepository, annotations *repository.AnnotationRepository, dispatcher *analysis.Dispatcher, status *analysis.StatusTracker, cfg *config.AppConfig) HandlerSet {
	return HandlerSet{
		log:         log,
		cfg:         cfg,
		db:          db,
		cache:       cache,
		images:      images,
		users:       users,
		annotations: annotations,
		dispatcher:  dispatcher,
		status:      status,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	v1 := router.Group("/v1")
	{
		images := v1.Group("/images")
		images.POST("", h.CreateImage)
		images.GET("/public", h.ListPublicImages)
		images.GET("/recommended", h.ListRecommendedImages)
		images.GET("/:imageId", h.GetImage)
		images.DELETE("/:imageId", h.DeleteImage)
		images.POST("/:imageId/analyze", h.AnalyzeImage)
		images.GET("/:imageId/status", h.AnalysisStatus)
		images.GET("/:imageId/annotations", h.ImageAnnotations)

		users := v1.Group("/users")
		users.GET("/:userId/images", h.ListUserImages)
		users.POST("/:userId/player", h.SetPlayerID)
	}
}
