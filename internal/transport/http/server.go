package http

import (
	"github.com/gin-gonic/gin"

	"transcript-assistant/internal/bootstrap"
	"transcript-assistant/internal/logger"
	"transcript-assistant/internal/transport/http/handler"
	"transcript-assistant/internal/transport/http/middleware"
)

// Deps are the collaborators the routes are built from.
type Deps struct {
	Log         *logger.Logger
	GinMode     string
	JWTSecret   string
	Auth        handler.AuthAPI
	Transcripts handler.TranscriptAPI
	Search      handler.SearchAPI
	Chat        handler.ChatAPI
	Health      *handler.HealthHandler
}

func NewRouter(app *bootstrap.App) *gin.Engine {
	cfg := app.Config
	return NewEngine(Deps{
		Log:         app.Log.With("component", "http"),
		GinMode:     cfg.App.GinMode,
		JWTSecret:   cfg.Auth.JWTSecret,
		Auth:        app.Services.Auth,
		Transcripts: app.Services.Transcripts,
		Search:      app.Services.Search,
		Chat:        app.Services.Chat,
		Health:      handler.NewHealthHandler(cfg.App.Name, cfg.App.Env, app.StartedAt, app.HealthChecks()),
	})
}

func NewEngine(deps Deps) *gin.Engine {
	if deps.GinMode != "" {
		gin.SetMode(deps.GinMode)
	}
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}

	router := gin.New()
	router.Use(middleware.RequestID(), middleware.AccessLog(log), middleware.Recovery(log))

	if deps.Health != nil {
		router.GET("/healthz", deps.Health.Check)
	}

	authJWT := middleware.AuthJWT(deps.JWTSecret)
	authHandler := handler.NewAuthHandler(deps.Auth)
	transcriptHandler := handler.NewTranscriptHandler(deps.Transcripts)
	searchHandler := handler.NewSearchHandler(deps.Search)
	chatHandler := handler.NewChatHandler(deps.Chat)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", authJWT, authHandler.Me)

	transcripts := v1.Group("/transcripts", authJWT)
	transcripts.POST("", transcriptHandler.Create)
	transcripts.GET("", transcriptHandler.List)
	transcripts.POST("/upload", transcriptHandler.Upload)
	transcripts.POST("/tag", transcriptHandler.Tag)
	transcripts.GET("/:id", transcriptHandler.Get)
	transcripts.DELETE("/:id", transcriptHandler.Delete)
	transcripts.GET("/:id/chunks", transcriptHandler.Chunks)
	transcripts.POST("/:id/rechunk", transcriptHandler.Rechunk)

	v1.GET("/sources", searchHandler.Sources)
	v1.POST("/classify", searchHandler.Classify)
	v1.POST("/search", authJWT, searchHandler.Search)
	v1.POST("/chunks/:id/feedback", authJWT, searchHandler.Feedback)

	chatGroup := v1.Group("/chat", authJWT)
	chatGroup.POST("/conversations", chatHandler.CreateConversation)
	chatGroup.GET("/conversations", chatHandler.ListConversations)
	chatGroup.DELETE("/conversations/:id", chatHandler.DeleteConversation)
	chatGroup.POST("/messages", chatHandler.SendMessage)
	chatGroup.POST("/messages/stream", chatHandler.StreamMessage)
	chatGroup.GET("/history", chatHandler.GetHistory)

	return router
}
