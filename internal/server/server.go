package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/celiboy93/supaimage/internal/config"
	"github.com/celiboy93/supaimage/internal/handler"
	"github.com/celiboy93/supaimage/internal/repository"
	"github.com/celiboy93/supaimage/internal/service"
	"github.com/celiboy93/supaimage/internal/telegram"
)

type Server struct {
	httpServer *http.Server
	store      *repository.SQLiteStore
	cfg        *config.Config
	log        *zap.Logger
}

func New(cfg *config.Config, log *zap.Logger) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Content-Length", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	router.LoadHTMLGlob("web/templates/*")

	store, err := repository.NewSQLiteStore(cfg.App.SQLitePath, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite store: %w", err)
	}

	storage, err := repository.NewS3Storage(&cfg.S3, log)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create S3 storage: %w", err)
	}

	bot := telegram.NewClient(&cfg.Telegram, log)

	uploadService := service.NewUploadService(storage, store, cfg, log)
	draftService := service.NewDraftService(store, bot, cfg, log)

	h := handler.NewHandler(uploadService, draftService, cfg, log)

	router.GET("/health", h.HealthCheck)
	router.POST("/upload", h.UploadImage)
	router.GET("/proxy", h.ProxyImage)

	draft := router.Group("/draft")
	{
		draft.POST("/save", h.SaveDraft)
		draft.GET("/list", h.ListDrafts)
		draft.POST("/delete", h.DeleteDraft)
		draft.POST("/send", h.SendDraft)
		draft.POST("/send-all", h.SendAllDrafts)
	}

	history := router.Group("/history")
	{
		history.GET("/list", h.ListHistory)
		history.POST("/delete", h.DeleteHistory)
	}

	// Everything else renders the admin page.
	router.NoRoute(h.GetUI)

	server := &Server{
		httpServer: &http.Server{
			Addr:           cfg.Server.Host + ":" + cfg.Server.Port,
			Handler:        router,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			MaxHeaderBytes: 1 << 20, // 1 MB
		},
		store: store,
		cfg:   cfg,
		log:   log,
	}

	log.Info("Server created successfully",
		zap.String("host", cfg.Server.Host),
		zap.String("port", cfg.Server.Port))

	return server, nil
}

func (s *Server) Run() error {
	s.log.Info("Server is running",
		zap.String("address", s.httpServer.Addr))

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down server")

	err := s.httpServer.Shutdown(ctx)
	if closeErr := s.store.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
