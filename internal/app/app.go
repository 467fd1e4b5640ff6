package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/temcen/livelab/internal/config"
	"github.com/temcen/livelab/internal/database"
	"github.com/temcen/livelab/internal/handlers"
	"github.com/temcen/livelab/internal/middleware"
	"github.com/temcen/livelab/internal/services"
)

type App struct {
	config   *config.Config
	logger   *logrus.Logger
	db       *database.Database
	services *services.Services
	handlers *handlers.Handlers
	router   *gin.Engine
}

func New(cfg *config.Config) (*App, error) {
	app := &App{
		config: cfg,
		logger: SetupLogger(cfg),
	}

	db, err := database.New(cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	svcs, err := services.New(cfg, app.logger, db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.services = svcs

	app.handlers, err = handlers.New(cfg, app.logger, svcs)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	app.setupRouter()

	return app, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down application...")

	if err := a.services.MessageBus.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing message bus")
	}
	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing database connections")
		return err
	}
	return nil
}

// SetupLogger builds the process-wide logger from config. Shared with the
// batch binaries.
func SetupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

func (a *App) setupRouter() {
	if a.config.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(middleware.Logger(a.logger))
	router.Use(middleware.Recovery(a.logger))
	router.Use(middleware.CORS(a.config))

	router.GET("/health", a.handlers.Health.Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Trace-bearing email callbacks carry their own authentication.
	mailCallbacks := router.Group("/mail")
	{
		mailCallbacks.GET("/read/:userID/:articleID/:trace", a.handlers.Callback.Read)
		mailCallbacks.GET("/save/:userID/:articleID/:trace", a.handlers.Callback.Save)
		mailCallbacks.GET("/unsubscribe/:trace", a.handlers.Callback.Unsubscribe)
	}

	api := router.Group("/api/v1")
	{
		// Surfaces for external recommender systems, behind the system key.
		systemAPI := api.Group("")
		systemAPI.Use(middleware.SystemAuth(a.services.Ledger, a.logger))
		systemAPI.Use(middleware.RateLimit(a.services.RateLimit, a.logger))
		{
			recommendations := systemAPI.Group("/recommendations")
			{
				recommendations.POST("/articles", a.handlers.Recommendation.SubmitArticles)
				recommendations.POST("/topics", a.handlers.Recommendation.SubmitTopics)
			}

			systemAPI.GET("/users", a.handlers.Data.Users)
			systemAPI.GET("/user_info", a.handlers.Data.UserInfo)
			systemAPI.GET("/articles", a.handlers.Data.Articles)
			systemAPI.GET("/article_data", a.handlers.Data.ArticleData)
			systemAPI.GET("/user_feedback/articles", a.handlers.Data.UserFeedback)

			evaluation := systemAPI.Group("/evaluation")
			{
				evaluation.GET("/rewards", a.handlers.Evaluation.Rewards)
				evaluation.GET("/outcomes", a.handlers.Evaluation.Outcomes)
			}
		}

		// Surfaces for the web UI collaborator (same deployment, no system key).
		feedback := api.Group("/feedback")
		{
			feedback.POST("/clicks", a.handlers.Feedback.RecordClick)
			feedback.POST("/seen", a.handlers.Feedback.RecordSeen)
			feedback.PUT("/saved", a.handlers.Feedback.RecordSaved)
		}

		topics := api.Group("/topics")
		{
			topics.GET("/suggestions", a.handlers.Feedback.SuggestTopics)
			topics.POST("/state", a.handlers.Feedback.SetTopicState)
		}
	}

	a.router = router
}
