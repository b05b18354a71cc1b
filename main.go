package main

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"hackreg/admission"
	"hackreg/blacklist"
	"hackreg/config"
	"hackreg/middleware"
	"hackreg/questions"
	"hackreg/routes"
	"hackreg/team"
	"hackreg/tokens"
	"hackreg/utils"
	"hackreg/worker"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Environment,
		}); err != nil {
			logger.Fatalf("Failed to initialize Sentry: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	db, err := config.ConnectDB(cfg)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	app := fiber.New()
	app.Use(middleware.CORS())

	mailer := utils.NewMailer(cfg, logger)
	tokenStore := tokens.NewStore(db)
	blacklistStore := blacklist.NewStore(db)
	questionService := questions.NewService(db)
	engine := admission.NewEngine(db, tokenStore, blacklistStore, questionService, mailer, logger)
	formation := team.NewFormation(db, tokenStore, mailer, logger, cfg.BaseURL)

	janitor := worker.NewTokenJanitor(tokenStore, logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go janitor.Start(ctx)

	routes.Setup(app, &routes.Deps{
		DB:        db,
		Config:    cfg,
		JWT:       utils.NewJWT(cfg.JWTSecret),
		Tokens:    tokenStore,
		Blacklist: blacklistStore,
		Questions: questionService,
		Engine:    engine,
		Formation: formation,
		Logger:    logger,
	})

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "running",
			"version": "1.0.0",
		})
	})

	logger.Infof("🚀 Server starting on port %s", cfg.ServerPort)
	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
