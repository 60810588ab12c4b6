package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/draftforge/draftforge-backend/internal/data/db"
	"github.com/draftforge/draftforge-backend/internal/data/repos"
	"github.com/draftforge/draftforge-backend/internal/email"
	"github.com/draftforge/draftforge-backend/internal/handlers"
	"github.com/draftforge/draftforge-backend/internal/observability"
	"github.com/draftforge/draftforge-backend/internal/pipeline/cache"
	"github.com/draftforge/draftforge-backend/internal/pipeline/graph"
	"github.com/draftforge/draftforge-backend/internal/pipeline/ratelimit"
	"github.com/draftforge/draftforge-backend/internal/pipeline/steps"
	"github.com/draftforge/draftforge-backend/internal/platform/gemini"
	"github.com/draftforge/draftforge-backend/internal/platform/logger"
	"github.com/draftforge/draftforge-backend/internal/server"
	"github.com/draftforge/draftforge-backend/internal/utils"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file loaded:", err)
	}

	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	observability.Init()

	// Database
	dbService, err := db.NewService(log)
	if err != nil {
		log.Fatal("Database init failed", "error", err.Error())
	}
	if err := db.AutoMigrateAll(dbService.DB()); err != nil {
		log.Fatal("Auto migration failed", "error", err.Error())
	}
	handle := dbService.DB()

	// Repos
	templateRepo := repos.NewEmailTemplateRepo(handle, log)
	prospectRepo := repos.NewProspectRepo(handle, log)
	linkRepo := repos.NewContentLinkRepo(handle, log)
	sendLogRepo := repos.NewEmailSendLogRepo(handle, log)

	// Generation client
	client, err := gemini.NewClient(log)
	if err != nil {
		log.Warn("Generation client not configured, calls will surface the error", "error", err.Error())
		client = gemini.Disabled(err)
	}

	// Rate limiter, shared across processes when redis is configured
	limit := utils.GetEnvAsInt("GEN_RATE_LIMIT", 30, log)
	windowSec := utils.GetEnvAsInt("GEN_RATE_WINDOW_SECONDS", 60, log)
	var limiter ratelimit.Limiter = ratelimit.NewWindow(limit, time.Duration(windowSec)*time.Second)
	if strings.TrimSpace(os.Getenv("REDIS_ADDR")) != "" {
		if rw, err := ratelimit.NewRedisWindow(log, limit, time.Duration(windowSec)*time.Second); err != nil {
			log.Warn("Redis rate window unavailable, using in-process window", "error", err.Error())
		} else {
			limiter = rw
		}
	}

	deps := steps.Deps{
		Log:     log,
		Client:  client,
		Cache:   cache.NewStore(),
		Limiter: limiter,
		Model:   utils.GetEnv("GEMINI_MODEL", "gemini-2.0-flash", log),
	}

	// Email orchestrator
	emailEnabled := utils.GetEnvAsBool("EMAIL_AI_ENABLED", true, log)
	emailService, err := email.NewService(log, client, limiter, templateRepo, emailEnabled)
	if err != nil {
		log.Fatal("Email service init failed", "error", err.Error())
	}

	// HTTP surface
	router := server.NewRouter(server.RouterConfig{
		PipelineHandler: handlers.NewPipelineHandler(log, deps, graph.NewRegistry()),
		EmailHandler:    handlers.NewEmailHandler(log, emailService, prospectRepo, linkRepo, sendLogRepo),
	})

	port := utils.GetEnv("PORT", "8080", log)
	log.Info("Server starting", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Server stopped", "error", err.Error())
	}
}
