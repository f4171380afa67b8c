package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/Ananth-NQI/chatdesk-backend/database"
	"github.com/Ananth-NQI/chatdesk-backend/internal/ai"
	"github.com/Ananth-NQI/chatdesk-backend/internal/catalog"
	"github.com/Ananth-NQI/chatdesk-backend/internal/config"
	"github.com/Ananth-NQI/chatdesk-backend/internal/handlers"
	"github.com/Ananth-NQI/chatdesk-backend/internal/intent"
	"github.com/Ananth-NQI/chatdesk-backend/internal/jobs"
	"github.com/Ananth-NQI/chatdesk-backend/internal/logger"
	"github.com/Ananth-NQI/chatdesk-backend/internal/metrics"
	"github.com/Ananth-NQI/chatdesk-backend/internal/middleware"
	"github.com/Ananth-NQI/chatdesk-backend/internal/routes"
	"github.com/Ananth-NQI/chatdesk-backend/internal/services"
	"github.com/Ananth-NQI/chatdesk-backend/internal/sheets"
	"github.com/Ananth-NQI/chatdesk-backend/internal/storage"
)

const version = "1.0.0"

func main() {
	exitFn(run(os.Args, os.Stdout, os.Stderr))
}

var exitFn = os.Exit

func run(args []string, stdout, stderr io.Writer) int {
	config.LoadDotEnv()

	cmd := "serve"
	if len(args) > 1 {
		cmd = args[1]
		args = args[2:]
	} else {
		args = nil
	}

	switch cmd {
	case "serve":
		if err := serve(); err != nil {
			fmt.Fprintln(stderr, "chatdesk:", err)
			return 1
		}
		return 0
	case "issue-token":
		return issueToken(args, stdout, stderr)
	default:
		usage(stderr)
		return 2
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: chatdesk [serve | issue-token [-ttl 24h] <subject>]")
}

func issueToken(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("issue-token", flag.ContinueOnError)
	fs.SetOutput(stderr)
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "issue-token requires <subject>")
		usage(stderr)
		return 2
	}

	token, err := middleware.IssueAdminToken(os.Getenv("ADMIN_JWT_SECRET"), fs.Arg(0), *ttl)
	if err != nil {
		fmt.Fprintln(stderr, "issue-token:", err)
		return 1
	}
	fmt.Fprintln(stdout, token)
	return 0
}

func serve() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	cat, err := loadCatalog(cfg.CatalogFile)
	if err != nil {
		return err
	}

	store, closeStore, err := database.Connect(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("Failed to close database", zap.Error(err))
		}
	}()

	transport, err := services.NewTwilioTransport(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioWhatsAppFrom, cfg.SendTimeout)
	if err != nil {
		return fmt.Errorf("twilio transport: %w", err)
	}
	logger.Info("✅ Twilio transport initialized", zap.String("from", cfg.TwilioWhatsAppFrom))

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	limiter, closeLimiter, err := newRateLimiter(cfg, store)
	if err != nil {
		return err
	}
	defer closeLimiter()

	messenger := services.NewMessenger(store, transport, cfg.AdminPhone, cfg.SendTimeout, m)
	mirror := newMirror(cfg)
	payments := services.NewPaymentWorkflow(store, messenger, mirror, cat, m, cfg.SupportContact)
	handoffs := services.NewHandoffWorkflow(store, messenger, mirror, cat, m)
	admin := services.NewAdminService(store, payments, handoffs)
	classifier := intent.NewClassifier(intent.MustRegistry(cat))

	bot := services.NewBot(store, transport, messenger, classifier, cat, limiter, ai.NewChainFromConfig(cfg),
		payments, handoffs, admin, m, services.BotConfig{
			SupportContact: cfg.SupportContact,
			AIHistory:      cfg.AIHistory,
			AIMaxTokens:    cfg.AIMaxTokens,
		})

	reminders := jobs.NewHandoffReminderJob(store, messenger, cfg.HandoffReminderInterval, cfg.HandoffStaleAfter, cfg.RateLimitWindow)
	reminders.Start()
	defer reminders.Stop()

	whatsapp := handlers.NewWhatsAppHandler(bot, 0)

	app := fiber.New(fiber.Config{
		AppName:      "ChatDesk Backend v" + version,
		ErrorHandler: handlers.ErrorHandler,
	})
	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	routes.SetupRoutes(app, cfg, &routes.Handlers{
		Health:    handlers.NewHealthHandler(version, store),
		WhatsApp:  whatsapp,
		Admin:     handlers.NewAdminHandler(store, handoffs),
		Payments:  handlers.NewPaymentHandler(payments),
		Support:   handlers.NewSupportHandler(handoffs),
		Analytics: handlers.NewAnalyticsHandler(store),
		Metrics:   adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})),
	})

	listenErr := make(chan error, 1)
	go func() {
		logger.Info("🚀 ChatDesk Backend starting",
			zap.String("port", cfg.Port),
			zap.String("environment", cfg.Environment),
			zap.String("database", cfg.DBDriver),
			zap.String("rate_limit", cfg.RateLimitBackend))
		listenErr <- app.Listen(":" + cfg.Port)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case err := <-listenErr:
		return err
	case <-sig:
	}

	logger.Info("🛑 Gracefully shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Warn("Server shutdown incomplete", zap.Error(err))
	}
	if err := whatsapp.Wait(ctx); err != nil {
		logger.Warn("Abandoned in-flight webhook messages", zap.Error(err))
	}
	return nil
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		logger.Info("Using built-in catalog")
		return catalog.Default(), nil
	}
	cat, err := catalog.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	logger.Info("Catalog loaded", zap.String("path", path), zap.Int("services", len(cat.Services)))
	return cat, nil
}

func newRateLimiter(cfg *config.Config, store storage.Store) (services.RateLimiter, func(), error) {
	if cfg.RateLimitBackend != "redis" {
		return services.NewStoreRateLimiter(store, cfg.RateLimitMax, cfg.RateLimitWindow), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis unreachable at startup, rate limiting will fail open", zap.Error(err))
	}
	return services.NewRedisRateLimiter(client, cfg.RateLimitMax, cfg.RateLimitWindow), func() { _ = client.Close() }, nil
}

func newMirror(cfg *config.Config) sheets.Mirror {
	if cfg.SheetsSpreadsheetID == "" {
		return sheets.NoopMirror{}
	}

	var opts []option.ClientOption
	if cfg.SheetsCredentials != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.SheetsCredentials))
	}
	mirror, err := sheets.NewGoogleMirror(context.Background(), cfg.SheetsSpreadsheetID, opts...)
	if err != nil {
		logger.Warn("Spreadsheet mirror disabled", zap.Error(err))
		return sheets.NoopMirror{}
	}
	logger.Info("📊 Spreadsheet mirror enabled", zap.String("spreadsheet_id", cfg.SheetsSpreadsheetID))
	return mirror
}
