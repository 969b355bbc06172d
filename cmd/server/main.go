// @title           Legal Marketplace Engagement API
// @version         1.0
// @description     Clients post cases, lawyers quote, clients accept and pay, and engaged lawyers download case files through short-lived signed URLs.
// @contact.name    Aldo Rifki Putra
// @contact.email   aldoetobex@gmail.com
// @BasePath        /api
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in              header
// @name            Authorization
// @description     Format: Bearer <token>
package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/aldoetobex/legal-mp-engagement/internal/auth"
	"github.com/aldoetobex/legal-mp-engagement/internal/cases"
	"github.com/aldoetobex/legal-mp-engagement/internal/config"
	"github.com/aldoetobex/legal-mp-engagement/internal/filetoken"
	"github.com/aldoetobex/legal-mp-engagement/internal/logger"
	"github.com/aldoetobex/legal-mp-engagement/internal/payments"
	"github.com/aldoetobex/legal-mp-engagement/internal/quotes"
	"github.com/aldoetobex/legal-mp-engagement/internal/ratelimit"
	"github.com/aldoetobex/legal-mp-engagement/internal/storage"
	"github.com/aldoetobex/legal-mp-engagement/internal/store"
	"github.com/aldoetobex/legal-mp-engagement/pkg/database"
)

func main() {
	cfg, warnings, err := config.Load()
	if err != nil {
		// logger is not configured yet
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		_, _ = os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	for _, w := range warnings {
		log.Warn("config", zap.String("warning", w))
	}

	db, err := database.Init(cfg.DatabaseURL, cfg.IsDev())
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}
	st := store.NewGorm(db)

	blobs, err := newStorage(cfg)
	if err != nil {
		log.Fatal("storage init failed", zap.Error(err))
	}

	limitStore, closeLimits, err := ratelimit.NewStore(cfg.RedisURL)
	if err != nil {
		log.Fatal("rate limit store init failed", zap.Error(err))
	}
	defer func() { _ = closeLimits() }()
	limit := func(name string) fiber.Handler {
		return ratelimit.New(limitStore, name, cfg.RateLimit, cfg.RateLimitPeriod, log)
	}

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.JWTTTL)
	signer := filetoken.New(cfg.FileTokenSecret, cfg.FileTokenTTL)

	var proc payments.Processor
	var mock *payments.MockProcessor
	switch cfg.PaymentProvider {
	case "stripe":
		proc = payments.NewStripe(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.PaymentTimeout)
	default:
		mock = payments.NewMock(cfg.StripeWebhookSecret)
		proc = mock
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: auth.ErrorHandler(log),
		BodyLimit:    cases.MaxFiles*cases.MaxFileSize + 1<<20,
	})
	app.Use(logger.RequestLogger(log))

	app.Get("/health", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"status": "ok"}) })

	api := app.Group("/api")

	// Handlers
	authH := auth.NewHandler(st, tokens, log)
	caseH := cases.NewHandler(
		cases.NewService(st, log),
		cases.NewFileHandler(cases.NewFiles(st, blobs, signer, log)),
	)
	quoteH := quotes.NewHandler(quotes.NewService(st, log))
	payH := payments.NewHandler(payments.NewService(st, proc, payments.Options{
		Currency:             cfg.PaymentCurrency,
		Timeout:              cfg.PaymentTimeout,
		RequireAcceptedQuote: cfg.RequireAcceptedQuote,
	}, log))
	if mock != nil && cfg.IsDev() {
		payH.WithMock(mock, cfg.DevPaymentSecret)
	}

	// Public: auth, signed downloads, processor webhooks
	api.Post("/signup", limit("signup"), authH.Signup)
	api.Post("/login", limit("login"), authH.Login)
	caseH.RegisterPublic(api, limit("download"))
	payH.RegisterPublic(api, ratelimit.New(limitStore, "webhook", cfg.WebhookRateLimit, cfg.RateLimitPeriod, log))

	// Bearer-authenticated
	secured := api.Group("", auth.RequireAuth(tokens))
	secured.Get("/me", authH.Me)
	caseH.Register(secured)
	quoteH.Register(secured)
	payH.Register(secured)

	go func() {
		log.Info("server running", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info("server stopped")
}

func newStorage(cfg *config.Config) (storage.Storage, error) {
	if cfg.StorageDriver == "supabase" {
		return storage.NewSupabase(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseBucket), nil
	}
	local, err := storage.NewLocal(cfg.UploadDir)
	if err != nil {
		return nil, err
	}
	return local, nil
}
