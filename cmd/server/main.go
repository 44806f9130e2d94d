package main // Entry point package

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	_ "time/tzdata" // SCHEDULE_TZ must resolve on minimal images

	"github.com/iliyamo/celestia-booking/internal/booking"
	"github.com/iliyamo/celestia-booking/internal/catalog"
	"github.com/iliyamo/celestia-booking/internal/config"
	"github.com/iliyamo/celestia-booking/internal/database"
	"github.com/iliyamo/celestia-booking/internal/handler"
	"github.com/iliyamo/celestia-booking/internal/logger"
	"github.com/iliyamo/celestia-booking/internal/middleware"
	"github.com/iliyamo/celestia-booking/internal/payment"
	"github.com/iliyamo/celestia-booking/internal/queue"
	"github.com/iliyamo/celestia-booking/internal/repository"
	"github.com/iliyamo/celestia-booking/internal/router"
	"github.com/iliyamo/celestia-booking/internal/utils"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("load .env: %v", err)
	}
	cfg := config.Load()

	zl, err := logger.New(cfg.Production(), cfg.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		zl.Fatal("open database", zap.Error(err))
	}
	defer db.Close()
	if cfg.DBAutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			zl.Fatal("migrate database", zap.Error(err))
		}
		zl.Info("database schema applied")
	}

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	sessions := repository.NewSessionRepo(db)
	readerRepo := repository.NewReaderRepo(db)
	notes := repository.NewNoteRepo(db)

	if cfg.ReaderEmail != "" && cfg.ReaderPassword != "" {
		bootstrapReader(ctx, zl, cfg, users, readerRepo)
	}

	cat, err := catalog.Load(cfg.Schedule.CatalogFile)
	if err != nil {
		zl.Fatal("load service catalog", zap.Error(err))
	}
	validator := booking.NewValidator(cfg.Schedule.BusinessHours(), cat)

	var readers booking.ReaderResolver = readerRepo
	if cfg.Schedule.ActiveReaderID != 0 {
		readers = booking.StaticReader(cfg.Schedule.ActiveReaderID)
	}

	var notifier booking.Notifier = queue.LogNotifier{Log: zl}
	if cfg.Notify.RabbitURL != "" {
		notifier = queue.NewPublisher(cfg.Notify.RabbitURL, cfg.Notify.Queue, zl)
		if cfg.Notify.Consumer {
			consumer := &queue.Consumer{URL: cfg.Notify.RabbitURL, Queue: cfg.Notify.Queue, Dir: cfg.Notify.LogDir, Log: zl}
			go func() {
				if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					zl.Error("notification consumer stopped", zap.Error(err))
				}
			}()
		}
	} else {
		zl.Warn("RABBITMQ_URL not set; session events are only logged")
	}

	opts := cfg.Schedule.Options()
	bookings := booking.NewService(sessions, validator, readers, notifier, zl, opts)
	lifecycle := booking.NewLifecycle(sessions, validator, notifier, zl, opts)

	var gateway payment.Gateway
	if cfg.Stripe.SecretKey != "" {
		gateway = payment.NewStripeGateway(payment.StripeConfig{
			SecretKey:     cfg.Stripe.SecretKey,
			WebhookSecret: cfg.Stripe.WebhookSecret,
			Currency:      cfg.Stripe.Currency,
			SuccessURL:    cfg.Stripe.SuccessURL,
			CancelURL:     cfg.Stripe.CancelURL,
		})
	} else {
		zl.Warn("STRIPE_SECRET_KEY not set; checkout and webhooks are disabled")
	}

	rdb := config.NewRedisClient(config.LoadRedisConfig(), zl)
	if rdb != nil {
		defer rdb.Close()
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = utils.NewRequestValidator()
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(zl))

	router.RegisterRoutes(e, handler.Health(db))
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens, zl), cfg.JWTSecret)
	router.RegisterPublic(e,
		handler.NewPublicHandler(bookings, cat, zl),
		middleware.NewRedisCache(config.LoadCacheConfig(), rdb, zl))
	router.RegisterSessions(e,
		handler.NewSessionHandler(bookings, lifecycle, gateway, zl),
		handler.NewNoteHandler(bookings, notes, zl),
		cfg.JWTSecret,
		middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, zl))
	router.RegisterAdmin(e, handler.NewAdminHandler(bookings, lifecycle, zl), cfg.JWTSecret)
	if gateway != nil {
		router.RegisterWebhooks(e, handler.NewWebhookHandler(gateway, lifecycle, sessions, zl))
	}

	addr := ":" + cfg.Port
	go func() {
		zl.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zl.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		zl.Error("http shutdown", zap.Error(err))
	}
}

// bootstrapReader makes sure the configured reader account exists and is
// the active reader.
func bootstrapReader(ctx context.Context, zl *zap.Logger, cfg config.Config, users *repository.UserRepo, readers *repository.ReaderRepo) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	id, err := users.EnsureReader(ctx, cfg.ReaderEmail, cfg.ReaderName, cfg.ReaderPassword, cfg.BcryptCost)
	if err != nil {
		zl.Fatal("bootstrap reader account", zap.String("email", cfg.ReaderEmail), zap.Error(err))
	}
	if err := readers.SetActive(ctx, id); err != nil {
		zl.Fatal("set active reader", zap.Uint64("reader_id", id), zap.Error(err))
	}
	zl.Info("reader account ready", zap.Uint64("reader_id", id))
}
