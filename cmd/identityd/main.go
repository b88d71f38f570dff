package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/activitymap"
	"github.com/goliatone/go-identity/config"
	"github.com/goliatone/go-identity/persistence"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("identityd stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slogger := newSlogLogger(cfg.Log)
	slog.SetDefault(slogger)
	logger := identity.NewSlogLogger(slogger)

	identity.DefaultPhoneRegion = cfg.PhoneRegion

	db, err := persistence.Open(ctx, cfg.Persistence())
	if err != nil {
		return err
	}
	defer db.Close()

	repo := identity.NewRepositoryManager(db)
	repo.MustValidate()

	tokens, err := identity.NewTokenServiceFromConfig(cfg, identity.WithTokenLogger(logger))
	if err != nil {
		return err
	}

	service := identity.NewService(repo, tokens,
		identity.WithConfig(cfg),
		identity.WithLogger(logger),
		identity.WithNotifier(identity.NewLogNotifier(logger, cfg.Notify.BaseURL)),
		identity.WithActivitySink(activitymap.LogSink(logger)),
		identity.WithVerificationOnRegister(cfg.VerifyOnRegister),
		identity.WithDeterministicIDs(cfg.DeterministicIDs),
		identity.WithOperationTimeout(cfg.OperationTimeout),
	)

	gateway := identity.NewGateway(tokens, repo.Accounts(), identity.WithGatewayLogger(logger))

	app := fiber.New(fiber.Config{
		AppName:               "identityd",
		ReadTimeout:           cfg.HTTP.ReadTimeout,
		WriteTimeout:          cfg.HTTP.WriteTimeout,
		ErrorHandler:          identity.ErrorHandler(logger),
		DisableStartupMessage: true,
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		if err := db.PingContext(c.UserContext()); err != nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "database unavailable")
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Use(identity.GatewayMiddleware(identity.GatewayMiddlewareConfig{
		Gateway: gateway,
		Logger:  logger,
	}))

	identity.NewController(service,
		identity.WithControllerLogger(logger),
		identity.WithControllerGateway(gateway),
		identity.WithControllerDebug(cfg.Log.Debug),
	).RegisterRoutes(app)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("identityd listening", "addr", cfg.HTTP.Addr)
		errCh <- app.Listen(cfg.HTTP.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("identityd shutting down")
	if err := app.ShutdownWithTimeout(cfg.HTTP.ShutdownTimeout); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newSlogLogger(cfg config.Log) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Format) == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
