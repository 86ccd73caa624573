package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"gptme-server/internal/completion"
	"gptme-server/internal/config"
	"gptme-server/internal/handler"
	"gptme-server/internal/observability"
	"gptme-server/internal/repository"
	"gptme-server/internal/service"
	"gptme-server/internal/websocket"
	"gptme-server/pkg/markdown"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Server.Env, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Environment: cfg.Server.Env,
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}

	metrics := observability.NewCollector("gptme")

	store, err := repository.Open(ctx, cfg.Database.Driver, cfg.Database.SQLitePath, cfg.Database.CouchURL, cfg.Database.Name)
	if err != nil {
		return err
	}
	defer store.Close()

	catalogue, err := config.LoadModelCatalogue(
		cfg.Completion.ModelsFile,
		cfg.Completion.DefaultModel,
		cfg.Completion.MaxTokens,
		cfg.Completion.EssayTokens,
		logger,
	)
	if err != nil {
		return fmt.Errorf("failed to load model catalogue: %w", err)
	}
	if err := catalogue.Watch(); err != nil {
		logger.Warn("Model catalogue hot reload disabled", zap.Error(err))
	}
	defer catalogue.Close()

	if cfg.Completion.APIKey == "" {
		logger.Warn("OPENAI_API_KEY is not set, completion calls will fail")
	}
	gateway := completion.NewClient(completion.Config{
		APIKey:                  cfg.Completion.APIKey,
		BaseURL:                 cfg.Completion.BaseURL,
		Timeout:                 cfg.Completion.Timeout,
		BreakerMaxRequests:      cfg.Breaker.MaxRequests,
		BreakerInterval:         cfg.Breaker.Interval,
		BreakerTimeout:          cfg.Breaker.Timeout,
		BreakerMinRequests:      cfg.Breaker.MinRequests,
		BreakerFailureThreshold: cfg.Breaker.FailureThreshold,
	}, metrics, logger)

	wsManager := websocket.NewManager(websocket.Options{
		MaxConnPerUser: cfg.WebSocket.MaxConnPerUser,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		WriteWait:      cfg.WebSocket.WriteWait,
		PongWait:       cfg.WebSocket.PongWait,
		PingPeriod:     cfg.WebSocket.PingPeriod,
	}, metrics, logger)

	authService := service.NewAuthService(store.Users, cfg.JWT.Secret, cfg.JWT.Expiration, cfg.JWT.RefreshTokenExpiration, logger)
	userService := service.NewUserService(store.Users)
	modelService := service.NewModelService(store.Users, catalogue, wsManager)
	noteService := service.NewNoteService(store.Notes, wsManager, metrics, logger)
	chatService := service.NewChatService(store.Chats, store.Notes, store.Articles, gateway, modelService, wsManager, metrics, logger)
	articleService := service.NewArticleService(store.Articles, markdown.NewRenderer())

	router := handler.NewRouter(handler.RouterConfig{
		Auth:     handler.NewAuthHandler(authService, handler.CookieOptions{Name: cfg.Cookie.Name, Secure: cfg.Cookie.Secure}, logger),
		Users:    handler.NewUserHandler(userService, modelService, logger),
		Notes:    handler.NewNoteHandler(noteService, logger),
		Chats:    handler.NewChatHandler(chatService, logger),
		Articles: handler.NewArticleHandler(articleService, logger),
		WebSocket: handler.NewWebSocketHandler(
			wsManager,
			authService,
			cfg.Cookie.Name,
			cfg.WebSocket.ReadBufferSize,
			cfg.WebSocket.WriteBufferSize,
			logger,
		),
		Tokens:     authService,
		CookieName: cfg.Cookie.Name,
		CORS:       cfg.CORS,
		Metrics:    metrics,
		Logger:     logger,
	})

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)

	// WriteTimeout covers the slowest completion call plus response writing.
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Completion.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return wsManager.Run(gctx)
	})

	g.Go(func() error {
		logger.Info("Starting GPTme server",
			zap.String("addr", addr),
			zap.String("env", cfg.Server.Env),
			zap.String("db_driver", cfg.Database.Driver),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Failed to flush traces", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("Server stopped gracefully")
	return nil
}
