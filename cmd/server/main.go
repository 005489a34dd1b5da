package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crypto-dashboard/internal/config"
	deliveryhttp "crypto-dashboard/internal/delivery/http"
	"crypto-dashboard/internal/delivery/websocket"
	"crypto-dashboard/internal/domain"
	"crypto-dashboard/internal/infrastructure/coingecko"
	"crypto-dashboard/internal/infrastructure/db"
	"crypto-dashboard/internal/infrastructure/firebase"
	"crypto-dashboard/internal/logging"
	"crypto-dashboard/internal/repository"
	"crypto-dashboard/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	// 1. Market data
	source := coingecko.NewClient(coingecko.Config{
		BaseURL:           cfg.Market.BaseURL,
		APIKey:            cfg.Market.APIKey,
		VsCurrency:        cfg.Market.VsCurrency,
		Timeout:           cfg.Market.Timeout,
		RequestsPerSecond: cfg.Market.RequestsPerSecond,
	}, logger)
	market := usecase.NewMarketService(source, cfg.Market, coingecko.DefaultCoinIDs, logger)
	defer market.Close()

	// 2. Watchlist storage
	var store domain.WatchlistStore = repository.NewInMemoryWatchlistRepository()
	if cfg.Database.URL != "" {
		pool, err := db.NewPool(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := db.Migrate(ctx, pool); err != nil {
			return err
		}
		store = repository.NewPostgresWatchlistRepository(pool)
		logger.Info("watchlist stored in postgres")
	} else {
		logger.Warn("DATABASE_URL not set, watchlists are kept in memory")
	}

	// 3. Sessions
	var cache domain.SessionCache = repository.NewMemorySessionCache()
	if cfg.Redis.Addr != "" {
		client, err := repository.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			logger.Warn("redis not available, using in-memory session cache", slog.Any("error", err))
		} else {
			defer client.Close()
			cache = repository.NewRedisSessionCache(client, logger)
			logger.Info("session cache connected", slog.String("addr", cfg.Redis.Addr))
		}
	}

	var provider domain.IdentityProvider = firebase.Unavailable{}
	if cfg.Firebase.Enabled() {
		p, err := firebase.NewProvider(ctx, cfg.Firebase, cfg.Session.TTL, logger)
		if err != nil {
			return err
		}
		provider = p
	} else {
		logger.Warn("firebase is not configured, sign-in is disabled")
	}
	sessions := usecase.NewSessionAccessor(provider, cache, cfg.Session.CacheTTL, logger)

	// 4. Delivery
	watchlist := usecase.NewWatchlistService(store, market, logger)
	cookie := deliveryhttp.SessionCookie{Name: cfg.Session.CookieName, TTL: cfg.Session.TTL, Secure: cfg.Session.Secure}
	guard := deliveryhttp.DefaultGuardConfig(cfg.Session.CookieName)
	live := websocket.NewHandler(market, sessions, cfg.Session.CookieName, func(r *http.Request) (int, error) {
		return deliveryhttp.PerPage(r.URL.Query())
	}, logger)

	router := deliveryhttp.NewRouter(deliveryhttp.Handlers{
		Auth:      deliveryhttp.NewAuthHandler(sessions, cookie, guard, logger),
		Market:    deliveryhttp.NewMarketHandler(market, logger),
		Dashboard: deliveryhttp.NewDashboardHandler(market, watchlist, logger),
		Watchlist: deliveryhttp.NewWatchlistHandler(watchlist, logger),
		Live:      http.HandlerFunc(live.Handle),
		Sessions:  deliveryhttp.NewSessions(sessions, cookie, guard.LoginPath, logger),
	}, guard, logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv.RegisterOnShutdown(live.Close)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown failed", slog.Any("error", err))
		}
	}()

	logger.Info("server listening", slog.String("addr", cfg.HTTPAddr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("server stopped")
	return nil
}
