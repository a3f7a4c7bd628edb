package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Sternrassler/rsvp-client/internal/gateway"
	"github.com/Sternrassler/rsvp-client/pkg/cache"
	"github.com/Sternrassler/rsvp-client/pkg/client"
	"github.com/Sternrassler/rsvp-client/pkg/logging"
	"github.com/Sternrassler/rsvp-client/pkg/pagination"
	"github.com/Sternrassler/rsvp-client/pkg/ratelimit"
	"github.com/Sternrassler/rsvp-client/pkg/service"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	rsvpEndpoint    = "rsvps"
	shutdownTimeout = 10 * time.Second
	janitorInterval = time.Minute
)

type config struct {
	Port        string
	UpstreamURL string
	RedisURL    string
	UserAgent   string
	CacheTTL    time.Duration
	Timeout     time.Duration
}

func main() {
	logger := logging.Setup(logging.ConfigFromEnv(os.Getenv))

	cfg, err := loadConfig(os.Getenv)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

func loadConfig(getenv func(string) string) (config, error) {
	cfg := config{
		Port:        getEnv(getenv, "PORT", "8080"),
		UpstreamURL: getEnv(getenv, "UPSTREAM_URL", "http://localhost:3000/api"),
		RedisURL:    getEnv(getenv, "REDIS_URL", ""),
		UserAgent:   getEnv(getenv, "USER_AGENT", "rsvp-gateway/0.1.0"),
		CacheTTL:    cache.DefaultTTL,
		Timeout:     30 * time.Second,
	}

	var err error
	if cfg.CacheTTL, err = durationEnv(getenv, "CACHE_TTL", cfg.CacheTTL); err != nil {
		return config{}, err
	}
	if cfg.Timeout, err = durationEnv(getenv, "UPSTREAM_TIMEOUT", cfg.Timeout); err != nil {
		return config{}, err
	}
	if _, err := strconv.Atoi(cfg.Port); err != nil {
		return config{}, fmt.Errorf("PORT must be numeric, got %q", cfg.Port)
	}
	return cfg, nil
}

func run(ctx context.Context, cfg config, logger zerolog.Logger) error {
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis at %s: %w", cfg.RedisURL, err)
		}
		logger.Info().Str("addr", cfg.RedisURL).Msg("Connected to Redis")
	}

	handler, err := newGateway(ctx, cfg, redisClient)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", server.Addr).
			Str("upstream", cfg.UpstreamURL).
			Str("user_agent", cfg.UserAgent).
			Msg("Starting RSVP gateway")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// newGateway wires the transport, cache, limiter and service. Background
// maintenance stops when ctx is cancelled.
func newGateway(ctx context.Context, cfg config, redisClient *redis.Client) (http.Handler, error) {
	clientCfg := client.DefaultConfig(cfg.UpstreamURL, cfg.UserAgent)
	clientCfg.Timeout = cfg.Timeout
	transport, err := client.NewHTTPTransport(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}

	var cacheStore cache.Store = cache.NewMemoryStore()
	var limiterStore ratelimit.Store = ratelimit.NewMemoryStore()
	if redisClient != nil {
		cacheStore = cache.NewRedisStore(redisClient, cache.DefaultRedisPrefix+rsvpEndpoint+":")
		limiterStore = ratelimit.NewRedisStore(redisClient, "")
	}

	responseCache := cache.New(cacheStore, cache.Config{DefaultTTL: cfg.CacheTTL}, logging.NewLogger("cache"))
	responseCache.StartJanitor(ctx, janitorInterval)

	limiter := ratelimit.NewLimiter(limiterStore, ratelimit.DefaultConfig(), logging.NewLogger("ratelimit"))
	limiter.StartSweeper(ctx)

	svcCfg := service.DefaultConfig(rsvpEndpoint)
	svcCfg.CacheTTL = cfg.CacheTTL
	rsvps, err := service.New[gateway.RSVP](transport, svcCfg,
		service.WithCache(responseCache),
		service.WithLogger(logging.NewLogger("service")),
	)
	if err != nil {
		return nil, fmt.Errorf("create rsvp service: %w", err)
	}

	return gateway.NewHandler(gateway.Config{
		RSVPs:      rsvps,
		Auth:       gateway.NewAuthenticator(transport),
		Limiter:    limiter,
		Redis:      redisClient,
		Pagination: pagination.DefaultConfig(),
	})
}

func getEnv(getenv func(string) string, key, defaultValue string) string {
	if value := getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func durationEnv(getenv func(string) string, key string, defaultValue time.Duration) (time.Duration, error) {
	raw := getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, raw)
	}
	return d, nil
}
