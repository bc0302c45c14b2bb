package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	oauthapi "go.pilab.hu/iam/api/echo"
	"go.pilab.hu/iam/cache"
	cacheredis "go.pilab.hu/iam/cache/redis"
	"go.pilab.hu/iam/config"
	"go.pilab.hu/iam/internal/metrics"
	"go.pilab.hu/iam/mongodb"
	"go.pilab.hu/iam/services"
	"go.pilab.hu/iam/tracing"
)

const recordJanitorInterval = time.Hour

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogger(cfg)
	log.Info().
		Str("http_port", cfg.HTTPPort).
		Str("mongo_db_name", cfg.MongoDBName).
		Str("redis_addr", cfg.RedisAddr).
		Str("issuer", cfg.Issuer).
		Msg("Starting IAM server")

	tracerProvider, err := tracing.InitTracerProvider(cfg.OtelServiceName)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize TracerProvider")
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			log.Error().Err(err).Msg("TracerProvider shutdown failed")
		}
	}()

	ctx := context.Background()
	if err := mongodb.InitMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize MongoDB connection")
	}
	defer mongodb.CloseMongoDB(context.Background())
	db := mongodb.GetDB()

	// Repositories
	authorizationRepo, err := mongodb.NewAuthorizationRepository(ctx, db)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize AuthorizationRepository")
	}
	clientRepo, err := mongodb.NewClientRepository(ctx, db)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize ClientRepository")
	}
	cachedClients := mongodb.NewCachedClientRepository(clientRepo, cfg.ClientCacheTTL())
	defer cachedClients.Close()

	signingKeyRepo, err := mongodb.NewSigningKeyRepository(ctx, db)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize SigningKeyRepository")
	}
	credentialRepo, err := mongodb.NewCredentialRepository(ctx, db)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize CredentialRepository")
	}
	resourceRepo, err := mongodb.NewResourceRepository(ctx, db)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize ResourceRepository")
	}
	userRepo, err := mongodb.NewUserRepository(ctx, db)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize UserRepository")
	}

	// Redis-backed ephemeral stores
	redisClient := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("Failed to connect to Redis")
	}
	defer redisClient.Close()

	var machineStore cache.MachineTokenStore = cacheredis.NewMachineTokenStore(redisClient)
	var blacklistStore cache.Blacklist = cacheredis.NewBlacklist(redisClient)

	// Services
	keyRing := services.NewKeyRing(signingKeyRepo, cfg.SigningKeyTTL())
	// A usable signing key is a startup requirement: failing here beats
	// failing on the first token request.
	if _, err := keyRing.CurrentSigningKey(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure a current signing key")
	}

	jwtGen := services.NewJWTTokenGenerator(keyRing, cfg.Issuer)
	dispatcher := services.NewFormatDispatcher(jwtGen, cfg.ServiceClientID)

	oauthService := services.NewOAuthService(authorizationRepo, cachedClients, userRepo, dispatcher)
	machineTokenService := services.NewMachineTokenService(
		credentialRepo, cachedClients, authorizationRepo, machineStore,
		services.MachineTokenOptions{
			ProgramTTL:    cfg.MachineTokenTTL(),
			PersistGrants: cfg.PersistMachineGrants,
		})
	introspectionService := services.NewIntrospectionService(authorizationRepo, credentialRepo, resourceRepo, blacklistStore)
	blacklistService := services.NewBlacklistService(blacklistStore)

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(registry)

	// HTTP server
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	api := oauthapi.NewOAuth2API(oauthService, machineTokenService, introspectionService, blacklistService, keyRing)
	api.RegisterRoutes(e)

	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	e.GET("/health", func(c echo.Context) error {
		if err := mongodb.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "down", "error": err.Error()})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go runRecordJanitor(janitorCtx, authorizationRepo, signingKeyRepo)

	go func() {
		addr := ":" + cfg.HTTPPort
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()
	log.Info().Str("port", cfg.HTTPPort).Msg("HTTP server started")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	log.Info().Msg("Server stopped")
}

func setupLogger(cfg *config.ServerConfig) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
}

// runRecordJanitor periodically drops fully-expired authorization records
// and deactivates expired signing keys. Both operations are idempotent, so
// multiple instances running the janitor concurrently is harmless.
func runRecordJanitor(ctx context.Context, records *mongodb.AuthorizationRepository, keys *mongodb.SigningKeyRepository) {
	ticker := time.NewTicker(recordJanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			deleted, err := records.DeleteExpired(ctx, now)
			if err != nil {
				log.Error().Err(err).Msg("Expired record cleanup failed")
			} else if deleted > 0 {
				log.Info().Int64("deleted", deleted).Msg("Dropped expired authorization records")
			}
			deactivated, err := keys.DeactivateExpired(ctx, now)
			if err != nil {
				log.Error().Err(err).Msg("Expired signing key deactivation failed")
			} else if deactivated > 0 {
				log.Info().Int64("deactivated", deactivated).Msg("Deactivated expired signing keys")
			}
		}
	}
}
