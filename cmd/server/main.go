// Command server runs the Form 4 tracker REST API, its async sync jobs and,
// when enabled, the Kafka job consumer.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/trogers1052/form4-tracker/internal/api"
	"github.com/trogers1052/form4-tracker/internal/cache"
	"github.com/trogers1052/form4-tracker/internal/config"
	"github.com/trogers1052/form4-tracker/internal/database"
	"github.com/trogers1052/form4-tracker/internal/edgar"
	"github.com/trogers1052/form4-tracker/internal/kafka"
	"github.com/trogers1052/form4-tracker/internal/service"
	"github.com/trogers1052/form4-tracker/internal/syncer"
)

func main() {
	configFile := flag.String("config", "", "config file path (default: ./form4.yaml)")
	flag.Parse()

	if err := run(*configFile); err != nil {
		log.Printf("Fatal: %v", err)
		os.Exit(1)
	}
}

func run(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	log.Printf("Connecting to database %s:%s/%s", cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName)
	db, err := database.New(cfg.Database.ConnectionString())
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.RunMigrations(cfg.Database.MigrationsPath); err != nil {
		return err
	}

	// Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	var limiter *api.RedisRateLimiter
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Redis unavailable at %s, rate limiting disabled: %v", cfg.Redis.Addr, err)
	} else if cfg.Auth.RateLimitPerMinute > 0 {
		limiter = api.NewRedisRateLimiter(redisClient, cfg.Auth.RateLimitPerMinute, time.Minute)
	}

	// Cache
	backend, err := cacheBackend(cfg, db, redisClient)
	if err != nil {
		return err
	}
	store := cache.NewStore(backend, cache.WithMaxAge(cfg.Cache.MaxAge, cfg.Cache.LenientMaxAge))
	log.Printf("Using %s cache backend", cfg.Cache.Backend)

	// EDGAR and sync engine
	clientCfg := edgar.DefaultClientConfig(cfg.Edgar.UserAgent)
	clientCfg.RateLimit = cfg.Edgar.RateLimit
	clientCfg.Timeout = cfg.Edgar.Timeout
	clientCfg.MaxRetries = cfg.Edgar.MaxRetries
	clientCfg.ClassifierMode = edgar.ClassifierMode(cfg.Edgar.ClassifierMode)
	client, err := edgar.NewClient(clientCfg)
	if err != nil {
		return fmt.Errorf("failed to create EDGAR client: %w", err)
	}

	engine := syncer.NewEngine(client, store, syncer.Config{
		Workers:       cfg.Sync.Workers,
		Buffer:        cfg.Sync.Buffer,
		DefaultTarget: cfg.Sync.DefaultTarget,
	})

	// Kafka
	var publisher service.EventPublisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.JobsTopic, cfg.Kafka.EventsTopic)
		defer producer.Close()
		publisher = producer
	}

	// Services
	form4Service := service.NewForm4Service(engine, client, db, store)
	jobService := service.NewJobService(db, db, engine, client, publisher)
	watchlistService := service.NewWatchlistService(db, client, engine)
	authService := service.NewAuthService(db)

	if cfg.Kafka.Enabled {
		consumer := kafka.NewJobConsumer(cfg.Kafka.Brokers, cfg.Kafka.JobsTopic, cfg.Kafka.GroupID, jobService)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				log.Printf("Kafka consumer stopped: %v", err)
			}
		}()
	}

	handler := api.NewHandler(api.Services{
		Form4:     form4Service,
		Jobs:      jobService,
		Watchlist: watchlistService,
		Auth:      authService,
		Checks: map[string]api.HealthChecker{
			"database": db,
			"redis": api.HealthCheckFunc(func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			}),
		},
	})

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:           api.SetupRoutes(handler, limiter, cfg.Auth.AdminKey),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("Form 4 tracker listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Println("Shutting down gracefully...")
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	jobService.Wait()
	log.Println("Shutdown complete")
	return nil
}

func cacheBackend(cfg *config.Config, db *database.DB, redisClient *redis.Client) (cache.Backend, error) {
	switch cfg.Cache.Backend {
	case config.CacheBackendRedis:
		return cache.NewRedisBackend(redisClient, cache.DefaultRedisPrefix, cfg.Cache.LenientMaxAge), nil
	case config.CacheBackendPostgres:
		return database.NewCacheBackend(db), nil
	case config.CacheBackendMemory:
		return cache.NewMemoryBackend(), nil
	default:
		backend, err := cache.NewFileBackend(cfg.Cache.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to open cache directory: %w", err)
		}
		return backend, nil
	}
}
