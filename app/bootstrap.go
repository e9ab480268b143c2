package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"restaurant-backend/internal/auth"
	"restaurant-backend/internal/db"
	"restaurant-backend/internal/gallery"
	"restaurant-backend/internal/maintenance"
	"restaurant-backend/internal/media"
	"restaurant-backend/internal/menu"
	"restaurant-backend/internal/observability"
	"restaurant-backend/internal/ratelimit"
)

type Options struct {
	LoadDotEnv    bool
	RunMigrations bool
}

type Runtime struct {
	Handler http.Handler
	Logger  *zap.Logger
	Close   func() error
}

func Build(options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	environment := envOrDefault("APP_ENV", "development")
	logger := observability.NewLogger(environment)

	databaseURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return nil, err
	}
	jwtSecret, err := mustEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}

	if err := observability.InitSentry(os.Getenv("SENTRY_DSN"), environment); err != nil {
		logger.Error("init_sentry_failed", zap.Error(err))
	}

	database, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(envIntOrDefault("DB_MAX_OPEN_CONNS", 10))
	database.SetMaxIdleConns(envIntOrDefault("DB_MAX_IDLE_CONNS", 5))
	database.SetConnMaxLifetime(envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30))
	database.SetConnMaxIdleTime(envMinutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10))

	if err := database.Ping(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if options.RunMigrations {
		if err := db.RunMigrations(database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	authRepo := auth.NewRepository(database, envSecondsOrDefault("STORE_TIMEOUT_SECONDS", 3))
	tokens := auth.NewTokenManager(jwtSecret, envHoursOrDefault("TOKEN_TTL_HOURS", 24))
	authService := auth.NewService(authRepo, tokens, logger)
	authService.WithSecurityConfig(
		envIntOrDefault("LOGIN_MAX_ATTEMPTS", 5),
		envMinutesOrDefault("LOGIN_LOCK_MINUTES", 15),
		envIntOrDefault("BCRYPT_COST", 12),
	)

	if err := bootstrapAdmin(authService, os.Getenv("ADMIN_USERNAME"), os.Getenv("ADMIN_PASSWORD")); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("bootstrap admin: %w", err)
	}

	images, err := media.NewDiskStore(envOrDefault("UPLOAD_DIR", "uploads"))
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("init upload store: %w", err)
	}

	authHandler := auth.NewHandler(authService, environment != "production")
	menuHandler := menu.NewHandler(menu.NewRepository(database), images)
	galleryHandler := gallery.NewHandler(gallery.NewRepository(database), images)
	cleanupHandler := maintenance.NewCleanupHandler(authRepo, logger, os.Getenv("CRON_SECRET"))

	guardStore, closeRedis, err := buildGuardStore(logger)
	if err != nil {
		_ = database.Close()
		return nil, err
	}
	loginGuard := ratelimit.NewGuard(guardStore, logger)

	protect := func(h http.HandlerFunc) http.Handler {
		return auth.Middleware(authService, h)
	}

	mux := http.NewServeMux()
	mux.Handle("POST /auth/login", loginGuard.Middleware(http.HandlerFunc(authHandler.Login)))
	mux.HandleFunc("POST /auth/register", authHandler.Register)
	mux.HandleFunc("GET /auth/verify", authHandler.Verify)
	mux.HandleFunc("GET /auth/profile", authHandler.Profile)
	mux.Handle("POST /auth/unlock", auth.Middleware(authService,
		auth.RequireRole(http.HandlerFunc(authHandler.Unlock), auth.RoleSuperAdmin)))

	mux.HandleFunc("GET /menu", menuHandler.List)
	mux.Handle("POST /menu", protect(menuHandler.Create))
	mux.Handle("PUT /menu/{id}", protect(menuHandler.Update))
	mux.Handle("DELETE /menu/{id}", protect(menuHandler.Delete))

	mux.HandleFunc("GET /gallery", galleryHandler.List)
	mux.Handle("POST /gallery", protect(galleryHandler.Create))
	mux.Handle("PUT /gallery/{id}", protect(galleryHandler.Update))
	mux.Handle("DELETE /gallery/{id}", protect(galleryHandler.Delete))

	mux.Handle("GET /uploads/", http.StripPrefix(media.PublicPrefix, http.FileServer(http.Dir(images.Root()))))

	mux.HandleFunc("GET /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("GET /health", healthHandler(database))

	handler := observability.RecoverMiddleware(logger, observability.RequestLoggingMiddleware(logger, mux))

	return &Runtime{
		Handler: handler,
		Logger:  logger,
		Close: func() error {
			observability.FlushSentry()
			if closeRedis != nil {
				_ = closeRedis()
			}
			_ = logger.Sync()
			return database.Close()
		},
	}, nil
}

// bootstrapAdmin seeds the first account from the environment so a fresh
// deployment is never without a working login. An existing username wins.
func bootstrapAdmin(service *auth.Service, username, password string) error {
	username = strings.TrimSpace(strings.ToLower(username))

	if username == "" && password == "" {
		return nil
	}
	if username == "" || password == "" {
		return errors.New("ADMIN_USERNAME and ADMIN_PASSWORD are required together")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := service.Register(ctx, username, password, auth.RoleSuperAdmin)
	if err != nil && !errors.Is(err, auth.ErrUsernameTaken) {
		return err
	}

	return nil
}

// buildGuardStore picks the request-rate guard backend: Redis when REDIS_URL
// is set (shared budget across instances), in-memory otherwise.
func buildGuardStore(logger *zap.Logger) (ratelimit.Store, func() error, error) {
	maxHits := envIntOrDefault("LOGIN_RATE_LIMIT_MAX", 10)
	window := envSecondsOrDefault("LOGIN_RATE_LIMIT_WINDOW_SECONDS", 60)

	redisURL := strings.TrimSpace(os.Getenv("REDIS_URL"))
	if redisURL == "" {
		return ratelimit.NewMemoryStore(maxHits, window), nil, nil
	}

	redisOptions, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := goredis.NewClient(redisOptions)
	logger.Info("rate_guard_backend", zap.String("backend", "redis"))
	return ratelimit.NewRedisStore(client, maxHits, window), client.Close, nil
}

func healthHandler(database *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func mustEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("missing required env: %s", name)
	}
	return value, nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
}

func envHoursOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Hour
}

func envSecondsOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Second
}
