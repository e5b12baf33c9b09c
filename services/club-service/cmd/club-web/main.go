package main

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/crypto/bcrypt"

	"github.com/avolkov/clubdesk/libs/config"
	"github.com/avolkov/clubdesk/libs/db"
	"github.com/avolkov/clubdesk/libs/httpx"
	"github.com/avolkov/clubdesk/libs/kafkax"
	otelx "github.com/avolkov/clubdesk/libs/otel"
	"github.com/avolkov/clubdesk/libs/runtime"
	"github.com/avolkov/clubdesk/services/club-service/internal/availability"
	"github.com/avolkov/clubdesk/services/club-service/internal/booking"
	"github.com/avolkov/clubdesk/services/club-service/internal/handlers"
	"github.com/avolkov/clubdesk/services/club-service/internal/outbox"
	"github.com/avolkov/clubdesk/services/club-service/internal/sessions"
	"github.com/avolkov/clubdesk/services/club-service/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "club-web")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	loc, err := time.LoadLocation(config.String("CLUB_TIMEZONE", "Local"))
	if err != nil {
		panic(err)
	}
	hours := clubHoursFromEnv()

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	redisAddr, err := config.RequiredString("REDIS_ADDR")
	if err != nil {
		panic(err)
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: config.String("REDIS_PASSWORD", ""),
	})
	defer func() { _ = rdb.Close() }()

	outboxRepo := outbox.NewRepository(pool)
	ledger := storage.NewLedger(pool, outboxRepo)
	engine := booking.NewEngine(ledger, logger)

	if err := seedAdmin(ctx, ledger); err != nil {
		logger.Error("admin seed failed", "err", err)
		panic(err)
	}

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	sessionTTL := 12 * time.Hour
	if v, err := strconv.Atoi(config.String("ADMIN_SESSION_TTL_HOURS", "12")); err == nil && v > 0 {
		sessionTTL = time.Duration(v) * time.Hour
	}
	sessionStore := sessions.NewStore(rdb, sessionTTL)

	publicHandler := handlers.NewPublicHandler(engine, logger, loc, hours)
	adminHandler := handlers.NewAdminHandler(engine, ledger, sessionStore, logger, loc)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	mux.HandleFunc("/api/v1/public/computers", publicHandler.Computers)
	mux.HandleFunc("/api/v1/public/availability", publicHandler.Availability)
	mux.HandleFunc("/api/v1/public/slots", publicHandler.Slots)
	mux.HandleFunc("/api/v1/public/book", publicHandler.Book)
	mux.HandleFunc("/api/v1/public/my-bookings", publicHandler.MyBookings)
	mux.HandleFunc("/api/v1/admin/login", adminHandler.Login)
	mux.HandleFunc("/api/v1/admin/logout", adminHandler.Logout)
	mux.HandleFunc("/api/v1/admin/computers/add", adminHandler.AddComputer)
	mux.HandleFunc("/api/v1/admin/computers/active", adminHandler.SetComputerActive)
	mux.HandleFunc("/api/v1/admin/bookings", adminHandler.ListBookings)
	mux.HandleFunc("/api/v1/admin/bookings/delete", adminHandler.DeleteBooking)

	limitPerMinute := 60
	if v, err := strconv.Atoi(config.String("RATE_LIMIT_PER_MINUTE", "60")); err == nil && v > 0 {
		limitPerMinute = v
	}
	rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "clubweb"))

	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   parseList(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods:   parseList(config.String("CORS_ALLOWED_METHODS", "GET,POST,OPTIONS")),
			AllowedHeaders:   parseList(config.String("CORS_ALLOWED_HEADERS", "Content-Type,X-Request-Id")),
			AllowCredentials: true,
			MaxAge:           10 * time.Minute,
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(10*time.Second),
		rl.Middleware(logger, true),
	)
	handler = otelhttp.NewHandler(handler, "club-web")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

// seedAdmin bootstraps the club administrator account from the environment.
// Without ADMIN_PASSWORD the seed is skipped and an existing account keeps
// its credentials.
func seedAdmin(ctx context.Context, ledger *storage.Ledger) error {
	password := config.String("ADMIN_PASSWORD", "")
	if password == "" {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return ledger.EnsureAdmin(ctx,
		config.String("ADMIN_NAME", "admin"),
		config.String("ADMIN_PHONE", "+70000000000"),
		string(hash),
	)
}

func clubHoursFromEnv() availability.ClubHours {
	hours := availability.DefaultClubHours()
	if v, err := strconv.Atoi(config.String("CLUB_OPEN_HOUR", "10")); err == nil && v >= 0 && v < 24 {
		hours.Open = time.Duration(v) * time.Hour
	}
	if v, err := strconv.Atoi(config.String("CLUB_CLOSE_HOUR", "22")); err == nil && v > 0 && v <= 24 {
		hours.Close = time.Duration(v) * time.Hour
	}
	if v, err := strconv.Atoi(config.String("SLOT_STEP_MINUTES", "30")); err == nil && v > 0 {
		hours.Step = time.Duration(v) * time.Minute
	}
	if v, err := strconv.Atoi(config.String("SESSION_MINUTES", "60")); err == nil && v > 0 {
		hours.Session = time.Duration(v) * time.Minute
	}
	return hours
}

func parseList(raw string) []string {
	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
