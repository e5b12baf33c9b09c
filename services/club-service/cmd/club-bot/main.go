package main

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/avolkov/clubdesk/libs/config"
	"github.com/avolkov/clubdesk/libs/db"
	otelx "github.com/avolkov/clubdesk/libs/otel"
	"github.com/avolkov/clubdesk/libs/runtime"
	"github.com/avolkov/clubdesk/services/club-service/internal/availability"
	"github.com/avolkov/clubdesk/services/club-service/internal/booking"
	"github.com/avolkov/clubdesk/services/club-service/internal/bot"
	"github.com/avolkov/clubdesk/services/club-service/internal/outbox"
	"github.com/avolkov/clubdesk/services/club-service/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "club-bot")
	port, err := config.Port("PORT", "8081")
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

	token, err := config.RequiredString("BOT_TOKEN")
	if err != nil {
		panic(err)
	}

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

	ledger := storage.NewLedger(pool, outbox.NewRepository(pool))
	engine := booking.NewEngine(ledger, logger)

	flowTTL := 15 * time.Minute
	if v, err := strconv.Atoi(config.String("BOT_FLOW_TTL_MINUTES", "15")); err == nil && v > 0 {
		flowTTL = time.Duration(v) * time.Minute
	}
	client := bot.NewClient(token, config.String("BOT_API_BASE", ""))
	state := bot.NewRedisFlowState(rdb, flowTTL)
	flow := bot.NewFlow(engine, client, state, logger, loc, hours)
	poller := bot.NewPoller(client, flow, logger)
	go func() {
		_ = poller.Run(ctx)
	}()

	// Health endpoints only; the bot has no inbound API surface.
	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
	)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
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
