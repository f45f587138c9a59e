package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/FredM555/FL2M-Web-sub002/libs/config"
	"github.com/FredM555/FL2M-Web-sub002/libs/db"
	"github.com/FredM555/FL2M-Web-sub002/libs/httpx"
	"github.com/FredM555/FL2M-Web-sub002/libs/kafkax"
	otelx "github.com/FredM555/FL2M-Web-sub002/libs/otel"
	"github.com/FredM555/FL2M-Web-sub002/libs/runtime"
	"github.com/FredM555/FL2M-Web-sub002/services/appointment-service/internal/handlers"
	"github.com/FredM555/FL2M-Web-sub002/services/appointment-service/internal/lifecycle"
	"github.com/FredM555/FL2M-Web-sub002/services/appointment-service/internal/outbox"
	"github.com/FredM555/FL2M-Web-sub002/services/appointment-service/internal/payment"
	"github.com/FredM555/FL2M-Web-sub002/services/appointment-service/internal/projection"
	"github.com/FredM555/FL2M-Web-sub002/services/appointment-service/internal/storage"
	"github.com/FredM555/FL2M-Web-sub002/services/appointment-service/internal/storage/memory"
)

func main() {
	service := config.String("SERVICE_NAME", "appointment-service")
	port, err := config.Port("PORT", "8084")
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

	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		panic(err)
	}

	var (
		store       lifecycle.Store
		directory   projection.Directory
		accounts    payment.AccountDirectory
		recipients  outbox.RecipientDirectory
		pool        *db.Pool
		readyChecks []runtime.ReadyCheck
	)

	kafkaBrokers := config.String("KAFKA_BROKERS", "")
	if dbURL := config.String("DATABASE_URL", ""); dbURL != "" {
		pool, err = db.Open(ctx, dbURL)
		if err != nil {
			logger.Error("db connection failed", "err", err)
			panic(err)
		}
		defer pool.Close()

		repo := storage.NewRepository(pool)
		store, directory, accounts, recipients = repo, repo, repo, repo
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})
		if kafkaBrokers != "" {
			readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(kafkaBrokers)})
		}
	} else {
		logger.Warn("DATABASE_URL not set; running with in-memory store (dev mode)")
		mem := memory.NewStore()
		seedDevData(mem)
		store, directory, accounts, recipients = mem, mem, mem, mem
	}

	var payments lifecycle.Payments
	if stripeKey := config.String("STRIPE_SECRET_KEY", ""); stripeKey != "" {
		payments = payment.NewStripeClient(stripeKey, accounts, logger, config.String("CURRENCY", "EUR"))
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set; payment releases are logged only")
		payments = payment.NewLogClient(logger)
	}

	var notifier lifecycle.Notifier
	if pool != nil {
		outboxRepo := outbox.NewRepository(pool)
		notifier = outbox.NewNotifier(pool, outboxRepo, store, recipients, config.String("ADMIN_EMAIL", ""), logger)
		publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
			Brokers:   kafkaBrokers,
			PollEvery: 2 * time.Second,
			BatchSize: 50,
		})
		go publisher.Run(ctx)
	} else {
		notifier = outbox.NewLogNotifier(logger)
	}

	svc := lifecycle.New(store, payments, notifier, logger)
	handler := handlers.New(svc, store, directory, logger, handlers.Config{
		JWTSecret:                     jwtSecret,
		Currency:                      config.String("CURRENCY", "EUR"),
		StripeWebhookSecret:           config.String("STRIPE_WEBHOOK_SECRET", ""),
		StripeWebhookToleranceSeconds: config.Int("STRIPE_WEBHOOK_TOLERANCE_SECONDS", 300),
	})

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.HandleFunc("/api/v1/appointments/book", handler.Book)
	mux.HandleFunc("/api/v1/appointments/get", handler.Get)
	mux.HandleFunc("/api/v1/appointments", handler.List)
	mux.HandleFunc("/api/v1/appointments/complete", handler.Complete)
	mux.HandleFunc("/api/v1/appointments/validate", handler.Validate)
	mux.HandleFunc("/api/v1/appointments/contest", handler.Contest)
	mux.HandleFunc("/api/v1/appointments/cancel", handler.Cancel)
	mux.HandleFunc("/api/v1/appointments/resolve", handler.Resolve)
	mux.HandleFunc("/api/v1/appointments/reassign", handler.Reassign)
	mux.HandleFunc("/api/v1/appointments/comments", handler.ListComments)
	mux.HandleFunc("/api/v1/appointments/comments/add", handler.AddComment)
	mux.HandleFunc("/api/v1/appointments/comments/delete", handler.DeleteComment)
	mux.HandleFunc("/webhooks/stripe", handler.StripeWebhook)

	rateLimit := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	var limiter httpx.Middleware
	if redisAddr := config.String("REDIS_ADDR", ""); redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		limiter = httpx.NewRedisRateLimiter(rdb, rateLimit, time.Minute, service).Middleware(logger, true)
	} else {
		limiter = httpx.NewRateLimiter(rateLimit, time.Minute).Middleware()
	}

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: parseList(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:         10 * time.Minute,
		}),
		limiter,
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "appointments")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
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

func parseList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// seedDevData loads fixed identities so the API is usable without Postgres.
func seedDevData(mem *memory.Store) {
	mem.PutClient(projection.Party{ID: "client-1", FirstName: "Claire", LastName: "Martin", Email: "claire@example.test"})
	mem.PutPractitioner(projection.Party{ID: "practitioner-1", FirstName: "Nadia", LastName: "Rey", Email: "nadia@example.test"}, "acct_dev_1")
	mem.PutService(projection.ServiceInfo{ID: "service-1", Code: "NUM-STD", Name: "Numerology consultation", ListPrice: decimal.NewFromInt(90)})
	mem.PutBeneficiary(projection.Beneficiary{ID: "beneficiary-1", FirstName: "Paul", LastName: "Martin"})
}
