package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/FredM555/FL2M-Web-sub002/libs/config"
	"github.com/FredM555/FL2M-Web-sub002/libs/db"
	"github.com/FredM555/FL2M-Web-sub002/libs/httpx"
	"github.com/FredM555/FL2M-Web-sub002/libs/kafkax"
	otelx "github.com/FredM555/FL2M-Web-sub002/libs/otel"
	"github.com/FredM555/FL2M-Web-sub002/libs/runtime"
	"github.com/FredM555/FL2M-Web-sub002/services/notification-service/internal/consumer"
	"github.com/FredM555/FL2M-Web-sub002/services/notification-service/internal/email"
	"github.com/FredM555/FL2M-Web-sub002/services/notification-service/internal/inbox"
	"github.com/FredM555/FL2M-Web-sub002/services/notification-service/internal/storage"
	"github.com/FredM555/FL2M-Web-sub002/services/notification-service/internal/templates"
)

type notificationPayload struct {
	AppointmentID  string `json:"appointment_id"`
	ShortCode      string `json:"short_code"`
	RecipientRole  string `json:"recipient_role"`
	RecipientEmail string `json:"recipient_email"`
	EventType      string `json:"event_type"`
	OccurredAt     string `json:"occurred_at"`
}

func main() {
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
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

	inboxRepo := inbox.NewRepository(pool)
	notificationsRepo := storage.NewRepository(pool)

	smtpHost := config.String("SMTP_HOST", "mailpit")
	smtpPort := config.String("SMTP_PORT", "1025")
	smtpFrom := config.String("SMTP_FROM", "no-reply@fl2m.local")
	emailSender := email.NewSMTPSender(smtpHost, smtpPort, smtpFrom)

	consumerCfg := consumer.Config{
		Brokers: config.String("KAFKA_BROKERS", ""),
		GroupID: config.String("KAFKA_GROUP_ID", "notification-service"),
		Topic:   config.String("KAFKA_CONSUME_TOPIC", "appointments.notification.requested.v1"),
	}
	eventConsumer := consumer.New(logger, inboxRepo, consumerCfg, func(ctx context.Context, msg kafka.Message) error {
		var payload notificationPayload
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid notification payload", "err", err)
			return nil
		}
		payload.RecipientEmail = strings.TrimSpace(payload.RecipientEmail)
		if payload.AppointmentID == "" || payload.EventType == "" || payload.RecipientEmail == "" {
			logger.Error("missing notification fields", "appointment_id", payload.AppointmentID, "event_type", payload.EventType)
			return nil
		}

		subject, body := templates.Message(payload.EventType, payload.RecipientRole, payload.ShortCode)

		status := "sent"
		failureReason := ""
		if err := emailSender.Send(payload.RecipientEmail, subject, body); err != nil {
			status = "failed"
			failureReason = err.Error()
			logger.Error("email send failed", "err", err, "recipient", payload.RecipientEmail)
		}

		if err := notificationsRepo.Insert(ctx, storage.Notification{
			AppointmentID: payload.AppointmentID,
			ShortCode:     payload.ShortCode,
			RecipientRole: payload.RecipientRole,
			Recipient:     payload.RecipientEmail,
			EventType:     payload.EventType,
			Status:        status,
			FailureReason: failureReason,
		}); err != nil {
			logger.Error("failed to persist notification", "err", err)
			return err
		}

		logger.Info("notification processed",
			"appointment_id", payload.AppointmentID,
			"event_type", payload.EventType,
			"recipient_role", payload.RecipientRole,
			"status", status,
		)
		return nil
	})
	go eventConsumer.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "notification")
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
