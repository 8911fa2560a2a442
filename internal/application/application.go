package application

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/psds-microservice/intake-bot/internal/bot"
	"github.com/psds-microservice/intake-bot/internal/config"
	"github.com/psds-microservice/intake-bot/internal/database"
	"github.com/psds-microservice/intake-bot/internal/form"
	"github.com/psds-microservice/intake-bot/internal/handler"
	"github.com/psds-microservice/intake-bot/internal/notify"
	"github.com/psds-microservice/intake-bot/internal/router"
	"github.com/psds-microservice/intake-bot/internal/store"
	"github.com/psds-microservice/intake-bot/internal/userstate"
	"github.com/psds-microservice/intake-bot/internal/validation"
	"github.com/psds-microservice/intake-bot/internal/vk"
	"github.com/rs/zerolog"
)

// API — приложение режима api: callback-сервер VK + служебный HTTP API.
type API struct {
	cfg      *config.Config
	httpSrv  *http.Server
	producer *notify.Producer
	log      zerolog.Logger
}

// NewAPI собирает все зависимости бота.
func NewAPI(cfg *config.Config, log zerolog.Logger) (*API, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.ValidateVK(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := database.MigrateUp(cfg.DatabaseURL()); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	tickets := store.NewGormStore(db)
	validator := validation.New(log)
	forms := form.NewManager(cfg.Fields, validator, tickets, log)
	state := userstate.New()

	client := vk.NewClient(cfg.VK.APIBaseURL, cfg.VK.Token, cfg.VK.APIVersion, log)

	producer := notify.NewProducer(notify.ParseBrokers(cfg.Kafka.Brokers), cfg.Kafka.Topic, log)
	admins := notify.NewAdminNotifier(client, cfg.NotificationChatID, cfg.AdminIDs, cfg.Fields,
		cfg.NewTicketTemplate, cfg.TicketDeletedTemplate, log)
	notifier := notify.NewAsync(notify.Multi{admins, producer})

	botRouter := bot.NewRouter(cfg, forms, state, tickets, notifier, log)
	callback := vk.NewCallbackHandler(botRouter, client, cfg.VK.CallbackConfirmation, cfg.VK.CallbackSecret, log)

	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router.New(callback, handler.NewTicketHandler(tickets)),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &API{
		cfg:      cfg,
		httpSrv:  httpSrv,
		producer: producer,
		log:      log,
	}, nil
}

// Run запускает HTTP-сервер и блокируется до отмены ctx.
func (a *API) Run(ctx context.Context) error {
	host := a.cfg.AppHost
	if host == "0.0.0.0" {
		host = "localhost"
	}
	base := "http://" + host + ":" + a.cfg.HTTPPort
	a.log.Info().Str("addr", a.httpSrv.Addr).Msg("HTTP server listening")
	a.log.Info().Str("url", base+"/vk/callback").Msg("  VK callback")
	a.log.Info().Str("url", base+"/health").Msg("  Health")
	a.log.Info().Str("url", base+"/api/v1/tickets").Msg("  Tickets API")

	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Error().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := a.producer.Close(); err != nil {
		a.log.Error().Err(err).Msg("kafka producer close")
	}
	return nil
}
