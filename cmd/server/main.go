package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/openrds/snowball/internal/api"
	"github.com/openrds/snowball/internal/config"
	"github.com/openrds/snowball/internal/notify"
	"github.com/openrds/snowball/internal/services"
	"github.com/openrds/snowball/internal/store"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(logrus.DebugLevel)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	st, err := store.Connect(ctx, cfg.MongoURI, cfg.DBName)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	if cfg.AppEnv != "local" {
		if err := st.EnsureIndexes(ctx); err != nil {
			log.Fatalf("store indexes: %v", err)
		}
	}

	email := notify.NewSendGridSender(cfg.SendGridAPIKey, cfg.SendGridFromAddress,
		cfg.SendGridTemplateID, cfg.UIRoot, cfg.CouponTTLDays, log)
	sms := notify.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken,
		cfg.TwilioFromNumber, cfg.UIRoot, log)
	dispatcher := services.NewDispatcher(email, sms, log)

	handler := api.NewRouter(&api.API{
		Registry:     services.NewSeedRegistry(st, log),
		Lifecycle:    services.NewLifecycle(st, dispatcher, log),
		Inviter:      services.NewPeerInviter(st, dispatcher, log),
		ConsentForms: services.NewConsentForms(st, log),
		Reports:      services.NewReports(st, log),
		Store:        st,
		AppEnv:       cfg.AppEnv,
		Log:          log,
	})

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	log.Infof("Listening on %s (env %s)", cfg.Addr, cfg.AppEnv)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server: %v", err)
	}
}
