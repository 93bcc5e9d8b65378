// Package config loads the server configuration from the environment. A
// .env file is honored for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config carries everything the server needs, constructed once at startup
// and passed down explicitly.
type Config struct {
	Addr   string
	AppEnv string
	Debug  bool

	MongoURI string
	DBName   string

	SendGridAPIKey      string
	SendGridFromAddress string
	SendGridTemplateID  string

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string

	UIRoot        string
	CouponTTLDays int
}

// Load reads the configuration from the environment. The store and provider
// credentials are required; everything else has a local-development default.
func Load() (*Config, error) {
	cfg := &Config{
		Addr:   env("SERVICE_ADDR", ":8000"),
		AppEnv: env("SERVICE_APP_ENV", "local"),
		Debug:  env("SERVICE_DEBUG", "") != "",

		MongoURI: os.Getenv("SERVICE_MONGODB_URI"),
		DBName:   os.Getenv("SERVICE_DB_NAME"),

		SendGridAPIKey:      os.Getenv("SERVICE_SENDGRID_API_KEY"),
		SendGridFromAddress: os.Getenv("SERVICE_SENDGRID_FROM_ADDRESS"),
		SendGridTemplateID:  os.Getenv("SERVICE_SENDGRID_INVITE_TEMPLATE"),

		TwilioAccountSID: os.Getenv("SERVICE_TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  os.Getenv("SERVICE_TWILIO_AUTH_TOKEN"),
		TwilioFromNumber: os.Getenv("SERVICE_TWILIO_PHONE_NUMBER"),

		UIRoot: env("SERVICE_UI_ROOT", "http://localhost:3000"),
	}

	ttl, err := strconv.Atoi(env("SERVICE_COUPON_TTL_DAYS", "4"))
	if err != nil {
		return nil, fmt.Errorf("invalid SERVICE_COUPON_TTL_DAYS: %w", err)
	}
	cfg.CouponTTLDays = ttl

	for _, req := range []struct{ key, val string }{
		{"SERVICE_MONGODB_URI", cfg.MongoURI},
		{"SERVICE_DB_NAME", cfg.DBName},
	} {
		if req.val == "" {
			return nil, fmt.Errorf("missing required environment variable %s", req.key)
		}
	}
	return cfg, nil
}

// env returns the environment variable value for key, or fallback if empty.
func env(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
