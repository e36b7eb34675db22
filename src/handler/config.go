package handler

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// WebhookSecret must match the X-Webhook-Secret header on inbound
	// signals. Empty disables the check (local development only).
	WebhookSecret string `envconfig:"WEBHOOK_SECRET"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
