package notify

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Enabled turns Telegram delivery on. Disabled keeps the notifier as a
	// no-op, which is what tests and local runs want.
	Enabled bool   `envconfig:"TELEGRAM_ENABLED" default:"false"`
	Token   string `envconfig:"TELEGRAM_TOKEN"`
	ChatID  int64  `envconfig:"TELEGRAM_CHAT_ID"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
