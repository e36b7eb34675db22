package pricing

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// RuleCacheTTL bounds how long a cached symbol rule may be served
	// before a live refetch replaces it.
	RuleCacheTTL time.Duration `envconfig:"RULE_CACHE_TTL" default:"15m"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
