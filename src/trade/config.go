package trade

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// ValidationMode is the deployment-wide rule-check policy: "strict"
	// rejects violating signals, "lenient" records them with warnings.
	ValidationMode string `envconfig:"VALIDATION_MODE" default:"strict"`

	// FeeConfigPath points at the YAML fee schedule. Empty means the
	// built-in 0.1% taker default for every exchange.
	FeeConfigPath string `envconfig:"FEE_CONFIG_PATH"`

	// Paused stops the engine from acting on any signal.
	Paused bool `envconfig:"PAUSED" default:"false"`

	// IgnoredPairs lists BASE/QUOTE pairs to skip, comma separated.
	IgnoredPairs []string `envconfig:"IGNORED_PAIRS"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
