package report

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Timezone is the reporting timezone. Day boundaries for the daily
	// report are computed in this zone, never in the storage zone.
	Timezone string `envconfig:"REPORT_TIMEZONE" default:"UTC"`

	// DailyAt is the local wall-clock time (HH:MM) the scheduler fires.
	DailyAt string `envconfig:"REPORT_DAILY_AT" default:"23:59"`

	SchedulerEnabled bool `envconfig:"REPORT_SCHEDULER_ENABLED" default:"true"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
