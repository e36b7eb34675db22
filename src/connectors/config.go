package connectors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	HTTPTimeout time.Duration `envconfig:"EXCHANGE_HTTP_TIMEOUT" default:"10s"`

	BinanceBaseURL string `envconfig:"BINANCE_BASE_URL" default:"https://api.binance.com"`
	BybitBaseURL   string `envconfig:"BYBIT_BASE_URL" default:"https://api.bybit.com"`
	OKXBaseURL     string `envconfig:"OKX_BASE_URL" default:"https://www.okx.com"`
	GateioBaseURL  string `envconfig:"GATEIO_BASE_URL" default:"https://api.gateio.ws"`
	KucoinBaseURL  string `envconfig:"KUCOIN_BASE_URL" default:"https://api.kucoin.com"`
	MexcBaseURL    string `envconfig:"MEXC_BASE_URL" default:"https://api.mexc.com"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
