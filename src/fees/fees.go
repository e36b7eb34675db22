// Package fees holds the per-exchange fee schedule. Rates come from a YAML
// file so the maker/taker selection rule stays configurable instead of being
// baked into each exchange adapter.
package fees

import (
	"fmt"
	"os"
	"strings"

	logger "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	FeeTypeMaker = "maker"
	FeeTypeTaker = "taker"

	// defaultRate is applied when an exchange is missing from the table: 0.1%.
	defaultRate = 0.001
)

// exchangeFees is the YAML shape for one exchange entry. Rates are given in
// percent (0.1 means 0.1%).
type exchangeFees struct {
	MakerFee float64 `yaml:"maker_fee"`
	TakerFee float64 `yaml:"taker_fee"`
	// FeeType overrides the table default for this exchange only.
	FeeType string `yaml:"fee_type,omitempty"`
}

type fileSchema struct {
	DefaultFeeType string                  `yaml:"default_fee_type"`
	Exchanges      map[string]exchangeFees `yaml:"exchanges"`
}

// Table resolves the fee rate applied to each executed leg of a trade.
type Table struct {
	defaultFeeType string
	exchanges      map[string]exchangeFees
}

// Load reads the fee schedule from a YAML file.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fee config: %w", err)
	}
	return Parse(data)
}

// Parse builds a Table from raw YAML.
func Parse(data []byte) (*Table, error) {
	var schema fileSchema
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("parse fee config: %w", err)
	}

	feeType := strings.ToLower(schema.DefaultFeeType)
	if feeType != FeeTypeMaker && feeType != FeeTypeTaker {
		feeType = FeeTypeTaker
	}

	exchanges := make(map[string]exchangeFees, len(schema.Exchanges))
	for name, fees := range schema.Exchanges {
		exchanges[strings.ToLower(name)] = fees
	}

	return &Table{defaultFeeType: feeType, exchanges: exchanges}, nil
}

// Default returns a table with no per-exchange entries; every lookup falls
// back to the 0.1% taker rate.
func Default() *Table {
	return &Table{defaultFeeType: FeeTypeTaker, exchanges: map[string]exchangeFees{}}
}

// Rate returns the decimal fee rate for one leg on the given exchange,
// honoring the exchange-specific fee-type override when present.
func (t *Table) Rate(exchange string) float64 {
	fees, ok := t.exchanges[strings.ToLower(exchange)]
	if !ok {
		logger.WithField("exchange", exchange).
			Debug("No fee entry for exchange, using default rate")
		return defaultRate
	}

	feeType := t.defaultFeeType
	if override := strings.ToLower(fees.FeeType); override == FeeTypeMaker || override == FeeTypeTaker {
		feeType = override
	}

	percent := fees.TakerFee
	if feeType == FeeTypeMaker {
		percent = fees.MakerFee
	}
	return percent / 100
}
