package engine

import (
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"github.com/moznion/go-optional"

	"github.com/andgamespace/backtest/internal/engine/engine_v1/commission_fee"
	"github.com/andgamespace/backtest/pkg/errors"
)

// Defaults applied to configuration keys left unset.
const (
	DefaultInitialCapital     float64 = 100000
	DefaultSlippageRate       float64 = 0.0025
	DefaultRiskFreeRate       float64 = 0.02
	DefaultFixedTradeQuantity float64 = 10
	DefaultDecimalPrecision   int     = 1
)

type BacktestEngineV1Config struct {
	InitialCapital float64               `yaml:"initial_capital" json:"initial_capital" jsonschema:"title=Initial Capital,description=Starting capital for the backtest in USD,minimum=0" validate:"gt=0"`
	SlippageRate   float64               `yaml:"slippage_rate" json:"slippage_rate" jsonschema:"title=Slippage Rate,description=Maximum fractional price perturbation applied to fills,minimum=0" validate:"gte=0"`
	RiskFreeRate   float64               `yaml:"risk_free_rate" json:"risk_free_rate" jsonschema:"title=Risk Free Rate,description=Annualized risk-free rate used for excess-return metrics"`
	Broker         commission_fee.Broker `yaml:"broker" json:"broker" jsonschema:"title=Broker,description=The broker to use for commission calculations"`
	// FixedTradeQuantity is the share count each actionable signal is
	// translated into.
	FixedTradeQuantity float64 `yaml:"fixed_trade_quantity" json:"fixed_trade_quantity" jsonschema:"title=Fixed Trade Quantity,description=Share count submitted per actionable signal,minimum=0" validate:"gt=0"`
	DecimalPrecision   int     `yaml:"decimal_precision" json:"decimal_precision" jsonschema:"title=Decimal Precision,description=Number of decimal places order quantities are rounded down to,minimum=0" validate:"gte=0"`
	// MaxDrawdown vetoes new fills once the peak-to-latest equity decline
	// exceeds this fraction. Unset disables the check.
	MaxDrawdown optional.Option[float64] `yaml:"max_drawdown" json:"max_drawdown" jsonschema:"title=Max Drawdown,description=Optional drawdown fraction above which new fills are vetoed"`
	// VolatilityThreshold vetoes fills when the current price deviates from
	// the position entry price by more than this fraction. Unset disables
	// the check.
	VolatilityThreshold optional.Option[float64] `yaml:"volatility_threshold" json:"volatility_threshold" jsonschema:"title=Volatility Threshold,description=Optional fractional price deviation from entry above which fills are vetoed"`
	// SlippageSeed seeds the execution model's random draw. Unset lets every
	// run draw fresh randomness; set it to make fills reproducible.
	SlippageSeed optional.Option[int64]     `yaml:"slippage_seed" json:"slippage_seed" jsonschema:"title=Slippage Seed,description=Optional seed for the slippage random draw"`
	StartTime    optional.Option[time.Time] `yaml:"start_time" json:"start_time" jsonschema:"title=Start Time,description=Optional start time for the backtest period"`
	EndTime      optional.Option[time.Time] `yaml:"end_time" json:"end_time" jsonschema:"title=End Time,description=Optional end time for the backtest period"`
}

// UnmarshalYAML implements custom unmarshaling for BacktestEngineV1Config.
// Omitted keys keep their defaults.
func (c *BacktestEngineV1Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type Config struct {
		InitialCapital      float64               `yaml:"initial_capital"`
		SlippageRate        *float64              `yaml:"slippage_rate"`
		RiskFreeRate        *float64              `yaml:"risk_free_rate"`
		Broker              commission_fee.Broker `yaml:"broker"`
		FixedTradeQuantity  float64               `yaml:"fixed_trade_quantity"`
		DecimalPrecision    *int                  `yaml:"decimal_precision"`
		MaxDrawdown         *float64              `yaml:"max_drawdown"`
		VolatilityThreshold *float64              `yaml:"volatility_threshold"`
		SlippageSeed        *int64                `yaml:"slippage_seed"`
		StartTime           *time.Time            `yaml:"start_time"`
		EndTime             *time.Time            `yaml:"end_time"`
	}

	config := Config{
		InitialCapital:     DefaultInitialCapital,
		Broker:             commission_fee.BrokerZero,
		FixedTradeQuantity: DefaultFixedTradeQuantity,
	}
	if err := unmarshal(&config); err != nil {
		return err
	}

	c.InitialCapital = config.InitialCapital
	c.Broker = config.Broker
	c.FixedTradeQuantity = config.FixedTradeQuantity

	c.SlippageRate = DefaultSlippageRate
	if config.SlippageRate != nil {
		c.SlippageRate = *config.SlippageRate
	}

	c.RiskFreeRate = DefaultRiskFreeRate
	if config.RiskFreeRate != nil {
		c.RiskFreeRate = *config.RiskFreeRate
	}

	c.DecimalPrecision = DefaultDecimalPrecision
	if config.DecimalPrecision != nil {
		c.DecimalPrecision = *config.DecimalPrecision
	}

	c.MaxDrawdown = optional.None[float64]()
	if config.MaxDrawdown != nil {
		c.MaxDrawdown = optional.Some(*config.MaxDrawdown)
	}

	c.VolatilityThreshold = optional.None[float64]()
	if config.VolatilityThreshold != nil {
		c.VolatilityThreshold = optional.Some(*config.VolatilityThreshold)
	}

	c.SlippageSeed = optional.None[int64]()
	if config.SlippageSeed != nil {
		c.SlippageSeed = optional.Some(*config.SlippageSeed)
	}

	c.StartTime = optional.None[time.Time]()
	if config.StartTime != nil {
		c.StartTime = optional.Some(*config.StartTime)
	}

	c.EndTime = optional.None[time.Time]()
	if config.EndTime != nil {
		c.EndTime = optional.Some(*config.EndTime)
	}

	return nil
}

// Validate rejects configurations the engine must not run with. Limit
// violations are fatal at construction rather than clamped.
func (c *BacktestEngineV1Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeEngineConfigError, "invalid backtest config", err)
	}

	if c.MaxDrawdown.IsSome() {
		maxDrawdown := c.MaxDrawdown.Unwrap()
		if maxDrawdown <= 0 || maxDrawdown > 1 {
			return errors.Newf(errors.ErrCodeEngineConfigError, "max_drawdown must be in (0, 1], got %f", maxDrawdown)
		}
	}

	if c.VolatilityThreshold.IsSome() && c.VolatilityThreshold.Unwrap() <= 0 {
		return errors.Newf(errors.ErrCodeEngineConfigError, "volatility_threshold must be positive, got %f", c.VolatilityThreshold.Unwrap())
	}

	if c.StartTime.IsSome() && c.EndTime.IsSome() && !c.StartTime.Unwrap().Before(c.EndTime.Unwrap()) {
		return errors.New(errors.ErrCodeEngineConfigError, "start_time must be before end_time")
	}

	switch c.Broker {
	case commission_fee.BrokerZero, commission_fee.BrokerInteractiveBroker, commission_fee.BrokerCryptoTaker:
	default:
		return errors.Newf(errors.ErrCodeEngineConfigError, "unknown broker %q", c.Broker)
	}

	return nil
}

// GenerateSchema generates a JSON schema for the BacktestEngineV1Config.
func (c *BacktestEngineV1Config) GenerateSchema() (*jsonschema.Schema, error) {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  false,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t.String() == "optional.Option[time.Time]" {
				return &jsonschema.Schema{
					Type:   "string",
					Format: "date-time",
				}
			}
			if t.String() == "optional.Option[float64]" {
				return &jsonschema.Schema{
					Type: "number",
				}
			}
			if t.String() == "optional.Option[int64]" {
				return &jsonschema.Schema{
					Type: "integer",
				}
			}
			if strings.Contains(t.String(), "commission_fee.Broker") {
				return &jsonschema.Schema{
					Type: "string",
					Enum: commission_fee.AllBrokers,
				}
			}

			return nil
		},
	}

	schema := reflector.Reflect(c)

	schema.Title = "backtest-engine-v1-config"
	schema.Description = "Configuration schema for BacktestEngineV1"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	return schema, nil
}

// GenerateSchemaJSON generates a JSON schema string for the BacktestEngineV1Config.
func (c *BacktestEngineV1Config) GenerateSchemaJSON() (string, error) {
	schema, err := c.GenerateSchema()
	if err != nil {
		return "", err
	}

	schemaBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", err
	}

	return string(schemaBytes), nil
}

// TestConfig returns a config suitable for tests, with zero friction.
func TestConfig(startTime time.Time, endTime time.Time, broker commission_fee.Broker) BacktestEngineV1Config {
	config := EmptyConfig()
	config.InitialCapital = 10000
	config.SlippageRate = 0
	config.Broker = broker
	config.StartTime = optional.Some(startTime)
	config.EndTime = optional.Some(endTime)

	return config
}

// EmptyConfig returns a BacktestEngineV1Config with default values.
func EmptyConfig() BacktestEngineV1Config {
	return BacktestEngineV1Config{
		InitialCapital:      DefaultInitialCapital,
		SlippageRate:        DefaultSlippageRate,
		RiskFreeRate:        DefaultRiskFreeRate,
		Broker:              commission_fee.BrokerZero,
		FixedTradeQuantity:  DefaultFixedTradeQuantity,
		DecimalPrecision:    DefaultDecimalPrecision,
		MaxDrawdown:         optional.None[float64](),
		VolatilityThreshold: optional.None[float64](),
		SlippageSeed:        optional.None[int64](),
		StartTime:           optional.None[time.Time](),
		EndTime:             optional.None[time.Time](),
	}
}
