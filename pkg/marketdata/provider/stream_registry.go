package provider

import (
	"github.com/andgamespace/backtest/pkg/errors"
)

// GetStreamConfigSchema returns the JSON schema for a provider's streaming configuration.
func GetStreamConfigSchema(providerName string) (string, error) {
	switch ProviderType(providerName) {
	case ProviderPolygon:
		//nolint:exhaustruct // empty struct is intentional for schema generation
		return ToJSONSchema(PolygonStreamConfig{})
	case ProviderBinance:
		//nolint:exhaustruct // empty struct is intentional for schema generation
		return ToJSONSchema(BinanceStreamConfig{})
	default:
		return "", errors.Newf(errors.ErrCodeInvalidProvider, "unsupported market data provider: %s", providerName)
	}
}

// ParseStreamConfig parses a JSON configuration string for the given streaming provider.
func ParseStreamConfig(providerName string, jsonConfig string) (any, error) {
	switch ProviderType(providerName) {
	case ProviderPolygon:
		return ParsePolygonStreamConfig(jsonConfig)
	case ProviderBinance:
		return ParseBinanceStreamConfig(jsonConfig)
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidProvider, "unsupported market data provider: %s", providerName)
	}
}
