package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown  ErrorCode = 1
	ErrCodeInternal ErrorCode = 2

	// Validation errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeInvalidOrder         ErrorCode = 102
	ErrCodeInvalidQuantity      ErrorCode = 103
	ErrCodeInvalidPrice         ErrorCode = 104
	ErrCodeInvalidSlippageRate  ErrorCode = 105
	ErrCodeInsufficientData     ErrorCode = 106
	ErrCodeInvalidPeriod        ErrorCode = 107
	ErrCodeMissingParameter     ErrorCode = 108
	ErrCodeInvalidVersion       ErrorCode = 109
	ErrCodeInvalidThreshold     ErrorCode = 110
	ErrCodeInvalidType          ErrorCode = 111
	ErrCodeMarketDataRequired   ErrorCode = 112

	// Data/Resource errors (200-299)
	ErrCodeDataNotFound          ErrorCode = 200
	ErrCodeDataSourceUnavailable ErrorCode = 201
	ErrCodeQueryFailed           ErrorCode = 202
	ErrCodeHistoricalDataFailed  ErrorCode = 203
	ErrCodeNoDataFound           ErrorCode = 204

	// Indicator errors (300-399)
	ErrCodeIndicatorNotFound      ErrorCode = 300
	ErrCodeIndicatorAlreadyExists ErrorCode = 301
	ErrCodeIndicatorCalculation   ErrorCode = 302

	// Strategy errors (400-499)
	ErrCodeStrategyNotLoaded    ErrorCode = 400
	ErrCodeStrategyConfigError  ErrorCode = 401
	ErrCodeStrategyRuntimeError ErrorCode = 402
	ErrCodeVersionMismatch      ErrorCode = 403

	// Ledger errors (500-599)
	ErrCodeOrderFailed       ErrorCode = 500
	ErrCodePositionNotFound  ErrorCode = 501
	ErrCodePositionInvariant ErrorCode = 502
	ErrCodePendingMarket     ErrorCode = 503
	ErrCodeMarketDataMissing ErrorCode = 504

	// Engine errors (600-699)
	ErrCodeEngineStateNil      ErrorCode = 600
	ErrCodeEngineInitFailed    ErrorCode = 601
	ErrCodeEngineConfigError   ErrorCode = 602
	ErrCodeEngineDataPathError ErrorCode = 603
	ErrCodeEngineNoStrategies  ErrorCode = 604
	ErrCodeEngineNoConfigs     ErrorCode = 605
	ErrCodeEngineNoDataPaths   ErrorCode = 606
	ErrCodeEngineNoResultsDir  ErrorCode = 607
	ErrCodeEngineNoDatasource  ErrorCode = 608
	ErrCodeRunCancelled        ErrorCode = 609

	// Market data errors (700-799)
	ErrCodeMarketDataFetchFailed ErrorCode = 700
	ErrCodeMarketDataWriteFailed ErrorCode = 701
	ErrCodeMarketDataParseFailed ErrorCode = 702
	ErrCodeInvalidTimespan       ErrorCode = 703
	ErrCodeInvalidProvider       ErrorCode = 704

	// Callback errors (800-899)
	ErrCodeCallbackFailed ErrorCode = 800
)
