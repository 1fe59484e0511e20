package config

// LogConfig controls the structured logger and optional file rotation.
type LogConfig struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// TelemetryConfig toggles the OTLP exporters and the prometheus endpoint.
type TelemetryConfig struct {
	Enabled            bool              `toml:"Enabled"`
	OTLPEndpoint       string            `toml:"OTLPEndpoint"`
	Insecure           bool              `toml:"Insecure"`
	Headers            map[string]string `toml:"Headers"`
	SampleRatio        float64           `toml:"SampleRatio"`
	MetricIntervalSecs int               `toml:"MetricIntervalSecs"`
	MetricsPath        string            `toml:"MetricsPath"`
}

// AuthConfig configures bearer token verification for write routes.
type AuthConfig struct {
	Enabled             bool   `toml:"Enabled"`
	HMACSecret          string `toml:"HMACSecret"`
	HMACSecretEnv       string `toml:"HMACSecretEnv"`
	Issuer              string `toml:"Issuer"`
	Audience            string `toml:"Audience"`
	ClockSkewSecs       int    `toml:"ClockSkewSecs"`
	AllowAnonymousReads bool   `toml:"AllowAnonymousReads"`
}

// RateLimitConfig bounds requests per client.
type RateLimitConfig struct {
	RequestsPerMinute int `toml:"RequestsPerMinute"`
	Burst             int `toml:"Burst"`
}

// CORSConfig lists browser origins allowed to call the API. Empty allows
// any origin.
type CORSConfig struct {
	AllowedOrigins []string `toml:"AllowedOrigins"`
	MaxAgeSecs     int      `toml:"MaxAgeSecs"`
}

// ExplorerConfig selects the event index database.
type ExplorerConfig struct {
	Driver string `toml:"Driver"`
	DSN    string `toml:"DSN"`
}

// FarmConfig carries the farm economics. Amounts are decimal strings so
// 18-decimal values survive TOML.
type FarmConfig struct {
	RewardToken           string `toml:"RewardToken"`
	RewardPerBlock        string `toml:"RewardPerBlock"`
	RewardStartBlock      uint64 `toml:"RewardStartBlock"`
	BonusEndBlock         uint64 `toml:"BonusEndBlock"`
	BonusMultiplier       uint64 `toml:"BonusMultiplier"`
	InternalSwapThreshold string `toml:"InternalSwapThreshold"`
	FundingSplitFactor    string `toml:"FundingSplitFactor"`
	AcquisitionSplit      string `toml:"AcquisitionSplit"`
	DevAddress            string `toml:"DevAddress"`
	Admin                 string `toml:"Admin"`
	// OperatorPause halts deposits and withdrawals at startup regardless
	// of the on-ledger pause flag.
	OperatorPause         bool   `toml:"OperatorPause"`
}
