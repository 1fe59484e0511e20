package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	ListenAddress    string `toml:"ListenAddress"`
	DataDir          string `toml:"DataDir"`
	StorageBackend   string `toml:"StorageBackend"`
	GenesisFile      string `toml:"GenesisFile"`
	Environment      string `toml:"Environment"`
	BlockIntervalMs  uint64 `toml:"BlockIntervalMs"`
	ReadTimeoutSecs  int    `toml:"ReadTimeoutSecs"`
	WriteTimeoutSecs int    `toml:"WriteTimeoutSecs"`
	IdleTimeoutSecs  int    `toml:"IdleTimeoutSecs"`

	Log       LogConfig       `toml:"log"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Auth      AuthConfig      `toml:"auth"`
	RateLimit RateLimitConfig `toml:"ratelimit"`
	CORS      CORSConfig      `toml:"cors"`
	Explorer  ExplorerConfig  `toml:"explorer"`
	Farm      FarmConfig      `toml:"farm"`
}

// Load loads the configuration from the given path. A missing file is
// replaced by the default configuration, which is written to path.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used for a fresh local node.
func Default() *Config {
	return &Config{
		ListenAddress:    ":8080",
		DataDir:          "./xfarm-data",
		StorageBackend:   "leveldb",
		GenesisFile:      "genesis.yaml",
		Environment:      "local",
		BlockIntervalMs:  2000,
		ReadTimeoutSecs:  15,
		WriteTimeoutSecs: 15,
		IdleTimeoutSecs:  60,
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 14,
		},
		Telemetry: TelemetryConfig{
			SampleRatio:        1,
			MetricIntervalSecs: 15,
			MetricsPath:        "/metrics",
		},
		Auth: AuthConfig{
			HMACSecretEnv:       "XFARM_JWT_SECRET",
			Issuer:              "xfarm",
			ClockSkewSecs:       30,
			AllowAnonymousReads: true,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 600,
			Burst:             60,
		},
		CORS: CORSConfig{
			MaxAgeSecs: 600,
		},
		Explorer: ExplorerConfig{
			Driver: "sqlite",
			DSN:    "explorer.db",
		},
		Farm: defaultFarm(),
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func (c *Config) normalize() {
	c.StorageBackend = strings.ToLower(strings.TrimSpace(c.StorageBackend))
	c.Explorer.Driver = strings.ToLower(strings.TrimSpace(c.Explorer.Driver))
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Farm.RewardToken = strings.ToUpper(strings.TrimSpace(c.Farm.RewardToken))
	if strings.TrimSpace(c.Telemetry.MetricsPath) == "" {
		c.Telemetry.MetricsPath = "/metrics"
	}
}

// ResolvePath interprets p relative to the data directory unless it is
// absolute.
func (c *Config) ResolvePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir, p)
}
