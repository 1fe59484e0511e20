package config

import (
	"fmt"
	"math/big"
	"strings"

	"xfarm/native/farm"
)

var (
	MinBlockIntervalMs = uint64(100)
)

// Validate checks the ranges that can be verified without the genesis token
// table. Farm addresses and the reward token are checked by FarmConfig.Params.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("ListenAddress must be set")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("DataDir must be set")
	}
	switch c.StorageBackend {
	case "leveldb", "bolt", "memory":
	default:
		return fmt.Errorf("StorageBackend: unsupported backend %q", c.StorageBackend)
	}
	if c.BlockIntervalMs < MinBlockIntervalMs {
		return fmt.Errorf("BlockIntervalMs must be at least %d", MinBlockIntervalMs)
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log: unsupported level %q", c.Log.Level)
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: SampleRatio must be within [0, 1]")
	}
	if c.RateLimit.RequestsPerMinute < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("ratelimit: values must not be negative")
	}
	if c.Auth.Enabled && strings.TrimSpace(c.Auth.HMACSecret) == "" && strings.TrimSpace(c.Auth.HMACSecretEnv) == "" {
		return fmt.Errorf("auth: HMACSecret or HMACSecretEnv required when enabled")
	}
	if c.CORS.MaxAgeSecs < 0 {
		return fmt.Errorf("cors: MaxAgeSecs must not be negative")
	}
	switch c.Explorer.Driver {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("explorer: unsupported driver %q", c.Explorer.Driver)
	}
	return c.Farm.validate()
}

func (f FarmConfig) validate() error {
	if strings.TrimSpace(f.RewardToken) == "" {
		return fmt.Errorf("farm: RewardToken must be set")
	}
	if f.BonusEndBlock != 0 && f.BonusEndBlock < f.RewardStartBlock {
		return fmt.Errorf("farm: BonusEndBlock before RewardStartBlock")
	}
	factor, err := parseUintAmount(f.FundingSplitFactor, big.NewInt(0))
	if err != nil {
		return fmt.Errorf("farm.FundingSplitFactor: %w", err)
	}
	if factor.Cmp(farm.FixedPointOne) > 0 {
		return fmt.Errorf("farm.FundingSplitFactor must not exceed %s", farm.FixedPointOne)
	}
	if strings.TrimSpace(f.AcquisitionSplit) != "" {
		split, err := parseUintAmount(f.AcquisitionSplit, big.NewInt(0))
		if err != nil {
			return fmt.Errorf("farm.AcquisitionSplit: %w", err)
		}
		if split.Sign() == 0 || split.Cmp(farm.FixedPointOne) >= 0 {
			return fmt.Errorf("farm.AcquisitionSplit must be between 0 and %s exclusive", farm.FixedPointOne)
		}
	}
	for name, value := range map[string]string{
		"RewardPerBlock":        f.RewardPerBlock,
		"InternalSwapThreshold": f.InternalSwapThreshold,
	} {
		if _, err := parseUintAmount(value, big.NewInt(0)); err != nil {
			return fmt.Errorf("farm.%s: %w", name, err)
		}
	}
	return nil
}

// HMACSecretValue returns the configured secret, preferring the inline value.
func (a AuthConfig) HMACSecretValue(getenv func(string) string) string {
	if secret := strings.TrimSpace(a.HMACSecret); secret != "" {
		return secret
	}
	if getenv == nil || strings.TrimSpace(a.HMACSecretEnv) == "" {
		return ""
	}
	return strings.TrimSpace(getenv(a.HMACSecretEnv))
}
