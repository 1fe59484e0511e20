package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"xfarm/crypto"
	"xfarm/native/farm"
)

func defaultFarm() FarmConfig {
	return FarmConfig{
		RewardToken:           "XFIT",
		RewardPerBlock:        "100000000000000000000",
		BonusMultiplier:       farm.DefaultBonusMultiplier,
		InternalSwapThreshold: "5000000000000000000000",
		FundingSplitFactor:    "500000000000000000",
		AcquisitionSplit:      "500000000000000000",
	}
}

// TokenLookup resolves a token symbol to its ledger address.
type TokenLookup func(symbol string) (common.Address, bool)

// Params parses the configured farm economics into the engine config.
func (f FarmConfig) Params(lookup TokenLookup) (farm.GlobalConfig, error) {
	cfg := farm.DefaultConfig()
	if lookup == nil {
		return cfg, fmt.Errorf("farm: token lookup required")
	}
	token, ok := lookup(strings.ToUpper(strings.TrimSpace(f.RewardToken)))
	if !ok {
		return cfg, fmt.Errorf("farm.RewardToken: unknown token %q", f.RewardToken)
	}
	cfg.RewardToken = token
	cfg.RewardStartBlock = f.RewardStartBlock
	cfg.BonusEndBlock = f.BonusEndBlock
	if f.BonusMultiplier != 0 {
		cfg.BonusMultiplier = f.BonusMultiplier
	}

	var err error
	if cfg.RewardPerBlock, err = parseUintAmount(f.RewardPerBlock, cfg.RewardPerBlock); err != nil {
		return cfg, fmt.Errorf("invalid farm.RewardPerBlock: %w", err)
	}
	if cfg.InternalSwapThreshold, err = parseUintAmount(f.InternalSwapThreshold, cfg.InternalSwapThreshold); err != nil {
		return cfg, fmt.Errorf("invalid farm.InternalSwapThreshold: %w", err)
	}
	if cfg.FundingSplitFactor, err = parseUintAmount(f.FundingSplitFactor, cfg.FundingSplitFactor); err != nil {
		return cfg, fmt.Errorf("invalid farm.FundingSplitFactor: %w", err)
	}
	if cfg.AcquisitionSplit, err = parseUintAmount(f.AcquisitionSplit, cfg.AcquisitionSplit); err != nil {
		return cfg, fmt.Errorf("invalid farm.AcquisitionSplit: %w", err)
	}
	if cfg.DevAddress, err = crypto.ParseAddress(f.DevAddress); err != nil {
		return cfg, fmt.Errorf("invalid farm.DevAddress: %w", err)
	}
	if cfg.Admin, err = crypto.ParseAddress(f.Admin); err != nil {
		return cfg, fmt.Errorf("invalid farm.Admin: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// parseUintAmount parses a non-negative decimal string. Empty values yield
// fallback.
func parseUintAmount(value string, fallback *big.Int) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return new(big.Int).Set(fallback), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}
