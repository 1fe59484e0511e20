package farm

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ModuleName identifies the farm in pause sets.
const ModuleName = "farm"

var (
	// Precision scales AccRewardPerShare.
	Precision = big.NewInt(1_000_000_000_000_000_000)
	// FixedPointOne is 1.0 for the split factors.
	FixedPointOne = big.NewInt(1_000_000_000_000_000_000)
)

// DefaultBonusMultiplier applies to blocks before BonusEndBlock.
const DefaultBonusMultiplier = 10

// GlobalConfig holds the economic parameters shared by every pool.
type GlobalConfig struct {
	RewardToken           common.Address
	RewardPerBlock        *big.Int
	RewardStartBlock      uint64
	BonusEndBlock         uint64
	BonusMultiplier       uint64
	InternalSwapThreshold *big.Int
	FundingSplitFactor    *big.Int
	AcquisitionSplit      *big.Int
	DevAddress            common.Address
	Admin                 common.Address
}

// DefaultConfig returns a config with the default multiplier and an even
// acquisition split. Token and addresses are left for the caller.
func DefaultConfig() GlobalConfig {
	return GlobalConfig{
		RewardPerBlock:        big.NewInt(0),
		BonusMultiplier:       DefaultBonusMultiplier,
		InternalSwapThreshold: big.NewInt(0),
		FundingSplitFactor:    new(big.Int).Rsh(FixedPointOne, 1),
		AcquisitionSplit:      new(big.Int).Rsh(FixedPointOne, 1),
	}
}

// Clone returns a deep copy of the config.
func (c GlobalConfig) Clone() GlobalConfig {
	clone := c
	clone.RewardPerBlock = cloneBig(c.RewardPerBlock)
	clone.InternalSwapThreshold = cloneBig(c.InternalSwapThreshold)
	clone.FundingSplitFactor = cloneBig(c.FundingSplitFactor)
	clone.AcquisitionSplit = cloneBig(c.AcquisitionSplit)
	return clone
}

// Validate checks parameter ranges.
func (c GlobalConfig) Validate() error {
	if c.RewardToken == (common.Address{}) {
		return fmt.Errorf("%w: reward token required", ErrInvalidParams)
	}
	if c.Admin == (common.Address{}) {
		return fmt.Errorf("%w: admin required", ErrInvalidParams)
	}
	if c.DevAddress == (common.Address{}) {
		return fmt.Errorf("%w: dev address required", ErrInvalidParams)
	}
	if c.RewardPerBlock == nil || c.RewardPerBlock.Sign() < 0 {
		return fmt.Errorf("%w: reward per block must not be negative", ErrInvalidParams)
	}
	if c.InternalSwapThreshold == nil || c.InternalSwapThreshold.Sign() < 0 {
		return fmt.Errorf("%w: internal swap threshold must not be negative", ErrInvalidParams)
	}
	if err := validateFraction("funding split factor", c.FundingSplitFactor); err != nil {
		return err
	}
	if err := validateAcquisitionSplit(c.AcquisitionSplit); err != nil {
		return err
	}
	if c.BonusMultiplier == 0 {
		return fmt.Errorf("%w: bonus multiplier must be at least 1", ErrInvalidParams)
	}
	return nil
}

func validateFraction(name string, v *big.Int) error {
	if v == nil || v.Sign() < 0 || v.Cmp(FixedPointOne) > 0 {
		return fmt.Errorf("%w: %s must be within [0, 1e18]", ErrInvalidParams, name)
	}
	return nil
}

// validateAcquisitionSplit requires both liquidity legs of an internal
// deposit to be non-empty.
func validateAcquisitionSplit(v *big.Int) error {
	if v == nil || v.Sign() <= 0 || v.Cmp(FixedPointOne) >= 0 {
		return fmt.Errorf("%w: acquisition split must be within (0, 1e18)", ErrInvalidParams)
	}
	return nil
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
