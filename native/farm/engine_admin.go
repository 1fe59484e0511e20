package farm

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"xfarm/core/events"
	"xfarm/crypto"
)

func (e *Engine) requireAdmin(caller common.Address) (GlobalConfig, error) {
	cfg, err := e.registry().config()
	if err != nil {
		return GlobalConfig{}, err
	}
	if caller != cfg.Admin {
		return GlobalConfig{}, ErrUnauthorized
	}
	return cfg, nil
}

// Params returns a copy of the stored global config.
func (e *Engine) Params() (GlobalConfig, error) {
	if e == nil || e.state == nil {
		return GlobalConfig{}, errNilState
	}
	return e.registry().config()
}

func (e *Engine) RewardPerBlock() (*big.Int, error) {
	cfg, err := e.Params()
	if err != nil {
		return nil, err
	}
	return cfg.RewardPerBlock, nil
}

func (e *Engine) FundingSplitFactor() (*big.Int, error) {
	cfg, err := e.Params()
	if err != nil {
		return nil, err
	}
	return cfg.FundingSplitFactor, nil
}

func (e *Engine) InternalSwapThreshold() (*big.Int, error) {
	cfg, err := e.Params()
	if err != nil {
		return nil, err
	}
	return cfg.InternalSwapThreshold, nil
}

// updateParams applies mutate to the config of an authorised caller and
// records the change.
func (e *Engine) updateParams(op, param string, caller common.Address, authorise func(GlobalConfig) error, mutate func(*GlobalConfig) (string, error)) error {
	return e.call(op, func() error {
		cfg, err := e.registry().config()
		if err != nil {
			return err
		}
		if err := authorise(cfg); err != nil {
			return err
		}
		value, err := mutate(&cfg)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := e.registry().putConfig(cfg); err != nil {
			return err
		}
		e.emit(events.FarmParamsUpdated{Height: e.height(), Caller: caller, Param: param, Value: value})
		e.logger.Info("farm: params updated", "param", param, "value", value)
		return nil
	})
}

func adminOnly(caller common.Address) func(GlobalConfig) error {
	return func(cfg GlobalConfig) error {
		if caller != cfg.Admin {
			return ErrUnauthorized
		}
		return nil
	}
}

// SetRewardPerBlock changes the emission rate. Every pool is settled at the
// old rate first.
func (e *Engine) SetRewardPerBlock(caller common.Address, rate *big.Int) error {
	return e.updateParams("set_reward_per_block", "rewardPerBlock", caller, adminOnly(caller), func(cfg *GlobalConfig) (string, error) {
		if rate == nil || rate.Sign() < 0 {
			return "", fmt.Errorf("%w: reward per block must not be negative", ErrInvalidParams)
		}
		if err := e.settleAll(); err != nil {
			return "", err
		}
		cfg.RewardPerBlock = new(big.Int).Set(rate)
		return rate.String(), nil
	})
}

// SetFundingSplitFactor sets the fraction of funding retained by the
// treasury, scaled by FixedPointOne.
func (e *Engine) SetFundingSplitFactor(caller common.Address, factor *big.Int) error {
	return e.updateParams("set_funding_split", "fundingSplitFactor", caller, adminOnly(caller), func(cfg *GlobalConfig) (string, error) {
		if err := validateFraction("funding split factor", factor); err != nil {
			return "", err
		}
		cfg.FundingSplitFactor = new(big.Int).Set(factor)
		return factor.String(), nil
	})
}

// SetAcquisitionSplit sets the fraction of an internal deposit sold to the
// treasury, scaled by FixedPointOne.
func (e *Engine) SetAcquisitionSplit(caller common.Address, split *big.Int) error {
	return e.updateParams("set_acquisition_split", "acquisitionSplit", caller, adminOnly(caller), func(cfg *GlobalConfig) (string, error) {
		if err := validateAcquisitionSplit(split); err != nil {
			return "", err
		}
		cfg.AcquisitionSplit = new(big.Int).Set(split)
		return split.String(), nil
	})
}

// SetInternalSwapThreshold sets the treasury balance at which deposits use
// the internal path.
func (e *Engine) SetInternalSwapThreshold(caller common.Address, threshold *big.Int) error {
	return e.updateParams("set_threshold", "internalSwapThreshold", caller, adminOnly(caller), func(cfg *GlobalConfig) (string, error) {
		if threshold == nil || threshold.Sign() < 0 {
			return "", fmt.Errorf("%w: threshold must not be negative", ErrInvalidParams)
		}
		cfg.InternalSwapThreshold = new(big.Int).Set(threshold)
		return threshold.String(), nil
	})
}

// SetDevAddress hands the dev share to next. Only the current dev address
// may call it.
func (e *Engine) SetDevAddress(caller, next common.Address) error {
	authorise := func(cfg GlobalConfig) error {
		if caller != cfg.DevAddress {
			return ErrUnauthorized
		}
		return nil
	}
	return e.updateParams("set_dev", "devAddress", caller, authorise, func(cfg *GlobalConfig) (string, error) {
		if next == (common.Address{}) {
			return "", fmt.Errorf("%w: dev address required", ErrInvalidParams)
		}
		cfg.DevAddress = next
		return crypto.FromCommon(next).String(), nil
	})
}

// TransferAdmin hands administration to next.
func (e *Engine) TransferAdmin(caller, next common.Address) error {
	return e.updateParams("transfer_admin", "admin", caller, adminOnly(caller), func(cfg *GlobalConfig) (string, error) {
		if next == (common.Address{}) {
			return "", fmt.Errorf("%w: admin required", ErrInvalidParams)
		}
		cfg.Admin = next
		return crypto.FromCommon(next).String(), nil
	})
}

// SetPaused toggles the admin pause flag. Paused farms reject deposits and
// withdrawals except EmergencyWithdraw.
func (e *Engine) SetPaused(caller common.Address, paused bool) error {
	return e.call("set_paused", func() error {
		if _, err := e.requireAdmin(caller); err != nil {
			return err
		}
		if err := e.state.KVPut(pausedKey, paused); err != nil {
			return err
		}
		e.emit(events.FarmParamsUpdated{
			Height: e.height(),
			Caller: caller,
			Param:  "paused",
			Value:  strconv.FormatBool(paused),
		})
		return nil
	})
}

// AdminWithdrawReserve moves amount of reward token from the treasury to
// the admin.
func (e *Engine) AdminWithdrawReserve(caller common.Address, amount *big.Int) error {
	return e.call("withdraw_reserve", func() error {
		cfg, err := e.requireAdmin(caller)
		if err != nil {
			return err
		}
		if amount == nil || amount.Sign() <= 0 {
			return ErrZeroAmount
		}
		t := treasury{cfg: cfg, state: e.state, address: e.module}
		if err := t.withdraw(caller, amount); err != nil {
			return err
		}
		e.emit(events.FarmReserveWithdrawn{Height: e.height(), Admin: caller, Amount: new(big.Int).Set(amount)})
		e.logger.Info("farm: reserve withdrawn", "amount", amount.String())
		return nil
	})
}
