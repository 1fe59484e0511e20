package farm

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"xfarm/core/events"
)

func nonNegative(v *big.Int) (*big.Int, error) {
	if v == nil {
		return big.NewInt(0), nil
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative amount", ErrInvalidParams)
	}
	return v, nil
}

// DepositSingleAsset converts amount of the pool input token into pool
// shares and stakes them for caller. The caller must have approved the
// module address for amount. Any reward owed to caller is paid after the
// stake is recorded.
func (e *Engine) DepositSingleAsset(caller common.Address, id uint64, amount, minSharesOut *big.Int) (*big.Int, error) {
	var shares *big.Int
	err := e.call("deposit_single", func() error {
		if err := e.guard(); err != nil {
			return err
		}
		if amount == nil || amount.Sign() <= 0 {
			return ErrZeroAmount
		}
		cfg, pool, err := e.settled(id)
		if err != nil {
			return err
		}
		pc, err := e.resolve(cfg, pool)
		if err != nil {
			return err
		}
		if _, err := e.ledger().checkpoint(pool, caller); err != nil {
			return err
		}
		if err := e.state.TransferFrom(pool.InputToken, e.module, caller, e.module, amount); err != nil {
			return err
		}
		source, err := pc.router.Select()
		if err != nil {
			return err
		}
		e.logger.Debug("farm: route selected", "pool", id, "path", source.Path().String(), "op", "deposit")
		quote, err := pc.router.acquire(source, amount)
		if err != nil {
			return err
		}
		height := e.height()
		if quote.Path == PathInternal {
			e.emit(events.InternalSwap{Height: height, PoolID: id, Sender: caller, TokensBought: quote.AmountOut})
		} else {
			e.emit(events.SwapTokens{
				Height:    height,
				PoolID:    id,
				Sender:    caller,
				Amount:    quote.AmountIn,
				FromToken: pool.InputToken,
				ToToken:   cfg.RewardToken,
			})
		}
		minted, err := pc.converter.mintFromSingleAsset(caller, quote.Remaining, quote.AmountOut, minSharesOut)
		if err != nil {
			return err
		}
		if quote.Path == PathInternal {
			if err := e.fund(pc, caller, quote.Funding); err != nil {
				return err
			}
		}
		// Transfers above may have re-entered the engine.
		reg := e.registry()
		pool, err = reg.pool(id)
		if err != nil {
			return err
		}
		if err := e.ledger().deposit(pool, caller, minted.Shares); err != nil {
			return err
		}
		if err := reg.putPool(pool); err != nil {
			return err
		}
		e.emit(events.FarmDeposit{
			Height:  height,
			PoolID:  id,
			Account: caller,
			Input:   amount,
			Shares:  minted.Shares,
			Path:    quote.Path.String(),
		})
		shares = minted.Shares
		return e.payReward(cfg, id, caller)
	})
	if err != nil {
		return nil, err
	}
	return shares, nil
}

// fund hands amount of input to the treasury split and records the result.
func (e *Engine) fund(pc *poolContext, caller common.Address, amount *big.Int) error {
	res, err := pc.treasury.fund(pc.pair, pc.pool.InputToken, amount)
	if err != nil {
		return err
	}
	e.recordFunding(pc, caller, res)
	return nil
}

// recordFunding emits SWAP_TOKENS followed by the funding breakdown for every
// internal-path funding. The SWAP_TOKENS amount is the continuous part handed
// to the treasury buyback, not the acquisition half; it is emitted even when
// that part is zero or too small to buy anything.
func (e *Engine) recordFunding(pc *poolContext, caller common.Address, res *fundingResult) {
	height := e.height()
	e.emit(events.SwapTokens{
		Height:    height,
		PoolID:    pc.pool.ID,
		Sender:    caller,
		Amount:    res.Continuous,
		FromToken: pc.pool.InputToken,
		ToToken:   pc.cfg.RewardToken,
	})
	e.emit(events.FarmFunding{
		Height:     height,
		PoolID:     pc.pool.ID,
		Token:      pc.pool.InputToken,
		Continuous: res.Continuous,
		Dev:        res.Dev,
		DevAddress: pc.cfg.DevAddress,
		Bought:     res.Bought,
	})
}

// DepositShares stakes pool shares the caller already holds. Zero shares
// only pays the owed reward.
func (e *Engine) DepositShares(caller common.Address, id uint64, shares *big.Int) error {
	return e.call("deposit_shares", func() error {
		if err := e.guard(); err != nil {
			return err
		}
		shares, err := nonNegative(shares)
		if err != nil {
			return err
		}
		cfg, pool, err := e.settled(id)
		if err != nil {
			return err
		}
		if _, err := e.ledger().checkpoint(pool, caller); err != nil {
			return err
		}
		if shares.Sign() > 0 {
			if err := e.state.TransferFrom(pool.ShareToken, e.module, caller, e.module, shares); err != nil {
				return err
			}
			reg := e.registry()
			pool, err = reg.pool(id)
			if err != nil {
				return err
			}
			if err := e.ledger().deposit(pool, caller, shares); err != nil {
				return err
			}
			if err := reg.putPool(pool); err != nil {
				return err
			}
			e.emit(events.FarmDeposit{
				Height:  e.height(),
				PoolID:  id,
				Account: caller,
				Shares:  new(big.Int).Set(shares),
			})
		}
		return e.payReward(cfg, id, caller)
	})
}

// WithdrawShares unstakes shares and returns them to caller together with
// the owed reward. Zero shares only pays the owed reward.
func (e *Engine) WithdrawShares(caller common.Address, id uint64, shares *big.Int) error {
	return e.call("withdraw_shares", func() error {
		if err := e.guard(); err != nil {
			return err
		}
		shares, err := nonNegative(shares)
		if err != nil {
			return err
		}
		cfg, pool, err := e.settled(id)
		if err != nil {
			return err
		}
		if err := e.ledger().withdraw(pool, caller, shares); err != nil {
			return err
		}
		if err := e.registry().putPool(pool); err != nil {
			return err
		}
		if shares.Sign() > 0 {
			if err := e.state.Transfer(pool.ShareToken, e.module, caller, shares); err != nil {
				return err
			}
			e.emit(events.FarmWithdraw{
				Height:  e.height(),
				PoolID:  id,
				Account: caller,
				Shares:  new(big.Int).Set(shares),
			})
		}
		return e.payReward(cfg, id, caller)
	})
}

// WithdrawAsSingleAsset unstakes shares, burns them and pays caller in the
// reward token. The returned amount excludes the farming reward, which is
// paid separately.
func (e *Engine) WithdrawAsSingleAsset(caller common.Address, id uint64, shares, minOut *big.Int) (*big.Int, error) {
	var output *big.Int
	err := e.call("withdraw_single", func() error {
		if err := e.guard(); err != nil {
			return err
		}
		if shares == nil || shares.Sign() <= 0 {
			return ErrZeroAmount
		}
		cfg, pool, err := e.settled(id)
		if err != nil {
			return err
		}
		pc, err := e.resolve(cfg, pool)
		if err != nil {
			return err
		}
		source, err := pc.router.Select()
		if err != nil {
			return err
		}
		e.logger.Debug("farm: route selected", "pool", id, "path", source.Path().String(), "op", "withdraw")
		if err := e.ledger().withdraw(pool, caller, shares); err != nil {
			return err
		}
		if err := e.registry().putPool(pool); err != nil {
			return err
		}
		res, err := pc.converter.burnToSingleAsset(source.Path(), shares, minOut)
		if err != nil {
			return err
		}
		height := e.height()
		if res.Funding != nil {
			e.recordFunding(pc, caller, res.Funding)
		} else {
			e.emit(events.SwapTokens{
				Height:    height,
				PoolID:    id,
				Sender:    caller,
				Amount:    res.Sold,
				FromToken: pool.InputToken,
				ToToken:   cfg.RewardToken,
			})
		}
		if res.Output.Sign() > 0 {
			if err := e.state.Transfer(cfg.RewardToken, e.module, caller, res.Output); err != nil {
				return err
			}
		}
		e.emit(events.FarmWithdraw{
			Height:  height,
			PoolID:  id,
			Account: caller,
			Shares:  new(big.Int).Set(shares),
			Output:  res.Output,
			Asset:   cfg.RewardToken,
		})
		output = res.Output
		return e.payReward(cfg, id, caller)
	})
	if err != nil {
		return nil, err
	}
	return output, nil
}

// EmergencyWithdraw returns every staked share to caller and forfeits all
// reward, owed or accrued. It runs while the farm is paused.
func (e *Engine) EmergencyWithdraw(caller common.Address, id uint64) (*big.Int, error) {
	var amount *big.Int
	err := e.call("emergency_withdraw", func() error {
		_, pool, err := e.settled(id)
		if err != nil {
			return err
		}
		ledger := e.ledger()
		pos, err := ledger.position(id, caller)
		if err != nil {
			return err
		}
		amount = pos.Amount
		if err := ledger.put(id, caller, newPosition()); err != nil {
			return err
		}
		if err := ledger.putOwed(id, caller, big.NewInt(0)); err != nil {
			return err
		}
		pool.TotalStaked = new(big.Int).Sub(pool.TotalStaked, amount)
		if err := e.registry().putPool(pool); err != nil {
			return err
		}
		if amount.Sign() > 0 {
			if err := e.state.Transfer(pool.ShareToken, e.module, caller, amount); err != nil {
				return err
			}
		}
		e.emit(events.FarmEmergencyWithdraw{
			Height:  e.height(),
			PoolID:  id,
			Account: caller,
			Shares:  amount,
		})
		e.logger.Warn("farm: emergency withdraw", "pool", id, "account", caller.Hex(), "shares", amount.String())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return amount, nil
}
