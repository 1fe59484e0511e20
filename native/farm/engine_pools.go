package farm

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"xfarm/core/events"
)

// AddPool registers a farm for the pair share and the input token priced by
// oracleAddr. The pair must trade exactly the input and the reward token.
func (e *Engine) AddPool(caller, share, input, oracleAddr common.Address, refreshBefore bool) (uint64, error) {
	var id uint64
	err := e.call("add_pool", func() error {
		cfg, err := e.requireAdmin(caller)
		if err != nil {
			return err
		}
		if share == (common.Address{}) || input == (common.Address{}) {
			return fmt.Errorf("%w: share and input token required", ErrInvalidPoolConfig)
		}
		if input == cfg.RewardToken {
			return fmt.Errorf("%w: input token equals reward token", ErrInvalidPoolConfig)
		}
		pair, ok := e.pairs[share]
		if !ok {
			return fmt.Errorf("%w: %v", ErrInvalidPoolConfig, errUnknownPair)
		}
		if !pair.Trades(input, cfg.RewardToken) {
			return fmt.Errorf("%w: pair does not trade input against reward", ErrInvalidPoolConfig)
		}
		oracle, ok := e.oracles[oracleAddr]
		if !ok {
			return fmt.Errorf("%w: %v", ErrInvalidPoolConfig, errUnknownOracle)
		}
		reg := e.registry()
		dup, err := reg.hasPair(share, input)
		if err != nil {
			return err
		}
		if dup {
			return fmt.Errorf("%w: pool already exists", ErrInvalidPoolConfig)
		}
		if refreshBefore {
			err := oracle.Refresh()
			e.telemetry.RecordOracleRefresh(err)
			if err != nil {
				return err
			}
		}
		height := e.height()
		last := height
		if cfg.RewardStartBlock > last {
			last = cfg.RewardStartBlock
		}
		pool := &Pool{
			ShareToken:        share,
			InputToken:        input,
			Oracle:            oracleAddr,
			LastRewardBlock:   last,
			AccRewardPerShare: big.NewInt(0),
			TotalStaked:       big.NewInt(0),
		}
		id, err = reg.add(pool)
		if err != nil {
			return err
		}
		e.emit(events.FarmPoolAdded{
			Height:     height,
			PoolID:     id,
			ShareToken: share,
			InputToken: input,
			Oracle:     oracleAddr,
		})
		e.logger.Info("farm: pool added", "pool", id, "share", share.Hex(), "input", input.Hex())
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// SettlePool advances the reward accumulator of one pool to the current
// height.
func (e *Engine) SettlePool(id uint64) error {
	return e.call("settle", func() error {
		_, _, err := e.settled(id)
		return err
	})
}

// SettleAllPools settles every pool at the current height.
func (e *Engine) SettleAllPools() error {
	return e.call("settle_all", e.settleAll)
}

func (e *Engine) settleAll() error {
	count, err := e.registry().count()
	if err != nil {
		return err
	}
	for id := uint64(0); id < count; id++ {
		if _, _, err := e.settled(id); err != nil {
			return err
		}
	}
	return nil
}

// RefreshOracle updates the average price of the pool's oracle.
func (e *Engine) RefreshOracle(id uint64) error {
	return e.call("refresh_oracle", func() error {
		pool, err := e.registry().pool(id)
		if err != nil {
			return err
		}
		oracle, ok := e.oracles[pool.Oracle]
		if !ok {
			return fmt.Errorf("%w: %s", errUnknownOracle, pool.Oracle.Hex())
		}
		err = oracle.Refresh()
		e.telemetry.RecordOracleRefresh(err)
		return err
	})
}

// Pool returns a copy of the stored pool.
func (e *Engine) Pool(id uint64) (*Pool, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.registry().pool(id)
}

// PoolCount returns the number of registered pools.
func (e *Engine) PoolCount() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	return e.registry().count()
}

// Pools returns every pool in id order.
func (e *Engine) Pools() ([]*Pool, error) {
	count, err := e.PoolCount()
	if err != nil {
		return nil, err
	}
	reg := e.registry()
	pools := make([]*Pool, 0, count)
	for id := uint64(0); id < count; id++ {
		pool, err := reg.pool(id)
		if err != nil {
			return nil, err
		}
		pools = append(pools, pool)
	}
	return pools, nil
}

// PendingReward returns the reward user could claim at the current height.
// It does not modify state.
func (e *Engine) PendingReward(id uint64, user common.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	reg := e.registry()
	cfg, err := reg.config()
	if err != nil {
		return nil, err
	}
	pool, err := reg.pool(id)
	if err != nil {
		return nil, err
	}
	return e.ledger().pendingOf(cfg, pool, user, e.height())
}

// UserPosition returns the stake of user in a pool.
func (e *Engine) UserPosition(id uint64, user common.Address) (*Position, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if _, err := e.registry().pool(id); err != nil {
		return nil, err
	}
	return e.ledger().position(id, user)
}

// PositionValue returns the input and reward token amounts redeemable for
// the user's staked shares at current reserves.
func (e *Engine) PositionValue(id uint64, user common.Address) (*big.Int, *big.Int, error) {
	pos, err := e.UserPosition(id, user)
	if err != nil {
		return nil, nil, err
	}
	pool, err := e.registry().pool(id)
	if err != nil {
		return nil, nil, err
	}
	pair, ok := e.pairs[pool.ShareToken]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", errUnknownPair, pool.ShareToken.Hex())
	}
	return pair.UnderlyingValue(pool.InputToken, pos.Amount)
}

// TreasuryBalance returns the reward tokens held by the engine.
func (e *Engine) TreasuryBalance() (*big.Int, error) {
	cfg, err := e.Params()
	if err != nil {
		return nil, err
	}
	return treasury{cfg: cfg, state: e.state, address: e.module}.Balance()
}
