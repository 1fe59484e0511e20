package farm

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// positionLedger stores per-user stake, reward debt and the reward owed but
// not yet transferred.
type positionLedger struct {
	state State
}

func (l positionLedger) position(id uint64, user common.Address) (*Position, error) {
	pos := new(Position)
	ok, err := l.state.KVGet(positionKey(id, user), pos)
	if err != nil {
		return nil, err
	}
	if !ok {
		return newPosition(), nil
	}
	return pos, nil
}

func (l positionLedger) put(id uint64, user common.Address, pos *Position) error {
	return l.state.KVPut(positionKey(id, user), pos.Clone())
}

func (l positionLedger) owed(id uint64, user common.Address) (*big.Int, error) {
	owed := new(big.Int)
	ok, err := l.state.KVGet(owedKey(id, user), owed)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return owed, nil
}

func (l positionLedger) putOwed(id uint64, user common.Address, amount *big.Int) error {
	return l.state.KVPut(owedKey(id, user), cloneBig(amount))
}

// checkpoint moves the reward pos accrued at the pool accumulator into the
// owed balance and resets the reward debt. The pool must be settled.
func (l positionLedger) checkpoint(pool *Pool, user common.Address) (*Position, error) {
	pos, err := l.position(pool.ID, user)
	if err != nil {
		return nil, err
	}
	pending := pendingFor(pos, pool.AccRewardPerShare)
	if pending.Sign() > 0 {
		owed, err := l.owed(pool.ID, user)
		if err != nil {
			return nil, err
		}
		if err := l.putOwed(pool.ID, user, owed.Add(owed, pending)); err != nil {
			return nil, err
		}
	}
	pos.RewardDebt = debtFor(pos.Amount, pool.AccRewardPerShare)
	if err := l.put(pool.ID, user, pos); err != nil {
		return nil, err
	}
	return pos, nil
}

// deposit stakes shares for user. The pool must be settled; the caller
// persists the pool.
func (l positionLedger) deposit(pool *Pool, user common.Address, shares *big.Int) error {
	pos, err := l.checkpoint(pool, user)
	if err != nil {
		return err
	}
	pos.Amount = new(big.Int).Add(pos.Amount, shares)
	pos.RewardDebt = debtFor(pos.Amount, pool.AccRewardPerShare)
	pool.TotalStaked = new(big.Int).Add(pool.TotalStaked, shares)
	return l.put(pool.ID, user, pos)
}

// withdraw unstakes shares for user. The pool must be settled; the caller
// persists the pool.
func (l positionLedger) withdraw(pool *Pool, user common.Address, shares *big.Int) error {
	pos, err := l.checkpoint(pool, user)
	if err != nil {
		return err
	}
	if shares.Cmp(pos.Amount) > 0 {
		return ErrInsufficientStake
	}
	pos.Amount = new(big.Int).Sub(pos.Amount, shares)
	pos.RewardDebt = debtFor(pos.Amount, pool.AccRewardPerShare)
	pool.TotalStaked = new(big.Int).Sub(pool.TotalStaked, shares)
	return l.put(pool.ID, user, pos)
}

// takeOwed zeroes and returns the owed reward of user.
func (l positionLedger) takeOwed(id uint64, user common.Address) (*big.Int, error) {
	owed, err := l.owed(id, user)
	if err != nil {
		return nil, err
	}
	if owed.Sign() == 0 {
		return owed, nil
	}
	if err := l.putOwed(id, user, big.NewInt(0)); err != nil {
		return nil, err
	}
	return owed, nil
}

// pendingOf is the owed reward plus what the position would accrue if the
// pool were settled at height.
func (l positionLedger) pendingOf(cfg GlobalConfig, pool *Pool, user common.Address, height uint64) (*big.Int, error) {
	pos, err := l.position(pool.ID, user)
	if err != nil {
		return nil, err
	}
	owed, err := l.owed(pool.ID, user)
	if err != nil {
		return nil, err
	}
	pending := pendingFor(pos, accumulatedAt(cfg, pool, height))
	return pending.Add(pending, owed), nil
}
