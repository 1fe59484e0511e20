package farm

import "math/big"

// multiplier returns the reward weight of blocks [from, to). Blocks before
// RewardStartBlock weigh nothing, blocks before BonusEndBlock weigh
// BonusMultiplier and later blocks weigh one.
func multiplier(cfg GlobalConfig, from, to uint64) *big.Int {
	if from < cfg.RewardStartBlock {
		from = cfg.RewardStartBlock
	}
	if to <= from {
		return big.NewInt(0)
	}
	bonus := new(big.Int).SetUint64(cfg.BonusMultiplier)
	switch {
	case to <= cfg.BonusEndBlock:
		return new(big.Int).Mul(new(big.Int).SetUint64(to-from), bonus)
	case from >= cfg.BonusEndBlock:
		return new(big.Int).SetUint64(to - from)
	default:
		inBonus := new(big.Int).Mul(new(big.Int).SetUint64(cfg.BonusEndBlock-from), bonus)
		return inBonus.Add(inBonus, new(big.Int).SetUint64(to-cfg.BonusEndBlock))
	}
}

// accumulatedAt returns AccRewardPerShare as if the pool were settled at
// height. The pool is not modified.
func accumulatedAt(cfg GlobalConfig, pool *Pool, height uint64) *big.Int {
	acc := cloneBig(pool.AccRewardPerShare)
	if height <= pool.LastRewardBlock || pool.TotalStaked.Sign() == 0 {
		return acc
	}
	reward := multiplier(cfg, pool.LastRewardBlock, height)
	reward.Mul(reward, cfg.RewardPerBlock)
	reward.Mul(reward, Precision)
	reward.Quo(reward, pool.TotalStaked)
	return acc.Add(acc, reward)
}

// settle advances the pool accumulator to height.
func settle(cfg GlobalConfig, pool *Pool, height uint64) {
	if height <= pool.LastRewardBlock {
		return
	}
	pool.AccRewardPerShare = accumulatedAt(cfg, pool, height)
	pool.LastRewardBlock = height
}

// debtFor is amount * acc / Precision, floored.
func debtFor(amount, acc *big.Int) *big.Int {
	debt := new(big.Int).Mul(amount, acc)
	return debt.Quo(debt, Precision)
}

// pendingFor returns the reward accrued by pos at acc since its last
// checkpoint.
func pendingFor(pos *Position, acc *big.Int) *big.Int {
	pending := debtFor(pos.Amount, acc)
	pending.Sub(pending, pos.RewardDebt)
	if pending.Sign() < 0 {
		return big.NewInt(0)
	}
	return pending
}
