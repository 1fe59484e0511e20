package farm

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// treasury is the reward-token reserve held at the module address.
type treasury struct {
	cfg     GlobalConfig
	state   State
	address common.Address
}

type fundingResult struct {
	Continuous *big.Int
	Dev        *big.Int
	Bought     *big.Int
}

// Balance is the reward-token balance of the treasury.
func (t treasury) Balance() (*big.Int, error) {
	return t.state.Balance(t.cfg.RewardToken, t.address)
}

// splitFunding divides a funding amount into the continuous part retained by
// the treasury and the part owed to the dev address.
func splitFunding(cfg GlobalConfig, amount *big.Int) (*big.Int, *big.Int) {
	continuous := new(big.Int).Mul(amount, cfg.FundingSplitFactor)
	continuous.Quo(continuous, FixedPointOne)
	return continuous, new(big.Int).Sub(amount, continuous)
}

// fund absorbs amount of input token. The continuous part is sold on the
// pool for reward tokens that stay in the treasury; the rest goes to the
// dev address. A continuous part too small to buy anything is kept as
// input.
func (t treasury) fund(pool ExchangePool, input common.Address, amount *big.Int) (*fundingResult, error) {
	continuous, dev := splitFunding(t.cfg, amount)
	res := &fundingResult{Continuous: continuous, Dev: dev, Bought: big.NewInt(0)}
	if continuous.Sign() > 0 {
		out, err := pool.QuoteOut(input, continuous)
		if err != nil {
			return nil, err
		}
		if out.Sign() > 0 {
			bought, err := pool.SwapExactIn(t.address, input, continuous, nil, t.address)
			if err != nil {
				return nil, err
			}
			res.Bought = bought
		}
	}
	if dev.Sign() > 0 {
		if err := t.state.Transfer(input, t.address, t.cfg.DevAddress, dev); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// withdraw moves reserve reward tokens to `to`.
func (t treasury) withdraw(to common.Address, amount *big.Int) error {
	return t.state.Transfer(t.cfg.RewardToken, t.address, to, amount)
}
