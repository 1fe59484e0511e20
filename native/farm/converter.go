package farm

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// converter turns single-asset amounts into pool shares and back.
type converter struct {
	state    State
	pool     ExchangePool
	input    common.Address
	treasury treasury
}

type mintResult struct {
	Shares        *big.Int
	InputUsed     *big.Int
	CounterUsed   *big.Int
	InputRefunded *big.Int
}

// mintFromSingleAsset adds liquidity at the pool ratio from the treasury
// address. Unused input goes back to the caller and unused counterpart
// stays in the treasury.
func (c converter) mintFromSingleAsset(caller common.Address, inputAmount, counterpartAmount, minSharesOut *big.Int) (*mintResult, error) {
	usedIn, usedOut, shares, err := c.pool.AddLiquidity(c.treasury.address, c.input, inputAmount, counterpartAmount, c.treasury.address)
	if err != nil {
		return nil, err
	}
	if minSharesOut != nil && shares.Cmp(minSharesOut) < 0 {
		return nil, ErrSlippageExceeded
	}
	refund := new(big.Int).Sub(inputAmount, usedIn)
	if refund.Sign() > 0 {
		if err := c.state.Transfer(c.input, c.treasury.address, caller, refund); err != nil {
			return nil, err
		}
	}
	return &mintResult{Shares: shares, InputUsed: usedIn, CounterUsed: usedOut, InputRefunded: refund}, nil
}

type burnResult struct {
	Output         *big.Int
	InputLeg       *big.Int
	CounterpartLeg *big.Int
	Sold           *big.Int
	Funding        *fundingResult
}

// burnToSingleAsset removes liquidity into the treasury and realises the
// input leg as counterpart asset: on the internal path the treasury absorbs
// it as funding, on the external path it is sold on the pool.
func (c converter) burnToSingleAsset(path Path, shares, minOut *big.Int) (*burnResult, error) {
	inputLeg, counterLeg, err := c.pool.RemoveLiquidity(c.treasury.address, c.input, shares, c.treasury.address)
	if err != nil {
		return nil, err
	}
	res := &burnResult{InputLeg: inputLeg, CounterpartLeg: counterLeg, Sold: big.NewInt(0)}
	output := new(big.Int).Set(counterLeg)
	switch path {
	case PathInternal:
		funding, err := c.treasury.fund(c.pool, c.input, inputLeg)
		if err != nil {
			return nil, err
		}
		res.Funding = funding
	default:
		proceeds, err := c.pool.SwapExactIn(c.treasury.address, c.input, inputLeg, nil, c.treasury.address)
		if err != nil {
			return nil, err
		}
		res.Sold = new(big.Int).Set(inputLeg)
		output.Add(output, proceeds)
	}
	if minOut != nil && output.Cmp(minOut) < 0 {
		return nil, ErrSlippageExceeded
	}
	res.Output = output
	return res, nil
}
