package amm

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// SwapExactIn moves amountIn of tokenIn from sender into the pair and sends
// the floored output to `to`.
func (p *Pair) SwapExactIn(sender, tokenIn common.Address, amountIn, minOut *big.Int, to common.Address) (*big.Int, error) {
	reserveIn, reserveOut, err := p.Reserves(tokenIn)
	if err != nil {
		return nil, err
	}
	out, err := GetAmountOut(amountIn, reserveIn, reserveOut)
	if err != nil {
		return nil, err
	}
	if minOut != nil && out.Cmp(minOut) < 0 {
		return nil, ErrInsufficientOutputAmount
	}
	if err := p.ledger.Transfer(tokenIn, sender, p.address, amountIn); err != nil {
		return nil, err
	}
	amount0Out, amount1Out := big.NewInt(0), new(big.Int).Set(out)
	if tokenIn == p.token1 {
		amount0Out, amount1Out = amount1Out, amount0Out
	}
	if err := p.Swap(amount0Out, amount1Out, to); err != nil {
		return nil, err
	}
	return out, nil
}

// QuoteOut returns the output of selling amountIn of tokenIn at the current
// reserves without trading.
func (p *Pair) QuoteOut(tokenIn common.Address, amountIn *big.Int) (*big.Int, error) {
	reserveIn, reserveOut, err := p.Reserves(tokenIn)
	if err != nil {
		return nil, err
	}
	return GetAmountOut(amountIn, reserveIn, reserveOut)
}

// OptimalAmounts sizes a liquidity add so that the deposited amounts match
// the pool ratio without exceeding either desired amount.
func (p *Pair) OptimalAmounts(tokenA common.Address, amountADesired, amountBDesired *big.Int) (*big.Int, *big.Int, error) {
	reserveA, reserveB, err := p.Reserves(tokenA)
	if err != nil {
		return nil, nil, err
	}
	if reserveA.Sign() == 0 && reserveB.Sign() == 0 {
		return new(big.Int).Set(amountADesired), new(big.Int).Set(amountBDesired), nil
	}
	if amountADesired.Sign() == 0 || amountBDesired.Sign() == 0 {
		return nil, nil, ErrInsufficientInputAmount
	}
	optimalB, err := Quote(amountADesired, reserveA, reserveB)
	if err != nil {
		return nil, nil, err
	}
	if optimalB.Cmp(amountBDesired) <= 0 {
		return new(big.Int).Set(amountADesired), optimalB, nil
	}
	optimalA, err := Quote(amountBDesired, reserveB, reserveA)
	if err != nil {
		return nil, nil, err
	}
	return optimalA, new(big.Int).Set(amountBDesired), nil
}

// AddLiquidity transfers the optimal amounts of tokenA and its counterpart
// from sender and mints shares to `to`. It returns the amounts actually used.
func (p *Pair) AddLiquidity(sender, tokenA common.Address, amountADesired, amountBDesired *big.Int, to common.Address) (*big.Int, *big.Int, *big.Int, error) {
	tokenB, err := p.Other(tokenA)
	if err != nil {
		return nil, nil, nil, err
	}
	amountA, amountB, err := p.OptimalAmounts(tokenA, amountADesired, amountBDesired)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := p.ledger.Transfer(tokenA, sender, p.address, amountA); err != nil {
		return nil, nil, nil, err
	}
	if err := p.ledger.Transfer(tokenB, sender, p.address, amountB); err != nil {
		return nil, nil, nil, err
	}
	liquidity, err := p.Mint(to)
	if err != nil {
		return nil, nil, nil, err
	}
	return amountA, amountB, liquidity, nil
}

// RemoveLiquidity moves liquidity shares from sender into the pair, burns
// them and returns the amounts of tokenA and its counterpart sent to `to`.
func (p *Pair) RemoveLiquidity(sender, tokenA common.Address, liquidity *big.Int, to common.Address) (*big.Int, *big.Int, error) {
	if _, err := p.Other(tokenA); err != nil {
		return nil, nil, err
	}
	if err := p.ledger.Transfer(p.address, sender, p.address, liquidity); err != nil {
		return nil, nil, err
	}
	amount0, amount1, err := p.Burn(to)
	if err != nil {
		return nil, nil, err
	}
	if tokenA == p.token0 {
		return amount0, amount1, nil
	}
	return amount1, amount0, nil
}

// UnderlyingValue returns the amounts of tokenA and its counterpart
// redeemable for liquidity at the current reserves, floored.
func (p *Pair) UnderlyingValue(tokenA common.Address, liquidity *big.Int) (*big.Int, *big.Int, error) {
	reserveA, reserveB, err := p.Reserves(tokenA)
	if err != nil {
		return nil, nil, err
	}
	supply, err := p.TotalSupply()
	if err != nil {
		return nil, nil, err
	}
	if supply.Sign() == 0 {
		return big.NewInt(0), big.NewInt(0), nil
	}
	amountA := new(big.Int).Mul(liquidity, reserveA)
	amountA.Quo(amountA, supply)
	amountB := new(big.Int).Mul(liquidity, reserveB)
	amountB.Quo(amountB, supply)
	return amountA, amountB, nil
}
