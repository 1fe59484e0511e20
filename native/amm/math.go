package amm

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	// ErrOverflow is returned when an intermediate value exceeds 256 bits.
	ErrOverflow = errors.New("amm: arithmetic overflow")
	// ErrInsufficientInputAmount rejects zero trade sizes.
	ErrInsufficientInputAmount = errors.New("amm: insufficient input amount")
	// ErrInsufficientLiquidity rejects quotes against empty reserves.
	ErrInsufficientLiquidity = errors.New("amm: insufficient liquidity")
	// ErrNegativeValue rejects negative inputs.
	ErrNegativeValue = errors.New("amm: negative value")
)

const (
	feeNumerator   = 997
	feeDenominator = 1000
)

func toU256(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	if v.Sign() < 0 {
		return nil, ErrNegativeValue
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

func mul(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

func add(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// GetAmountOut returns the output of an exact-input trade against the
// reserves after the 0.3% fee. The result is floored.
func GetAmountOut(amountIn, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	in, err := toU256(amountIn)
	if err != nil {
		return nil, err
	}
	rIn, err := toU256(reserveIn)
	if err != nil {
		return nil, err
	}
	rOut, err := toU256(reserveOut)
	if err != nil {
		return nil, err
	}
	if in.IsZero() {
		return nil, ErrInsufficientInputAmount
	}
	if rIn.IsZero() || rOut.IsZero() {
		return nil, ErrInsufficientLiquidity
	}
	withFee, err := mul(in, uint256.NewInt(feeNumerator))
	if err != nil {
		return nil, err
	}
	numerator, err := mul(withFee, rOut)
	if err != nil {
		return nil, err
	}
	scaled, err := mul(rIn, uint256.NewInt(feeDenominator))
	if err != nil {
		return nil, err
	}
	denominator, err := add(scaled, withFee)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Div(numerator, denominator).ToBig(), nil
}

// Quote returns the amount of the other asset that keeps the pool ratio for
// amountA, floored.
func Quote(amountA, reserveA, reserveB *big.Int) (*big.Int, error) {
	a, err := toU256(amountA)
	if err != nil {
		return nil, err
	}
	rA, err := toU256(reserveA)
	if err != nil {
		return nil, err
	}
	rB, err := toU256(reserveB)
	if err != nil {
		return nil, err
	}
	if a.IsZero() {
		return nil, ErrInsufficientInputAmount
	}
	if rA.IsZero() || rB.IsZero() {
		return nil, ErrInsufficientLiquidity
	}
	product, err := mul(a, rB)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Div(product, rA).ToBig(), nil
}

// Sqrt returns the integer square root of x, floored.
func Sqrt(x *big.Int) (*big.Int, error) {
	v, err := toU256(x)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Sqrt(v).ToBig(), nil
}

// OptimalSwapIn returns the portion of a single-sided amount that should be
// sold against reserveIn so the proceeds and the unsold remainder add
// liquidity in the pool ratio after the 0.3% fee:
//
//	x = (sqrt(rIn * (amount*3988000 + rIn*3988009)) - rIn*1997) / 1994
func OptimalSwapIn(amount, reserveIn *big.Int) (*big.Int, error) {
	a, err := toU256(amount)
	if err != nil {
		return nil, err
	}
	rIn, err := toU256(reserveIn)
	if err != nil {
		return nil, err
	}
	if a.IsZero() {
		return nil, ErrInsufficientInputAmount
	}
	if rIn.IsZero() {
		return nil, ErrInsufficientLiquidity
	}
	left, err := mul(a, uint256.NewInt(3988000))
	if err != nil {
		return nil, err
	}
	right, err := mul(rIn, uint256.NewInt(3988009))
	if err != nil {
		return nil, err
	}
	sum, err := add(left, right)
	if err != nil {
		return nil, err
	}
	radicand, err := mul(rIn, sum)
	if err != nil {
		return nil, err
	}
	root := new(uint256.Int).Sqrt(radicand)
	offset, err := mul(rIn, uint256.NewInt(1997))
	if err != nil {
		return nil, err
	}
	if root.Lt(offset) {
		return big.NewInt(0), nil
	}
	diff := new(uint256.Int).Sub(root, offset)
	return new(uint256.Int).Div(diff, uint256.NewInt(1994)).ToBig(), nil
}
