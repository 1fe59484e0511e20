package farm

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"xfarm/native/amm"
)

// Path identifies how the counterpart asset of a deposit is acquired.
type Path uint8

const (
	// PathExternal sells input on the exchange pool.
	PathExternal Path = iota
	// PathInternal sells input to the treasury at the oracle price.
	PathInternal
)

func (p Path) String() string {
	switch p {
	case PathInternal:
		return "internal"
	case PathExternal:
		return "external"
	default:
		return "unknown"
	}
}

// SwapQuote is the outcome of one acquisition.
type SwapQuote struct {
	Path             Path
	AmountIn         *big.Int
	AmountOut        *big.Int
	CounterpartToken common.Address
	// Remaining is the input left untraded for the liquidity step.
	Remaining *big.Int
	// Funding is the input absorbed by the treasury on the internal path.
	Funding *big.Int
}

// SwapSource converts input into the counterpart asset.
type SwapSource interface {
	Path() Path
	Quote(amountIn *big.Int) (*big.Int, error)
	Execute(amountIn *big.Int) (*big.Int, error)
}

// treasurySource fills acquisitions from reward tokens the treasury already
// holds. Both legs live at the module address so execution moves no tokens.
type treasurySource struct {
	oracle PriceOracle
	input  common.Address
}

func (s treasurySource) Path() Path { return PathInternal }

func (s treasurySource) Quote(amountIn *big.Int) (*big.Int, error) {
	return s.oracle.Consult(s.input, amountIn)
}

func (s treasurySource) Execute(amountIn *big.Int) (*big.Int, error) {
	return s.Quote(amountIn)
}

// exchangeSource sells input on the exchange pool.
type exchangeSource struct {
	pool     ExchangePool
	input    common.Address
	treasury common.Address
}

func (s exchangeSource) Path() Path { return PathExternal }

func (s exchangeSource) Quote(amountIn *big.Int) (*big.Int, error) {
	return s.pool.QuoteOut(s.input, amountIn)
}

func (s exchangeSource) Execute(amountIn *big.Int) (*big.Int, error) {
	return s.pool.SwapExactIn(s.treasury, s.input, amountIn, nil, s.treasury)
}

// router picks a SwapSource for each call and sizes the acquisition.
type router struct {
	cfg      GlobalConfig
	state    State
	treasury common.Address
	pool     ExchangePool
	oracle   PriceOracle
	input    common.Address
}

// Select re-reads the treasury balance on every call: at or above the
// threshold the treasury serves the acquisition, otherwise the exchange does.
func (r router) Select() (SwapSource, error) {
	balance, err := r.state.Balance(r.cfg.RewardToken, r.treasury)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(r.cfg.InternalSwapThreshold) >= 0 {
		return treasurySource{oracle: r.oracle, input: r.input}, nil
	}
	return exchangeSource{pool: r.pool, input: r.input, treasury: r.treasury}, nil
}

// splitDeposit returns the input kept for liquidity and the acquisition
// half. Rounding leaves the remainder with the acquisition half.
func splitDeposit(cfg GlobalConfig, amount *big.Int) (*big.Int, *big.Int) {
	keep := new(big.Int).Sub(FixedPointOne, cfg.AcquisitionSplit)
	liquidity := new(big.Int).Mul(amount, keep)
	liquidity.Quo(liquidity, FixedPointOne)
	return liquidity, new(big.Int).Sub(amount, liquidity)
}

// acquire converts part of amount into the counterpart asset using the
// selected source.
func (r router) acquire(source SwapSource, amount *big.Int) (*SwapQuote, error) {
	switch source.Path() {
	case PathInternal:
		liquidity, acquisition := splitDeposit(r.cfg, amount)
		bought, err := source.Execute(acquisition)
		if err != nil {
			return nil, err
		}
		return &SwapQuote{
			Path:             PathInternal,
			AmountIn:         acquisition,
			AmountOut:        bought,
			CounterpartToken: r.cfg.RewardToken,
			Remaining:        liquidity,
			Funding:          new(big.Int).Set(acquisition),
		}, nil
	default:
		reserveIn, _, err := r.pool.Reserves(r.input)
		if err != nil {
			return nil, err
		}
		swapIn, err := amm.OptimalSwapIn(amount, reserveIn)
		if err != nil {
			return nil, err
		}
		if swapIn.Sign() == 0 {
			return nil, fmt.Errorf("%w: deposit too small to swap", ErrZeroAmount)
		}
		out, err := source.Execute(swapIn)
		if err != nil {
			return nil, err
		}
		return &SwapQuote{
			Path:             PathExternal,
			AmountIn:         swapIn,
			AmountOut:        out,
			CounterpartToken: r.cfg.RewardToken,
			Remaining:        new(big.Int).Sub(amount, swapIn),
			Funding:          big.NewInt(0),
		}, nil
	}
}
