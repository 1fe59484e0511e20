package amm

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// MinimumLiquidity is locked forever on the first mint of every pair.
const MinimumLiquidity = 1000

var (
	ErrIdenticalTokens             = errors.New("amm: identical tokens")
	ErrZeroAddress                 = errors.New("amm: zero address")
	ErrInvalidToken                = errors.New("amm: token not in pair")
	ErrInsufficientLiquidityMinted = errors.New("amm: insufficient liquidity minted")
	ErrInsufficientLiquidityBurned = errors.New("amm: insufficient liquidity burned")
	ErrInsufficientOutputAmount    = errors.New("amm: insufficient output amount")
	ErrInvalidTo                   = errors.New("amm: invalid to")
	ErrK                           = errors.New("amm: K")
	ErrPairMismatch                = errors.New("amm: stored pair does not match tokens")
)

// q112 is the UQ112x112 fixed point unit used for cumulative prices.
var q112 = new(big.Int).Lsh(big.NewInt(1), 112)

// Ledger is the subset of the token ledger a pair needs.
type Ledger interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	TokenExists(token common.Address) bool
	RegisterToken(token common.Address, symbol string, decimals uint8) error
	Balance(token, owner common.Address) (*big.Int, error)
	TotalSupply(token common.Address) (*big.Int, error)
	Transfer(token, from, to common.Address, amount *big.Int) error
	Mint(token, to common.Address, amount *big.Int) error
	Burn(token, from common.Address, amount *big.Int) error
}

// HeightSource reports the current block height.
type HeightSource interface {
	Height() uint64
}

type pairRecord struct {
	Token0           common.Address
	Token1           common.Address
	Reserve0         *big.Int
	Reserve1         *big.Int
	Price0Cumulative *big.Int
	Price1Cumulative *big.Int
	BlockHeightLast  uint64
}

// Pair is a constant-product pool whose share token is the pair address.
// Token balances are held by the pair address in the ledger; reserves track
// the balances as of the last update.
type Pair struct {
	address common.Address
	token0  common.Address
	token1  common.Address
	ledger  Ledger
	clock   HeightSource
}

// SortTokens orders two token addresses the way pairs store them.
func SortTokens(a, b common.Address) (common.Address, common.Address, error) {
	if a == b {
		return common.Address{}, common.Address{}, ErrIdenticalTokens
	}
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		a, b = b, a
	}
	if a == (common.Address{}) {
		return common.Address{}, common.Address{}, ErrZeroAddress
	}
	return a, b, nil
}

func pairKey(addr common.Address) []byte {
	return append([]byte("amm/pair/"), addr.Bytes()...)
}

// NewPair opens the pair stored at address or creates it. Creation registers
// the share token in the ledger.
func NewPair(ledger Ledger, clock HeightSource, address, tokenA, tokenB common.Address) (*Pair, error) {
	if address == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	token0, token1, err := SortTokens(tokenA, tokenB)
	if err != nil {
		return nil, err
	}
	pair := &Pair{address: address, token0: token0, token1: token1, ledger: ledger, clock: clock}
	rec, ok, err := pair.load()
	if err != nil {
		return nil, err
	}
	if ok {
		if rec.Token0 != token0 || rec.Token1 != token1 {
			return nil, ErrPairMismatch
		}
		return pair, nil
	}
	if !ledger.TokenExists(address) {
		if err := ledger.RegisterToken(address, "XLP", 18); err != nil {
			return nil, err
		}
	}
	rec = &pairRecord{
		Token0:           token0,
		Token1:           token1,
		Reserve0:         big.NewInt(0),
		Reserve1:         big.NewInt(0),
		Price0Cumulative: big.NewInt(0),
		Price1Cumulative: big.NewInt(0),
		BlockHeightLast:  clock.Height(),
	}
	if err := pair.store(rec); err != nil {
		return nil, err
	}
	return pair, nil
}

func (p *Pair) load() (*pairRecord, bool, error) {
	rec := new(pairRecord)
	ok, err := p.ledger.KVGet(pairKey(p.address), rec)
	if err != nil || !ok {
		return nil, ok, err
	}
	return rec, true, nil
}

func (p *Pair) mustLoad() (*pairRecord, error) {
	rec, ok, err := p.load()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("amm: pair %s not initialised", p.address.Hex())
	}
	return rec, nil
}

func (p *Pair) store(rec *pairRecord) error {
	return p.ledger.KVPut(pairKey(p.address), rec)
}

// Address returns the pair (and share token) address.
func (p *Pair) Address() common.Address { return p.address }

// Token0 returns the lower sorted token.
func (p *Pair) Token0() common.Address { return p.token0 }

// Token1 returns the higher sorted token.
func (p *Pair) Token1() common.Address { return p.token1 }

// Trades reports whether the pair trades exactly the two tokens.
func (p *Pair) Trades(a, b common.Address) bool {
	return (a == p.token0 && b == p.token1) || (a == p.token1 && b == p.token0)
}

// Other returns the counterpart of token in the pair.
func (p *Pair) Other(token common.Address) (common.Address, error) {
	switch token {
	case p.token0:
		return p.token1, nil
	case p.token1:
		return p.token0, nil
	default:
		return common.Address{}, ErrInvalidToken
	}
}

// GetReserves returns the stored reserves and the height of the last update.
func (p *Pair) GetReserves() (*big.Int, *big.Int, uint64, error) {
	rec, err := p.mustLoad()
	if err != nil {
		return nil, nil, 0, err
	}
	return new(big.Int).Set(rec.Reserve0), new(big.Int).Set(rec.Reserve1), rec.BlockHeightLast, nil
}

// Reserves returns the reserves ordered as (tokenIn, other).
func (p *Pair) Reserves(tokenIn common.Address) (*big.Int, *big.Int, error) {
	r0, r1, _, err := p.GetReserves()
	if err != nil {
		return nil, nil, err
	}
	switch tokenIn {
	case p.token0:
		return r0, r1, nil
	case p.token1:
		return r1, r0, nil
	default:
		return nil, nil, ErrInvalidToken
	}
}

// TotalSupply returns the outstanding share supply.
func (p *Pair) TotalSupply() (*big.Int, error) {
	return p.ledger.TotalSupply(p.address)
}

// CumulativePrices returns the cumulative prices as of the current height,
// including the counterfactual accumulation since the last update.
func (p *Pair) CumulativePrices() (*big.Int, *big.Int, uint64, error) {
	rec, err := p.mustLoad()
	if err != nil {
		return nil, nil, 0, err
	}
	height := p.clock.Height()
	price0 := new(big.Int).Set(rec.Price0Cumulative)
	price1 := new(big.Int).Set(rec.Price1Cumulative)
	if height > rec.BlockHeightLast && rec.Reserve0.Sign() > 0 && rec.Reserve1.Sign() > 0 {
		elapsed := new(big.Int).SetUint64(height - rec.BlockHeightLast)
		price0.Add(price0, spotQ112(rec.Reserve1, rec.Reserve0, elapsed))
		price1.Add(price1, spotQ112(rec.Reserve0, rec.Reserve1, elapsed))
	}
	return price0, price1, height, nil
}

func spotQ112(numerator, denominator, elapsed *big.Int) *big.Int {
	out := new(big.Int).Mul(numerator, q112)
	out.Quo(out, denominator)
	return out.Mul(out, elapsed)
}

func (p *Pair) update(rec *pairRecord, balance0, balance1 *big.Int) error {
	height := p.clock.Height()
	if height > rec.BlockHeightLast && rec.Reserve0.Sign() > 0 && rec.Reserve1.Sign() > 0 {
		elapsed := new(big.Int).SetUint64(height - rec.BlockHeightLast)
		rec.Price0Cumulative = new(big.Int).Add(rec.Price0Cumulative, spotQ112(rec.Reserve1, rec.Reserve0, elapsed))
		rec.Price1Cumulative = new(big.Int).Add(rec.Price1Cumulative, spotQ112(rec.Reserve0, rec.Reserve1, elapsed))
	}
	rec.Reserve0 = new(big.Int).Set(balance0)
	rec.Reserve1 = new(big.Int).Set(balance1)
	if height > rec.BlockHeightLast {
		rec.BlockHeightLast = height
	}
	return p.store(rec)
}

func (p *Pair) balances() (*big.Int, *big.Int, error) {
	balance0, err := p.ledger.Balance(p.token0, p.address)
	if err != nil {
		return nil, nil, err
	}
	balance1, err := p.ledger.Balance(p.token1, p.address)
	if err != nil {
		return nil, nil, err
	}
	return balance0, balance1, nil
}

// Mint issues shares to `to` for the tokens sent to the pair since the last
// update.
func (p *Pair) Mint(to common.Address) (*big.Int, error) {
	rec, err := p.mustLoad()
	if err != nil {
		return nil, err
	}
	balance0, balance1, err := p.balances()
	if err != nil {
		return nil, err
	}
	amount0 := new(big.Int).Sub(balance0, rec.Reserve0)
	amount1 := new(big.Int).Sub(balance1, rec.Reserve1)
	supply, err := p.TotalSupply()
	if err != nil {
		return nil, err
	}

	var liquidity *big.Int
	if supply.Sign() == 0 {
		root, err := Sqrt(new(big.Int).Mul(amount0, amount1))
		if err != nil {
			return nil, err
		}
		liquidity = root.Sub(root, big.NewInt(MinimumLiquidity))
		if liquidity.Sign() <= 0 {
			return nil, ErrInsufficientLiquidityMinted
		}
		if err := p.ledger.Mint(p.address, common.Address{}, big.NewInt(MinimumLiquidity)); err != nil {
			return nil, err
		}
	} else {
		l0 := new(big.Int).Mul(amount0, supply)
		l0.Quo(l0, rec.Reserve0)
		l1 := new(big.Int).Mul(amount1, supply)
		l1.Quo(l1, rec.Reserve1)
		liquidity = l0
		if l1.Cmp(l0) < 0 {
			liquidity = l1
		}
	}
	if liquidity.Sign() <= 0 {
		return nil, ErrInsufficientLiquidityMinted
	}
	if err := p.ledger.Mint(p.address, to, liquidity); err != nil {
		return nil, err
	}
	if err := p.update(rec, balance0, balance1); err != nil {
		return nil, err
	}
	return liquidity, nil
}

// Burn redeems the shares held by the pair address and sends both
// underlying tokens to `to`.
func (p *Pair) Burn(to common.Address) (*big.Int, *big.Int, error) {
	rec, err := p.mustLoad()
	if err != nil {
		return nil, nil, err
	}
	balance0, balance1, err := p.balances()
	if err != nil {
		return nil, nil, err
	}
	liquidity, err := p.ledger.Balance(p.address, p.address)
	if err != nil {
		return nil, nil, err
	}
	supply, err := p.TotalSupply()
	if err != nil {
		return nil, nil, err
	}
	if supply.Sign() == 0 {
		return nil, nil, ErrInsufficientLiquidityBurned
	}
	amount0 := new(big.Int).Mul(liquidity, balance0)
	amount0.Quo(amount0, supply)
	amount1 := new(big.Int).Mul(liquidity, balance1)
	amount1.Quo(amount1, supply)
	if amount0.Sign() == 0 || amount1.Sign() == 0 {
		return nil, nil, ErrInsufficientLiquidityBurned
	}
	if err := p.ledger.Burn(p.address, p.address, liquidity); err != nil {
		return nil, nil, err
	}
	if err := p.ledger.Transfer(p.token0, p.address, to, amount0); err != nil {
		return nil, nil, err
	}
	if err := p.ledger.Transfer(p.token1, p.address, to, amount1); err != nil {
		return nil, nil, err
	}
	balance0, balance1, err = p.balances()
	if err != nil {
		return nil, nil, err
	}
	if err := p.update(rec, balance0, balance1); err != nil {
		return nil, nil, err
	}
	return amount0, amount1, nil
}

// Swap sends the requested outputs to `to` after checking that the tokens
// sent to the pair keep the fee-adjusted invariant.
func (p *Pair) Swap(amount0Out, amount1Out *big.Int, to common.Address) error {
	if amount0Out.Sign() == 0 && amount1Out.Sign() == 0 {
		return ErrInsufficientOutputAmount
	}
	rec, err := p.mustLoad()
	if err != nil {
		return err
	}
	if amount0Out.Cmp(rec.Reserve0) >= 0 || amount1Out.Cmp(rec.Reserve1) >= 0 {
		return ErrInsufficientLiquidity
	}
	if to == p.token0 || to == p.token1 {
		return ErrInvalidTo
	}
	if amount0Out.Sign() > 0 {
		if err := p.ledger.Transfer(p.token0, p.address, to, amount0Out); err != nil {
			return err
		}
	}
	if amount1Out.Sign() > 0 {
		if err := p.ledger.Transfer(p.token1, p.address, to, amount1Out); err != nil {
			return err
		}
	}
	balance0, balance1, err := p.balances()
	if err != nil {
		return err
	}
	amount0In := amountIn(balance0, rec.Reserve0, amount0Out)
	amount1In := amountIn(balance1, rec.Reserve1, amount1Out)
	if amount0In.Sign() == 0 && amount1In.Sign() == 0 {
		return ErrInsufficientInputAmount
	}
	adjusted0 := new(big.Int).Sub(new(big.Int).Mul(balance0, big.NewInt(feeDenominator)), new(big.Int).Mul(amount0In, big.NewInt(3)))
	adjusted1 := new(big.Int).Sub(new(big.Int).Mul(balance1, big.NewInt(feeDenominator)), new(big.Int).Mul(amount1In, big.NewInt(3)))
	k := new(big.Int).Mul(rec.Reserve0, rec.Reserve1)
	k.Mul(k, big.NewInt(feeDenominator*feeDenominator))
	if new(big.Int).Mul(adjusted0, adjusted1).Cmp(k) < 0 {
		return ErrK
	}
	return p.update(rec, balance0, balance1)
}

func amountIn(balance, reserve, out *big.Int) *big.Int {
	threshold := new(big.Int).Sub(reserve, out)
	if balance.Cmp(threshold) > 0 {
		return new(big.Int).Sub(balance, threshold)
	}
	return big.NewInt(0)
}

// Sync forces reserves to match balances.
func (p *Pair) Sync() error {
	rec, err := p.mustLoad()
	if err != nil {
		return err
	}
	balance0, balance1, err := p.balances()
	if err != nil {
		return err
	}
	return p.update(rec, balance0, balance1)
}
