// Package oracle implements a fixed-window time weighted average price over
// the cumulative prices of a constant-product pair.
package oracle

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"xfarm/crypto"
)

var (
	// ErrPeriodNotElapsed is returned when Refresh is called before a full
	// window has passed since the last observation.
	ErrPeriodNotElapsed = errors.New("oracle: period not elapsed")
	// ErrNotInitialised is returned by Consult before the first Refresh.
	ErrNotInitialised = errors.New("oracle: not initialised")
	// ErrNoReserves is returned when the pair has no liquidity to price.
	ErrNoReserves = errors.New("oracle: no reserves in pair")
	// ErrInvalidToken is returned for tokens the pair does not trade.
	ErrInvalidToken = errors.New("oracle: invalid token")
)

// q112 is the UQ112x112 unit of the pair's cumulative prices.
var q112 = new(big.Int).Lsh(big.NewInt(1), 112)

// Source is the pair data the oracle observes.
type Source interface {
	Address() common.Address
	Token0() common.Address
	Token1() common.Address
	GetReserves() (*big.Int, *big.Int, uint64, error)
	CumulativePrices() (*big.Int, *big.Int, uint64, error)
}

// Store persists the oracle observation so it is journaled with the rest of
// the state.
type Store interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

type observation struct {
	Price0CumulativeLast *big.Int
	Price1CumulativeLast *big.Int
	HeightLast           uint64
	Price0Average        *big.Int
	Price1Average        *big.Int
}

// TWAP averages pair prices over windows of at least Period blocks.
type TWAP struct {
	address common.Address
	source  Source
	store   Store
	period  uint64
}

// AddressFor derives the oracle address bound to a pair.
func AddressFor(pair common.Address) common.Address {
	return crypto.DeriveAddress("oracle/" + pair.Hex())
}

// New binds an oracle to the pair. Period is clamped to at least one block.
func New(store Store, source Source, period uint64) *TWAP {
	if period == 0 {
		period = 1
	}
	return &TWAP{
		address: AddressFor(source.Address()),
		source:  source,
		store:   store,
		period:  period,
	}
}

// Address returns the oracle's address.
func (o *TWAP) Address() common.Address { return o.address }

// Pair returns the observed pair address.
func (o *TWAP) Pair() common.Address { return o.source.Address() }

// Period returns the minimum window in blocks.
func (o *TWAP) Period() uint64 { return o.period }

func (o *TWAP) key() []byte {
	return append([]byte("oracle/twap/"), o.address.Bytes()...)
}

func (o *TWAP) load() (*observation, bool, error) {
	obs := new(observation)
	ok, err := o.store.KVGet(o.key(), obs)
	if err != nil || !ok {
		return nil, ok, err
	}
	return obs, true, nil
}

// Refresh records a new average. The first refresh seeds the average with
// the spot price; later refreshes require Period blocks since the last one.
func (o *TWAP) Refresh() error {
	price0, price1, height, err := o.source.CumulativePrices()
	if err != nil {
		return err
	}
	prev, ok, err := o.load()
	if err != nil {
		return err
	}
	next := &observation{
		Price0CumulativeLast: price0,
		Price1CumulativeLast: price1,
		HeightLast:           height,
	}
	if !ok {
		reserve0, reserve1, _, err := o.source.GetReserves()
		if err != nil {
			return err
		}
		if reserve0.Sign() == 0 || reserve1.Sign() == 0 {
			return ErrNoReserves
		}
		next.Price0Average = new(big.Int).Quo(new(big.Int).Mul(reserve1, q112), reserve0)
		next.Price1Average = new(big.Int).Quo(new(big.Int).Mul(reserve0, q112), reserve1)
		return o.store.KVPut(o.key(), next)
	}
	if height < prev.HeightLast || height-prev.HeightLast < o.period {
		return ErrPeriodNotElapsed
	}
	elapsed := new(big.Int).SetUint64(height - prev.HeightLast)
	next.Price0Average = new(big.Int).Quo(new(big.Int).Sub(price0, prev.Price0CumulativeLast), elapsed)
	next.Price1Average = new(big.Int).Quo(new(big.Int).Sub(price1, prev.Price1CumulativeLast), elapsed)
	return o.store.KVPut(o.key(), next)
}

// Consult returns the amount of the other pair token that amountIn of token
// is worth at the current average, floored.
func (o *TWAP) Consult(token common.Address, amountIn *big.Int) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() < 0 {
		return nil, fmt.Errorf("oracle: invalid amount")
	}
	obs, ok, err := o.load()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialised
	}
	var average *big.Int
	switch token {
	case o.source.Token0():
		average = obs.Price0Average
	case o.source.Token1():
		average = obs.Price1Average
	default:
		return nil, ErrInvalidToken
	}
	out := new(big.Int).Mul(average, amountIn)
	return out.Rsh(out, 112), nil
}

// LastRefresh returns the height of the last observation.
func (o *TWAP) LastRefresh() (uint64, bool, error) {
	obs, ok, err := o.load()
	if err != nil || !ok {
		return 0, ok, err
	}
	return obs.HeightLast, true, nil
}
