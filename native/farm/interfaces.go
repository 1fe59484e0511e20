package farm

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// State is the journaled key/value store and token ledger the engine runs
// against.
type State interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	Balance(token, owner common.Address) (*big.Int, error)
	Transfer(token, from, to common.Address, amount *big.Int) error
	TransferFrom(token, spender, from, to common.Address, amount *big.Int) error
	Snapshot() int
	RevertToSnapshot(id int)
	Commit() error
}

// ExchangePool is the constant-product pool backing a farm. Its address is
// the share token.
type ExchangePool interface {
	Address() common.Address
	Trades(a, b common.Address) bool
	Reserves(tokenIn common.Address) (*big.Int, *big.Int, error)
	QuoteOut(tokenIn common.Address, amountIn *big.Int) (*big.Int, error)
	SwapExactIn(sender, tokenIn common.Address, amountIn, minOut *big.Int, to common.Address) (*big.Int, error)
	AddLiquidity(sender, tokenA common.Address, amountADesired, amountBDesired *big.Int, to common.Address) (*big.Int, *big.Int, *big.Int, error)
	RemoveLiquidity(sender, tokenA common.Address, liquidity *big.Int, to common.Address) (*big.Int, *big.Int, error)
	UnderlyingValue(tokenA common.Address, liquidity *big.Int) (*big.Int, *big.Int, error)
}

// PriceOracle prices the input token in reward tokens.
type PriceOracle interface {
	Address() common.Address
	Refresh() error
	Consult(token common.Address, amountIn *big.Int) (*big.Int, error)
}

// HeightSource reports the current block height.
type HeightSource interface {
	Height() uint64
}
