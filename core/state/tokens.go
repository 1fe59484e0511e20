package state

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrInsufficientBalance is returned when a transfer or burn exceeds the
	// holder's balance.
	ErrInsufficientBalance = errors.New("token: transfer amount exceeds balance")
	// ErrInsufficientAllowance is returned when TransferFrom exceeds the
	// spender's approved allowance.
	ErrInsufficientAllowance = errors.New("token: transfer amount exceeds allowance")
	// ErrTokenNotRegistered is returned for operations on unknown tokens.
	ErrTokenNotRegistered = errors.New("token: not registered")
	// ErrTokenExists is returned when registering a token twice.
	ErrTokenExists = errors.New("token: already registered")
	// ErrNegativeAmount rejects negative token amounts.
	ErrNegativeAmount = errors.New("token: amount must not be negative")
)

var (
	tokenMetaPrefix      = []byte("token/meta/")
	tokenBalancePrefix   = []byte("token/balance/")
	tokenAllowancePrefix = []byte("token/allowance/")
	tokenSupplyPrefix    = []byte("token/supply/")
	tokenIndexKey        = []byte("token/index")
)

// TokenMetadata describes a registered fungible token.
type TokenMetadata struct {
	Address  common.Address
	Symbol   string
	Decimals uint8
}

// TransferHook is invoked after a transfer into a hooked recipient has been
// applied. Returning an error aborts the surrounding call.
type TransferHook func(token, from, to common.Address, amount *big.Int) error

func tokenMetaKey(token common.Address) []byte {
	return append(append([]byte{}, tokenMetaPrefix...), token.Bytes()...)
}

func tokenBalanceKey(token, owner common.Address) []byte {
	key := append(append([]byte{}, tokenBalancePrefix...), token.Bytes()...)
	return append(key, owner.Bytes()...)
}

func tokenAllowanceKey(token, owner, spender common.Address) []byte {
	key := append(append([]byte{}, tokenAllowancePrefix...), token.Bytes()...)
	key = append(key, owner.Bytes()...)
	return append(key, spender.Bytes()...)
}

func tokenSupplyKey(token common.Address) []byte {
	return append(append([]byte{}, tokenSupplyPrefix...), token.Bytes()...)
}

// RegisterToken records metadata for a new token.
func (m *Manager) RegisterToken(token common.Address, symbol string, decimals uint8) error {
	if token == (common.Address{}) {
		return fmt.Errorf("token: address must not be zero")
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return fmt.Errorf("token: symbol required")
	}
	if m.TokenExists(token) {
		return ErrTokenExists
	}
	meta := TokenMetadata{Address: token, Symbol: symbol, Decimals: decimals}
	if err := m.KVPut(tokenMetaKey(token), meta); err != nil {
		return err
	}
	var index []common.Address
	if err := m.KVGetList(tokenIndexKey, &index); err != nil {
		return err
	}
	index = append(index, token)
	return m.KVPut(tokenIndexKey, index)
}

// TokenExists reports whether the token has been registered.
func (m *Manager) TokenExists(token common.Address) bool {
	ok, err := m.KVGet(tokenMetaKey(token), nil)
	return err == nil && ok
}

// Token returns the registered metadata for token.
func (m *Manager) Token(token common.Address) (*TokenMetadata, error) {
	var meta TokenMetadata
	ok, err := m.KVGet(tokenMetaKey(token), &meta)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrTokenNotRegistered
	}
	return &meta, nil
}

// Tokens lists registered tokens in registration order.
func (m *Manager) Tokens() ([]common.Address, error) {
	var index []common.Address
	if err := m.KVGetList(tokenIndexKey, &index); err != nil {
		return nil, err
	}
	return index, nil
}

// SetTransferHook installs a callback fired whenever the recipient receives
// tokens. Hooks live in memory only and are not part of committed state.
func (m *Manager) SetTransferHook(recipient common.Address, hook TransferHook) {
	if m.hooks == nil {
		m.hooks = make(map[common.Address]TransferHook)
	}
	if hook == nil {
		delete(m.hooks, recipient)
		return
	}
	m.hooks[recipient] = hook
}

func (m *Manager) loadAmount(key []byte) (*big.Int, error) {
	value := new(big.Int)
	ok, err := m.KVGet(key, value)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return value, nil
}

func (m *Manager) storeAmount(key []byte, amount *big.Int) error {
	if amount.Sign() == 0 {
		return m.KVDelete(key)
	}
	return m.KVPut(key, new(big.Int).Set(amount))
}

func (m *Manager) requireToken(token common.Address) error {
	if !m.TokenExists(token) {
		return fmt.Errorf("%w: %s", ErrTokenNotRegistered, token.Hex())
	}
	return nil
}

func checkAmount(amount *big.Int) error {
	if amount == nil {
		return fmt.Errorf("token: amount required")
	}
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	return nil
}

// Balance returns the holder's balance of token.
func (m *Manager) Balance(token, owner common.Address) (*big.Int, error) {
	if err := m.requireToken(token); err != nil {
		return nil, err
	}
	return m.loadAmount(tokenBalanceKey(token, owner))
}

// TotalSupply returns the circulating supply of token.
func (m *Manager) TotalSupply(token common.Address) (*big.Int, error) {
	if err := m.requireToken(token); err != nil {
		return nil, err
	}
	return m.loadAmount(tokenSupplyKey(token))
}

// Mint credits amount of token to the recipient and grows the supply.
func (m *Manager) Mint(token, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if err := m.requireToken(token); err != nil {
		return err
	}
	balance, err := m.loadAmount(tokenBalanceKey(token, to))
	if err != nil {
		return err
	}
	supply, err := m.loadAmount(tokenSupplyKey(token))
	if err != nil {
		return err
	}
	if err := m.storeAmount(tokenBalanceKey(token, to), balance.Add(balance, amount)); err != nil {
		return err
	}
	return m.storeAmount(tokenSupplyKey(token), supply.Add(supply, amount))
}

// Burn debits amount of token from the holder and shrinks the supply.
func (m *Manager) Burn(token, from common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if err := m.requireToken(token); err != nil {
		return err
	}
	balance, err := m.loadAmount(tokenBalanceKey(token, from))
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	supply, err := m.loadAmount(tokenSupplyKey(token))
	if err != nil {
		return err
	}
	if err := m.storeAmount(tokenBalanceKey(token, from), balance.Sub(balance, amount)); err != nil {
		return err
	}
	return m.storeAmount(tokenSupplyKey(token), supply.Sub(supply, amount))
}

// Transfer moves amount of token between two holders. Recipient hooks run
// after both balances are written.
func (m *Manager) Transfer(token, from, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if err := m.requireToken(token); err != nil {
		return err
	}
	fromBalance, err := m.loadAmount(tokenBalanceKey(token, from))
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if from != to {
		toBalance, err := m.loadAmount(tokenBalanceKey(token, to))
		if err != nil {
			return err
		}
		if err := m.storeAmount(tokenBalanceKey(token, from), fromBalance.Sub(fromBalance, amount)); err != nil {
			return err
		}
		if err := m.storeAmount(tokenBalanceKey(token, to), toBalance.Add(toBalance, amount)); err != nil {
			return err
		}
	}
	if hook, ok := m.hooks[to]; ok && amount.Sign() > 0 {
		return hook(token, from, to, new(big.Int).Set(amount))
	}
	return nil
}

// Approve sets the allowance the spender may move on behalf of owner.
func (m *Manager) Approve(token, owner, spender common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if err := m.requireToken(token); err != nil {
		return err
	}
	return m.storeAmount(tokenAllowanceKey(token, owner, spender), amount)
}

// Allowance returns the amount spender may still move on behalf of owner.
func (m *Manager) Allowance(token, owner, spender common.Address) (*big.Int, error) {
	if err := m.requireToken(token); err != nil {
		return nil, err
	}
	return m.loadAmount(tokenAllowanceKey(token, owner, spender))
}

// TransferFrom moves tokens on behalf of owner, consuming allowance. The
// allowance is checked before the balance.
func (m *Manager) TransferFrom(token, spender, from, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	allowance, err := m.Allowance(token, from, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	if err := m.storeAmount(tokenAllowanceKey(token, from, spender), allowance.Sub(allowance, amount)); err != nil {
		return err
	}
	return m.Transfer(token, from, to, amount)
}
