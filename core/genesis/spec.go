package genesis

import (
	"bytes"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"xfarm/crypto"
)

// GenesisSpec describes the initial ledger: tokens, balances, seeded pairs
// and the farm pools opened over them.
type GenesisSpec struct {
	StartHeight uint64                       `yaml:"startHeight"`
	Tokens      []TokenSpec                  `yaml:"tokens"`
	Alloc       map[string]map[string]string `yaml:"alloc"` // addr -> token -> amount
	Pairs       []PairSpec                   `yaml:"pairs"`
	Pools       []PoolSpec                   `yaml:"pools"`
	Treasury    string                       `yaml:"treasury"`

	tokenAddrs  map[string]common.Address
	treasuryAmt *big.Int
}

type TokenSpec struct {
	Symbol   string `yaml:"symbol"`
	Name     string `yaml:"name,omitempty"`
	Decimals uint8  `yaml:"decimals"`
	Address  string `yaml:"address,omitempty"`
}

// PairSpec seeds a constant-product pair. The seed amounts are minted to
// Provider, who receives the initial shares.
type PairSpec struct {
	TokenA       string `yaml:"tokenA"`
	TokenB       string `yaml:"tokenB"`
	Provider     string `yaml:"provider"`
	AmountA      string `yaml:"amountA"`
	AmountB      string `yaml:"amountB"`
	OraclePeriod uint64 `yaml:"oraclePeriod"`

	provider common.Address
	amountA  *big.Int
	amountB  *big.Int
}

// PoolSpec opens a farm over the pair trading Input against the reward
// token.
type PoolSpec struct {
	Input   string `yaml:"input"`
	Refresh bool   `yaml:"refresh"`
}

func LoadGenesisSpec(path string) (*GenesisSpec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	spec, err := ParseGenesisSpec(raw)
	if err != nil {
		return nil, fmt.Errorf("genesis spec %q: %w", path, err)
	}
	return spec, nil
}

// ParseGenesisSpec decodes and validates a YAML genesis document. Unknown
// fields are rejected.
func ParseGenesisSpec(raw []byte) (*GenesisSpec, error) {
	var spec GenesisSpec
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := spec.validate(); err != nil {
		return nil, fmt.Errorf("invalid: %w", err)
	}
	return &spec, nil
}

// TokenAddress returns the ledger address of symbol.
func (s *GenesisSpec) TokenAddress(symbol string) (common.Address, bool) {
	addr, ok := s.tokenAddrs[normalizeSymbol(symbol)]
	return addr, ok
}

// TreasuryAmount is the reward token amount minted to the farm module.
func (s *GenesisSpec) TreasuryAmount() *big.Int {
	if s.treasuryAmt == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(s.treasuryAmt)
}

// TokenAddressFor derives the default ledger address of a token symbol.
func TokenAddressFor(symbol string) common.Address {
	return crypto.DeriveAddress("token/" + normalizeSymbol(symbol))
}

// PairAddressFor derives the address of the pair trading a and b. The
// result does not depend on argument order.
func PairAddressFor(a, b common.Address) common.Address {
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		a, b = b, a
	}
	return crypto.DeriveAddress("pair/" + a.Hex() + "/" + b.Hex())
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func (s *GenesisSpec) validate() error {
	// tokens
	s.tokenAddrs = make(map[string]common.Address, len(s.Tokens))
	seenAddrs := make(map[common.Address]struct{}, len(s.Tokens))
	for i := range s.Tokens {
		token := &s.Tokens[i]
		if err := token.validate(); err != nil {
			return fmt.Errorf("tokens[%d]: %w", i, err)
		}
		key := normalizeSymbol(token.Symbol)
		if _, exists := s.tokenAddrs[key]; exists {
			return fmt.Errorf("tokens[%d]: duplicate symbol %q", i, token.Symbol)
		}
		addr := TokenAddressFor(key)
		if strings.TrimSpace(token.Address) != "" {
			parsed, err := crypto.ParseAddress(token.Address)
			if err != nil {
				return fmt.Errorf("tokens[%d]: address: %w", i, err)
			}
			addr = parsed
		}
		if _, exists := seenAddrs[addr]; exists {
			return fmt.Errorf("tokens[%d]: duplicate address %s", i, addr.Hex())
		}
		seenAddrs[addr] = struct{}{}
		s.tokenAddrs[key] = addr
	}

	// alloc
	accounts := make([]string, 0, len(s.Alloc))
	for account := range s.Alloc {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)
	for _, account := range accounts {
		if _, err := crypto.ParseAddress(account); err != nil {
			return fmt.Errorf("alloc[%q]: %w", account, err)
		}
		for symbol, amount := range s.Alloc[account] {
			if _, ok := s.TokenAddress(symbol); !ok {
				return fmt.Errorf("alloc[%q][%q]: undefined token", account, symbol)
			}
			if _, err := parseAmountString(amount); err != nil {
				return fmt.Errorf("alloc[%q][%q]: %w", account, symbol, err)
			}
		}
	}

	// pairs
	seenPairs := make(map[common.Address]struct{}, len(s.Pairs))
	for i := range s.Pairs {
		pair := &s.Pairs[i]
		a, okA := s.TokenAddress(pair.TokenA)
		b, okB := s.TokenAddress(pair.TokenB)
		if !okA || !okB {
			return fmt.Errorf("pairs[%d]: undefined token", i)
		}
		if a == b {
			return fmt.Errorf("pairs[%d]: identical tokens", i)
		}
		addr := PairAddressFor(a, b)
		if _, exists := seenPairs[addr]; exists {
			return fmt.Errorf("pairs[%d]: duplicate pair %s/%s", i, pair.TokenA, pair.TokenB)
		}
		seenPairs[addr] = struct{}{}
		var err error
		if pair.amountA, err = parseAmountString(pair.AmountA); err != nil {
			return fmt.Errorf("pairs[%d]: amountA: %w", i, err)
		}
		if pair.amountB, err = parseAmountString(pair.AmountB); err != nil {
			return fmt.Errorf("pairs[%d]: amountB: %w", i, err)
		}
		if (pair.amountA.Sign() == 0) != (pair.amountB.Sign() == 0) {
			return fmt.Errorf("pairs[%d]: seed amounts must both be set or both be zero", i)
		}
		if pair.amountA.Sign() > 0 {
			if pair.provider, err = crypto.ParseAddress(pair.Provider); err != nil {
				return fmt.Errorf("pairs[%d]: provider: %w", i, err)
			}
		}
	}

	// pools
	for i, pool := range s.Pools {
		if _, ok := s.TokenAddress(pool.Input); !ok {
			return fmt.Errorf("pools[%d]: undefined input token %q", i, pool.Input)
		}
	}

	amount, err := parseAmountString(s.Treasury)
	if err != nil {
		return fmt.Errorf("treasury: %w", err)
	}
	s.treasuryAmt = amount
	return nil
}

func (t *TokenSpec) validate() error {
	if strings.TrimSpace(t.Symbol) == "" {
		return fmt.Errorf("symbol must be provided")
	}
	if t.Decimals > 18 {
		return fmt.Errorf("decimals must be 18 or fewer")
	}
	return nil
}

func parseAmountString(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}
