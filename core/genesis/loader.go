package genesis

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"xfarm/core/state"
	"xfarm/crypto"
	"xfarm/native/amm"
	"xfarm/native/farm"
	"xfarm/native/oracle"
)

var appliedKey = []byte("genesis/applied")

// Chain holds the in-memory handles over the ledger objects a genesis spec
// describes. Handles are rebuilt on every start; ledger writes happen once.
type Chain struct {
	spec    *GenesisSpec
	fresh   bool
	Pairs   *amm.Registry
	Oracles *oracle.Registry
}

// Token resolves a symbol declared in the genesis spec.
func (c *Chain) Token(symbol string) (common.Address, bool) {
	return c.spec.TokenAddress(symbol)
}

// Fresh reports whether Build wrote the genesis ledger in this run.
func (c *Chain) Fresh() bool { return c.fresh }

// Build registers tokens, allocations and seeded pairs on a fresh ledger and
// opens pair and oracle handles. Writes are left uncommitted; InitFarm
// commits them.
func Build(spec *GenesisSpec, manager *state.Manager, heights amm.HeightSource) (*Chain, error) {
	if spec == nil {
		return nil, fmt.Errorf("genesis spec must not be nil")
	}
	if manager == nil {
		return nil, fmt.Errorf("state manager must not be nil")
	}
	applied, err := manager.KVGet(appliedKey, nil)
	if err != nil {
		return nil, fmt.Errorf("load genesis marker: %w", err)
	}
	chain := &Chain{
		spec:    spec,
		fresh:   !applied,
		Pairs:   amm.NewRegistry(),
		Oracles: oracle.NewRegistry(),
	}

	if chain.fresh {
		// 1) Tokens (declaration order)
		for _, token := range spec.Tokens {
			addr, _ := spec.TokenAddress(token.Symbol)
			if err := manager.RegisterToken(addr, token.Symbol, token.Decimals); err != nil {
				return nil, fmt.Errorf("register token %q: %w", token.Symbol, err)
			}
		}

		// 2) Allocations (outer: addresses sorted; inner: symbols sorted)
		if err := applyAlloc(spec, manager); err != nil {
			return nil, err
		}
	}

	// 3) Pairs and their oracles
	for i := range spec.Pairs {
		ps := &spec.Pairs[i]
		a, _ := spec.TokenAddress(ps.TokenA)
		b, _ := spec.TokenAddress(ps.TokenB)
		pair, err := amm.NewPair(manager, heights, PairAddressFor(a, b), a, b)
		if err != nil {
			return nil, fmt.Errorf("pairs[%d]: %w", i, err)
		}
		if chain.fresh && ps.amountA.Sign() > 0 {
			if err := seedPair(manager, pair, ps, a, b); err != nil {
				return nil, fmt.Errorf("pairs[%d]: %w", i, err)
			}
		}
		chain.Pairs.Add(pair)
		chain.Oracles.Add(oracle.New(manager, pair, ps.OraclePeriod))
	}
	return chain, nil
}

func applyAlloc(spec *GenesisSpec, manager *state.Manager) error {
	accounts := make([]string, 0, len(spec.Alloc))
	for account := range spec.Alloc {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)
	for _, account := range accounts {
		owner, err := parseAccount(account)
		if err != nil {
			return fmt.Errorf("alloc[%q]: %w", account, err)
		}
		balances := spec.Alloc[account]
		symbols := make([]string, 0, len(balances))
		for symbol := range balances {
			symbols = append(symbols, symbol)
		}
		sort.Strings(symbols)
		for _, symbol := range symbols {
			token, _ := spec.TokenAddress(symbol)
			amount, err := parseAmountString(balances[symbol])
			if err != nil {
				return fmt.Errorf("alloc[%q][%q]: %w", account, symbol, err)
			}
			if amount.Sign() == 0 {
				continue
			}
			if err := manager.Mint(token, owner, amount); err != nil {
				return fmt.Errorf("alloc[%q][%q]: %w", account, symbol, err)
			}
		}
	}
	return nil
}

func seedPair(manager *state.Manager, pair *amm.Pair, ps *PairSpec, a, b common.Address) error {
	if err := manager.Mint(a, ps.provider, ps.amountA); err != nil {
		return err
	}
	if err := manager.Mint(b, ps.provider, ps.amountB); err != nil {
		return err
	}
	_, _, _, err := pair.AddLiquidity(ps.provider, a, ps.amountA, ps.amountB, ps.provider)
	return err
}

// InitFarm hands the pairs and oracles to engine, stores cfg and, on a fresh
// ledger, funds the treasury and opens the genesis pools. The whole genesis
// is committed before InitFarm returns.
func (c *Chain) InitFarm(manager *state.Manager, engine *farm.Engine, cfg farm.GlobalConfig) ([]uint64, error) {
	for _, addr := range c.Pairs.Addresses() {
		pair, _ := c.Pairs.Pair(addr)
		engine.RegisterPair(pair)
		if twap, ok := c.Oracles.Oracle(oracle.AddressFor(addr)); ok {
			engine.RegisterOracle(twap)
		}
	}
	if err := engine.InitGenesis(cfg); err != nil {
		return nil, fmt.Errorf("farm genesis: %w", err)
	}
	if !c.fresh {
		return nil, nil
	}

	if treasury := c.spec.TreasuryAmount(); treasury.Sign() > 0 {
		if err := manager.Mint(cfg.RewardToken, engine.ModuleAddress(), treasury); err != nil {
			return nil, fmt.Errorf("fund treasury: %w", err)
		}
	}
	ids := make([]uint64, 0, len(c.spec.Pools))
	for i, ps := range c.spec.Pools {
		input, _ := c.spec.TokenAddress(ps.Input)
		pair, ok := c.pairFor(input, cfg.RewardToken)
		if !ok {
			return nil, fmt.Errorf("pools[%d]: no pair trades %s against the reward token", i, ps.Input)
		}
		id, err := engine.AddPool(cfg.Admin, pair.Address(), input, oracle.AddressFor(pair.Address()), ps.Refresh)
		if err != nil {
			return nil, fmt.Errorf("pools[%d]: %w", i, err)
		}
		ids = append(ids, id)
	}
	if err := manager.KVPut(appliedKey, true); err != nil {
		return nil, err
	}
	if err := manager.Commit(); err != nil {
		return nil, fmt.Errorf("commit genesis: %w", err)
	}
	return ids, nil
}

func (c *Chain) pairFor(a, b common.Address) (*amm.Pair, bool) {
	for _, addr := range c.Pairs.Addresses() {
		pair, _ := c.Pairs.Pair(addr)
		if pair.Trades(a, b) {
			return pair, true
		}
	}
	return nil, false
}

func parseAccount(value string) (common.Address, error) {
	addr, err := crypto.ParseAddress(value)
	if err != nil {
		return common.Address{}, err
	}
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("zero address")
	}
	return addr, nil
}
