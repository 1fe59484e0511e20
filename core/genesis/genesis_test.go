package genesis

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"xfarm/core/clock"
	"xfarm/core/state"
	"xfarm/crypto"
	"xfarm/native/farm"
	"xfarm/storage"
)

var (
	testAdmin    = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	testDev      = common.HexToAddress("0x0000000000000000000000000000000000000de5")
	testProvider = common.HexToAddress("0x0000000000000000000000000000000000000fee")
	testAlice    = common.HexToAddress("0x0000000000000000000000000000000000000011")
)

func testSpecYAML() string {
	return fmt.Sprintf(`startHeight: 100
tokens:
  - symbol: usdt
    name: Tether
    decimals: 6
  - symbol: XFIT
    decimals: 18
alloc:
  "%s":
    USDT: "1000"
pairs:
  - tokenA: USDT
    tokenB: XFIT
    provider: %s
    amountA: "1000000"
    amountB: "1000000"
    oraclePeriod: 5
pools:
  - input: USDT
    refresh: true
treasury: "50000"
`, testAlice.Hex(), crypto.FromCommon(testProvider).String())
}

func testFarmConfig(t *testing.T, chain *Chain) farm.GlobalConfig {
	t.Helper()
	reward, ok := chain.Token("XFIT")
	require.True(t, ok)
	cfg := farm.DefaultConfig()
	cfg.RewardToken = reward
	cfg.RewardPerBlock = big.NewInt(100)
	cfg.Admin = testAdmin
	cfg.DevAddress = testDev
	return cfg
}

func TestLoadGenesisSpec(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testSpecYAML()), 0o644))

	spec, err := LoadGenesisSpec(path)
	require.NoError(t, err)
	require.Equal(t, uint64(100), spec.StartHeight)
	require.Len(t, spec.Tokens, 2)
	require.Equal(t, "50000", spec.TreasuryAmount().String())

	usdt, ok := spec.TokenAddress("USDT")
	require.True(t, ok)
	require.Equal(t, TokenAddressFor("usdt"), usdt)
	_, ok = spec.TokenAddress("DAI")
	require.False(t, ok)

	_, err = LoadGenesisSpec(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestPairAddressIsOrderIndependent(t *testing.T) {
	a := TokenAddressFor("USDT")
	b := TokenAddressFor("XFIT")
	require.Equal(t, PairAddressFor(a, b), PairAddressFor(b, a))
	require.NotEqual(t, PairAddressFor(a, b), PairAddressFor(a, TokenAddressFor("DAI")))
}

func TestParseGenesisSpecRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown field": "tokens: []\nchainId: 4\n",
		"empty symbol":  "tokens:\n  - symbol: \"\"\n",
		"decimals":      "tokens:\n  - symbol: A\n    decimals: 30\n",
		"duplicate":     "tokens:\n  - symbol: A\n  - symbol: a\n",
		"alloc token":   "tokens:\n  - symbol: A\nalloc:\n  \"0x0000000000000000000000000000000000000011\":\n    B: \"1\"\n",
		"alloc amount":  "tokens:\n  - symbol: A\nalloc:\n  \"0x0000000000000000000000000000000000000011\":\n    A: \"-1\"\n",
		"alloc account": "tokens:\n  - symbol: A\nalloc:\n  nobody:\n    A: \"1\"\n",
		"identical":     "tokens:\n  - symbol: A\npairs:\n  - tokenA: A\n    tokenB: a\n",
		"one sided":     "tokens:\n  - symbol: A\n  - symbol: B\npairs:\n  - tokenA: A\n    tokenB: B\n    amountA: \"10\"\n",
		"no provider":   "tokens:\n  - symbol: A\n  - symbol: B\npairs:\n  - tokenA: A\n    tokenB: B\n    amountA: \"10\"\n    amountB: \"10\"\n",
		"pool input":    "tokens:\n  - symbol: A\npools:\n  - input: C\n",
		"treasury":      "tokens:\n  - symbol: A\ntreasury: abc\n",
	}
	for name, doc := range cases {
		if _, err := ParseGenesisSpec([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestBuildAndInitFarm(t *testing.T) {
	spec, err := ParseGenesisSpec([]byte(testSpecYAML()))
	require.NoError(t, err)

	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	mgr := state.NewManager(db)
	clk := clock.New(spec.StartHeight)

	chain, err := Build(spec, mgr, clk)
	require.NoError(t, err)
	require.True(t, chain.Fresh())
	require.Len(t, chain.Pairs.Addresses(), 1)

	engine := farm.NewEngine(mgr, clk, common.Address{})
	cfg := testFarmConfig(t, chain)
	ids, err := chain.InitFarm(mgr, engine, cfg)
	require.NoError(t, err)
	require.Equal(t, []uint64{0}, ids)
	require.Zero(t, mgr.Pending())

	usdt, _ := chain.Token("USDT")
	bal, err := mgr.Balance(usdt, testAlice)
	require.NoError(t, err)
	require.Equal(t, int64(1000), bal.Int64())

	treasury, err := engine.TreasuryBalance()
	require.NoError(t, err)
	require.Equal(t, int64(50000), treasury.Int64())

	pairAddr := PairAddressFor(usdt, cfg.RewardToken)
	shares, err := mgr.Balance(pairAddr, testProvider)
	require.NoError(t, err)
	require.Equal(t, int64(999_000), shares.Int64())

	pool, err := engine.Pool(0)
	require.NoError(t, err)
	require.Equal(t, pairAddr, pool.ShareToken)
	require.Equal(t, usdt, pool.InputToken)

	// A restart over the committed ledger reopens handles without rewriting.
	restarted := state.NewManager(db)
	again, err := Build(spec, restarted, clk)
	require.NoError(t, err)
	require.False(t, again.Fresh())
	engine2 := farm.NewEngine(restarted, clk, common.Address{})
	ids, err = again.InitFarm(restarted, engine2, cfg)
	require.NoError(t, err)
	require.Empty(t, ids)
	count, err := engine2.PoolCount()
	require.NoError(t, err)
	require.Equal(t, uint64(1), count)
	bal, err = restarted.Balance(usdt, testAlice)
	require.NoError(t, err)
	require.Equal(t, int64(1000), bal.Int64())
}

func TestInitFarmRequiresRewardPair(t *testing.T) {
	doc := `tokens:
  - symbol: USDT
  - symbol: DAI
  - symbol: XFIT
pairs:
  - tokenA: USDT
    tokenB: DAI
pools:
  - input: USDT
`
	spec, err := ParseGenesisSpec([]byte(doc))
	require.NoError(t, err)
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	mgr := state.NewManager(db)
	clk := clock.New(1)
	chain, err := Build(spec, mgr, clk)
	require.NoError(t, err)

	engine := farm.NewEngine(mgr, clk, common.Address{})
	_, err = chain.InitFarm(mgr, engine, testFarmConfig(t, chain))
	require.ErrorContains(t, err, "no pair trades")
}
