package farm

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"xfarm/core/clock"
	"xfarm/core/events"
	"xfarm/core/state"
	"xfarm/native/amm"
	nativecommon "xfarm/native/common"
	"xfarm/native/oracle"
	"xfarm/storage"
)

var (
	usdt     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	xfit     = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	pairAddr = common.HexToAddress("0x00000000000000000000000000000000000000c3")
	admin    = common.HexToAddress("0x0000000000000000000000000000000000000001")
	dev      = common.HexToAddress("0x0000000000000000000000000000000000000002")
	seeder   = common.HexToAddress("0x0000000000000000000000000000000000000003")
	alice    = common.HexToAddress("0x0000000000000000000000000000000000000011")
	bob      = common.HexToAddress("0x0000000000000000000000000000000000000012")
	carol    = common.HexToAddress("0x0000000000000000000000000000000000000013")
)

type harness struct {
	t      *testing.T
	mgr    *state.Manager
	clk    *clock.Clock
	pair   *amm.Pair
	oracle *oracle.TWAP
	engine *Engine
	rec    *events.Recorder
	pool   uint64
}

// newHarness builds a 1:1 USDT/XFIT pool with 1e6 of each side, a farm
// dripping 100 XFIT per block from height 100 and a treasury holding
// `treasury` XFIT.
func newHarness(t *testing.T, treasury, threshold int64) *harness {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	mgr := state.NewManager(db)
	require.NoError(t, mgr.RegisterToken(usdt, "USDT", 6))
	require.NoError(t, mgr.RegisterToken(xfit, "XFIT", 18))
	clk := clock.New(100)

	pair, err := amm.NewPair(mgr, clk, pairAddr, usdt, xfit)
	require.NoError(t, err)
	require.NoError(t, mgr.Mint(usdt, seeder, big.NewInt(1_000_000)))
	require.NoError(t, mgr.Mint(xfit, seeder, big.NewInt(1_000_000)))
	_, _, _, err = pair.AddLiquidity(seeder, usdt, big.NewInt(1_000_000), big.NewInt(1_000_000), seeder)
	require.NoError(t, err)
	twap := oracle.New(mgr, pair, 1)

	cfg := DefaultConfig()
	cfg.RewardToken = xfit
	cfg.RewardPerBlock = big.NewInt(100)
	cfg.InternalSwapThreshold = big.NewInt(threshold)
	cfg.DevAddress = dev
	cfg.Admin = admin

	engine := NewEngine(mgr, clk, common.Address{})
	rec := &events.Recorder{}
	engine.SetEmitter(rec)
	engine.RegisterPair(pair)
	engine.RegisterOracle(twap)
	require.NoError(t, engine.InitGenesis(cfg))
	if treasury > 0 {
		require.NoError(t, mgr.Mint(xfit, engine.ModuleAddress(), big.NewInt(treasury)))
	}
	id, err := engine.AddPool(admin, pairAddr, usdt, twap.Address(), true)
	require.NoError(t, err)
	rec.Reset()
	return &harness{t: t, mgr: mgr, clk: clk, pair: pair, oracle: twap, engine: engine, rec: rec, pool: id}
}

// give mints input tokens to user and approves the farm for them.
func (h *harness) give(user common.Address, amount int64) {
	h.t.Helper()
	require.NoError(h.t, h.mgr.Mint(usdt, user, big.NewInt(amount)))
	require.NoError(h.t, h.mgr.Approve(usdt, user, h.engine.ModuleAddress(), big.NewInt(amount)))
}

// giveShares hands pool shares from the seeder to user and approves them.
func (h *harness) giveShares(user common.Address, amount int64) {
	h.t.Helper()
	require.NoError(h.t, h.mgr.Transfer(pairAddr, seeder, user, big.NewInt(amount)))
	require.NoError(h.t, h.mgr.Approve(pairAddr, user, h.engine.ModuleAddress(), big.NewInt(amount)))
}

func (h *harness) balance(token, owner common.Address) int64 {
	h.t.Helper()
	bal, err := h.mgr.Balance(token, owner)
	require.NoError(h.t, err)
	return bal.Int64()
}

func (h *harness) pending(user common.Address) int64 {
	h.t.Helper()
	pending, err := h.engine.PendingReward(h.pool, user)
	require.NoError(h.t, err)
	return pending.Int64()
}

func (h *harness) eventTypes() []string {
	recorded := h.rec.Events()
	out := make([]string, 0, len(recorded))
	for _, evt := range recorded {
		out = append(out, evt.EventType())
	}
	return out
}

func TestAddPoolStoresPool(t *testing.T) {
	h := newHarness(t, 0, 0)
	pool, err := h.engine.Pool(h.pool)
	require.NoError(t, err)
	require.Equal(t, pairAddr, pool.ShareToken)
	require.Equal(t, usdt, pool.InputToken)
	require.Equal(t, h.oracle.Address(), pool.Oracle)
	require.Equal(t, uint64(100), pool.LastRewardBlock)
	require.Zero(t, pool.TotalStaked.Sign())

	count, err := h.engine.PoolCount()
	require.NoError(t, err)
	require.Equal(t, uint64(1), count)

	last, ok, err := h.oracle.LastRefresh()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(100), last)
}

func TestAddPoolValidation(t *testing.T) {
	h := newHarness(t, 0, 0)
	oracleAddr := h.oracle.Address()

	_, err := h.engine.AddPool(alice, pairAddr, usdt, oracleAddr, false)
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = h.engine.AddPool(admin, pairAddr, usdt, oracleAddr, false)
	require.ErrorIs(t, err, ErrInvalidPoolConfig)

	_, err = h.engine.AddPool(admin, pairAddr, xfit, oracleAddr, false)
	require.ErrorIs(t, err, ErrInvalidPoolConfig)

	_, err = h.engine.AddPool(admin, common.Address{}, usdt, oracleAddr, false)
	require.ErrorIs(t, err, ErrInvalidPoolConfig)

	_, err = h.engine.AddPool(admin, common.HexToAddress("0xdead"), usdt, oracleAddr, false)
	require.ErrorIs(t, err, ErrInvalidPoolConfig)

	_, err = h.engine.AddPool(admin, pairAddr, common.HexToAddress("0xbeef"), oracleAddr, false)
	require.ErrorIs(t, err, ErrInvalidPoolConfig)

	count, err := h.engine.PoolCount()
	require.NoError(t, err)
	require.Equal(t, uint64(1), count)
	require.Empty(t, h.rec.Events())
}

func TestAddPoolStartsAtRewardStartBlock(t *testing.T) {
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	mgr := state.NewManager(db)
	require.NoError(t, mgr.RegisterToken(usdt, "USDT", 6))
	require.NoError(t, mgr.RegisterToken(xfit, "XFIT", 18))
	clk := clock.New(5)
	pair, err := amm.NewPair(mgr, clk, pairAddr, usdt, xfit)
	require.NoError(t, err)
	twap := oracle.New(mgr, pair, 1)

	cfg := DefaultConfig()
	cfg.RewardToken = xfit
	cfg.RewardStartBlock = 50
	cfg.DevAddress = dev
	cfg.Admin = admin
	engine := NewEngine(mgr, clk, common.Address{})
	engine.RegisterPair(pair)
	engine.RegisterOracle(twap)
	require.NoError(t, engine.InitGenesis(cfg))

	id, err := engine.AddPool(admin, pairAddr, usdt, twap.Address(), false)
	require.NoError(t, err)
	pool, err := engine.Pool(id)
	require.NoError(t, err)
	require.Equal(t, uint64(50), pool.LastRewardBlock)
}

func TestUnknownPoolFails(t *testing.T) {
	h := newHarness(t, 0, 0)
	h.give(alice, 1000)

	_, err := h.engine.DepositSingleAsset(alice, 7, big.NewInt(1000), nil)
	require.ErrorIs(t, err, ErrPoolNotFound)
	_, err = h.engine.PendingReward(7, alice)
	require.ErrorIs(t, err, ErrPoolNotFound)
	_, err = h.engine.UserPosition(7, alice)
	require.ErrorIs(t, err, ErrPoolNotFound)
	require.ErrorIs(t, h.engine.SettlePool(7), ErrPoolNotFound)
}

func TestDepositRejectsZeroAmount(t *testing.T) {
	h := newHarness(t, 0, 0)
	_, err := h.engine.DepositSingleAsset(alice, h.pool, big.NewInt(0), nil)
	require.ErrorIs(t, err, ErrZeroAmount)
	_, err = h.engine.DepositSingleAsset(alice, h.pool, nil, nil)
	require.ErrorIs(t, err, ErrZeroAmount)
	_, err = h.engine.WithdrawAsSingleAsset(alice, h.pool, big.NewInt(0), nil)
	require.ErrorIs(t, err, ErrZeroAmount)
}

func TestDepositWithoutAllowanceSurfacesLedgerError(t *testing.T) {
	h := newHarness(t, 1_000_000, 1000)
	require.NoError(t, h.mgr.Mint(usdt, alice, big.NewInt(1000)))

	_, err := h.engine.DepositSingleAsset(alice, h.pool, big.NewInt(1000), nil)
	require.ErrorIs(t, err, state.ErrInsufficientAllowance)
	require.Equal(t, int64(1000), h.balance(usdt, alice))
}

func TestInternalDeposit(t *testing.T) {
	h := newHarness(t, 1_000_000, 1000)
	h.give(alice, 1000)

	shares, err := h.engine.DepositSingleAsset(alice, h.pool, big.NewInt(1000), big.NewInt(1))
	require.NoError(t, err)
	require.Equal(t, int64(500), shares.Int64())

	require.Equal(t, []string{
		events.TypeInternalSwap,
		events.TypeSwapTokens,
		events.TypeFarmFunding,
		events.TypeFarmDeposit,
	}, h.eventTypes())

	internal := h.rec.OfType(events.TypeInternalSwap)[0].(events.InternalSwap)
	require.Equal(t, int64(500), internal.TokensBought.Int64())
	swap := h.rec.OfType(events.TypeSwapTokens)[0].(events.SwapTokens)
	require.Equal(t, int64(250), swap.Amount.Int64())
	deposit := h.rec.OfType(events.TypeFarmDeposit)[0].(events.FarmDeposit)
	require.Equal(t, "internal", deposit.Path)

	require.Equal(t, int64(0), h.balance(usdt, alice))
	require.Equal(t, int64(250), h.balance(usdt, dev))
	require.Equal(t, int64(999_749), h.balance(xfit, h.engine.ModuleAddress()))
	require.Equal(t, int64(500), h.balance(pairAddr, h.engine.ModuleAddress()))

	pos, err := h.engine.UserPosition(h.pool, alice)
	require.NoError(t, err)
	require.Equal(t, int64(500), pos.Amount.Int64())

	h.clk.Advance(2)
	require.Equal(t, int64(200), h.pending(alice))

	h.rec.Reset()
	require.NoError(t, h.engine.WithdrawShares(alice, h.pool, big.NewInt(0)))
	require.Equal(t, int64(200), h.balance(xfit, alice))
	require.Equal(t, int64(0), h.pending(alice))
	require.Equal(t, []string{events.TypeFarmRewardPaid}, h.eventTypes())
}

func TestExternalDeposit(t *testing.T) {
	h := newHarness(t, 0, 1)
	h.give(alice, 1000)

	shares, err := h.engine.DepositSingleAsset(alice, h.pool, big.NewInt(1000), nil)
	require.NoError(t, err)
	require.Equal(t, int64(497), shares.Int64())

	require.Equal(t, []string{events.TypeSwapTokens, events.TypeFarmDeposit}, h.eventTypes())
	swap := h.rec.OfType(events.TypeSwapTokens)[0].(events.SwapTokens)
	require.Equal(t, int64(500), swap.Amount.Int64())
	require.Empty(t, h.rec.OfType(events.TypeInternalSwap))

	// 500 sold for 498, 498 of each side added, 2 input refunded.
	require.Equal(t, int64(2), h.balance(usdt, alice))
	require.Equal(t, int64(0), h.balance(usdt, dev))
	require.Equal(t, int64(0), h.balance(xfit, h.engine.ModuleAddress()))
	r0, r1, _, err := h.pair.GetReserves()
	require.NoError(t, err)
	require.Equal(t, "1000998", r0.String())
	require.Equal(t, "1000000", r1.String())
}

func TestThresholdCrossingSwitchesPath(t *testing.T) {
	h := newHarness(t, 1000, 1000)
	h.give(alice, 1000)
	h.give(bob, 1000)

	_, err := h.engine.DepositSingleAsset(alice, h.pool, big.NewInt(1000), nil)
	require.NoError(t, err)
	_, err = h.engine.DepositSingleAsset(bob, h.pool, big.NewInt(1000), nil)
	require.NoError(t, err)

	deposits := h.rec.OfType(events.TypeFarmDeposit)
	require.Len(t, deposits, 2)
	require.Equal(t, "internal", deposits[0].(events.FarmDeposit).Path)
	require.Equal(t, "external", deposits[1].(events.FarmDeposit).Path)
}

func TestAdminWithdrawReserveAffectsRouting(t *testing.T) {
	h := newHarness(t, 1000, 1000)
	h.give(alice, 1000)

	require.ErrorIs(t, h.engine.AdminWithdrawReserve(alice, big.NewInt(1)), ErrUnauthorized)
	require.ErrorIs(t, h.engine.AdminWithdrawReserve(admin, big.NewInt(0)), ErrZeroAmount)
	require.NoError(t, h.engine.AdminWithdrawReserve(admin, big.NewInt(1)))
	require.Equal(t, int64(1), h.balance(xfit, admin))

	balance, err := h.engine.TreasuryBalance()
	require.NoError(t, err)
	require.Equal(t, int64(999), balance.Int64())

	reserveIn, _, _, err := h.pair.GetReserves()
	require.NoError(t, err)
	_, err = h.engine.DepositSingleAsset(alice, h.pool, big.NewInt(1000), nil)
	require.NoError(t, err)
	deposit := h.rec.OfType(events.TypeFarmDeposit)[0].(events.FarmDeposit)
	require.Equal(t, "external", deposit.Path)
	require.Len(t, h.rec.OfType(events.TypeFarmReserveWithdrawn), 1)

	swap := h.rec.OfType(events.TypeSwapTokens)[0].(events.SwapTokens)
	want := newtonZapIn(big.NewInt(1000), reserveIn)
	require.Equal(t, "500", want.String())
	require.Equal(t, 0, swap.Amount.Cmp(want), "swap amount %s, want %s", swap.Amount, want)
}

// newtonZapIn computes the single-sided swap amount with a Newton square
// root, independent of the pair's uint256 arithmetic.
func newtonZapIn(amount, reserveIn *big.Int) *big.Int {
	radicand := new(big.Int).Mul(amount, big.NewInt(3988000))
	radicand.Add(radicand, new(big.Int).Mul(reserveIn, big.NewInt(3988009)))
	radicand.Mul(radicand, reserveIn)

	root := new(big.Int).Set(radicand)
	if radicand.Cmp(big.NewInt(1)) > 0 {
		next := new(big.Int).Rsh(radicand, 1)
		next.Add(next, big.NewInt(1))
		for next.Cmp(root) < 0 {
			root.Set(next)
			next = new(big.Int).Quo(radicand, root)
			next.Add(next, root)
			next.Rsh(next, 1)
		}
	}
	root.Sub(root, new(big.Int).Mul(reserveIn, big.NewInt(1997)))
	return root.Quo(root, big.NewInt(1994))
}

func TestInternalDepositEmitsSwapTokensWithoutBuyback(t *testing.T) {
	h := newHarness(t, 1_000_000, 1000)
	require.NoError(t, h.engine.SetFundingSplitFactor(admin, big.NewInt(0)))
	h.give(alice, 1000)
	h.rec.Reset()

	shares, err := h.engine.DepositSingleAsset(alice, h.pool, big.NewInt(1000), nil)
	require.NoError(t, err)
	require.Equal(t, int64(500), shares.Int64())

	require.Equal(t, []string{
		events.TypeInternalSwap,
		events.TypeSwapTokens,
		events.TypeFarmFunding,
		events.TypeFarmDeposit,
	}, h.eventTypes())
	swap := h.rec.OfType(events.TypeSwapTokens)[0].(events.SwapTokens)
	require.Zero(t, swap.Amount.Sign())
	require.Equal(t, usdt, swap.FromToken)
	require.Equal(t, xfit, swap.ToToken)
	funding := h.rec.OfType(events.TypeFarmFunding)[0].(events.FarmFunding)
	require.Zero(t, funding.Bought.Sign())
	require.Equal(t, int64(500), funding.Dev.Int64())
	require.Equal(t, int64(500), h.balance(usdt, dev))
}

func TestSlippageRollsBackDeposit(t *testing.T) {
	h := newHarness(t, 1_000_000, 1000)
	h.give(alice, 1000)

	_, err := h.engine.DepositSingleAsset(alice, h.pool, big.NewInt(1000), big.NewInt(501))
	require.ErrorIs(t, err, ErrSlippageExceeded)

	require.Equal(t, int64(1000), h.balance(usdt, alice))
	allowance, err := h.mgr.Allowance(usdt, alice, h.engine.ModuleAddress())
	require.NoError(t, err)
	require.Equal(t, int64(1000), allowance.Int64())
	require.Equal(t, int64(0), h.balance(usdt, dev))
	require.Equal(t, int64(1_000_000), h.balance(xfit, h.engine.ModuleAddress()))
	r0, r1, _, err := h.pair.GetReserves()
	require.NoError(t, err)
	require.Equal(t, "1000000", r0.String())
	require.Equal(t, "1000000", r1.String())
	pool, err := h.engine.Pool(h.pool)
	require.NoError(t, err)
	require.Zero(t, pool.TotalStaked.Sign())
	require.Empty(t, h.rec.Events())
}

func TestSlippageRollsBackWithdraw(t *testing.T) {
	h := newHarness(t, 1_000_000, 1000)
	h.give(alice, 1000)
	_, err := h.engine.DepositSingleAsset(alice, h.pool, big.NewInt(1000), nil)
	require.NoError(t, err)
	h.rec.Reset()
	h.clk.Advance(2)

	_, err = h.engine.WithdrawAsSingleAsset(alice, h.pool, big.NewInt(500), big.NewInt(500))
	require.ErrorIs(t, err, ErrSlippageExceeded)

	pos, err := h.engine.UserPosition(h.pool, alice)
	require.NoError(t, err)
	require.Equal(t, int64(500), pos.Amount.Int64())
	require.Equal(t, int64(200), h.pending(alice))
	require.Equal(t, int64(0), h.balance(xfit, alice))
	require.Empty(t, h.rec.Events())
}

func TestWithdrawSharesBeyondStake(t *testing.T) {
	h := newHarness(t, 0, 0)
	require.ErrorIs(t, h.engine.WithdrawShares(alice, h.pool, big.NewInt(1)), ErrInsufficientStake)
	_, err := h.engine.WithdrawAsSingleAsset(alice, h.pool, big.NewInt(1), nil)
	require.ErrorIs(t, err, ErrInsufficientStake)
	require.ErrorIs(t, h.engine.WithdrawShares(alice, h.pool, big.NewInt(-1)), ErrInvalidParams)
}

func TestDepositAndWithdrawShares(t *testing.T) {
	h := newHarness(t, 1_000_000, 0)
	h.giveShares(alice, 1000)

	require.NoError(t, h.engine.DepositShares(alice, h.pool, big.NewInt(1000)))
	require.Equal(t, int64(0), h.balance(pairAddr, alice))
	h.clk.Advance(3)

	require.NoError(t, h.engine.WithdrawShares(alice, h.pool, big.NewInt(400)))
	require.Equal(t, int64(400), h.balance(pairAddr, alice))
	require.Equal(t, int64(300), h.balance(xfit, alice))

	pos, err := h.engine.UserPosition(h.pool, alice)
	require.NoError(t, err)
	require.Equal(t, int64(600), pos.Amount.Int64())
	pool, err := h.engine.Pool(h.pool)
	require.NoError(t, err)
	require.Equal(t, int64(600), pool.TotalStaked.Int64())

	require.Equal(t, []string{
		events.TypeFarmDeposit,
		events.TypeFarmWithdraw,
		events.TypeFarmRewardPaid,
	}, h.eventTypes())
}

func TestPartialWithdrawAccruesOnRemainingStake(t *testing.T) {
	h := newHarness(t, 1_000_000, 0)
	h.giveShares(alice, 1000)
	h.giveShares(bob, 1000)
	require.NoError(t, h.engine.DepositShares(alice, h.pool, big.NewInt(1000)))
	require.NoError(t, h.engine.DepositShares(bob, h.pool, big.NewInt(1000)))
	h.clk.Advance(2)
	require.Equal(t, int64(100), h.pending(alice))
	require.Equal(t, int64(100), h.pending(bob))

	require.NoError(t, h.engine.WithdrawShares(alice, h.pool, big.NewInt(500)))
	require.Equal(t, int64(100), h.balance(xfit, alice))
	require.Equal(t, int64(0), h.pending(alice))

	h.clk.Advance(2)
	// 200 over a 1500 stake: alice holds 500, bob 1000.
	aliceGain := h.pending(alice)
	bobGain := h.pending(bob) - 100
	require.Equal(t, int64(2*100*500/1500), aliceGain)
	require.Equal(t, int64(2*100*1000/1500), bobGain)
	require.LessOrEqual(t, aliceGain+bobGain, int64(200))
}

func TestRewardShortfallStaysOwed(t *testing.T) {
	h := newHarness(t, 150, 1_000_000)
	h.giveShares(alice, 1000)
	require.NoError(t, h.engine.DepositShares(alice, h.pool, big.NewInt(1000)))
	h.clk.Advance(2)

	require.NoError(t, h.engine.WithdrawShares(alice, h.pool, nil))
	require.Equal(t, int64(150), h.balance(xfit, alice))
	require.Equal(t, int64(50), h.pending(alice))
	paid := h.rec.OfType(events.TypeFarmRewardPaid)[0].(events.FarmRewardPaid)
	require.Equal(t, int64(150), paid.Amount.Int64())
	require.Equal(t, int64(50), paid.Shortfall.Int64())

	require.NoError(t, h.mgr.Mint(xfit, h.engine.ModuleAddress(), big.NewInt(100)))
	require.NoError(t, h.engine.DepositShares(alice, h.pool, big.NewInt(0)))
	require.Equal(t, int64(200), h.balance(xfit, alice))
	require.Equal(t, int64(0), h.pending(alice))
}

func TestEmergencyWithdrawForfeitsReward(t *testing.T) {
	h := newHarness(t, 1_000_000, 0)
	h.giveShares(alice, 1000)
	h.giveShares(bob, 1000)
	require.NoError(t, h.engine.DepositShares(alice, h.pool, big.NewInt(1000)))
	require.NoError(t, h.engine.DepositShares(bob, h.pool, big.NewInt(1000)))
	h.clk.Advance(2)
	require.NoError(t, h.engine.SetPaused(admin, true))

	amount, err := h.engine.EmergencyWithdraw(alice, h.pool)
	require.NoError(t, err)
	require.Equal(t, int64(1000), amount.Int64())
	require.Equal(t, int64(1000), h.balance(pairAddr, alice))
	require.Equal(t, int64(0), h.balance(xfit, alice))
	require.Equal(t, int64(0), h.pending(alice))
	require.Equal(t, int64(100), h.pending(bob))

	pool, err := h.engine.Pool(h.pool)
	require.NoError(t, err)
	require.Equal(t, int64(1000), pool.TotalStaked.Int64())
	require.Len(t, h.rec.OfType(events.TypeFarmEmergencyWithdraw), 1)
}

func TestPauseBlocksUserOperations(t *testing.T) {
	h := newHarness(t, 1_000_000, 1000)
	h.give(alice, 1000)

	require.ErrorIs(t, h.engine.SetPaused(alice, true), ErrUnauthorized)
	require.NoError(t, h.engine.SetPaused(admin, true))
	paused, err := h.engine.Paused()
	require.NoError(t, err)
	require.True(t, paused)

	_, err = h.engine.DepositSingleAsset(alice, h.pool, big.NewInt(1000), nil)
	require.ErrorIs(t, err, ErrModulePaused)
	require.ErrorIs(t, h.engine.WithdrawShares(alice, h.pool, nil), ErrModulePaused)

	require.NoError(t, h.engine.SetPaused(admin, false))
	h.engine.SetPauses(nativecommon.NewPauseSet(ModuleName))
	_, err = h.engine.DepositSingleAsset(alice, h.pool, big.NewInt(1000), nil)
	require.ErrorIs(t, err, ErrModulePaused)

	h.engine.SetPauses(nil)
	_, err = h.engine.DepositSingleAsset(alice, h.pool, big.NewInt(1000), nil)
	require.NoError(t, err)
}

func TestSetRewardPerBlockSettlesFirst(t *testing.T) {
	h := newHarness(t, 1_000_000, 0)
	h.giveShares(alice, 1000)
	require.NoError(t, h.engine.DepositShares(alice, h.pool, big.NewInt(1000)))
	h.clk.Advance(2)

	require.ErrorIs(t, h.engine.SetRewardPerBlock(alice, big.NewInt(50)), ErrUnauthorized)
	require.ErrorIs(t, h.engine.SetRewardPerBlock(admin, big.NewInt(-1)), ErrInvalidParams)
	require.NoError(t, h.engine.SetRewardPerBlock(admin, big.NewInt(50)))
	h.clk.Advance(2)
	require.Equal(t, int64(300), h.pending(alice))

	rate, err := h.engine.RewardPerBlock()
	require.NoError(t, err)
	require.Equal(t, int64(50), rate.Int64())
	updated := h.rec.OfType(events.TypeFarmParamsUpdated)
	require.Len(t, updated, 1)
	require.Equal(t, "rewardPerBlock", updated[0].(events.FarmParamsUpdated).Param)
}

func TestParameterSetters(t *testing.T) {
	h := newHarness(t, 0, 0)

	require.ErrorIs(t, h.engine.SetFundingSplitFactor(admin, new(big.Int).Add(FixedPointOne, big.NewInt(1))), ErrInvalidParams)
	require.NoError(t, h.engine.SetFundingSplitFactor(admin, big.NewInt(0)))
	factor, err := h.engine.FundingSplitFactor()
	require.NoError(t, err)
	require.Zero(t, factor.Sign())

	require.NoError(t, h.engine.SetInternalSwapThreshold(admin, big.NewInt(42)))
	threshold, err := h.engine.InternalSwapThreshold()
	require.NoError(t, err)
	require.Equal(t, int64(42), threshold.Int64())

	require.ErrorIs(t, h.engine.SetAcquisitionSplit(admin, big.NewInt(0)), ErrInvalidParams)
	require.ErrorIs(t, h.engine.SetAcquisitionSplit(admin, FixedPointOne), ErrInvalidParams)
	quarter := new(big.Int).Div(FixedPointOne, big.NewInt(4))
	require.NoError(t, h.engine.SetAcquisitionSplit(admin, quarter))

	require.ErrorIs(t, h.engine.SetDevAddress(admin, bob), ErrUnauthorized)
	require.NoError(t, h.engine.SetDevAddress(dev, bob))
	require.ErrorIs(t, h.engine.SetDevAddress(dev, carol), ErrUnauthorized)

	require.ErrorIs(t, h.engine.TransferAdmin(admin, common.Address{}), ErrInvalidParams)
	require.NoError(t, h.engine.TransferAdmin(admin, carol))
	require.ErrorIs(t, h.engine.SetInternalSwapThreshold(admin, big.NewInt(1)), ErrUnauthorized)

	params, err := h.engine.Params()
	require.NoError(t, err)
	require.Equal(t, bob, params.DevAddress)
	require.Equal(t, carol, params.Admin)
	require.Equal(t, 0, params.AcquisitionSplit.Cmp(quarter))
	require.Len(t, h.rec.OfType(events.TypeFarmParamsUpdated), 5)
}

func TestPendingRewardIsIdempotent(t *testing.T) {
	h := newHarness(t, 1_000_000, 0)
	h.giveShares(alice, 1000)
	h.giveShares(bob, 3000)
	require.NoError(t, h.engine.DepositShares(alice, h.pool, big.NewInt(1000)))
	require.NoError(t, h.engine.DepositShares(bob, h.pool, big.NewInt(3000)))
	h.clk.Advance(7)

	first := h.pending(alice)
	second := h.pending(alice)
	require.Equal(t, first, second)
	require.Equal(t, int64(175), first)

	require.NoError(t, h.engine.SettlePool(h.pool))
	require.Equal(t, first, h.pending(alice))
	require.NoError(t, h.engine.SettleAllPools())
	require.Equal(t, int64(525), h.pending(bob))
}

func TestReentrantCallSeesCheckpointedPosition(t *testing.T) {
	h := newHarness(t, 1_000_000, 0)
	h.giveShares(alice, 1000)
	require.NoError(t, h.engine.DepositShares(alice, h.pool, big.NewInt(1000)))
	h.clk.Advance(2)
	h.rec.Reset()

	var (
		inner      *big.Int
		innerErr   error
		nestedErr  error
		seenEvents int
	)
	h.mgr.SetTransferHook(alice, func(token, from, to common.Address, amount *big.Int) error {
		if token != xfit {
			return nil
		}
		inner, innerErr = h.engine.PendingReward(h.pool, alice)
		seenEvents = len(h.rec.Events())
		if err := h.engine.WithdrawShares(alice, h.pool, nil); err != nil {
			return err
		}
		_, nestedErr = h.engine.DepositSingleAsset(alice, h.pool, big.NewInt(0), nil)
		return nil
	})

	require.NoError(t, h.engine.WithdrawShares(alice, h.pool, nil))
	require.NoError(t, innerErr)
	require.Equal(t, int64(0), inner.Int64())
	require.Zero(t, seenEvents)
	require.ErrorIs(t, nestedErr, ErrZeroAmount)
	require.Equal(t, int64(200), h.balance(xfit, alice))
	require.Len(t, h.rec.OfType(events.TypeFarmRewardPaid), 1)
}

func TestFailingHookRevertsClaim(t *testing.T) {
	h := newHarness(t, 1_000_000, 0)
	h.giveShares(alice, 1000)
	require.NoError(t, h.engine.DepositShares(alice, h.pool, big.NewInt(1000)))
	h.clk.Advance(2)
	h.rec.Reset()

	reject := errors.New("recipient rejected")
	h.mgr.SetTransferHook(alice, func(common.Address, common.Address, common.Address, *big.Int) error {
		return reject
	})
	require.ErrorIs(t, h.engine.WithdrawShares(alice, h.pool, nil), reject)
	require.Equal(t, int64(0), h.balance(xfit, alice))
	require.Equal(t, int64(200), h.pending(alice))
	require.Empty(t, h.rec.Events())

	h.mgr.SetTransferHook(alice, nil)
	require.NoError(t, h.engine.WithdrawShares(alice, h.pool, nil))
	require.Equal(t, int64(200), h.balance(xfit, alice))
}

func TestInitGenesisKeepsExistingConfig(t *testing.T) {
	h := newHarness(t, 0, 0)
	cfg := DefaultConfig()
	cfg.RewardToken = usdt
	cfg.DevAddress = dev
	cfg.Admin = bob
	require.NoError(t, h.engine.InitGenesis(cfg))

	params, err := h.engine.Params()
	require.NoError(t, err)
	require.Equal(t, xfit, params.RewardToken)
	require.Equal(t, admin, params.Admin)

	require.ErrorIs(t, h.engine.InitGenesis(GlobalConfig{}), ErrInvalidParams)
}
