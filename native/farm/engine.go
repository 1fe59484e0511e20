package farm

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"xfarm/core/events"
	"xfarm/crypto"
	nativecommon "xfarm/native/common"
	"xfarm/observability/metrics"
)

// DefaultModuleAddress holds the treasury and every staked share.
var DefaultModuleAddress = crypto.DeriveAddress("farm/module")

var pausedKey = []byte("farm/paused")

// Engine runs the farm state transitions. Every public mutation executes
// inside a state snapshot and either commits entirely or leaves no trace.
// Calls may nest through transfer hooks; only the outermost call commits
// and publishes events.
type Engine struct {
	state     State
	heights   HeightSource
	module    common.Address
	pairs     map[common.Address]ExchangePool
	oracles   map[common.Address]PriceOracle
	pauses    nativecommon.PauseView
	emitter   events.Emitter
	logger    *slog.Logger
	telemetry *metrics.FarmMetrics

	depth   int
	pending []events.Event
}

// NewEngine binds the engine to state and a height source. A zero module
// address selects DefaultModuleAddress.
func NewEngine(state State, heights HeightSource, module common.Address) *Engine {
	if module == (common.Address{}) {
		module = DefaultModuleAddress
	}
	return &Engine{
		state:     state,
		heights:   heights,
		module:    module,
		pairs:     make(map[common.Address]ExchangePool),
		oracles:   make(map[common.Address]PriceOracle),
		emitter:   events.NoopEmitter{},
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		telemetry: metrics.Farm(),
	}
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures the sink for committed events.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetLogger replaces the discard logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if e == nil || logger == nil {
		return
	}
	e.logger = logger
}

// RegisterPair makes an exchange pool available to AddPool.
func (e *Engine) RegisterPair(pool ExchangePool) {
	if e == nil || pool == nil {
		return
	}
	e.pairs[pool.Address()] = pool
}

// RegisterOracle makes a price oracle available to AddPool.
func (e *Engine) RegisterOracle(oracle PriceOracle) {
	if e == nil || oracle == nil {
		return
	}
	e.oracles[oracle.Address()] = oracle
}

// ModuleAddress returns the treasury address.
func (e *Engine) ModuleAddress() common.Address { return e.module }

// InitGenesis stores cfg unless a config is already present.
func (e *Engine) InitGenesis(cfg GlobalConfig) error {
	return e.call("genesis", func() error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		reg := e.registry()
		ok, err := reg.hasConfig()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		return reg.putConfig(cfg)
	})
}

func (e *Engine) registry() registry { return registry{state: e.state} }

func (e *Engine) ledger() positionLedger { return positionLedger{state: e.state} }

func (e *Engine) height() uint64 {
	if e.heights == nil {
		return 0
	}
	return e.heights.Height()
}

func (e *Engine) emit(evt events.Event) {
	e.pending = append(e.pending, evt)
}

// call runs fn atomically. A failing fn reverts its own writes and drops
// the events it buffered while leaving any enclosing call untouched.
func (e *Engine) call(op string, fn func() error) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	snapshot := e.state.Snapshot()
	mark := len(e.pending)
	e.depth++
	err := fn()
	e.depth--
	if err != nil {
		e.state.RevertToSnapshot(snapshot)
		e.pending = e.pending[:mark]
		if errors.Is(err, ErrSlippageExceeded) {
			e.telemetry.RecordSlippageFailure(op)
		}
		e.logger.Debug("farm: call reverted", "op", op, "depth", e.depth, "error", err)
		return err
	}
	if e.depth > 0 {
		return nil
	}
	if err := e.state.Commit(); err != nil {
		e.pending = e.pending[:0]
		return fmt.Errorf("farm: commit %s: %w", op, err)
	}
	e.flush()
	return nil
}

func (e *Engine) flush() {
	published := e.pending
	e.pending = nil
	for _, evt := range published {
		switch v := evt.(type) {
		case events.FarmDeposit:
			e.telemetry.RecordDeposit(v.Path)
		case events.FarmWithdraw:
			if v.Output != nil {
				e.telemetry.RecordWithdrawal("single_asset")
			} else {
				e.telemetry.RecordWithdrawal("shares")
			}
		case events.FarmEmergencyWithdraw:
			e.telemetry.RecordWithdrawal("emergency")
		case events.FarmRewardPaid:
			e.telemetry.RecordRewardPaid(v.PoolID, v.Amount)
			e.telemetry.RecordRewardShortfall(v.PoolID, v.Shortfall)
		}
		e.emitter.Emit(evt)
	}
	if cfg, err := e.registry().config(); err == nil {
		if balance, err := e.state.Balance(cfg.RewardToken, e.module); err == nil {
			e.telemetry.SetTreasuryBalance(balance)
		}
	}
}

func (e *Engine) guard() error {
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	paused, err := e.Paused()
	if err != nil {
		return err
	}
	if paused {
		return ErrModulePaused
	}
	return nil
}

// Paused reports the admin pause flag.
func (e *Engine) Paused() (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	var paused bool
	if _, err := e.state.KVGet(pausedKey, &paused); err != nil {
		return false, err
	}
	return paused, nil
}

// poolContext bundles the collaborators of one pool for a single call.
type poolContext struct {
	cfg       GlobalConfig
	pool      *Pool
	pair      ExchangePool
	oracle    PriceOracle
	router    router
	converter converter
	treasury  treasury
}

func (e *Engine) resolve(cfg GlobalConfig, pool *Pool) (*poolContext, error) {
	pair, ok := e.pairs[pool.ShareToken]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnknownPair, pool.ShareToken.Hex())
	}
	oracle, ok := e.oracles[pool.Oracle]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnknownOracle, pool.Oracle.Hex())
	}
	t := treasury{cfg: cfg, state: e.state, address: e.module}
	return &poolContext{
		cfg:    cfg,
		pool:   pool,
		pair:   pair,
		oracle: oracle,
		router: router{
			cfg:      cfg,
			state:    e.state,
			treasury: e.module,
			pool:     pair,
			oracle:   oracle,
			input:    pool.InputToken,
		},
		converter: converter{state: e.state, pool: pair, input: pool.InputToken, treasury: t},
		treasury:  t,
	}, nil
}

// settled loads the config and pool, advances the pool to the current
// height and persists it.
func (e *Engine) settled(id uint64) (GlobalConfig, *Pool, error) {
	reg := e.registry()
	cfg, err := reg.config()
	if err != nil {
		return GlobalConfig{}, nil, err
	}
	pool, err := reg.pool(id)
	if err != nil {
		return GlobalConfig{}, nil, err
	}
	settle(cfg, pool, e.height())
	if err := reg.putPool(pool); err != nil {
		return GlobalConfig{}, nil, err
	}
	return cfg, pool, nil
}

// payReward transfers the owed reward of user. Whatever the treasury
// cannot cover stays owed.
func (e *Engine) payReward(cfg GlobalConfig, id uint64, user common.Address) error {
	ledger := e.ledger()
	owed, err := ledger.takeOwed(id, user)
	if err != nil {
		return err
	}
	if owed.Sign() == 0 {
		return nil
	}
	balance, err := e.state.Balance(cfg.RewardToken, e.module)
	if err != nil {
		return err
	}
	pay := new(big.Int).Set(owed)
	if pay.Cmp(balance) > 0 {
		pay.Set(balance)
	}
	shortfall := new(big.Int).Sub(owed, pay)
	if shortfall.Sign() > 0 {
		if err := ledger.putOwed(id, user, shortfall); err != nil {
			return err
		}
		e.logger.Warn("farm: reward shortfall", "pool", id, "account", crypto.FromCommon(user).String(),
			"owed", owed.String(), "paid", pay.String())
	}
	if pay.Sign() > 0 {
		if err := e.state.Transfer(cfg.RewardToken, e.module, user, pay); err != nil {
			return err
		}
	}
	e.emit(events.FarmRewardPaid{
		Height:    e.height(),
		PoolID:    id,
		Account:   user,
		Amount:    pay,
		Shortfall: shortfall,
	})
	return nil
}
