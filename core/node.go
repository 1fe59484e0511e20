package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"xfarm/config"
	"xfarm/core/clock"
	"xfarm/core/events"
	"xfarm/core/genesis"
	"xfarm/core/state"
	nativecommon "xfarm/native/common"
	"xfarm/native/farm"
	"xfarm/native/oracle"
	"xfarm/observability"
	"xfarm/storage"
)

var heightKey = []byte("chain/height")

// Node is the central controller, wiring the ledger, the farm engine and the
// block clock together. Every engine call and every block runs under one
// lock so RPC handlers and the block ticker never interleave.
type Node struct {
	mu        sync.Mutex
	db        storage.Database
	state     *state.Manager
	clock     *clock.Clock
	engine    *farm.Engine
	chain     *genesis.Chain
	pauses    *nativecommon.PauseSet
	logger    *slog.Logger
	metrics   *observability.ChainMetrics
	lastBlock time.Time
}

// NewNode opens the ledger in db, applies the genesis spec on first start and
// binds the farm engine. Committed engine events go to emitter.
func NewNode(db storage.Database, spec *genesis.GenesisSpec, farmCfg config.FarmConfig, emitter events.Emitter, logger *slog.Logger) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("node: database must not be nil")
	}
	if spec == nil {
		return nil, fmt.Errorf("node: genesis spec must not be nil")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	manager := state.NewManager(db)

	var persisted uint64
	if _, err := manager.KVGet(heightKey, &persisted); err != nil {
		return nil, fmt.Errorf("node: load height: %w", err)
	}
	start := spec.StartHeight
	if persisted > start {
		start = persisted
	}
	clk := clock.New(start)

	chain, err := genesis.Build(spec, manager, clk)
	if err != nil {
		return nil, fmt.Errorf("node: genesis: %w", err)
	}
	params, err := farmCfg.Params(chain.Token)
	if err != nil {
		return nil, fmt.Errorf("node: farm params: %w", err)
	}

	pauses := nativecommon.NewPauseSet()
	if farmCfg.OperatorPause {
		pauses.Set(farm.ModuleName, true)
	}
	engine := farm.NewEngine(manager, clk, common.Address{})
	engine.SetLogger(logger)
	engine.SetEmitter(emitter)
	engine.SetPauses(pauses)

	ids, err := chain.InitFarm(manager, engine, params)
	if err != nil {
		return nil, fmt.Errorf("node: %w", err)
	}
	if err := manager.KVPut(heightKey, start); err != nil {
		return nil, err
	}
	if err := manager.Commit(); err != nil {
		return nil, fmt.Errorf("node: commit height: %w", err)
	}
	logger.Info("node: started",
		"height", start,
		"fresh_genesis", chain.Fresh(),
		"genesis_pools", len(ids),
		"module", engine.ModuleAddress().Hex())

	return &Node{
		db:      db,
		state:   manager,
		clock:   clk,
		engine:  engine,
		chain:   chain,
		pauses:  pauses,
		logger:  logger,
		metrics: observability.Chain(),
	}, nil
}

// WithEngine runs fn with exclusive access to the farm engine.
func (n *Node) WithEngine(fn func(*farm.Engine) error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return fn(n.engine)
}

// Height returns the current block height.
func (n *Node) Height() uint64 { return n.clock.Height() }

// Token resolves a genesis token symbol.
func (n *Node) Token(symbol string) (common.Address, bool) {
	return n.chain.Token(symbol)
}

// ModuleAddress returns the farm treasury address, which is also the
// spender users approve before depositing.
func (n *Node) ModuleAddress() common.Address { return n.engine.ModuleAddress() }

// Balance returns the ledger balance of owner in token.
func (n *Node) Balance(token, owner common.Address) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.Balance(token, owner)
}

// Allowance returns what the farm may still pull from owner.
func (n *Node) Allowance(token, owner common.Address) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.Allowance(token, owner, n.engine.ModuleAddress())
}

// Approve lets the farm pull amount of token from owner and commits the
// allowance.
func (n *Node) Approve(token, owner common.Address, amount *big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	snapshot := n.state.Snapshot()
	if err := n.state.Approve(token, owner, n.engine.ModuleAddress(), amount); err != nil {
		n.state.RevertToSnapshot(snapshot)
		return err
	}
	return n.state.Commit()
}

// SetOperatorPause halts or resumes the farm independently of the ledger
// pause flag. EmergencyWithdraw keeps working.
func (n *Node) SetOperatorPause(paused bool) {
	n.pauses.Set(farm.ModuleName, paused)
	n.logger.Warn("node: operator pause changed", "paused", paused)
}

// OperatorPaused reports the operator pause.
func (n *Node) OperatorPaused() bool {
	return n.pauses.IsPaused(farm.ModuleName)
}

// AdvanceBlock mines one block: the height moves forward, is persisted and
// every pool oracle whose window has elapsed is refreshed.
func (n *Node) AdvanceBlock() (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	height := n.clock.Advance(1)
	if err := n.state.KVPut(heightKey, height); err != nil {
		return height, err
	}
	if err := n.state.Commit(); err != nil {
		n.metrics.RecordCommitError()
		return height, fmt.Errorf("node: commit block %d: %w", height, err)
	}
	now := time.Now()
	var interval time.Duration
	if !n.lastBlock.IsZero() {
		interval = now.Sub(n.lastBlock)
	}
	n.lastBlock = now
	n.metrics.RecordBlock(height, interval)
	n.refreshOracles(height)
	return height, nil
}

func (n *Node) refreshOracles(height uint64) {
	pools, err := n.engine.Pools()
	if err != nil {
		n.logger.Error("node: list pools", "error", err)
		return
	}
	for _, pool := range pools {
		twap, ok := n.chain.Oracles.Oracle(pool.Oracle)
		if !ok {
			continue
		}
		last, seeded, err := twap.LastRefresh()
		if err != nil {
			n.logger.Error("node: load oracle", "pool", pool.ID, "error", err)
			continue
		}
		if seeded && last+twap.Period() > height {
			continue
		}
		if err := n.engine.RefreshOracle(pool.ID); err != nil && !errors.Is(err, oracle.ErrPeriodNotElapsed) {
			n.logger.Warn("node: oracle refresh failed", "pool", pool.ID, "error", err)
		}
	}
}

// Run advances a block every interval until ctx is cancelled.
func (n *Node) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("node: block interval must be positive")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := n.AdvanceBlock(); err != nil {
				n.logger.Error("node: advance block", "error", err)
			}
		}
	}
}

// Close releases the underlying database.
func (n *Node) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.db.Close()
}
