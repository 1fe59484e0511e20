package metrics

import (
	"math/big"
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type FarmMetrics struct {
	deposits         *prometheus.CounterVec
	withdrawals      *prometheus.CounterVec
	rewardsPaid      *prometheus.CounterVec
	rewardShortfall  *prometheus.CounterVec
	slippageFailures *prometheus.CounterVec
	treasuryBalance  prometheus.Gauge
	oracleRefreshes  *prometheus.CounterVec
}

var (
	farmOnce     sync.Once
	farmRegistry *FarmMetrics
)

func Farm() *FarmMetrics {
	farmOnce.Do(func() {
		farmRegistry = &FarmMetrics{
			deposits: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "farm_deposits_total",
				Help: "Count of farm deposits by acquisition path.",
			}, []string{"path"}),
			withdrawals: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "farm_withdrawals_total",
				Help: "Count of farm withdrawals by kind.",
			}, []string{"kind"}),
			rewardsPaid: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "farm_rewards_paid_total",
				Help: "Reward tokens paid to stakers per pool.",
			}, []string{"pool"}),
			rewardShortfall: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "farm_reward_shortfall_total",
				Help: "Owed reward the treasury could not cover at payout time.",
			}, []string{"pool"}),
			slippageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "farm_slippage_failures_total",
				Help: "Calls aborted because a caller minimum was not met.",
			}, []string{"operation"}),
			treasuryBalance: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "farm_treasury_reward_balance",
				Help: "Reward token balance held by the farm treasury.",
			}),
			oracleRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "farm_oracle_refreshes_total",
				Help: "Oracle refresh attempts by outcome.",
			}, []string{"outcome"}),
		}
		prometheus.MustRegister(
			farmRegistry.deposits,
			farmRegistry.withdrawals,
			farmRegistry.rewardsPaid,
			farmRegistry.rewardShortfall,
			farmRegistry.slippageFailures,
			farmRegistry.treasuryBalance,
			farmRegistry.oracleRefreshes,
		)
	})
	return farmRegistry
}

func label(value, fallback string) string {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	if trimmed == "" {
		return fallback
	}
	return trimmed
}

func poolLabel(pool uint64) string {
	return strconv.FormatUint(pool, 10)
}

func (m *FarmMetrics) RecordDeposit(path string) {
	if m == nil {
		return
	}
	m.deposits.WithLabelValues(label(path, "shares")).Inc()
}

func (m *FarmMetrics) RecordWithdrawal(kind string) {
	if m == nil {
		return
	}
	m.withdrawals.WithLabelValues(label(kind, "shares")).Inc()
}

func (m *FarmMetrics) RecordRewardPaid(pool uint64, amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	m.rewardsPaid.WithLabelValues(poolLabel(pool)).Add(bigToFloat(amount))
}

func (m *FarmMetrics) RecordRewardShortfall(pool uint64, amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	m.rewardShortfall.WithLabelValues(poolLabel(pool)).Add(bigToFloat(amount))
}

func (m *FarmMetrics) RecordSlippageFailure(operation string) {
	if m == nil {
		return
	}
	m.slippageFailures.WithLabelValues(label(operation, "unknown")).Inc()
}

func (m *FarmMetrics) SetTreasuryBalance(balance *big.Int) {
	if m == nil {
		return
	}
	m.treasuryBalance.Set(bigToFloat(balance))
}

func (m *FarmMetrics) RecordOracleRefresh(err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.oracleRefreshes.WithLabelValues(outcome).Inc()
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(value).Float64()
	return f
}
