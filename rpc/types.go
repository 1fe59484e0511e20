package rpc

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"xfarm/crypto"
	"xfarm/explorer"
	"xfarm/native/farm"
)

// Amounts travel as base-10 strings so 18-decimal values keep full precision.

type ParamsResult struct {
	RewardToken           string `json:"rewardToken"`
	RewardPerBlock        string `json:"rewardPerBlock"`
	RewardStartBlock      uint64 `json:"rewardStartBlock"`
	BonusEndBlock         uint64 `json:"bonusEndBlock"`
	BonusMultiplier       uint64 `json:"bonusMultiplier"`
	InternalSwapThreshold string `json:"internalSwapThreshold"`
	FundingSplitFactor    string `json:"fundingSplitFactor"`
	AcquisitionSplit      string `json:"acquisitionSplit"`
	DevAddress            string `json:"devAddress"`
	Admin                 string `json:"admin"`
	Module                string `json:"module"`
	Treasury              string `json:"treasury"`
	Paused                bool   `json:"paused"`
	OperatorPaused        bool   `json:"operatorPaused"`
	Height                uint64 `json:"height"`
}

type PoolResult struct {
	ID                uint64 `json:"id"`
	ShareToken        string `json:"shareToken"`
	InputToken        string `json:"inputToken"`
	Oracle            string `json:"oracle"`
	LastRewardBlock   uint64 `json:"lastRewardBlock"`
	AccRewardPerShare string `json:"accRewardPerShare"`
	TotalStaked       string `json:"totalStaked"`
}

type PositionResult struct {
	Pool        uint64 `json:"pool"`
	Account     string `json:"account"`
	Amount      string `json:"amount"`
	RewardDebt  string `json:"rewardDebt"`
	Pending     string `json:"pending"`
	InputValue  string `json:"inputValue"`
	RewardValue string `json:"rewardValue"`
}

type BalanceResult struct {
	Account   string `json:"account"`
	Token     string `json:"token"`
	Balance   string `json:"balance"`
	Allowance string `json:"allowance"`
}

type EventResult struct {
	ID         string            `json:"id"`
	Height     uint64            `json:"height"`
	Type       string            `json:"type"`
	Pool       string            `json:"pool,omitempty"`
	Account    string            `json:"account,omitempty"`
	Summary    string            `json:"summary"`
	Attributes map[string]string `json:"attributes"`
}

type TxResult struct {
	Height uint64  `json:"height"`
	Shares string  `json:"shares,omitempty"`
	Output string  `json:"output,omitempty"`
	PoolID *uint64 `json:"poolId,omitempty"`
}

type amountRequest struct {
	Caller string `json:"caller,omitempty"`
	Amount string `json:"amount"`
}

type depositRequest struct {
	Caller       string `json:"caller,omitempty"`
	Amount       string `json:"amount"`
	MinSharesOut string `json:"minSharesOut,omitempty"`
}

type sharesRequest struct {
	Caller string `json:"caller,omitempty"`
	Shares string `json:"shares"`
}

type withdrawSingleRequest struct {
	Caller string `json:"caller,omitempty"`
	Shares string `json:"shares"`
	MinOut string `json:"minOut,omitempty"`
}

type callerRequest struct {
	Caller string `json:"caller,omitempty"`
}

type addPoolRequest struct {
	Caller  string `json:"caller,omitempty"`
	Pair    string `json:"pair"`
	Input   string `json:"input"`
	Oracle  string `json:"oracle,omitempty"`
	Refresh bool   `json:"refresh"`
}

type paramRequest struct {
	Caller string `json:"caller,omitempty"`
	Param  string `json:"param"`
	Value  string `json:"value"`
}

type pauseRequest struct {
	Caller string `json:"caller,omitempty"`
	Paused bool   `json:"paused"`
}

func formatAddress(addr common.Address) string {
	if addr == (common.Address{}) {
		return ""
	}
	return crypto.FromCommon(addr).String()
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// parseAmount parses a non-negative decimal. Empty input yields nil unless
// the field is required.
func parseAmount(field, value string, required bool) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		if required {
			return nil, invalidParams(field + " is required")
		}
		return nil, nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, invalidParams("invalid " + field)
	}
	return amount, nil
}

func parseAddressField(field, value string) (common.Address, error) {
	addr, err := crypto.ParseAddress(value)
	if err != nil {
		return common.Address{}, invalidParams("invalid " + field + ": " + err.Error())
	}
	return addr, nil
}

func newParamsResult(cfg farm.GlobalConfig, module common.Address, treasury *big.Int, paused, operatorPaused bool, height uint64) ParamsResult {
	return ParamsResult{
		RewardToken:           formatAddress(cfg.RewardToken),
		RewardPerBlock:        formatAmount(cfg.RewardPerBlock),
		RewardStartBlock:      cfg.RewardStartBlock,
		BonusEndBlock:         cfg.BonusEndBlock,
		BonusMultiplier:       cfg.BonusMultiplier,
		InternalSwapThreshold: formatAmount(cfg.InternalSwapThreshold),
		FundingSplitFactor:    formatAmount(cfg.FundingSplitFactor),
		AcquisitionSplit:      formatAmount(cfg.AcquisitionSplit),
		DevAddress:            formatAddress(cfg.DevAddress),
		Admin:                 formatAddress(cfg.Admin),
		Module:                formatAddress(module),
		Treasury:              formatAmount(treasury),
		Paused:                paused,
		OperatorPaused:        operatorPaused,
		Height:                height,
	}
}

func newPoolResult(pool *farm.Pool) PoolResult {
	return PoolResult{
		ID:                pool.ID,
		ShareToken:        formatAddress(pool.ShareToken),
		InputToken:        formatAddress(pool.InputToken),
		Oracle:            formatAddress(pool.Oracle),
		LastRewardBlock:   pool.LastRewardBlock,
		AccRewardPerShare: formatAmount(pool.AccRewardPerShare),
		TotalStaked:       formatAmount(pool.TotalStaked),
	}
}

func newEventResult(rec explorer.EventRecord) (EventResult, error) {
	attrs, err := rec.Attrs()
	if err != nil {
		return EventResult{}, err
	}
	return EventResult{
		ID:         rec.ID.String(),
		Height:     rec.Height,
		Type:       rec.Type,
		Pool:       rec.Pool,
		Account:    rec.Account,
		Summary:    explorer.Summary(rec.Type, attrs),
		Attributes: attrs,
	}, nil
}
