package events

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"xfarm/core/types"
	"xfarm/crypto"
)

const (
	// TypeFarmPoolAdded is emitted when a pool is registered.
	TypeFarmPoolAdded = "farm.pool.added"
	// TypeFarmDeposit is emitted after shares are staked for an account.
	TypeFarmDeposit = "farm.deposit"
	// TypeFarmWithdraw is emitted after stake is removed, with or without
	// conversion back to a single asset.
	TypeFarmWithdraw = "farm.withdraw"
	// TypeFarmEmergencyWithdraw is emitted when stake is returned without
	// reward.
	TypeFarmEmergencyWithdraw = "farm.emergency_withdraw"
	// TypeFarmRewardPaid is emitted for every reward payout.
	TypeFarmRewardPaid = "farm.reward.paid"
	// TypeInternalSwap records an acquisition served from treasury reserves.
	TypeInternalSwap = "INTERNAL_SWAP"
	// TypeSwapTokens records tokens sold on the external pool.
	TypeSwapTokens = "SWAP_TOKENS"
	// TypeFarmFunding records the continuous and dev split of funding.
	TypeFarmFunding = "farm.funding"
	// TypeFarmReserveWithdrawn is emitted when the admin removes reserves.
	TypeFarmReserveWithdrawn = "farm.reserve.withdrawn"
	// TypeFarmParamsUpdated is emitted for every admin parameter change.
	TypeFarmParamsUpdated = "farm.params.updated"
)

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func addressString(addr common.Address) string {
	if addr == (common.Address{}) {
		return ""
	}
	return crypto.FromCommon(addr).String()
}

func poolString(id uint64) string {
	return strconv.FormatUint(id, 10)
}

// FarmPoolAdded announces a newly registered pool.
type FarmPoolAdded struct {
	Height     uint64
	PoolID     uint64
	ShareToken common.Address
	InputToken common.Address
	Oracle     common.Address
}

func (FarmPoolAdded) EventType() string { return TypeFarmPoolAdded }

func (e FarmPoolAdded) Event() *types.Event {
	return &types.Event{
		Type:   TypeFarmPoolAdded,
		Height: e.Height,
		Attributes: map[string]string{
			"pool":       poolString(e.PoolID),
			"shareToken": addressString(e.ShareToken),
			"inputToken": addressString(e.InputToken),
			"oracle":     addressString(e.Oracle),
		},
	}
}

// FarmDeposit describes staked shares and, for single asset deposits, the
// input amount and acquisition path.
type FarmDeposit struct {
	Height  uint64
	PoolID  uint64
	Account common.Address
	Input   *big.Int
	Shares  *big.Int
	Path    string
}

func (FarmDeposit) EventType() string { return TypeFarmDeposit }

func (e FarmDeposit) Event() *types.Event {
	attrs := map[string]string{
		"pool":    poolString(e.PoolID),
		"account": addressString(e.Account),
		"shares":  amountString(e.Shares),
	}
	if e.Input != nil {
		attrs["input"] = e.Input.String()
	}
	if path := strings.TrimSpace(e.Path); path != "" {
		attrs["path"] = path
	}
	return &types.Event{Type: TypeFarmDeposit, Height: e.Height, Attributes: attrs}
}

// FarmWithdraw describes removed stake. Output and Asset are set when the
// shares were converted back to a single asset.
type FarmWithdraw struct {
	Height  uint64
	PoolID  uint64
	Account common.Address
	Shares  *big.Int
	Output  *big.Int
	Asset   common.Address
}

func (FarmWithdraw) EventType() string { return TypeFarmWithdraw }

func (e FarmWithdraw) Event() *types.Event {
	attrs := map[string]string{
		"pool":    poolString(e.PoolID),
		"account": addressString(e.Account),
		"shares":  amountString(e.Shares),
	}
	if e.Output != nil {
		attrs["output"] = e.Output.String()
		attrs["asset"] = addressString(e.Asset)
	}
	return &types.Event{Type: TypeFarmWithdraw, Height: e.Height, Attributes: attrs}
}

// FarmEmergencyWithdraw describes stake returned while forfeiting reward.
type FarmEmergencyWithdraw struct {
	Height  uint64
	PoolID  uint64
	Account common.Address
	Shares  *big.Int
}

func (FarmEmergencyWithdraw) EventType() string { return TypeFarmEmergencyWithdraw }

func (e FarmEmergencyWithdraw) Event() *types.Event {
	return &types.Event{
		Type:   TypeFarmEmergencyWithdraw,
		Height: e.Height,
		Attributes: map[string]string{
			"pool":    poolString(e.PoolID),
			"account": addressString(e.Account),
			"shares":  amountString(e.Shares),
		},
	}
}

// FarmRewardPaid records a reward transfer. Shortfall is the part of the
// owed reward the treasury could not cover.
type FarmRewardPaid struct {
	Height    uint64
	PoolID    uint64
	Account   common.Address
	Amount    *big.Int
	Shortfall *big.Int
}

func (FarmRewardPaid) EventType() string { return TypeFarmRewardPaid }

func (e FarmRewardPaid) Event() *types.Event {
	attrs := map[string]string{
		"pool":    poolString(e.PoolID),
		"account": addressString(e.Account),
		"amount":  amountString(e.Amount),
	}
	if e.Shortfall != nil && e.Shortfall.Sign() > 0 {
		attrs["shortfall"] = e.Shortfall.String()
	}
	return &types.Event{Type: TypeFarmRewardPaid, Height: e.Height, Attributes: attrs}
}

// InternalSwap records reward tokens handed out of treasury reserves at the
// oracle price.
type InternalSwap struct {
	Height       uint64
	PoolID       uint64
	Sender       common.Address
	TokensBought *big.Int
}

func (InternalSwap) EventType() string { return TypeInternalSwap }

func (e InternalSwap) Event() *types.Event {
	return &types.Event{
		Type:   TypeInternalSwap,
		Height: e.Height,
		Attributes: map[string]string{
			"pool":         poolString(e.PoolID),
			"sender":       addressString(e.Sender),
			"tokensBought": amountString(e.TokensBought),
		},
	}
}

// SwapTokens records an external pool sale.
type SwapTokens struct {
	Height    uint64
	PoolID    uint64
	Sender    common.Address
	Amount    *big.Int
	FromToken common.Address
	ToToken   common.Address
}

func (SwapTokens) EventType() string { return TypeSwapTokens }

func (e SwapTokens) Event() *types.Event {
	return &types.Event{
		Type:   TypeSwapTokens,
		Height: e.Height,
		Attributes: map[string]string{
			"pool":      poolString(e.PoolID),
			"sender":    addressString(e.Sender),
			"amount":    amountString(e.Amount),
			"fromToken": addressString(e.FromToken),
			"toToken":   addressString(e.ToToken),
		},
	}
}

// FarmFunding records how a funding amount was split between the treasury
// buyback and the dev address.
type FarmFunding struct {
	Height     uint64
	PoolID     uint64
	Token      common.Address
	Continuous *big.Int
	Dev        *big.Int
	DevAddress common.Address
	Bought     *big.Int
}

func (FarmFunding) EventType() string { return TypeFarmFunding }

func (e FarmFunding) Event() *types.Event {
	return &types.Event{
		Type:   TypeFarmFunding,
		Height: e.Height,
		Attributes: map[string]string{
			"pool":       poolString(e.PoolID),
			"token":      addressString(e.Token),
			"continuous": amountString(e.Continuous),
			"dev":        amountString(e.Dev),
			"devAddress": addressString(e.DevAddress),
			"bought":     amountString(e.Bought),
		},
	}
}

// FarmReserveWithdrawn records reward tokens removed by the admin.
type FarmReserveWithdrawn struct {
	Height uint64
	Admin  common.Address
	Amount *big.Int
}

func (FarmReserveWithdrawn) EventType() string { return TypeFarmReserveWithdrawn }

func (e FarmReserveWithdrawn) Event() *types.Event {
	return &types.Event{
		Type:   TypeFarmReserveWithdrawn,
		Height: e.Height,
		Attributes: map[string]string{
			"account": addressString(e.Admin),
			"amount":  amountString(e.Amount),
		},
	}
}

// FarmParamsUpdated records an admin parameter change.
type FarmParamsUpdated struct {
	Height uint64
	Caller common.Address
	Param  string
	Value  string
}

func (FarmParamsUpdated) EventType() string { return TypeFarmParamsUpdated }

func (e FarmParamsUpdated) Event() *types.Event {
	return &types.Event{
		Type:   TypeFarmParamsUpdated,
		Height: e.Height,
		Attributes: map[string]string{
			"account": addressString(e.Caller),
			"param":   strings.TrimSpace(e.Param),
			"value":   strings.TrimSpace(e.Value),
		},
	}
}
