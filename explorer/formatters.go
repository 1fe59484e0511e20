package explorer

import (
	"strings"

	"xfarm/core/events"
)

// Summary returns the explorer label for an indexed event.
func Summary(eventType string, attrs map[string]string) string {
	pool := strings.TrimSpace(attrs["pool"])
	switch eventType {
	case events.TypeFarmPoolAdded:
		return "Pool " + pool + " added"
	case events.TypeFarmDeposit:
		if path := attrs["path"]; path != "" {
			return "Deposited " + attrs["input"] + " into pool " + pool + " via " + path
		}
		return "Staked " + attrs["shares"] + " shares in pool " + pool
	case events.TypeFarmWithdraw:
		if output := attrs["output"]; output != "" {
			return "Withdrew " + output + " from pool " + pool
		}
		return "Unstaked " + attrs["shares"] + " shares from pool " + pool
	case events.TypeFarmEmergencyWithdraw:
		return "Emergency withdrew " + attrs["shares"] + " shares from pool " + pool
	case events.TypeFarmRewardPaid:
		return "Claimed " + attrs["amount"] + " reward from pool " + pool
	case events.TypeInternalSwap:
		return "Bought " + attrs["tokensBought"] + " from treasury"
	case events.TypeSwapTokens:
		return "Swapped " + attrs["amount"] + " on pool " + pool
	case events.TypeFarmFunding:
		return "Funded treasury with " + attrs["continuous"]
	case events.TypeFarmReserveWithdrawn:
		return "Withdrew " + attrs["amount"] + " reserve"
	case events.TypeFarmParamsUpdated:
		return "Set " + attrs["param"] + " to " + attrs["value"]
	}
	return eventType
}
