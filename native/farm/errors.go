package farm

import (
	"errors"

	nativecommon "xfarm/native/common"
)

var (
	ErrPoolNotFound      = errors.New("farm: pool not found")
	ErrSlippageExceeded  = errors.New("farm: slippage exceeded")
	ErrInsufficientStake = errors.New("farm: withdrawal exceeds stake")
	ErrZeroAmount        = errors.New("farm: amount must be positive")
	ErrInvalidPoolConfig = errors.New("farm: invalid pool config")
	ErrUnauthorized      = errors.New("farm: caller not authorized")
	ErrInvalidParams     = errors.New("farm: invalid parameters")
	ErrModulePaused      = nativecommon.ErrModulePaused

	errNilState      = errors.New("farm: state not configured")
	errUnknownPair   = errors.New("farm: pair not registered")
	errUnknownOracle = errors.New("farm: oracle not registered")
)
