package rpc

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"xfarm/native/farm"
	"xfarm/native/oracle"
)

func (s *Server) handleAddPool(w http.ResponseWriter, r *http.Request) {
	var req addPoolRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	caller, err := s.caller(r, req.Caller)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	pair, err := parseAddressField("pair", req.Pair)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	input, err := s.token(req.Input)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	oracleAddr := oracle.AddressFor(pair)
	if strings.TrimSpace(req.Oracle) != "" {
		if oracleAddr, err = parseAddressField("oracle", req.Oracle); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	var id uint64
	err = s.backend.WithEngine(func(engine *farm.Engine) error {
		var err error
		id, err = engine.AddPool(caller, pair, input, oracleAddr, req.Refresh)
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info("rpc: pool added", "pool", id, "request_id", RequestID(r.Context()))
	writeResult(w, TxResult{Height: s.backend.Height(), PoolID: &id})
}

func (s *Server) handleWithdrawReserve(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	caller, err := s.caller(r, req.Caller)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount, true)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	err = s.backend.WithEngine(func(engine *farm.Engine) error {
		return engine.AdminWithdrawReserve(caller, amount)
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeResult(w, TxResult{Height: s.backend.Height(), Output: amount.String()})
}

func (s *Server) handleSetParam(w http.ResponseWriter, r *http.Request) {
	var req paramRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	caller, err := s.caller(r, req.Caller)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	update, err := paramUpdate(caller, req.Param, req.Value)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.backend.WithEngine(update); err != nil {
		s.fail(w, r, err)
		return
	}
	s.handleParams(w, r)
}

// paramUpdate resolves an admin parameter name to its engine setter.
func paramUpdate(caller common.Address, param, value string) (func(*farm.Engine) error, error) {
	switch strings.TrimSpace(param) {
	case "rewardPerBlock":
		amount, err := parseAmount(param, value, true)
		if err != nil {
			return nil, err
		}
		return func(e *farm.Engine) error { return e.SetRewardPerBlock(caller, amount) }, nil
	case "fundingSplitFactor":
		amount, err := parseAmount(param, value, true)
		if err != nil {
			return nil, err
		}
		return func(e *farm.Engine) error { return e.SetFundingSplitFactor(caller, amount) }, nil
	case "acquisitionSplit":
		amount, err := parseAmount(param, value, true)
		if err != nil {
			return nil, err
		}
		return func(e *farm.Engine) error { return e.SetAcquisitionSplit(caller, amount) }, nil
	case "internalSwapThreshold":
		amount, err := parseAmount(param, value, true)
		if err != nil {
			return nil, err
		}
		return func(e *farm.Engine) error { return e.SetInternalSwapThreshold(caller, amount) }, nil
	case "devAddress":
		addr, err := parseAddressField(param, value)
		if err != nil {
			return nil, err
		}
		return func(e *farm.Engine) error { return e.SetDevAddress(caller, addr) }, nil
	case "admin":
		addr, err := parseAddressField(param, value)
		if err != nil {
			return nil, err
		}
		return func(e *farm.Engine) error { return e.TransferAdmin(caller, addr) }, nil
	}
	return nil, invalidParams("unknown param " + strconv.Quote(param))
}

func (s *Server) handleSetPaused(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	caller, err := s.caller(r, req.Caller)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	err = s.backend.WithEngine(func(engine *farm.Engine) error {
		return engine.SetPaused(caller, req.Paused)
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.handleParams(w, r)
}

// handleOperatorPause toggles the node-local pause. It needs the admin scope
// but no on-ledger admin signature.
func (s *Server) handleOperatorPause(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	s.backend.SetOperatorPause(req.Paused)
	s.handleParams(w, r)
}
