package rpc

import (
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"xfarm/explorer"
	"xfarm/native/farm"
)

func poolID(r *http.Request) (uint64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, invalidParams("invalid pool id " + strconv.Quote(raw))
	}
	return id, nil
}

func (s *Server) token(symbol string) (common.Address, error) {
	if addr, ok := s.backend.Token(strings.ToUpper(strings.TrimSpace(symbol))); ok {
		return addr, nil
	}
	if addr, err := parseAddressField("token", symbol); err == nil {
		return addr, nil
	}
	return common.Address{}, &APIError{HTTPStatus: http.StatusNotFound, Code: codeNotFound, Message: "unknown token " + strconv.Quote(symbol)}
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	var result ParamsResult
	err := s.backend.WithEngine(func(engine *farm.Engine) error {
		cfg, err := engine.Params()
		if err != nil {
			return err
		}
		treasury, err := engine.TreasuryBalance()
		if err != nil {
			return err
		}
		paused, err := engine.Paused()
		if err != nil {
			return err
		}
		result = newParamsResult(cfg, engine.ModuleAddress(), treasury, paused, s.backend.OperatorPaused(), s.backend.Height())
		return nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeResult(w, result)
}

func (s *Server) handlePools(w http.ResponseWriter, r *http.Request) {
	var result []PoolResult
	err := s.backend.WithEngine(func(engine *farm.Engine) error {
		pools, err := engine.Pools()
		if err != nil {
			return err
		}
		result = make([]PoolResult, 0, len(pools))
		for _, pool := range pools {
			result = append(result, newPoolResult(pool))
		}
		return nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeResult(w, result)
}

func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	id, err := poolID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var result PoolResult
	err = s.backend.WithEngine(func(engine *farm.Engine) error {
		pool, err := engine.Pool(id)
		if err != nil {
			return err
		}
		result = newPoolResult(pool)
		return nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeResult(w, result)
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	id, err := poolID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	account, err := parseAddressField("address", chi.URLParam(r, "addr"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	result := PositionResult{Pool: id, Account: formatAddress(account)}
	err = s.backend.WithEngine(func(engine *farm.Engine) error {
		pos, err := engine.UserPosition(id, account)
		if err != nil {
			return err
		}
		pending, err := engine.PendingReward(id, account)
		if err != nil {
			return err
		}
		input, reward, err := engine.PositionValue(id, account)
		if err != nil {
			return err
		}
		result.Amount = formatAmount(pos.Amount)
		result.RewardDebt = formatAmount(pos.RewardDebt)
		result.Pending = formatAmount(pending)
		result.InputValue = formatAmount(input)
		result.RewardValue = formatAmount(reward)
		return nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeResult(w, result)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddressField("address", chi.URLParam(r, "addr"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	token, err := s.token(chi.URLParam(r, "symbol"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	balance, err := s.backend.Balance(token, account)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	allowance, err := s.backend.Allowance(token, account)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeResult(w, BalanceResult{
		Account:   formatAddress(account),
		Token:     formatAddress(token),
		Balance:   formatAmount(balance),
		Allowance: formatAmount(allowance),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Events == nil {
		writeError(w, r, &APIError{HTTPStatus: http.StatusNotImplemented, Code: codeNotFound, Message: "event index disabled"})
		return
	}
	query := r.URL.Query()
	filter := explorer.Filter{
		Pool:    query.Get("pool"),
		Type:    query.Get("type"),
		Account: query.Get("account"),
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			s.fail(w, r, invalidParams("invalid limit"))
			return
		}
		filter.Limit = limit
	}
	if filter.Pool != "" {
		if _, err := strconv.ParseUint(strings.TrimSpace(filter.Pool), 10, 64); err != nil {
			s.fail(w, r, invalidParams("invalid pool"))
			return
		}
	}
	records, err := s.cfg.Events.Query(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	result := make([]EventResult, 0, len(records))
	for _, rec := range records {
		evt, err := newEventResult(rec)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		result = append(result, evt)
	}
	writeResult(w, result)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
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
	token, err := s.token(chi.URLParam(r, "symbol"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount, true)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.backend.Approve(token, caller, amount); err != nil {
		s.fail(w, r, err)
		return
	}
	writeResult(w, BalanceResult{
		Account:   formatAddress(caller),
		Token:     formatAddress(token),
		Allowance: amount.String(),
	})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	id, err := poolID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req depositRequest
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
	minShares, err := parseAmount("minSharesOut", req.MinSharesOut, false)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var shares *big.Int
	err = s.backend.WithEngine(func(engine *farm.Engine) error {
		var err error
		shares, err = engine.DepositSingleAsset(caller, id, amount, minShares)
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeResult(w, TxResult{Height: s.backend.Height(), Shares: formatAmount(shares)})
}

func (s *Server) handleDepositShares(w http.ResponseWriter, r *http.Request) {
	id, err := poolID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req sharesRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	caller, err := s.caller(r, req.Caller)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	shares, err := parseAmount("shares", req.Shares, false)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	err = s.backend.WithEngine(func(engine *farm.Engine) error {
		return engine.DepositShares(caller, id, shares)
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeResult(w, TxResult{Height: s.backend.Height(), Shares: formatAmount(shares)})
}

// handleWithdraw unstakes shares; zero or absent shares only claims.
func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	id, err := poolID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req sharesRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	caller, err := s.caller(r, req.Caller)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	shares, err := parseAmount("shares", req.Shares, false)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	err = s.backend.WithEngine(func(engine *farm.Engine) error {
		return engine.WithdrawShares(caller, id, shares)
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeResult(w, TxResult{Height: s.backend.Height(), Shares: formatAmount(shares)})
}

func (s *Server) handleWithdrawSingle(w http.ResponseWriter, r *http.Request) {
	id, err := poolID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req withdrawSingleRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	caller, err := s.caller(r, req.Caller)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	shares, err := parseAmount("shares", req.Shares, true)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	minOut, err := parseAmount("minOut", req.MinOut, false)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var output *big.Int
	err = s.backend.WithEngine(func(engine *farm.Engine) error {
		var err error
		output, err = engine.WithdrawAsSingleAsset(caller, id, shares, minOut)
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeResult(w, TxResult{Height: s.backend.Height(), Shares: shares.String(), Output: formatAmount(output)})
}

func (s *Server) handleEmergencyWithdraw(w http.ResponseWriter, r *http.Request) {
	id, err := poolID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req callerRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	caller, err := s.caller(r, req.Caller)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var shares *big.Int
	err = s.backend.WithEngine(func(engine *farm.Engine) error {
		var err error
		shares, err = engine.EmergencyWithdraw(caller, id)
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeResult(w, TxResult{Height: s.backend.Height(), Shares: formatAmount(shares)})
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	id, err := poolID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var result PoolResult
	err = s.backend.WithEngine(func(engine *farm.Engine) error {
		if err := engine.SettlePool(id); err != nil {
			return err
		}
		pool, err := engine.Pool(id)
		if err != nil {
			return err
		}
		result = newPoolResult(pool)
		return nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeResult(w, result)
}
