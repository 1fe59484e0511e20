// Package rpc serves the farm over a JSON HTTP API.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"xfarm/explorer"
	"xfarm/gateway/middleware"
	"xfarm/native/farm"
)

const (
	maxRequestBytes = 1 << 20
	moduleName      = "farm"
	headerRequestID = middleware.HeaderRequestID
)

// Backend is the node surface the API drives.
type Backend interface {
	WithEngine(fn func(*farm.Engine) error) error
	Height() uint64
	Token(symbol string) (common.Address, bool)
	ModuleAddress() common.Address
	Balance(token, owner common.Address) (*big.Int, error)
	Allowance(token, owner common.Address) (*big.Int, error)
	Approve(token, owner common.Address, amount *big.Int) error
	SetOperatorPause(paused bool)
	OperatorPaused() bool
}

// EventStore backs GET /v1/events.
type EventStore interface {
	Query(ctx context.Context, filter explorer.Filter) ([]explorer.EventRecord, error)
}

// ServerConfig wires the gateway middleware. Nil members are skipped.
type ServerConfig struct {
	Authenticator *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	RateLimitKey  string
	Observability *middleware.Observability
	CORS          middleware.CORSConfig
	Events        EventStore
	Stream        EventStream
	MetricsPath   string
	// AuthenticateReads puts the read routes behind the bearer check too.
	AuthenticateReads bool
}

type Server struct {
	backend Backend
	cfg     ServerConfig
	logger  *slog.Logger
	router  chi.Router
}

func NewServer(backend Backend, cfg ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	s := &Server{backend: backend, cfg: cfg, logger: logger}
	s.router = s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.CORS(s.cfg.CORS))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if obs := s.cfg.Observability; obs != nil {
		r.Handle(s.cfg.MetricsPath, obs.MetricsHandler())
	}

	r.Route("/v1", func(v1 chi.Router) {
		if s.cfg.RateLimiter != nil && s.cfg.RateLimitKey != "" {
			v1.Use(s.cfg.RateLimiter.Middleware(s.cfg.RateLimitKey))
		}

		v1.Group(func(read chi.Router) {
			if s.cfg.AuthenticateReads && s.cfg.Authenticator != nil {
				read.Use(s.cfg.Authenticator.Middleware())
			}
			s.observe(read, "params", http.MethodGet, "/params", s.handleParams)
			s.observe(read, "pools", http.MethodGet, "/pools", s.handlePools)
			s.observe(read, "pool", http.MethodGet, "/pools/{id}", s.handlePool)
			s.observe(read, "position", http.MethodGet, "/pools/{id}/positions/{addr}", s.handlePosition)
			s.observe(read, "balance", http.MethodGet, "/accounts/{addr}/balances/{symbol}", s.handleBalance)
			s.observe(read, "events", http.MethodGet, "/events", s.handleEvents)
			// not wrapped by observe: the websocket upgrade needs the raw writer
			read.Get("/events/stream", s.handleEventStream)
		})

		v1.Group(func(write chi.Router) {
			if s.cfg.Authenticator != nil {
				write.Use(s.cfg.Authenticator.Middleware())
			}
			s.observe(write, "approve", http.MethodPost, "/tokens/{symbol}/approve", s.handleApprove)
			s.observe(write, "deposit", http.MethodPost, "/pools/{id}/deposit", s.handleDeposit)
			s.observe(write, "deposit_shares", http.MethodPost, "/pools/{id}/deposit-shares", s.handleDepositShares)
			s.observe(write, "withdraw", http.MethodPost, "/pools/{id}/withdraw", s.handleWithdraw)
			s.observe(write, "withdraw_single", http.MethodPost, "/pools/{id}/withdraw-single", s.handleWithdrawSingle)
			s.observe(write, "emergency_withdraw", http.MethodPost, "/pools/{id}/emergency-withdraw", s.handleEmergencyWithdraw)
			s.observe(write, "settle", http.MethodPost, "/pools/{id}/settle", s.handleSettle)
		})

		v1.Route("/admin", func(admin chi.Router) {
			if s.cfg.Authenticator != nil {
				admin.Use(s.cfg.Authenticator.Middleware(middleware.ScopeAdmin))
			}
			s.observe(admin, "admin_add_pool", http.MethodPost, "/pools", s.handleAddPool)
			s.observe(admin, "admin_withdraw_reserve", http.MethodPost, "/reserve/withdraw", s.handleWithdrawReserve)
			s.observe(admin, "admin_params", http.MethodPost, "/params", s.handleSetParam)
			s.observe(admin, "admin_pause", http.MethodPost, "/pause", s.handleSetPaused)
			s.observe(admin, "admin_operator_pause", http.MethodPost, "/operator-pause", s.handleOperatorPause)
		})
	})
	return r
}

func (s *Server) observe(r chi.Router, route, method, pattern string, h http.HandlerFunc) {
	var handler http.Handler = h
	if obs := s.cfg.Observability; obs != nil {
		handler = obs.Middleware(moduleName, route)(handler)
	}
	r.Method(method, pattern, handler)
}

type requestIDKey struct{}

// requestID tags every request with an id, keeping one supplied by the
// client.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(headerRequestID))
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// RequestID returns the id assigned to the request.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func decodeBody(w http.ResponseWriter, r *http.Request, out interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return invalidParams("request body required")
		}
		return invalidParams("invalid request body: " + err.Error())
	}
	return nil
}

// caller resolves the acting account. With authentication on it is the
// token subject and a conflicting body value is rejected; otherwise the
// body must name it.
func (s *Server) caller(r *http.Request, declared string) (common.Address, error) {
	if s.cfg.Authenticator.Enabled() {
		subject, ok := middleware.Subject(r.Context())
		if !ok {
			return common.Address{}, &APIError{HTTPStatus: http.StatusUnauthorized, Code: codeUnauthorized, Message: "token subject required"}
		}
		addr, err := parseAddressField("token subject", subject)
		if err != nil {
			return common.Address{}, err
		}
		if strings.TrimSpace(declared) != "" {
			other, err := parseAddressField("caller", declared)
			if err != nil {
				return common.Address{}, err
			}
			if other != addr {
				return common.Address{}, &APIError{HTTPStatus: http.StatusForbidden, Code: codeUnauthorized, Message: "caller does not match token subject"}
			}
		}
		return addr, nil
	}
	if strings.TrimSpace(declared) == "" {
		return common.Address{}, invalidParams("caller is required")
	}
	return parseAddressField("caller", declared)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := translateError(err)
	if apiErr.HTTPStatus >= http.StatusInternalServerError && apiErr.Code == codeServerError {
		s.logger.Error("rpc: request failed", "path", r.URL.Path, "request_id", RequestID(r.Context()), "error", err)
	}
	writeError(w, r, apiErr)
}
