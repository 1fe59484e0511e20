package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"xfarm/observability/logging"
)

// ScopeAdmin grants access to the farm administration routes.
const ScopeAdmin = "admin"

const defaultClockSkew = 2 * time.Minute

// AuthConfig configures bearer verification. Tokens are HS256 only.
type AuthConfig struct {
	Enabled    bool
	HMACSecret string
	Issuer     string
	Audience   string
	ClockSkew  time.Duration
}

// apiClaims is the token body: registered claims plus a space separated
// scope list.
type apiClaims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the verified caller attached to the request context.
type Identity struct {
	Subject string
	Scopes  []string
}

func (id Identity) has(required []string) bool {
	for _, want := range required {
		found := false
		for _, scope := range id.Scopes {
			if scope == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

type identityKey struct{}

// Authenticator verifies bearer tokens minted by SignToken.
type Authenticator struct {
	cfg    AuthConfig
	logger *slog.Logger
	secret []byte
	parser *jwt.Parser
}

func NewAuthenticator(cfg AuthConfig, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = defaultClockSkew
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(cfg.ClockSkew),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &Authenticator{
		cfg:    cfg,
		logger: logger,
		secret: []byte(strings.TrimSpace(cfg.HMACSecret)),
		parser: jwt.NewParser(opts...),
	}
}

// Enabled reports whether bearer tokens are verified.
func (a *Authenticator) Enabled() bool { return a != nil && a.cfg.Enabled }

// Middleware rejects requests without a valid token carrying every scope in
// requiredScopes. It is a pass-through when authentication is disabled.
func (a *Authenticator) Middleware(requiredScopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !a.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r.Header.Get("Authorization"))
			if raw == "" {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "missing bearer token")
				return
			}
			id, err := a.verify(raw)
			if err != nil {
				a.logger.Warn("auth: token rejected", "error", err)
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "invalid token")
				return
			}
			if !id.has(requiredScopes) {
				a.logger.Warn("auth: insufficient scope",
					logging.MaskField("subject", id.Subject),
					"required", strings.Join(requiredScopes, " "))
				writeError(w, http.StatusForbidden, CodeUnauthorized, "insufficient scope")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, id)))
		})
	}
}

func (a *Authenticator) verify(raw string) (Identity, error) {
	if len(a.secret) == 0 {
		return Identity{}, errors.New("auth secret not configured")
	}
	claims := new(apiClaims)
	if _, err := a.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}); err != nil {
		return Identity{}, err
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return Identity{}, errors.New("token has no subject")
	}
	return Identity{Subject: subject, Scopes: strings.Fields(claims.Scope)}, nil
}

// IdentityFrom returns the identity attached by the middleware.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// Subject returns the token subject attached by the middleware.
func Subject(ctx context.Context) (string, bool) {
	id, ok := IdentityFrom(ctx)
	return id.Subject, ok && id.Subject != ""
}

// TokenClaims are the fields SignToken places in an API token.
type TokenClaims struct {
	Subject  string
	Scopes   []string
	Issuer   string
	Audience string
	TTL      time.Duration
}

// SignToken issues an HS256 token the Authenticator accepts.
func SignToken(secret string, claims TokenClaims, now time.Time) (string, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return "", errors.New("auth secret not configured")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", errors.New("subject required")
	}
	body := apiClaims{
		Scope: strings.Join(claims.Scopes, " "),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  claims.Subject,
			Issuer:   claims.Issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if claims.Audience != "" {
		body.Audience = jwt.ClaimStrings{claims.Audience}
	}
	if claims.TTL > 0 {
		body.ExpiresAt = jwt.NewNumericDate(now.Add(claims.TTL))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, body).SignedString([]byte(secret))
}

func extractBearer(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
