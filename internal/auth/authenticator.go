// Package auth validates the identity token a client presents when it opens a
// connection. Tokens are issued by the external authentication service; this
// package only verifies them.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/cory-johannsen/office/internal/config"
	"github.com/cory-johannsen/office/internal/presence"
)

// ErrUnauthorized is the only error Authenticate returns. Absent, malformed,
// expired, revoked and badly signed tokens are indistinguishable to callers.
var ErrUnauthorized = errors.New("unauthorized")

// Claims is the token payload issued by the authentication service. The user
// id is read from userId, then sub, then the account service's _id; the last
// is all its login tokens carry besides exp.
type Claims struct {
	UserID    string `json:"userId"`
	AccountID string `json:"_id"`
	Name      string `json:"name"`
	jwt.RegisteredClaims
}

// Denylist reports whether a token has been revoked. Key is the token "jti"
// claim, or the hex SHA-256 of the raw token when it carries none.
type Denylist interface {
	IsDenied(key string) bool
}

// Authenticator verifies identity tokens against a shared secret.
type Authenticator struct {
	secret   []byte
	parser   *jwt.Parser
	denylist Denylist
	logger   *zap.Logger
}

// Option customises an Authenticator.
type Option func(*authOptions)

type authOptions struct {
	now      func() time.Time
	denylist Denylist
	logger   *zap.Logger
}

// WithClock overrides the time source used for exp and nbf checks.
func WithClock(now func() time.Time) Option {
	return func(o *authOptions) { o.now = now }
}

// WithDenylist rejects tokens the denylist reports as revoked.
func WithDenylist(d Denylist) Option {
	return func(o *authOptions) { o.denylist = d }
}

// WithLogger records the concrete rejection cause at debug level.
func WithLogger(logger *zap.Logger) Option {
	return func(o *authOptions) { o.logger = logger }
}

// NewAuthenticator builds an Authenticator from configuration.
//
// Precondition: cfg.Secret must be non-empty; cfg.Algorithms must list HMAC methods.
// Postcondition: Returns a ready Authenticator or a non-nil error.
func NewAuthenticator(cfg config.AuthConfig, opts ...Option) (*Authenticator, error) {
	if cfg.Secret == "" {
		return nil, errors.New("auth secret must not be empty")
	}
	algs := cfg.Algorithms
	if len(algs) == 0 {
		algs = []string{jwt.SigningMethodHS256.Alg()}
	}
	for _, alg := range algs {
		if _, ok := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unsupported signing algorithm %q", alg)
		}
	}

	o := authOptions{now: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods(algs),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
		jwt.WithTimeFunc(o.now),
	}
	if cfg.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(cfg.Audience))
	}

	return &Authenticator{
		secret:   []byte(cfg.Secret),
		parser:   jwt.NewParser(parserOpts...),
		denylist: o.denylist,
		logger:   o.logger,
	}, nil
}

// Authenticate verifies token and returns the identity it carries.
//
// Postcondition: Returns the identity, or ErrUnauthorized for any failure.
func (a *Authenticator) Authenticate(token string) (presence.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return a.reject("token missing", nil)
	}

	var claims Claims
	if _, err := a.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}); err != nil {
		return a.reject("token rejected", err)
	}

	userID := claims.userID()
	if userID == "" {
		return a.reject("token has no user id", nil)
	}

	if a.denylist != nil && a.denylist.IsDenied(denyKey(token, claims.ID)) {
		return a.reject("token revoked", nil)
	}

	name := strings.TrimSpace(claims.Name)
	if name == "" {
		name = userID
	}
	return presence.Identity{UserID: userID, DisplayName: name}, nil
}

func (c Claims) userID() string {
	for _, v := range []string{c.UserID, c.Subject, c.AccountID} {
		if id := strings.TrimSpace(v); id != "" {
			return id
		}
	}
	return ""
}

func (a *Authenticator) reject(reason string, err error) (presence.Identity, error) {
	a.logger.Debug("connection token rejected", zap.String("reason", reason), zap.Error(err))
	return presence.Identity{}, ErrUnauthorized
}

func denyKey(token, jti string) string {
	if jti != "" {
		return jti
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
