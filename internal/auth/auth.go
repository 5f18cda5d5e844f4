// Package auth resolves the calling principal from a bearer JWT.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"trackitall/internal/core"
	applog "trackitall/internal/log"
)

const (
	claimObjectID = "oid"
	claimEmails   = "emails"
	claimEmail    = "email"

	acceptableSkew = time.Minute
)

// ErrInvalidToken is returned for any token that fails parsing or validation.
var ErrInvalidToken = errors.New("invalid token")

// Resolver turns a raw credential into a principal.
type Resolver interface {
	Resolve(ctx context.Context, token string) (core.Principal, error)
}

// Config selects the issuer, audience and key set tokens are checked against.
type Config struct {
	Issuer     string
	Audience   string
	JWKSURL    string
	AdminRole  string // role value that grants core.RoleAdmin
	RolesClaim string
}

// Verifier validates RS/ES signed JWTs against a JWK set.
type Verifier struct {
	keys   jwk.Set
	config Config
	clock  clock.Clock
	logger *applog.Logger
}

// NewJWKSVerifier fetches cfg.JWKSURL and keeps it refreshed in the
// background until ctx is cancelled.
func NewJWKSVerifier(ctx context.Context, cfg Config, clk clock.Clock, logger *applog.Logger) (*Verifier, error) {
	if cfg.JWKSURL == "" {
		return nil, errors.New("missing JWKS URL")
	}
	c := jwk.NewCache(ctx)
	if err := c.Register(cfg.JWKSURL, jwk.WithMinRefreshInterval(15*time.Minute)); err != nil {
		return nil, fmt.Errorf("register JWKS %s: %w", cfg.JWKSURL, err)
	}
	if _, err := c.Refresh(ctx, cfg.JWKSURL); err != nil {
		return nil, fmt.Errorf("fetch JWKS %s: %w", cfg.JWKSURL, err)
	}
	return NewVerifier(jwk.NewCachedSet(c, cfg.JWKSURL), cfg, clk, logger), nil
}

// NewVerifier validates against a fixed key set.
func NewVerifier(keys jwk.Set, cfg Config, clk clock.Clock, logger *applog.Logger) *Verifier {
	if clk == nil {
		clk = clock.WallClock
	}
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	if cfg.RolesClaim == "" {
		cfg.RolesClaim = "roles"
	}
	if cfg.AdminRole == "" {
		cfg.AdminRole = core.RoleAdmin
	}
	return &Verifier{
		keys:   keys,
		config: cfg,
		clock:  clk,
		logger: logger.WithComponent(applog.ComponentAuth),
	}
}

// Resolve validates token and extracts the principal claims.
func (v *Verifier) Resolve(ctx context.Context, token string) (core.Principal, error) {
	opts := []jwt.ParseOption{
		jwt.WithKeySet(v.keys, jws.WithInferAlgorithmFromKey(true)),
		jwt.WithValidate(true),
		jwt.WithClock(v.clock),
		jwt.WithAcceptableSkew(acceptableSkew),
	}
	if v.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.config.Issuer))
	}
	if v.config.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.config.Audience))
	}

	tok, err := jwt.ParseString(token, opts...)
	if err != nil {
		v.logger.DebugContext(ctx, "Rejected bearer token", applog.FieldError, err)
		return core.Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	p := principalFromToken(tok, v.config.RolesClaim, v.config.AdminRole)
	if p.ObjectID == "" {
		return core.Principal{}, fmt.Errorf("%w: no oid or sub claim", ErrInvalidToken)
	}
	return p, nil
}

// principalFromToken reads oid (falling back to sub), the first of the
// emails claim (falling back to email) and the roles claim.
func principalFromToken(tok jwt.Token, rolesClaim, adminRole string) core.Principal {
	var p core.Principal

	if v, ok := tok.Get(claimObjectID); ok {
		p.ObjectID, _ = v.(string)
	}
	if p.ObjectID == "" {
		p.ObjectID = tok.Subject()
	}

	if v, ok := tok.Get(claimEmails); ok {
		if emails := stringList(v); len(emails) > 0 {
			p.Email = emails[0]
		}
	}
	if p.Email == "" {
		if v, ok := tok.Get(claimEmail); ok {
			p.Email, _ = v.(string)
		}
	}

	if v, ok := tok.Get(rolesClaim); ok {
		p.Roles = normalizeRoles(stringList(v), adminRole)
	}
	return p
}

func stringList(v any) []string {
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil
		}
		return strings.Fields(strings.ReplaceAll(t, ",", " "))
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, x := range t {
			if s, ok := x.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// normalizeRoles maps the configured admin role onto core.RoleAdmin.
func normalizeRoles(roles []string, adminRole string) []string {
	out := make([]string, 0, len(roles))
	seen := make(map[string]bool, len(roles))
	for _, r := range roles {
		if strings.EqualFold(r, adminRole) {
			r = core.RoleAdmin
		}
		if seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}
