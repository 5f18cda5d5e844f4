package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"trackitall/internal/core"
	applog "trackitall/internal/log"
)

type contextKey struct{}

// Dev mode headers, honoured only by HeaderResolver.
const (
	HeaderPrincipalID    = "X-Principal-Id"
	HeaderPrincipalEmail = "X-Principal-Email"
	HeaderPrincipalRoles = "X-Principal-Roles"
)

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p core.Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// PrincipalFrom returns the principal stored by Middleware.
func PrincipalFrom(ctx context.Context) (core.Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(core.Principal)
	return p, ok
}

// RequestResolver resolves the principal of an inbound request.
type RequestResolver interface {
	ResolveRequest(r *http.Request) (core.Principal, error)
}

// Bearer resolves the Authorization bearer token with resolver.
func Bearer(resolver Resolver) RequestResolver {
	return bearer{resolver: resolver}
}

type bearer struct{ resolver Resolver }

func (b bearer) ResolveRequest(r *http.Request) (core.Principal, error) {
	token := bearerToken(r)
	if token == "" {
		return core.Principal{}, errMissingCredentials
	}
	return b.resolver.Resolve(r.Context(), token)
}

var errMissingCredentials = errors.New("missing bearer token")

// Middleware rejects unauthenticated requests with 401 and stores the
// resolved principal in the request context.
func Middleware(resolver RequestResolver, logger *applog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentAuth)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := resolver.ResolveRequest(r)
			if errors.Is(err, errMissingCredentials) {
				unauthorized(w, "missing bearer token")
				return
			}
			if err != nil {
				logger.WarnContext(r.Context(), "Authentication failed",
					applog.FieldPath, r.URL.Path,
					applog.FieldError, err)
				unauthorized(w, "invalid bearer token")
				return
			}

			ctx := WithPrincipal(r.Context(), p)
			ctx = applog.WithContext(ctx, applog.FromContext(ctx).With(applog.FieldPrincipalID, p.ObjectID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="trackitall"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// HeaderResolver trusts the X-Principal-* headers. It exists for local
// development without an identity provider and must not face the internet.
type HeaderResolver struct {
	AdminRole string
}

func (h HeaderResolver) ResolveRequest(r *http.Request) (core.Principal, error) {
	id := r.Header.Get(HeaderPrincipalID)
	if id == "" {
		return core.Principal{}, errMissingCredentials
	}
	adminRole := h.AdminRole
	if adminRole == "" {
		adminRole = core.RoleAdmin
	}
	return core.Principal{
		ObjectID: id,
		Email:    r.Header.Get(HeaderPrincipalEmail),
		Roles:    normalizeRoles(stringList(r.Header.Get(HeaderPrincipalRoles)), adminRole),
	}, nil
}
