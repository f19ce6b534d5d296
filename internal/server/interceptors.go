package server

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/alfredjeanlab/storescan/internal/scanpb"
)

// LoggingInterceptor logs every unary RPC with its status code and the
// calling client. Server-side failures log at error level, rejected
// requests at warn.
func LoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		c := grpcCaller(ctx, "", "")
		attrs := []any{
			"method", info.FullMethod,
			"code", code.String(),
			"duration", time.Since(start),
			"actor", c.Actor,
			"origin", c.Origin,
		}
		switch code {
		case codes.OK:
			logger.Info("rpc", attrs...)
		case codes.Internal, codes.Unknown, codes.Unavailable, codes.DataLoss:
			logger.Error("rpc", append(attrs, "err", err)...)
		default:
			logger.Warn("rpc", append(attrs, "err", err)...)
		}
		return resp, err
	}
}

// RecoveryInterceptor turns a handler panic into codes.Internal.
func RecoveryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("rpc panic",
					"method", info.FullMethod,
					"panic", fmt.Sprint(r),
					"stack", string(debug.Stack()),
				)
				err = status.Error(codes.Internal, "internal server error")
			}
		}()
		return handler(ctx, req)
	}
}

// Auth holds the bearer tokens accepted by the server. Token grants every
// scope; ScopeTokens grant only the listed scopes ("*" grants all). When
// both are empty, auth is disabled.
type Auth struct {
	Token       string
	ScopeTokens map[string][]string
}

func (a Auth) enabled() bool {
	return a.Token != "" || len(a.ScopeTokens) > 0
}

// resolve returns the grant for a presented token, or false if the token
// is unknown.
func (a Auth) resolve(provided string) (grant, bool) {
	if a.Token != "" && subtle.ConstantTimeCompare([]byte(provided), []byte(a.Token)) == 1 {
		return grant{all: true}, true
	}
	for tok, scopes := range a.ScopeTokens {
		if subtle.ConstantTimeCompare([]byte(provided), []byte(tok)) != 1 {
			continue
		}
		g := grant{scopes: make(map[string]bool, len(scopes))}
		for _, sc := range scopes {
			g.all = g.all || sc == "*"
			g.scopes[sc] = true
		}
		return g, true
	}
	return grant{}, false
}

// authenticate checks an Authorization value. On failure it returns the
// reason to report to the client.
func (a Auth) authenticate(header string) (grant, string) {
	if header == "" {
		return grant{}, "missing authorization header"
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return grant{}, "invalid authorization scheme"
	}
	g, ok := a.resolve(token)
	if !ok {
		return grant{}, "invalid token"
	}
	return g, ""
}

// grant is the set of store scopes a request may touch.
type grant struct {
	all    bool
	scopes map[string]bool
}

type grantKey struct{}

func withGrant(ctx context.Context, g grant) context.Context {
	return context.WithValue(ctx, grantKey{}, g)
}

// scopeAllowed reports whether the request context may touch scope.
// Requests without a grant (auth disabled) may touch every scope.
func scopeAllowed(ctx context.Context, scope string) bool {
	g, ok := ctx.Value(grantKey{}).(grant)
	if !ok {
		return true
	}
	return g.all || g.scopes[scope]
}

// AuthInterceptor checks the "authorization" metadata of every RPC except
// Health and attaches the token's grant to the context.
func AuthInterceptor(auth Auth) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !auth.enabled() || info.FullMethod == scanpb.MethodHealth {
			return handler(ctx, req)
		}
		var header string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get("authorization"); len(vals) > 0 {
				header = vals[0]
			}
		}
		g, reason := auth.authenticate(header)
		if reason != "" {
			return nil, status.Error(codes.Unauthenticated, reason)
		}
		return handler(withGrant(ctx, g), req)
	}
}

// AuthMiddleware is the HTTP counterpart of AuthInterceptor. GET
// /v1/health is exempt.
func AuthMiddleware(auth Auth, next http.Handler) http.Handler {
	if !auth.enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == "/v1/health" {
			next.ServeHTTP(w, r)
			return
		}
		g, reason := auth.authenticate(r.Header.Get("Authorization"))
		if reason != "" {
			writeError(w, http.StatusUnauthorized, reason)
			return
		}
		next.ServeHTTP(w, r.WithContext(withGrant(r.Context(), g)))
	})
}
