package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type contextKey string

const callerKey contextKey = "caller"

// Claims are the token claims the engine consumes. Identity and roles are
// resolved by the identity collaborator and carried in the bearer token.
type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
}

// Caller is the pre-resolved identity and role set attached to every request.
// The scheduling engine never looks at tokens; it only reads this value.
type Caller struct {
	ID    string
	Roles []string
}

// HasRole reports whether the caller holds the given role.
func (c Caller) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type JWTConfig struct {
	Issuer     string
	SigningKey []byte
}

// JWTMiddleware validates the bearer token and stores the resolved Caller on
// the request context.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims := &Claims{}
			opts := []jwt.ParserOption{
				jwt.WithValidMethods([]string{"HS256"}),
			}
			if cfg.Issuer != "" {
				opts = append(opts, jwt.WithIssuer(cfg.Issuer))
			}

			token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
				return cfg.SigningKey, nil
			}, opts...)
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			ctx := WithCaller(c.Request().Context(), Caller{
				ID:    claims.Subject,
				Roles: claims.Roles,
			})
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// DevAuthMiddleware is a permissive middleware for development that gives
// unauthenticated requests a staff identity. Never enabled outside ENV=development.
func DevAuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := WithCaller(c.Request().Context(), Caller{
				ID:    "dev-user",
				Roles: []string{RoleAdmin},
			})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// WithCaller returns a context carrying the given caller.
func WithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// CallerFromContext returns the caller attached by the auth middleware.
// The zero Caller (no id, no roles) is returned for unauthenticated contexts.
func CallerFromContext(ctx context.Context) Caller {
	caller, _ := ctx.Value(callerKey).(Caller)
	return caller
}
