package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// DualAuthMiddleware accepts both operator JWTs and machine tokens. Webhook
// endpoints take machine tokens only; the operator API takes either, so the
// marketplace's internal tooling can drive it with a service token.
type DualAuthMiddleware struct {
	jwtAuth      *AuthMiddleware
	apiTokenAuth *APITokenAuthMiddleware
}

// NewDualAuthMiddleware creates a new DualAuthMiddleware
func NewDualAuthMiddleware(jwtAuth *AuthMiddleware, apiTokenAuth *APITokenAuthMiddleware) *DualAuthMiddleware {
	return &DualAuthMiddleware{
		jwtAuth:      jwtAuth,
		apiTokenAuth: apiTokenAuth,
	}
}

// Authenticate returns an Echo middleware that routes by token format
func (m *DualAuthMiddleware) Authenticate() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return unauthorizedError(c, "Missing authorization header")
			}

			var token string
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
				token = parts[1]
			} else if strings.HasPrefix(authHeader, machineTokenPrefix) {
				// Accept machine tokens without Bearer prefix (for Swagger/simple clients)
				token = authHeader
			} else {
				return unauthorizedError(c, "Invalid authorization header format")
			}

			if strings.HasPrefix(token, machineTokenPrefix) {
				log.Debug().Msg("Attempting API token authentication")
				return m.apiTokenAuth.authenticateWithToken(token)(next)(c)
			}

			log.Debug().Msg("Attempting JWT authentication")
			return m.jwtAuth.Authenticate()(next)(c)
		}
	}
}

// JWTOnly returns a middleware that only accepts operator JWTs
func (m *DualAuthMiddleware) JWTOnly() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return unauthorizedError(c, "Missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				return unauthorizedError(c, "Invalid authorization header format")
			}

			if strings.HasPrefix(parts[1], machineTokenPrefix) {
				log.Debug().Msg("API token rejected on JWT-only route")
				return unauthorizedError(c, "This endpoint requires session authentication")
			}

			return m.jwtAuth.Authenticate()(next)(c)
		}
	}
}

// APITokenOnly returns a middleware that only accepts machine tokens.
// The payment and fulfillment webhooks use this: their callers are services,
// never operators.
func (m *DualAuthMiddleware) APITokenOnly() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return unauthorizedError(c, "Missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				return unauthorizedError(c, "Invalid authorization header format")
			}

			if !strings.HasPrefix(parts[1], machineTokenPrefix) {
				log.Debug().Msg("Non-API token rejected on API-token-only route")
				return unauthorizedError(c, "This endpoint requires API token authentication")
			}

			return m.apiTokenAuth.Authenticate()(next)(c)
		}
	}
}
