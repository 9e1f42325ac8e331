package middleware

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github.com/soukly/soukly-backend/internal/domain"
)

const (
	// APITokenIDKey is the context key for the API token ID
	APITokenIDKey contextKey = "api_token_id"
	// APITokenNameKey is the context key for the API token name
	APITokenNameKey contextKey = "api_token_name"
	// IsAPITokenAuthKey is the context key indicating API token authentication
	IsAPITokenAuthKey contextKey = "is_api_token_auth"

	// machineTokenPrefix marks machine tokens issued to webhook callers
	machineTokenPrefix = "souk_"
)

// APITokenValidator provides API token validation
type APITokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*domain.APIToken, error)
}

// APITokenAuthMiddleware authenticates the payment and fulfillment webhook
// callers with machine tokens.
type APITokenAuthMiddleware struct {
	validator APITokenValidator
}

// NewAPITokenAuthMiddleware creates a new APITokenAuthMiddleware
func NewAPITokenAuthMiddleware(validator APITokenValidator) *APITokenAuthMiddleware {
	return &APITokenAuthMiddleware{validator: validator}
}

// Authenticate returns an Echo middleware that validates API tokens
func (m *APITokenAuthMiddleware) Authenticate() echo.MiddlewareFunc {
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

			return m.authenticateWithToken(parts[1])(next)(c)
		}
	}
}

// authenticateWithToken validates a raw token and injects its identity into
// the request context. Shared with the dual-auth path, which has already
// peeled off the Bearer prefix.
func (m *APITokenAuthMiddleware) authenticateWithToken(token string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !strings.HasPrefix(token, machineTokenPrefix) {
				return unauthorizedError(c, "Invalid token format")
			}

			apiToken, err := m.validator.ValidateToken(c.Request().Context(), token)
			if err != nil {
				if err == domain.ErrAPITokenNotFound {
					log.Debug().Msg("API token not found or revoked")
					return unauthorizedError(c, "Invalid or expired API token")
				}
				log.Error().Err(err).Msg("Token validation failed")
				return unauthorizedError(c, "Token validation failed")
			}

			ctx := c.Request().Context()
			ctx = context.WithValue(ctx, APITokenIDKey, apiToken.ID)
			ctx = context.WithValue(ctx, APITokenNameKey, apiToken.Name)
			ctx = context.WithValue(ctx, IsAPITokenAuthKey, true)
			c.SetRequest(c.Request().WithContext(ctx))

			log.Debug().
				Str("token_id", apiToken.ID.String()).
				Str("token_name", apiToken.Name).
				Msg("API token authentication successful")

			return next(c)
		}
	}
}

// GetAPITokenID extracts the API token ID from the context
func GetAPITokenID(c echo.Context) uuid.UUID {
	if id, ok := c.Request().Context().Value(APITokenIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

// GetAPITokenName extracts the API token name from the context
func GetAPITokenName(c echo.Context) string {
	if name, ok := c.Request().Context().Value(APITokenNameKey).(string); ok {
		return name
	}
	return ""
}

// IsAPITokenAuth checks if the request was authenticated via API token
func IsAPITokenAuth(c echo.Context) bool {
	if isAPIToken, ok := c.Request().Context().Value(IsAPITokenAuthKey).(bool); ok {
		return isAPIToken
	}
	return false
}
