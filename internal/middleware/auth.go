package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/taskflow-api/internal/token"
	appErrors "github.com/noah-isme/taskflow-api/pkg/errors"
	"github.com/noah-isme/taskflow-api/pkg/response"
)

const (
	// ContextUserKey is the gin context key storing the verified claims.
	ContextUserKey = "currentUser"
	// ContextTokenKey stores the raw token for later revocation (logout).
	ContextTokenKey = "currentToken"
	// AuthCookieName is the httpOnly cookie carrying the access token.
	AuthCookieName = "auth_token"
)

// extractToken prefers the httpOnly cookie and falls back to the
// Authorization bearer header.
func extractToken(c *gin.Context) string {
	if cookie, err := c.Cookie(AuthCookieName); err == nil && cookie != "" {
		return cookie
	}

	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// AuthMetrics records token authentication outcomes. *service.MetricsService
// satisfies it; nil disables recording.
type AuthMetrics interface {
	RecordAuthAttempt(attemptType, status string)
}

// recordTokenFailure bumps the auth-failure counter with the rejection kind.
func recordTokenFailure(metrics AuthMetrics, err error) {
	if metrics == nil {
		return
	}
	metrics.RecordAuthAttempt("token", strings.ToLower(appErrors.FromError(err).Code))
}

// Authenticate gates routes behind a valid, unrevoked access token. On
// success the claims and the raw token are attached to the context; every
// failure path ends in a structured 401 and bumps the auth-failure metric.
func Authenticate(codec *token.Codec, blacklist token.RevocationStore, metrics AuthMetrics, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		raw := extractToken(c)
		if raw == "" {
			recordTokenFailure(metrics, appErrors.ErrNoToken)
			response.Error(c, appErrors.ErrNoToken)
			c.Abort()
			return
		}

		revoked, err := blacklist.IsRevoked(c.Request.Context(), raw)
		if err != nil {
			logger.Error("blacklist lookup failed", zap.Error(err), zap.String("ip", c.ClientIP()))
			recordTokenFailure(metrics, appErrors.ErrUnauthorized)
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if revoked {
			logger.Warn("blacklisted token used", zap.String("ip", c.ClientIP()))
			recordTokenFailure(metrics, appErrors.ErrTokenRevoked)
			response.Error(c, appErrors.ErrTokenRevoked)
			c.Abort()
			return
		}

		claims, err := codec.Verify(raw)
		if err != nil {
			logger.Warn("authentication failed",
				zap.String("error", appErrors.FromError(err).Code),
				zap.String("ip", c.ClientIP()),
				zap.String("user_agent", c.GetHeader("User-Agent")),
			)
			recordTokenFailure(metrics, err)
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Set(ContextTokenKey, raw)
		c.Next()
	}
}

// OptionalAuth attaches claims when a valid token is present but never
// blocks; a missing or invalid token leaves the request unauthenticated.
func OptionalAuth(codec *token.Codec, blacklist token.RevocationStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := extractToken(c)
		if raw == "" {
			c.Next()
			return
		}

		if revoked, err := blacklist.IsRevoked(c.Request.Context(), raw); err != nil || revoked {
			c.Next()
			return
		}

		if claims := codec.VerifyOptional(raw); claims != nil {
			c.Set(ContextUserKey, claims)
			c.Set(ContextTokenKey, raw)
		}
		c.Next()
	}
}

// RequireRole gates a route on the authenticated identity's role: 401
// without an identity, 403 when the role is absent or not allowed.
func RequireRole(logger *zap.Logger, allowed ...string) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *gin.Context) {
		claims := ClaimsFromContext(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		if _, ok := allowedSet[claims.Role]; !ok {
			logger.Warn("unauthorized role access attempt",
				zap.String("user_id", claims.UserID),
				zap.String("user_role", claims.Role),
				zap.Strings("required_roles", allowed),
			)
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}

		c.Next()
	}
}

// ClaimsFromContext returns the verified claims attached by Authenticate,
// or nil when the request is unauthenticated.
func ClaimsFromContext(c *gin.Context) *token.AccessClaims {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*token.AccessClaims)
	if !ok {
		return nil
	}
	return claims
}

// RawTokenFromContext returns the raw bearer token for the request, if any.
func RawTokenFromContext(c *gin.Context) string {
	value, exists := c.Get(ContextTokenKey)
	if !exists {
		return ""
	}
	raw, ok := value.(string)
	if !ok {
		return ""
	}
	return raw
}
