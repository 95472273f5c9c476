package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/taskflow-api/pkg/errors"
	"github.com/noah-isme/taskflow-api/pkg/response"
)

const (
	// CSRFCookieName is the readable cookie carrying the CSRF token. It must
	// not be httpOnly: the client echoes it back in the header.
	CSRFCookieName = "csrf_token"
	// CSRFHeaderName is the request header checked against the cookie.
	CSRFHeaderName = "X-CSRF-Token"

	csrfCookieMaxAge = 24 * 60 * 60
	csrfTokenBytes   = 32
)

// CSRF implements the double-submit-cookie defense. Safe methods receive a
// token cookie when they lack one; unsafe methods must present a header copy
// that matches the cookie, compared in constant time.
func CSRF(secureCookies bool, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			if _, err := c.Cookie(CSRFCookieName); err != nil {
				token, genErr := generateCSRFToken()
				if genErr != nil {
					logger.Error("failed to generate CSRF token", zap.Error(genErr))
				} else {
					c.SetSameSite(http.SameSiteStrictMode)
					c.SetCookie(CSRFCookieName, token, csrfCookieMaxAge, "/", "", secureCookies, false)
				}
			}
			c.Next()
			return
		}

		cookie, err := c.Cookie(CSRFCookieName)
		header := c.GetHeader(CSRFHeaderName)

		if err != nil || cookie == "" || header == "" {
			logger.Warn("CSRF token missing",
				zap.String("ip", c.ClientIP()),
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
			)
			response.Error(c, appErrors.ErrCSRFMissing)
			c.Abort()
			return
		}

		if subtle.ConstantTimeCompare([]byte(cookie), []byte(header)) != 1 {
			logger.Warn("CSRF token mismatch",
				zap.String("ip", c.ClientIP()),
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
			)
			response.Error(c, appErrors.ErrCSRFMismatch)
			c.Abort()
			return
		}

		c.Next()
	}
}

func generateCSRFToken() (string, error) {
	buf := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
