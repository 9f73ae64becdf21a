package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockapp/internal/session"
)

// CSRF issues a per-session token on safe requests and checks it on
// state-changing ones.
func CSRF(sessions *session.Manager, logger *zap.Logger) gin.HandlerFunc {
	logger = nopIfNil(logger)
	return func(c *gin.Context) {
		token, err := sessions.CSRFToken(c.Request.Context(), SessionID(c))
		if err != nil {
			logger.Error("csrf token lookup failed", zap.Error(err))
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		c.Set(csrfKey, token)

		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		sent := c.GetHeader(CSRFHeader)
		if sent == "" {
			sent = c.PostForm(CSRFField)
		}
		if subtle.ConstantTimeCompare([]byte(sent), []byte(token)) != 1 {
			logger.Warn("csrf token mismatch", zap.String("path", c.Request.URL.Path))
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		c.Next()
	}
}

// CSRFToken returns the token issued by CSRF for the current request.
func CSRFToken(c *gin.Context) string {
	return c.GetString(csrfKey)
}
