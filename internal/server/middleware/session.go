// Package middleware holds the gin middlewares shared by every dashboard route.
package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockapp/internal/session"
	"github.com/mamadbah2/stockapp/pkg/clients/inventory"
)

const (
	// LoginPath is where anonymous sessions are sent.
	LoginPath = "/auth/login"
	// HomePath is where authenticated sessions land.
	HomePath = "/dashboard"

	sessionIDKey  = "session_id"
	cookieOptsKey = "session_cookie"
	csrfKey       = "csrf_token"
	// CSRFField is the hidden form input carrying the token.
	CSRFField = "_csrf"
	// CSRFHeader is accepted in place of the form field.
	CSRFHeader = "X-CSRF-Token"
)

// CookieOptions controls the session cookie.
type CookieOptions struct {
	Name   string
	Secure bool
	TTL    time.Duration
}

// SessionCookie makes sure every request carries a session ID cookie and
// binds the ID to the request context.
func SessionCookie(opts CookieOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(opts.Name)
		if err != nil || uuid.Validate(id) != nil {
			id = session.NewID()
		}
		// Refresh on every request so the cookie follows the sliding TTL.
		c.Set(cookieOptsKey, opts)
		bindSession(c, opts, id)
		c.Next()
	}
}

// RenewSession moves the request's session under a fresh ID and reissues
// the cookie. Handlers call it before a session gains a token.
func RenewSession(c *gin.Context, sessions *session.Manager) error {
	opts, ok := c.Get(cookieOptsKey)
	if !ok {
		return errors.New("renew session: no session cookie on this route")
	}
	id, err := sessions.Rotate(c.Request.Context(), SessionID(c))
	if err != nil {
		return err
	}
	bindSession(c, opts.(CookieOptions), id)
	return nil
}

// bindSession sets the cookie, replacing any earlier one of the same name in
// this response, and binds id to the request.
func bindSession(c *gin.Context, opts CookieOptions, id string) {
	header := c.Writer.Header()
	var kept []string
	for _, v := range header.Values("Set-Cookie") {
		if !strings.HasPrefix(v, opts.Name+"=") {
			kept = append(kept, v)
		}
	}
	header.Del("Set-Cookie")
	for _, v := range kept {
		header.Add("Set-Cookie", v)
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(opts.Name, id, int(opts.TTL.Seconds()), "/", "", opts.Secure, true)

	c.Set(sessionIDKey, id)
	c.Request = c.Request.WithContext(session.WithID(c.Request.Context(), id))
}

// SessionID returns the ID bound by SessionCookie.
func SessionID(c *gin.Context) string {
	return c.GetString(sessionIDKey)
}

// RequireSession guards the protected area: a session without a usable
// token is redirected to the login page.
func RequireSession(sessions *session.Manager, logger *zap.Logger) gin.HandlerFunc {
	logger = nopIfNil(logger)
	return func(c *gin.Context) {
		token, err := sessions.Token(c.Request.Context(), SessionID(c))
		if err != nil {
			logger.Error("session lookup failed", zap.Error(err))
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		if token == "" {
			c.Redirect(http.StatusSeeOther, LoginPath)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RedirectAuthenticated guards the auth area: a session holding a token
// is sent to the dashboard.
func RedirectAuthenticated(sessions *session.Manager, logger *zap.Logger) gin.HandlerFunc {
	logger = nopIfNil(logger)
	return func(c *gin.Context) {
		token, err := sessions.Token(c.Request.Context(), SessionID(c))
		if err != nil {
			logger.Error("session lookup failed", zap.Error(err))
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		if token != "" {
			c.Redirect(http.StatusSeeOther, HomePath)
			c.Abort()
			return
		}
		c.Next()
	}
}

// Reauthenticate turns an unauthorized API response reported through
// c.Error into a cleared session, an error notification and a redirect to
// the login page. Handlers that report it must not write a response.
func Reauthenticate(sessions *session.Manager, logger *zap.Logger) gin.HandlerFunc {
	logger = nopIfNil(logger)
	return func(c *gin.Context) {
		c.Next()

		if !hasUnauthorized(c.Errors) {
			return
		}
		ctx := c.Request.Context()
		id := SessionID(c)
		logger.Info("api rejected session token", zap.String("session_id", id), zap.String("path", c.Request.URL.Path))

		if err := sessions.Clear(ctx, id, "unauthorized"); err != nil {
			logger.Error("failed to clear session", zap.Error(err))
		}
		flash := session.Flash{Kind: session.FlashError, Title: "Session expirée", Message: "Veuillez vous reconnecter."}
		if err := sessions.AddFlash(ctx, id, flash); err != nil {
			logger.Error("failed to queue flash", zap.Error(err))
		}
		if !c.Writer.Written() {
			c.Redirect(http.StatusSeeOther, LoginPath)
		}
	}
}

func hasUnauthorized(errs []*gin.Error) bool {
	for _, e := range errs {
		if errors.Is(e.Err, inventory.ErrUnauthorized) {
			return true
		}
	}
	return false
}

func nopIfNil(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
