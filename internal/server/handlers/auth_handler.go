package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockapp/internal/domain/models"
	"github.com/mamadbah2/stockapp/internal/forms"
	"github.com/mamadbah2/stockapp/internal/server/middleware"
	"github.com/mamadbah2/stockapp/internal/session"
	"github.com/mamadbah2/stockapp/internal/web"
	"github.com/mamadbah2/stockapp/pkg/clients/inventory"
)

// Authenticator is the part of the inventory client used by the auth pages.
type Authenticator interface {
	Login(ctx context.Context, creds models.Credentials) (*models.AuthResponse, error)
	Register(ctx context.Context, reg models.Registration) (*models.AuthResponse, error)
}

// AuthHandler serves the login, register and logout flows.
type AuthHandler struct {
	base
	auth Authenticator
}

// NewAuthHandler constructs the auth pages handler.
func NewAuthHandler(auth Authenticator, sessions *session.Manager, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{base: newBase(sessions, logger), auth: auth}
}

// Root sends the visitor to the dashboard or to the login page.
func (h *AuthHandler) Root(c *gin.Context) {
	token, err := h.sessions.Token(c.Request.Context(), middleware.SessionID(c))
	if err != nil {
		h.logger.Error("session lookup failed", zap.Error(err))
	}
	if token == "" {
		c.Redirect(http.StatusFound, middleware.LoginPath)
		return
	}
	c.Redirect(http.StatusFound, middleware.HomePath)
}

// ShowLogin renders the login page.
func (h *AuthHandler) ShowLogin(c *gin.Context) {
	h.render(c, http.StatusOK, web.PageLogin, "Connexion", web.AuthView{Form: forms.LoginForm{}})
}

// Login exchanges credentials for a token and opens the dashboard.
func (h *AuthHandler) Login(c *gin.Context) {
	var form forms.LoginForm
	if err := forms.Bind(c, &form); err != nil {
		h.render(c, http.StatusUnprocessableEntity, web.PageLogin, "Connexion", web.AuthView{Form: form, Errors: h.bindFailure(err)})
		return
	}

	resp, err := h.auth.Login(c.Request.Context(), form.Credentials())
	if err != nil {
		h.logger.Info("login rejected", zap.Error(err))
		form.Password = ""
		status, fe := authFailure(err, "Email ou mot de passe incorrect")
		h.render(c, status, web.PageLogin, "Connexion", web.AuthView{Form: form, Errors: fe})
		return
	}
	h.open(c, resp)
}

// ShowRegister renders the registration page.
func (h *AuthHandler) ShowRegister(c *gin.Context) {
	h.render(c, http.StatusOK, web.PageRegister, "Inscription", web.AuthView{Form: forms.RegisterForm{}})
}

// Register creates an account and opens the dashboard.
func (h *AuthHandler) Register(c *gin.Context) {
	var form forms.RegisterForm
	if err := forms.Bind(c, &form); err != nil {
		form.Password, form.PasswordConfirmation = "", ""
		h.render(c, http.StatusUnprocessableEntity, web.PageRegister, "Inscription", web.AuthView{Form: form, Errors: h.bindFailure(err)})
		return
	}

	resp, err := h.auth.Register(c.Request.Context(), form.Registration())
	if err != nil {
		h.logger.Info("registration rejected", zap.Error(err))
		form.Password, form.PasswordConfirmation = "", ""
		status, fe := authFailure(err, msgGenericFail)
		h.render(c, status, web.PageRegister, "Inscription", web.AuthView{Form: form, Errors: fe})
		return
	}
	h.open(c, resp)
}

// Logout forgets the token locally. The API is not called.
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.sessions.Clear(c.Request.Context(), middleware.SessionID(c), "logout"); err != nil {
		h.logger.Error("failed to clear session", zap.Error(err))
	}
	h.redirect(c, middleware.LoginPath)
}

// open signs the session in under a fresh session ID.
func (h *AuthHandler) open(c *gin.Context, resp *models.AuthResponse) {
	if err := middleware.RenewSession(c, h.sessions); err != nil {
		h.logger.Error("failed to renew session", zap.Error(err))
		h.failure(c, msgGenericFail)
		h.redirect(c, middleware.LoginPath)
		return
	}
	if err := h.sessions.SetToken(c.Request.Context(), middleware.SessionID(c), resp.Token); err != nil {
		h.logger.Error("failed to store token", zap.Error(err))
		h.failure(c, msgGenericFail)
		h.redirect(c, middleware.LoginPath)
		return
	}
	if resp.User != nil && resp.User.Name != "" {
		h.success(c, "Bienvenue "+resp.User.Name)
	}
	h.redirect(c, middleware.HomePath)
}

// authFailure maps an auth API error to a status and the messages shown on
// the form. Server-side field errors are kept; rejected credentials get
// rejectedMsg.
func authFailure(err error, rejectedMsg string) (int, forms.FieldErrors) {
	if fe := apiFieldErrors(err); fe != nil {
		return http.StatusUnprocessableEntity, fe
	}
	var apiErr *inventory.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
		return http.StatusUnprocessableEntity, forms.FieldErrors{forms.FormKey: rejectedMsg}
	}
	return http.StatusBadGateway, forms.FieldErrors{forms.FormKey: msgGenericFail}
}
