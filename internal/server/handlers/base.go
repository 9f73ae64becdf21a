package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockapp/internal/forms"
	"github.com/mamadbah2/stockapp/internal/server/middleware"
	"github.com/mamadbah2/stockapp/internal/session"
	"github.com/mamadbah2/stockapp/internal/web"
	"github.com/mamadbah2/stockapp/pkg/clients/inventory"
)

// Notification texts shared by the pages.
const (
	titleSuccess   = "Succès"
	titleError     = "Erreur"
	msgGenericFail = "Une erreur est survenue"
)

var pageRoutes = map[string]string{
	web.PageDashboard: "/dashboard",
	web.PageProducts:  "/products",
	web.PageSupplies:  "/supplies",
	web.PageOutputs:   "/outputs",
}

// base carries what every page handler needs to render and notify.
type base struct {
	sessions *session.Manager
	logger   *zap.Logger
}

func newBase(sessions *session.Manager, logger *zap.Logger) base {
	if logger == nil {
		logger = zap.NewNop()
	}
	return base{sessions: sessions, logger: logger}
}

// render pops pending notifications and renders page inside its layout.
func (b base) render(c *gin.Context, status int, page, title string, content any) {
	flashes, err := b.sessions.PopFlashes(c.Request.Context(), middleware.SessionID(c))
	if err != nil {
		b.logger.Warn("failed to pop flashes", zap.Error(err))
	}
	c.HTML(status, page, web.Page{
		Title:   title,
		Active:  pageRoutes[page],
		CSRF:    middleware.CSRFToken(c),
		Flashes: flashes,
		Nav:     web.Navigation,
		Content: content,
	})
}

func (b base) flash(c *gin.Context, kind, title, message string) {
	err := b.sessions.AddFlash(c.Request.Context(), middleware.SessionID(c), session.Flash{Kind: kind, Title: title, Message: message})
	if err != nil {
		b.logger.Warn("failed to queue flash", zap.Error(err))
	}
}

func (b base) success(c *gin.Context, message string) {
	b.flash(c, session.FlashSuccess, titleSuccess, message)
}

func (b base) failure(c *gin.Context, message string) {
	b.flash(c, session.FlashError, titleError, message)
}

// redirect ends a successful mutation (post/redirect/get).
func (b base) redirect(c *gin.Context, location string) {
	c.Redirect(http.StatusSeeOther, location)
}

// unauthorized hands a rejected token to the Reauthenticate middleware. The
// caller must return without writing a response when it reports true.
func (b base) unauthorized(c *gin.Context, err error) bool {
	if errors.Is(err, inventory.ErrUnauthorized) {
		_ = c.Error(err)
		return true
	}
	return false
}

// bindFailure splits a Bind error into field errors, or logs and returns a
// form-level message for anything else.
func (b base) bindFailure(err error) forms.FieldErrors {
	var fe forms.FieldErrors
	if errors.As(err, &fe) {
		return fe
	}
	b.logger.Warn("form binding failed", zap.Error(err))
	return forms.FieldErrors{forms.FormKey: "Formulaire invalide"}
}

// apiFieldErrors keeps the first server-side message per field of a 422.
func apiFieldErrors(err error) forms.FieldErrors {
	var apiErr *inventory.APIError
	if !errors.As(err, &apiErr) || len(apiErr.Fields) == 0 {
		return nil
	}
	fe := forms.FieldErrors{}
	for field, messages := range apiErr.Fields {
		if len(messages) > 0 {
			fe[field] = messages[0]
		}
	}
	return fe
}
