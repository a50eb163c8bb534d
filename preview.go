package spacetraveling

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"

	"github.com/eringen/spacetraveling/internal/logctx"
	"github.com/eringen/spacetraveling/views"
)

// previewRef returns the preview ref stored in the session, if any.
func (a *App) previewRef(c echo.Context) (string, bool) {
	if !a.Config.PreviewEnabled {
		return "", false
	}
	sess, err := session.Get(sessionName, c)
	if err != nil {
		return "", false
	}
	ref, ok := sess.Values[previewRefKey].(string)
	return ref, ok && ref != ""
}

// handlePreview starts a preview: the ref in token is stored in the session
// and the reader is sent to the previewed document.
func (a *App) handlePreview(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing token")
	}
	ctx := c.Request().Context()

	target := "/"
	if id := c.QueryParam("documentId"); id != "" {
		uid, err := a.Source.UIDByID(ctx, id, token)
		switch {
		case err == nil:
			target = views.PostPath(uid)
		case errors.Is(err, ErrNotFound):
			logctx.From(ctx).Info("preview_document_not_found", slog.String("document_id", id))
		default:
			return err
		}
	}

	sess, err := session.Get(sessionName, c)
	if err != nil {
		return err
	}
	sess.Values[previewRefKey] = token
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		return err
	}
	logctx.From(ctx).Info("preview_started", slog.String("target", target))
	return c.Redirect(http.StatusTemporaryRedirect, target)
}

func (a *App) handleExitPreview(c echo.Context) error {
	sess, err := session.Get(sessionName, c)
	if err != nil {
		return err
	}
	delete(sess.Values, previewRefKey)
	sess.Options.MaxAge = -1
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		return err
	}
	return c.Redirect(http.StatusTemporaryRedirect, "/")
}
