package spacetraveling

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/eringen/spacetraveling/internal/logctx"
)

// webhookPayload is the part of a content API webhook body we read.
type webhookPayload struct {
	Type   string `json:"type"`
	Secret string `json:"secret"`
	Domain string `json:"domain"`
}

// handleRevalidate expires the snapshot when the content API reports a
// publish. The webhook is disabled while no secret is configured.
func (a *App) handleRevalidate(c echo.Context) error {
	if a.Config.RevalidateSecret == "" {
		return echo.NewHTTPError(http.StatusNotFound)
	}
	if !a.webhookLimiter.Allow(c.RealIP()) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "too many requests")
	}

	var p webhookPayload
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if subtle.ConstantTimeCompare([]byte(p.Secret), []byte(a.Config.RevalidateSecret)) != 1 {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid secret")
	}

	ctx := c.Request().Context()
	if p.Type == "test-trigger" {
		return c.JSON(http.StatusOK, map[string]any{"revalidated": false, "type": p.Type})
	}

	if err := a.Store.ExpireAll(ctx); err != nil {
		return err
	}
	a.Cache.Invalidate()
	logctx.From(ctx).Info("snapshot_expired", slog.String("type", p.Type), slog.String("domain", p.Domain))
	return c.JSON(http.StatusOK, map[string]any{"revalidated": true, "type": p.Type})
}
