package idp

import (
	"context"
	"net/http"
	"time"

	httperrors "github.com/dropDatabas3/idpgate/internal/http/errors"
	"github.com/dropDatabas3/idpgate/internal/observability/logger"
)

// Pinger es lo mínimo que readyz necesita verificar (el cache backend).
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthController expone healthz y readyz.
type HealthController struct {
	cache Pinger
}

// NewHealthController creates a HealthController.
func NewHealthController(cache Pinger) *HealthController {
	return &HealthController{cache: cache}
}

// Healthz handles GET /healthz: proceso vivo.
func (c *HealthController) Healthz(w http.ResponseWriter, r *http.Request) {
	httperrors.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz handles GET /readyz: dependencias listas.
func (c *HealthController) Readyz(w http.ResponseWriter, r *http.Request) {
	if c.cache != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := c.cache.Ping(ctx); err != nil {
			logger.From(r.Context()).Warn("readiness check failed", logger.Component("cache"), logger.Err(err))
			httperrors.WriteError(w, httperrors.ErrServiceUnavailable.WithDetail("cache unavailable"))
			return
		}
	}
	httperrors.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
