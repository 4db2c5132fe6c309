// Package router ensambla las rutas HTTP del servicio.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	ctrl "github.com/dropDatabas3/idpgate/internal/http/controllers/idp"
	mw "github.com/dropDatabas3/idpgate/internal/http/middlewares"
)

// Deps contiene las dependencias del router.
type Deps struct {
	Callback    *ctrl.CallbackController
	LinkSession *ctrl.LinkSessionController
	Health      *ctrl.HealthController

	Metrics     http.Handler   // handler de /metrics, opcional
	Instrument  mw.Middleware  // instrumentación de requests, opcional
	RateLimiter mw.RateLimiter // rate limit por IP, opcional
}

// New construye el router del servicio.
func New(deps Deps) http.Handler {
	r := chi.NewRouter()

	// Operativos: sin rate limit ni headers de API.
	r.Get("/healthz", deps.Health.Healthz)
	r.Get("/readyz", deps.Health.Readyz)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/idp", func(r chi.Router) {
		r.Method(http.MethodGet, "/{provider}/callback",
			idpHandler(deps, http.HandlerFunc(deps.Callback.Callback)))
		r.Method(http.MethodPost, "/link-sessions",
			idpHandler(deps, http.HandlerFunc(deps.LinkSession.Create)))
	})

	return r
}

// idpHandler arma el middleware chain de los endpoints del flujo IDP.
func idpHandler(deps Deps, handler http.Handler) http.Handler {
	chain := []mw.Middleware{
		mw.WithRecover(),
		mw.WithRequestID(),
		mw.WithSecurityHeaders(),
		mw.WithNoStore(),
	}

	if deps.RateLimiter != nil {
		chain = append(chain, mw.WithRateLimit(mw.RateLimitConfig{
			Limiter: deps.RateLimiter,
			KeyFunc: mw.IPOnlyRateKey,
		}))
	}

	if deps.Instrument != nil {
		chain = append(chain, deps.Instrument)
	}

	// Logging al final: ve el request ya con request id en contexto.
	chain = append(chain, mw.WithLogging())

	return mw.Chain(handler, chain...)
}
