// Package idp contains the HTTP controllers for the IDP callback surface.
package idp

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/idpgate/internal/audit"
	httperrors "github.com/dropDatabas3/idpgate/internal/http/errors"
	"github.com/dropDatabas3/idpgate/internal/http/middlewares"
	svc "github.com/dropDatabas3/idpgate/internal/http/services/idp"
	"github.com/dropDatabas3/idpgate/internal/observability/logger"
	"github.com/dropDatabas3/idpgate/internal/session"
)

// DecisionRecorder registra la decisión tomada (métricas).
type DecisionRecorder func(provider, outcome string)

// CallbackController handles the provider callback endpoint.
type CallbackController struct {
	service           svc.CallbackService
	signer            *session.TokenSigner // optional: accepts signed link tokens
	auditor           *audit.Recorder
	recordDecision    DecisionRecorder
	fingerprintCookie string
}

// CallbackControllerDeps wires the controller.
type CallbackControllerDeps struct {
	Service           svc.CallbackService
	Signer            *session.TokenSigner
	Auditor           *audit.Recorder
	RecordDecision    DecisionRecorder
	FingerprintCookie string
}

// NewCallbackController creates a CallbackController.
func NewCallbackController(d CallbackControllerDeps) *CallbackController {
	cookie := d.FingerprintCookie
	if cookie == "" {
		cookie = "fingerprintId"
	}
	return &CallbackController{
		service:           d.Service,
		signer:            d.Signer,
		auditor:           d.Auditor,
		recordDecision:    d.RecordDecision,
		fingerprintCookie: cookie,
	}
}

// Callback handles GET /idp/{provider}/callback.
func (c *CallbackController) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("CallbackController.Callback"))

	provider := chi.URLParam(r, "provider")
	if provider == "" {
		log.Warn("missing provider in path")
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("missing provider"))
		return
	}

	q := r.URL.Query()
	params := svc.CallbackParams{
		Provider:             provider,
		ID:                   strings.TrimSpace(q.Get("id")),
		Token:                strings.TrimSpace(q.Get("token")),
		RequestID:            strings.TrimSpace(q.Get("requestId")),
		Organization:         strings.TrimSpace(q.Get("organization")),
		PostErrorRedirectURL: strings.TrimSpace(q.Get("postErrorRedirectUrl")),
		LinkSessionID:        strings.TrimSpace(q.Get("linkToSessionId")),
		LinkFingerprint:      strings.TrimSpace(q.Get("linkFingerprint")),
	}

	// A signed link token is an alternative carrier for the linking context:
	// it survives the provider roundtrip as one opaque parameter.
	if lt := strings.TrimSpace(q.Get("linkToken")); lt != "" && c.signer != nil {
		claims, err := c.signer.Parse(lt)
		if err != nil {
			log.Warn("invalid link token", logger.Err(err))
		} else {
			params.LinkSessionID = claims.SessionID
			params.LinkFingerprint = claims.Fingerprint
		}
	}

	if ck, err := r.Cookie(c.fingerprintCookie); err == nil {
		params.FingerprintCookie = ck.Value
	}

	decision := c.service.ProcessCallback(ctx, params)

	if c.recordDecision != nil {
		c.recordDecision(provider, decision.Outcome)
	}
	c.auditor.Record(ctx, audit.Event{
		Kind:      audit.KindCallbackDecision,
		Provider:  provider,
		IntentID:  params.ID,
		Outcome:   decision.Outcome,
		RequestID: middlewares.GetRequestID(ctx),
	})

	if decision.Redirect != "" {
		http.Redirect(w, r, decision.Redirect, http.StatusFound)
		return
	}

	msg := decision.Error
	if msg == "" {
		msg = "unknown error"
	}
	log.Warn("callback resolved to error", logger.Provider(provider), logger.String("reason", msg))
	httperrors.WriteError(w, httperrors.ErrUnprocessable.WithDetail(msg))
}
