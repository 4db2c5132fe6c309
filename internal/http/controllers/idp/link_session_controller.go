package idp

import (
	"encoding/json"
	"io"
	"net/http"

	httperrors "github.com/dropDatabas3/idpgate/internal/http/errors"
	"github.com/dropDatabas3/idpgate/internal/observability/logger"
	"github.com/dropDatabas3/idpgate/internal/session"
)

// LinkSessionController crea sesiones de linking: el frontend las registra
// antes de mandar al usuario al provider, y el callback las resuelve para
// saber a qué cuenta vincular la identidad externa.
type LinkSessionController struct {
	store             *session.Store
	signer            *session.TokenSigner
	fingerprintCookie string
}

// NewLinkSessionController creates a LinkSessionController.
func NewLinkSessionController(store *session.Store, signer *session.TokenSigner, fingerprintCookie string) *LinkSessionController {
	if fingerprintCookie == "" {
		fingerprintCookie = "fingerprintId"
	}
	return &LinkSessionController{store: store, signer: signer, fingerprintCookie: fingerprintCookie}
}

type createLinkSessionRequest struct {
	SessionToken string `json:"sessionToken"`
}

type createLinkSessionResponse struct {
	LinkToSessionID string `json:"linkToSessionId"`
	LinkFingerprint string `json:"linkFingerprint"`
	LinkToken       string `json:"linkToken,omitempty"`
}

// Create handles POST /idp/link-sessions.
func (c *LinkSessionController) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("LinkSessionController.Create"))

	ck, err := r.Cookie(c.fingerprintCookie)
	if err != nil || ck.Value == "" {
		log.Warn("missing fingerprint cookie")
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("missing fingerprint cookie"))
		return
	}

	var req createLinkSessionRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("invalid json"))
		return
	}
	if req.SessionToken == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("sessionToken required"))
		return
	}

	ls, err := c.store.Create(ctx, req.SessionToken, ck.Value)
	if err != nil {
		log.Error("link session creation failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternalServerError.WithCause(err))
		return
	}

	fp := session.Fingerprint(ls.ID, ck.Value)
	resp := createLinkSessionResponse{
		LinkToSessionID: ls.ID,
		LinkFingerprint: fp,
	}
	if c.signer != nil {
		token, err := c.signer.Sign(ls.ID, fp)
		if err != nil {
			log.Warn("link token signing failed", logger.Err(err))
		} else {
			resp.LinkToken = token
		}
	}

	log.Info("link session created", logger.SessionID(ls.ID))
	httperrors.WriteJSON(w, http.StatusCreated, resp)
}
