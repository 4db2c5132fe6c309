package idp

import (
	"context"
	"errors"

	"github.com/dropDatabas3/idpgate/internal/directory"
	"github.com/dropDatabas3/idpgate/internal/observability/logger"
	"github.com/dropDatabas3/idpgate/internal/session"
)

// CallbackDeps contains dependencies for the callback service.
type CallbackDeps struct {
	Directory directory.Client
	Links     *session.Store // optional; nil disables link-session resolution
}

type callbackService struct {
	dir   directory.Client
	links *session.Store
}

// NewCallbackService creates a CallbackService.
func NewCallbackService(d CallbackDeps) CallbackService {
	return &callbackService{dir: d.Directory, links: d.Links}
}

// callbackState threads the redeemed intent and IDP config through the
// decision chain. The intent is redeemed once and never re-fetched: the
// token is single-use and a second redemption would invalidate it upstream.
type callbackState struct {
	params CallbackParams
	intent *directory.IdpIntent
	idp    *directory.IdpConfig
	rb     *redirectBuilder
}

// handlerFunc is one decision case. A nil Decision falls through to the next
// case; a non-nil error escapes to the outer failure handler.
type handlerFunc func(ctx context.Context, st *callbackState) (*Decision, error)

func (s *callbackService) ProcessCallback(ctx context.Context, p CallbackParams) Decision {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("idp.callback"))

	// Parameter validation happens before any remote call.
	if p.Provider == "" || p.ID == "" || p.Token == "" {
		log.Error("missing required callback parameters",
			logger.Provider(p.Provider),
			logger.IntentID(p.ID),
			logger.Bool("has_token", p.Token != ""),
		)
		return Decision{
			Outcome:  OutcomeFailure,
			Redirect: "/idp/" + p.Provider + "/failure?" + contextQuery(p).Encode(),
		}
	}

	// Consume the single-use token ONCE.
	intent, err := s.dir.RetrieveIntent(ctx, p.ID, p.Token)
	if err != nil {
		log.Error("intent redemption failed", logger.IntentID(p.ID), logger.Err(err))
		return s.failure(p, err)
	}

	if intent.IdpInformation == nil {
		log.Error("redeemed intent missing idp information", logger.IntentID(p.ID))
		q := contextQuery(p)
		q.Set("error", "missing_idp_info")
		return Decision{
			Outcome:  OutcomeFailure,
			Redirect: "/idp/" + p.Provider + "/failure?" + q.Encode(),
		}
	}

	idp, err := s.dir.GetIDPByID(ctx, intent.IdpInformation.IdpID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			// No provider context to redirect to; surface a structured error.
			return Decision{Outcome: OutcomeError, Error: msgIDPNotFound}
		}
		log.Error("idp config fetch failed", logger.IdpID(intent.IdpInformation.IdpID), logger.Err(err))
		return s.failure(p, err)
	}

	log.Info("intent redeemed",
		logger.Provider(p.Provider),
		logger.IntentID(p.ID),
		logger.IdpID(idp.ID),
		logger.Bool("linked_user", intent.UserID != ""),
	)

	st := &callbackState{params: p, intent: intent, idp: idp, rb: newRedirectBuilder(p)}

	// Strict priority order; first case to return a Decision wins.
	handlers := []handlerFunc{
		s.handleSignIn,
		s.handleExplicitLinking,
		s.handleAutoLinking,
		s.handleAutoCreation,
		s.handleManualCreation,
		s.handleNoMatch,
	}
	for _, h := range handlers {
		d, err := h(ctx, st)
		if err != nil {
			log.Error("callback case failed", logger.Err(err))
			return s.failure(p, err)
		}
		if d != nil {
			return *d
		}
	}

	// handleNoMatch always decides; this is unreachable.
	return Decision{Outcome: OutcomeError, Error: msgUnknownError}
}

// failure converts a propagated error into the generic failure redirect,
// preserving the resume-context parameters.
func (s *callbackService) failure(p CallbackParams, err error) Decision {
	msg := msgUnknownError
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	q := contextQuery(p)
	q.Set("error", msg)
	return Decision{
		Outcome:  OutcomeFailure,
		Redirect: "/idp/" + p.Provider + "/failure?" + q.Encode(),
	}
}

// handleSignIn: the external identity is already linked to a local user and
// no explicit linking was requested.
func (s *callbackService) handleSignIn(ctx context.Context, st *callbackState) (*Decision, error) {
	if st.intent.UserID == "" || st.params.LinkSessionID != "" {
		return nil, nil
	}
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("idp.callback"))

	// Best-effort profile refresh; a failure never blocks sign-in.
	if st.idp.Options.IsAutoUpdate && st.intent.UpdateHumanUser != nil {
		if err := s.dir.UpdateHuman(ctx, st.intent.UserID, st.intent.UpdateHumanUser); err != nil {
			log.Warn("auto-update failed, continuing sign-in",
				logger.UserID(st.intent.UserID),
				logger.Err(err),
			)
		}
	}

	log.Info("signing in existing user", logger.UserID(st.intent.UserID))
	return s.startSession(ctx, st, st.intent.UserID, OutcomeSignIn)
}

// handleExplicitLinking: a linking session requested attaching this external
// identity to a specific local account.
func (s *callbackService) handleExplicitLinking(ctx context.Context, st *callbackState) (*Decision, error) {
	if st.params.LinkSessionID == "" {
		return nil, nil
	}
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("idp.callback"))

	targetUserID := st.intent.UserID
	if targetUserID == "" {
		d, resolved := s.resolveLinkTarget(ctx, st)
		if d != nil {
			return d, nil
		}
		targetUserID = resolved
	}

	if !st.idp.Options.IsLinkingAllowed {
		log.Warn("linking not allowed by idp configuration", logger.IdpID(st.idp.ID))
		return &Decision{
			Outcome:  OutcomeLink,
			Redirect: "/idp/" + st.params.Provider + "/linking-failed?" + st.rb.build(map[string]string{"error": "linking_not_allowed"}, false),
		}, nil
	}

	// Everything past the policy gate is recovered into a linking-failed
	// redirect instead of escaping to the outer handler.
	d, err := s.linkAndStartSession(ctx, st, targetUserID, OutcomeLink)
	if err != nil {
		log.Error("explicit linking failed", logger.UserID(targetUserID), logger.Err(err))
		return s.linkingFailed(st, err, OutcomeLink), nil
	}
	return d, nil
}

// resolveLinkTarget resolves the link target user from the linking session,
// verifying the browser fingerprint first. Returns either a terminal
// Decision or the resolved user id.
func (s *callbackService) resolveLinkTarget(ctx context.Context, st *callbackState) (*Decision, string) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("idp.callback"))
	p := st.params

	fail := func(code string) *Decision {
		return &Decision{
			Outcome:  OutcomeLink,
			Redirect: "/idp/" + p.Provider + "/linking-failed?error=" + code,
		}
	}

	if p.LinkFingerprint == "" || p.FingerprintCookie == "" {
		log.Warn("missing fingerprint material for linking verification", logger.SessionID(p.LinkSessionID))
		return fail("session_mismatch"), ""
	}
	if !session.FingerprintMatches(p.LinkFingerprint, p.LinkSessionID, p.FingerprintCookie) {
		log.Warn("linking fingerprint mismatch", logger.SessionID(p.LinkSessionID))
		return fail("session_mismatch"), ""
	}

	if s.links == nil {
		log.Warn("link-session store not configured")
		return fail("session_invalid"), ""
	}
	ls, err := s.links.Get(ctx, p.LinkSessionID)
	if err != nil {
		log.Warn("linking session not found or invalid", logger.SessionID(p.LinkSessionID), logger.Err(err))
		return fail("session_invalid"), ""
	}

	sess, err := s.dir.GetSession(ctx, ls.ID, ls.SessionToken)
	if err != nil || sess.UserID == "" {
		log.Warn("session lookup for linking failed", logger.SessionID(ls.ID), logger.Err(err))
		return fail("session_invalid"), ""
	}

	log.Info("link target resolved from session", logger.SessionID(ls.ID), logger.UserID(sess.UserID))
	return nil, sess.UserID
}

// handleAutoLinking: no local user is linked yet; try to match one by email
// or username per the IDP's auto-linking option. A no-match falls through.
func (s *callbackService) handleAutoLinking(ctx context.Context, st *callbackState) (*Decision, error) {
	if st.intent.UserID != "" {
		return nil, nil
	}
	opt := st.idp.Options.AutoLinking
	if opt == directory.AutoLinkingNone {
		return nil, nil
	}
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("idp.callback"))

	var email string
	if st.intent.AddHumanUser != nil && st.intent.AddHumanUser.Email != nil {
		email = st.intent.AddHumanUser.Email.Address
	}

	q := directory.ListUsersQuery{OrganizationID: st.params.Organization}
	switch {
	case opt == directory.AutoLinkingEmail && email != "":
		q.Email = email
	case opt == directory.AutoLinkingUsername:
		q.Username = st.intent.IdpInformation.UserName
	default:
		// Unspecified (or email-mode without an email): match on either.
		q.Username = st.intent.IdpInformation.UserName
		q.Email = email
	}

	users, err := s.dir.ListUsers(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		// Not an error: creation cases get their chance next.
		return nil, nil
	}
	found := users[0]

	if found.OrganizationID == "" {
		log.Error("auto-link candidate missing organization", logger.UserID(found.UserID))
		return &Decision{
			Outcome:  OutcomeAutoLink,
			Redirect: "/idp/" + st.params.Provider + "/linking-failed?" + st.rb.build(map[string]string{"error": "missing_organization"}, false),
		}, nil
	}

	d, err := s.autoLinkUser(ctx, st, found)
	if err != nil {
		log.Error("auto-linking failed", logger.UserID(found.UserID), logger.Err(err))
		return s.linkingFailed(st, err, OutcomeAutoLink), nil
	}
	return d, nil
}

func (s *callbackService) autoLinkUser(ctx context.Context, st *callbackState, found directory.User) (*Decision, error) {
	allowed, err := s.validateLinkingPermissions(ctx, found.OrganizationID, st.intent.IdpInformation.IdpID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return &Decision{
			Outcome:  OutcomeAutoLink,
			Redirect: "/idp/" + st.params.Provider + "/linking-failed?" + st.rb.build(map[string]string{"error": "validation_failed"}, false),
		}, nil
	}

	info := st.intent.IdpInformation
	if err := s.dir.AddIDPLink(ctx, info.IdpID, info.UserID, info.UserName, found.UserID); err != nil {
		return nil, err
	}
	logger.From(ctx).Info("user auto-linked",
		logger.Layer("service"), logger.Component("idp.callback"),
		logger.UserID(found.UserID), logger.IdpID(info.IdpID),
	)
	return s.startSession(ctx, st, found.UserID, OutcomeAutoLink)
}

// linkAndStartSession performs the explicit-linking sequence for the target
// user: organization lookup, permission validation, link creation, session.
func (s *callbackService) linkAndStartSession(ctx context.Context, st *callbackState, targetUserID, outcome string) (*Decision, error) {
	user, err := s.dir.GetUserByID(ctx, targetUserID)
	if err != nil && !errors.Is(err, directory.ErrNotFound) {
		return nil, err
	}
	if err != nil || user.OrganizationID == "" {
		return &Decision{
			Outcome:  outcome,
			Redirect: "/idp/" + st.params.Provider + "/linking-failed?" + st.rb.build(map[string]string{"error": "user_not_found"}, false),
		}, nil
	}

	allowed, err := s.validateLinkingPermissions(ctx, user.OrganizationID, st.intent.IdpInformation.IdpID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return &Decision{
			Outcome:  outcome,
			Redirect: "/idp/" + st.params.Provider + "/linking-failed?" + st.rb.build(map[string]string{"error": "validation_failed"}, false),
		}, nil
	}

	info := st.intent.IdpInformation
	if err := s.dir.AddIDPLink(ctx, info.IdpID, info.UserID, info.UserName, targetUserID); err != nil {
		return nil, err
	}
	logger.From(ctx).Info("idp linked",
		logger.Layer("service"), logger.Component("idp.callback"),
		logger.UserID(targetUserID), logger.IdpID(info.IdpID),
	)
	return s.startSession(ctx, st, targetUserID, outcome)
}

// linkingFailed recovers a linking error into a linking-failed redirect. A
// duplicate link maps to the stable external_idp_taken code; anything else
// carries the error message.
func (s *callbackService) linkingFailed(st *callbackState, err error, outcome string) *Decision {
	code := msgUnknownError
	if err != nil && err.Error() != "" {
		code = err.Error()
	}
	if errors.Is(err, directory.ErrAlreadyExists) {
		code = "external_idp_taken"
	}
	return &Decision{
		Outcome:  outcome,
		Redirect: "/idp/" + st.params.Provider + "/linking-failed?" + st.rb.build(map[string]string{"error": code}, false),
	}
}

// handleAutoCreation: the IDP allows creating the user automatically from
// the external profile.
func (s *callbackService) handleAutoCreation(ctx context.Context, st *callbackState) (*Decision, error) {
	if !st.idp.Options.IsAutoCreation || st.intent.AddHumanUser == nil {
		return nil, nil
	}
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("idp.callback"))

	org, err := s.resolveOrganizationForUser(ctx, st.params.Organization, st.intent.AddHumanUser.Username)
	if err != nil {
		return nil, err
	}
	if org == "" {
		log.Error("no organization resolvable for auto-creation")
		return &Decision{
			Outcome:  OutcomeAutoCreate,
			Redirect: "/idp/" + st.params.Provider + "/failure?" + st.rb.build(map[string]string{"error": "no_organization_context"}, false),
		}, nil
	}

	creationFailed := func(err error) *Decision {
		log.Error("user auto-creation failed", logger.OrgID(org), logger.Err(err))
		return &Decision{
			Outcome:  OutcomeAutoCreate,
			Redirect: "/idp/" + st.params.Provider + "/failure?" + st.rb.build(map[string]string{"error": "user_creation_failed"}, false),
		}
	}

	userID, err := s.dir.AddHuman(ctx, org, st.intent.AddHumanUser)
	if err != nil {
		return creationFailed(err), nil
	}
	log.Info("user auto-created", logger.UserID(userID), logger.OrgID(org))

	d, err := s.startSession(ctx, st, userID, OutcomeAutoCreate)
	if err != nil {
		return creationFailed(err), nil
	}
	return d, nil
}

// handleManualCreation: creation is allowed but not automatic; hand the user
// off to the registration form with everything pre-filled. The intent token
// is re-exposed here because no session exists yet and registration will
// need it to create one.
func (s *callbackService) handleManualCreation(ctx context.Context, st *callbackState) (*Decision, error) {
	if !st.idp.Options.IsCreationAllowed || st.intent.AddHumanUser == nil {
		return nil, nil
	}
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("idp.callback"))

	org, err := s.resolveOrganizationForUser(ctx, st.params.Organization, st.intent.AddHumanUser.Username)
	if err != nil {
		return nil, err
	}
	if org == "" {
		log.Error("no organization resolvable for registration")
		return &Decision{
			Outcome:  OutcomeRegister,
			Redirect: "/idp/" + st.params.Provider + "/registration-failed?" + st.rb.build(nil, true),
		}, nil
	}

	add := st.intent.AddHumanUser
	info := st.intent.IdpInformation
	extra := map[string]string{
		"organization": org,
		"idpId":        info.IdpID,
		"idpUserId":    info.UserID,
		"idpUserName":  info.UserName,
	}
	if add.Profile != nil {
		extra["givenName"] = add.Profile.GivenName
		extra["familyName"] = add.Profile.FamilyName
	}
	if add.Email != nil {
		extra["email"] = add.Email.Address
	}

	return &Decision{
		Outcome:  OutcomeRegister,
		Redirect: "/idp/" + st.params.Provider + "/complete-registration?" + st.rb.build(extra, true),
	}, nil
}

// handleNoMatch: nothing fired; the account cannot be signed in, linked or
// created. Always decides.
func (s *callbackService) handleNoMatch(ctx context.Context, st *callbackState) (*Decision, error) {
	logger.From(ctx).Info("no matching user and creation not allowed",
		logger.Layer("service"), logger.Component("idp.callback"),
		logger.Provider(st.params.Provider),
	)
	return &Decision{
		Outcome:  OutcomeNotFound,
		Redirect: "/idp/" + st.params.Provider + "/account-not-found?" + st.rb.build(nil, false),
	}, nil
}

// startSession asks the platform for a session bound to userID and
// normalizes the result: error wins, then redirect, then a fixed fallback
// when the subroutine populated neither.
func (s *callbackService) startSession(ctx context.Context, st *callbackState, userID, outcome string) (*Decision, error) {
	res, err := s.dir.CreateSessionFromIntent(ctx, directory.StartSessionRequest{
		UserID:       userID,
		IntentID:     st.params.ID,
		IntentToken:  st.params.Token,
		RequestID:    st.params.RequestID,
		Organization: st.params.Organization,
	})
	if err != nil {
		return nil, err
	}
	if res.Error != "" {
		return &Decision{Outcome: outcome, Error: res.Error}, nil
	}
	if res.Redirect != "" {
		return &Decision{Outcome: outcome, Redirect: res.Redirect}, nil
	}
	return &Decision{Outcome: outcome, Error: msgSessionCreationFailed}, nil
}
