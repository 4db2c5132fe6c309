package idp

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/idpgate/internal/cache/memory"
	"github.com/dropDatabas3/idpgate/internal/directory"
	"github.com/dropDatabas3/idpgate/internal/session"
)

func baseParams() CallbackParams {
	return CallbackParams{
		Provider:             "google",
		ID:                   "intent-1",
		Token:                "tok-1",
		RequestID:            "authreq-1",
		Organization:         "org-1",
		PostErrorRedirectURL: "https://app.example/err",
	}
}

func intentWithInfo() *directory.IdpIntent {
	return &directory.IdpIntent{
		IdpInformation: &directory.IdpInformation{
			IdpID:    "idp-1",
			UserID:   "ext-7",
			UserName: "jdoe",
		},
	}
}

func directoryFor(intent *directory.IdpIntent, opts directory.IdpOptions) *fakeDirectory {
	return &fakeDirectory{
		retrieveIntentFn: func(ctx context.Context, id, token string) (*directory.IdpIntent, error) {
			return intent, nil
		},
		getIDPByIDFn: func(ctx context.Context, idpID string) (*directory.IdpConfig, error) {
			return &directory.IdpConfig{ID: idpID, Name: "Google", Options: opts}, nil
		},
	}
}

func sessionOK(f *fakeDirectory) {
	f.createSessionFn = func(ctx context.Context, req directory.StartSessionRequest) (*directory.SessionResult, error) {
		return &directory.SessionResult{Redirect: "/signedin"}, nil
	}
}

// parseRedirect splits a decision redirect into path and query params.
func parseRedirect(t *testing.T, redirect string) (string, url.Values) {
	t.Helper()
	u, err := url.Parse(redirect)
	require.NoError(t, err)
	return u.Path, u.Query()
}

func TestProcessCallback_MissingParams(t *testing.T) {
	f := &fakeDirectory{}
	svc := NewCallbackService(CallbackDeps{Directory: f})

	p := baseParams()
	p.Token = ""
	d := svc.ProcessCallback(context.Background(), p)

	require.Equal(t, OutcomeFailure, d.Outcome)
	path, q := parseRedirect(t, d.Redirect)
	require.Equal(t, "/idp/google/failure", path)
	require.Equal(t, "authreq-1", q.Get("requestId"))
	require.Equal(t, "org-1", q.Get("organization"))
	require.Equal(t, "https://app.example/err", q.Get("postErrorRedirectUrl"))
	require.Empty(t, q.Get("id"))
	require.Empty(t, q.Get("token"))
	require.Zero(t, f.retrieveIntentCalls, "no remote call before validation passes")
}

func TestProcessCallback_IntentRedemptionFails(t *testing.T) {
	f := &fakeDirectory{
		retrieveIntentFn: func(ctx context.Context, id, token string) (*directory.IdpIntent, error) {
			return nil, errors.New("intent expired")
		},
	}
	svc := NewCallbackService(CallbackDeps{Directory: f})

	d := svc.ProcessCallback(context.Background(), baseParams())

	require.Equal(t, OutcomeFailure, d.Outcome)
	path, q := parseRedirect(t, d.Redirect)
	require.Equal(t, "/idp/google/failure", path)
	require.Equal(t, "intent expired", q.Get("error"))
	require.Empty(t, q.Get("id"))
	require.Equal(t, 1, f.retrieveIntentCalls)
}

func TestProcessCallback_MissingIDPInfo(t *testing.T) {
	f := &fakeDirectory{
		retrieveIntentFn: func(ctx context.Context, id, token string) (*directory.IdpIntent, error) {
			return &directory.IdpIntent{}, nil
		},
	}
	svc := NewCallbackService(CallbackDeps{Directory: f})

	d := svc.ProcessCallback(context.Background(), baseParams())

	require.Equal(t, OutcomeFailure, d.Outcome)
	_, q := parseRedirect(t, d.Redirect)
	require.Equal(t, "missing_idp_info", q.Get("error"))
	require.Equal(t, "authreq-1", q.Get("requestId"))
}

func TestProcessCallback_IDPConfigNotFound(t *testing.T) {
	f := directoryFor(intentWithInfo(), directory.IdpOptions{})
	f.getIDPByIDFn = func(ctx context.Context, idpID string) (*directory.IdpConfig, error) {
		return nil, directory.ErrNotFound
	}
	svc := NewCallbackService(CallbackDeps{Directory: f})

	d := svc.ProcessCallback(context.Background(), baseParams())

	require.Equal(t, OutcomeError, d.Outcome)
	require.Equal(t, "identity provider not found", d.Error)
	require.Empty(t, d.Redirect)
}

func TestProcessCallback_SignInExistingUser(t *testing.T) {
	intent := intentWithInfo()
	intent.UserID = "user-9"
	f := directoryFor(intent, directory.IdpOptions{})
	var gotReq directory.StartSessionRequest
	f.createSessionFn = func(ctx context.Context, req directory.StartSessionRequest) (*directory.SessionResult, error) {
		gotReq = req
		return &directory.SessionResult{Redirect: "/signedin"}, nil
	}
	svc := NewCallbackService(CallbackDeps{Directory: f})

	d := svc.ProcessCallback(context.Background(), baseParams())

	require.Equal(t, OutcomeSignIn, d.Outcome)
	require.Equal(t, "/signedin", d.Redirect)
	require.Equal(t, "user-9", gotReq.UserID)
	require.Equal(t, "intent-1", gotReq.IntentID)
	require.Equal(t, "tok-1", gotReq.IntentToken)
	require.Equal(t, "org-1", gotReq.Organization)
	require.Equal(t, 1, f.retrieveIntentCalls, "token redeemed exactly once")
	require.Zero(t, f.updateHumanCalls)
}

func TestProcessCallback_SignInAutoUpdateBestEffort(t *testing.T) {
	intent := intentWithInfo()
	intent.UserID = "user-9"
	intent.UpdateHumanUser = &directory.UpdateHumanUser{
		Profile: &directory.Profile{GivenName: "Jane"},
	}
	f := directoryFor(intent, directory.IdpOptions{IsAutoUpdate: true})
	f.updateHumanFn = func(ctx context.Context, userID string, upd *directory.UpdateHumanUser) error {
		return errors.New("profile service down")
	}
	sessionOK(f)
	svc := NewCallbackService(CallbackDeps{Directory: f})

	d := svc.ProcessCallback(context.Background(), baseParams())

	require.Equal(t, OutcomeSignIn, d.Outcome)
	require.Equal(t, "/signedin", d.Redirect)
	require.Equal(t, 1, f.updateHumanCalls)
}

func TestProcessCallback_SessionResultNormalization(t *testing.T) {
	cases := []struct {
		name         string
		result       directory.SessionResult
		wantRedirect string
		wantError    string
	}{
		{"error wins", directory.SessionResult{Redirect: "/x", Error: "boom"}, "", "boom"},
		{"redirect only", directory.SessionResult{Redirect: "/x"}, "/x", ""},
		{"neither", directory.SessionResult{}, "", "session creation failed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			intent := intentWithInfo()
			intent.UserID = "user-9"
			f := directoryFor(intent, directory.IdpOptions{})
			f.createSessionFn = func(ctx context.Context, req directory.StartSessionRequest) (*directory.SessionResult, error) {
				r := tc.result
				return &r, nil
			}
			svc := NewCallbackService(CallbackDeps{Directory: f})

			d := svc.ProcessCallback(context.Background(), baseParams())

			require.Equal(t, tc.wantRedirect, d.Redirect)
			require.Equal(t, tc.wantError, d.Error)
		})
	}
}

func TestProcessCallback_ExplicitLinkingSuccess(t *testing.T) {
	intent := intentWithInfo()
	intent.UserID = "user-9" // linking takes priority over sign-in
	f := directoryFor(intent, directory.IdpOptions{IsLinkingAllowed: true})
	f.getUserByIDFn = func(ctx context.Context, userID string) (*directory.User, error) {
		return &directory.User{UserID: userID, OrganizationID: "org-1"}, nil
	}
	f.loginSettingsFn = func(ctx context.Context, orgID string) (*directory.LoginSettings, error) {
		return &directory.LoginSettings{AllowExternalIdp: true}, nil
	}
	f.activeIDPsFn = func(ctx context.Context, orgID string, linkingAllowed bool) ([]directory.IdentityProvider, error) {
		return []directory.IdentityProvider{{ID: "idp-1"}}, nil
	}
	var linkedTo string
	f.addIDPLinkFn = func(ctx context.Context, idpID, extUserID, extUserName, localUserID string) error {
		linkedTo = localUserID
		return nil
	}
	sessionOK(f)
	svc := NewCallbackService(CallbackDeps{Directory: f})

	p := baseParams()
	p.LinkSessionID = "ls-1"
	p.LinkFingerprint = session.Fingerprint("ls-1", "cookie-v")
	p.FingerprintCookie = "cookie-v"
	d := svc.ProcessCallback(context.Background(), p)

	require.Equal(t, OutcomeLink, d.Outcome)
	require.Equal(t, "/signedin", d.Redirect)
	require.Equal(t, "user-9", linkedTo)
	require.Equal(t, 1, f.addIDPLinkCalls)
}

func TestProcessCallback_ExplicitLinkingNotAllowed(t *testing.T) {
	intent := intentWithInfo()
	intent.UserID = "user-9"
	f := directoryFor(intent, directory.IdpOptions{IsLinkingAllowed: false})
	svc := NewCallbackService(CallbackDeps{Directory: f})

	p := baseParams()
	p.LinkSessionID = "ls-1"
	d := svc.ProcessCallback(context.Background(), p)

	require.Equal(t, OutcomeLink, d.Outcome)
	path, q := parseRedirect(t, d.Redirect)
	require.Equal(t, "/idp/google/linking-failed", path)
	require.Equal(t, "linking_not_allowed", q.Get("error"))
	require.Equal(t, "intent-1", q.Get("id"))
	require.Equal(t, "ls-1", q.Get("linkToSessionId"))
	require.Empty(t, q.Get("token"))
	require.Zero(t, f.addIDPLinkCalls)
}

func TestProcessCallback_ExplicitLinkingDuplicateLink(t *testing.T) {
	intent := intentWithInfo()
	intent.UserID = "user-9"
	f := directoryFor(intent, directory.IdpOptions{IsLinkingAllowed: true})
	f.getUserByIDFn = func(ctx context.Context, userID string) (*directory.User, error) {
		return &directory.User{UserID: userID, OrganizationID: "org-1"}, nil
	}
	f.loginSettingsFn = func(ctx context.Context, orgID string) (*directory.LoginSettings, error) {
		return &directory.LoginSettings{AllowExternalIdp: true}, nil
	}
	f.activeIDPsFn = func(ctx context.Context, orgID string, linkingAllowed bool) ([]directory.IdentityProvider, error) {
		return []directory.IdentityProvider{{ID: "idp-1"}}, nil
	}
	f.addIDPLinkFn = func(ctx context.Context, idpID, extUserID, extUserName, localUserID string) error {
		return directory.ErrAlreadyExists
	}
	svc := NewCallbackService(CallbackDeps{Directory: f})

	p := baseParams()
	p.LinkSessionID = "ls-1"
	p.LinkFingerprint = session.Fingerprint("ls-1", "cookie-v")
	p.FingerprintCookie = "cookie-v"
	d := svc.ProcessCallback(context.Background(), p)

	require.Equal(t, OutcomeLink, d.Outcome)
	_, q := parseRedirect(t, d.Redirect)
	require.Equal(t, "external_idp_taken", q.Get("error"))
}

func TestProcessCallback_ExplicitLinkingFingerprintMismatch(t *testing.T) {
	intent := intentWithInfo() // no linked user; target must come from the session
	f := directoryFor(intent, directory.IdpOptions{IsLinkingAllowed: true})
	svc := NewCallbackService(CallbackDeps{Directory: f})

	p := baseParams()
	p.LinkSessionID = "ls-1"
	p.LinkFingerprint = "wrong"
	p.FingerprintCookie = "cookie-v"
	d := svc.ProcessCallback(context.Background(), p)

	require.Equal(t, OutcomeLink, d.Outcome)
	require.Equal(t, "/idp/google/linking-failed?error=session_mismatch", d.Redirect)
}

func TestProcessCallback_ExplicitLinkingSessionResolution(t *testing.T) {
	mem := memory.New(time.Minute)
	t.Cleanup(func() { _ = mem.Close() })
	store := session.NewStore(mem, time.Minute)
	ls, err := store.Create(context.Background(), "sess-token", "fp-1")
	require.NoError(t, err)

	intent := intentWithInfo()
	f := directoryFor(intent, directory.IdpOptions{IsLinkingAllowed: true})
	f.getSessionFn = func(ctx context.Context, sessionID, sessionToken string) (*directory.Session, error) {
		require.Equal(t, ls.ID, sessionID)
		require.Equal(t, "sess-token", sessionToken)
		return &directory.Session{ID: sessionID, UserID: "user-42"}, nil
	}
	f.getUserByIDFn = func(ctx context.Context, userID string) (*directory.User, error) {
		return &directory.User{UserID: userID, OrganizationID: "org-1"}, nil
	}
	f.loginSettingsFn = func(ctx context.Context, orgID string) (*directory.LoginSettings, error) {
		return &directory.LoginSettings{AllowExternalIdp: true}, nil
	}
	f.activeIDPsFn = func(ctx context.Context, orgID string, linkingAllowed bool) ([]directory.IdentityProvider, error) {
		return []directory.IdentityProvider{{ID: "idp-1"}}, nil
	}
	var linkedTo string
	f.addIDPLinkFn = func(ctx context.Context, idpID, extUserID, extUserName, localUserID string) error {
		linkedTo = localUserID
		return nil
	}
	sessionOK(f)
	svc := NewCallbackService(CallbackDeps{Directory: f, Links: store})

	p := baseParams()
	p.LinkSessionID = ls.ID
	p.FingerprintCookie = "cookie-v"
	p.LinkFingerprint = session.Fingerprint(ls.ID, "cookie-v")
	d := svc.ProcessCallback(context.Background(), p)

	require.Equal(t, OutcomeLink, d.Outcome)
	require.Equal(t, "/signedin", d.Redirect)
	require.Equal(t, "user-42", linkedTo)
}

func TestProcessCallback_ExplicitLinkingUnknownSession(t *testing.T) {
	mem := memory.New(time.Minute)
	t.Cleanup(func() { _ = mem.Close() })
	store := session.NewStore(mem, time.Minute)

	intent := intentWithInfo()
	f := directoryFor(intent, directory.IdpOptions{IsLinkingAllowed: true})
	svc := NewCallbackService(CallbackDeps{Directory: f, Links: store})

	p := baseParams()
	p.LinkSessionID = "never-created"
	p.FingerprintCookie = "cookie-v"
	p.LinkFingerprint = session.Fingerprint("never-created", "cookie-v")
	d := svc.ProcessCallback(context.Background(), p)

	require.Equal(t, OutcomeLink, d.Outcome)
	require.Equal(t, "/idp/google/linking-failed?error=session_invalid", d.Redirect)
}

func TestProcessCallback_AutoLinkingByEmail(t *testing.T) {
	intent := intentWithInfo()
	intent.AddHumanUser = &directory.AddHumanUser{
		Email: &directory.Email{Address: "jane@acme.io"},
	}
	f := directoryFor(intent, directory.IdpOptions{AutoLinking: directory.AutoLinkingEmail})
	var gotQuery directory.ListUsersQuery
	f.listUsersFn = func(ctx context.Context, q directory.ListUsersQuery) ([]directory.User, error) {
		gotQuery = q
		return []directory.User{{UserID: "user-3", OrganizationID: "org-1"}}, nil
	}
	f.loginSettingsFn = func(ctx context.Context, orgID string) (*directory.LoginSettings, error) {
		return &directory.LoginSettings{AllowExternalIdp: true}, nil
	}
	f.activeIDPsFn = func(ctx context.Context, orgID string, linkingAllowed bool) ([]directory.IdentityProvider, error) {
		return []directory.IdentityProvider{{ID: "idp-1"}}, nil
	}
	f.addIDPLinkFn = func(ctx context.Context, idpID, extUserID, extUserName, localUserID string) error {
		return nil
	}
	sessionOK(f)
	svc := NewCallbackService(CallbackDeps{Directory: f})

	d := svc.ProcessCallback(context.Background(), baseParams())

	require.Equal(t, OutcomeAutoLink, d.Outcome)
	require.Equal(t, "/signedin", d.Redirect)
	require.Equal(t, "jane@acme.io", gotQuery.Email)
	require.Empty(t, gotQuery.Username)
	require.Equal(t, "org-1", gotQuery.OrganizationID)
}

func TestProcessCallback_AutoLinkingByUsername(t *testing.T) {
	intent := intentWithInfo()
	f := directoryFor(intent, directory.IdpOptions{AutoLinking: directory.AutoLinkingUsername})
	var gotQuery directory.ListUsersQuery
	f.listUsersFn = func(ctx context.Context, q directory.ListUsersQuery) ([]directory.User, error) {
		gotQuery = q
		return nil, nil
	}
	svc := NewCallbackService(CallbackDeps{Directory: f})

	d := svc.ProcessCallback(context.Background(), baseParams())

	// No match and no creation allowed: account-not-found.
	require.Equal(t, OutcomeNotFound, d.Outcome)
	require.Equal(t, "jdoe", gotQuery.Username)
	require.Empty(t, gotQuery.Email)
}

func TestProcessCallback_AutoLinkingAnyMatchesEither(t *testing.T) {
	intent := intentWithInfo()
	intent.AddHumanUser = &directory.AddHumanUser{
		Email: &directory.Email{Address: "jane@acme.io"},
	}
	f := directoryFor(intent, directory.IdpOptions{AutoLinking: directory.AutoLinkingAny})
	var gotQuery directory.ListUsersQuery
	f.listUsersFn = func(ctx context.Context, q directory.ListUsersQuery) ([]directory.User, error) {
		gotQuery = q
		return nil, nil
	}
	svc := NewCallbackService(CallbackDeps{Directory: f})

	_ = svc.ProcessCallback(context.Background(), baseParams())

	require.Equal(t, "jdoe", gotQuery.Username)
	require.Equal(t, "jane@acme.io", gotQuery.Email)
}

func TestProcessCallback_AutoLinkingLookupFailurePropagates(t *testing.T) {
	intent := intentWithInfo()
	f := directoryFor(intent, directory.IdpOptions{AutoLinking: directory.AutoLinkingUsername})
	f.listUsersFn = func(ctx context.Context, q directory.ListUsersQuery) ([]directory.User, error) {
		return nil, errors.New("search backend unavailable")
	}
	svc := NewCallbackService(CallbackDeps{Directory: f})

	d := svc.ProcessCallback(context.Background(), baseParams())

	require.Equal(t, OutcomeFailure, d.Outcome)
	path, q := parseRedirect(t, d.Redirect)
	require.Equal(t, "/idp/google/failure", path)
	require.Equal(t, "search backend unavailable", q.Get("error"))
}

func TestProcessCallback_AutoLinkingValidationFailed(t *testing.T) {
	intent := intentWithInfo()
	f := directoryFor(intent, directory.IdpOptions{AutoLinking: directory.AutoLinkingUsername})
	f.listUsersFn = func(ctx context.Context, q directory.ListUsersQuery) ([]directory.User, error) {
		return []directory.User{{UserID: "user-3", OrganizationID: "org-1"}}, nil
	}
	f.loginSettingsFn = func(ctx context.Context, orgID string) (*directory.LoginSettings, error) {
		return &directory.LoginSettings{AllowExternalIdp: false}, nil
	}
	svc := NewCallbackService(CallbackDeps{Directory: f})

	d := svc.ProcessCallback(context.Background(), baseParams())

	require.Equal(t, OutcomeAutoLink, d.Outcome)
	path, q := parseRedirect(t, d.Redirect)
	require.Equal(t, "/idp/google/linking-failed", path)
	require.Equal(t, "validation_failed", q.Get("error"))
	require.Zero(t, f.addIDPLinkCalls)
}

func TestProcessCallback_AutoCreationSuccess(t *testing.T) {
	intent := intentWithInfo()
	intent.AddHumanUser = &directory.AddHumanUser{
		Username: "jane@acme.io",
		Email:    &directory.Email{Address: "jane@acme.io"},
	}
	f := directoryFor(intent, directory.IdpOptions{IsAutoCreation: true})
	var gotOrg string
	f.addHumanFn = func(ctx context.Context, orgID string, u *directory.AddHumanUser) (string, error) {
		gotOrg = orgID
		return "user-new", nil
	}
	sessionOK(f)
	svc := NewCallbackService(CallbackDeps{Directory: f})

	d := svc.ProcessCallback(context.Background(), baseParams())

	require.Equal(t, OutcomeAutoCreate, d.Outcome)
	require.Equal(t, "/signedin", d.Redirect)
	require.Equal(t, "org-1", gotOrg, "explicit organization wins over discovery")
	require.Equal(t, 1, f.addHumanCalls)
}

func TestProcessCallback_AutoCreationFailure(t *testing.T) {
	intent := intentWithInfo()
	intent.AddHumanUser = &directory.AddHumanUser{Username: "jane@acme.io"}
	f := directoryFor(intent, directory.IdpOptions{IsAutoCreation: true})
	f.addHumanFn = func(ctx context.Context, orgID string, u *directory.AddHumanUser) (string, error) {
		return "", errors.New("quota exceeded")
	}
	svc := NewCallbackService(CallbackDeps{Directory: f})

	d := svc.ProcessCallback(context.Background(), baseParams())

	require.Equal(t, OutcomeAutoCreate, d.Outcome)
	path, q := parseRedirect(t, d.Redirect)
	require.Equal(t, "/idp/google/failure", path)
	require.Equal(t, "user_creation_failed", q.Get("error"))
	require.Equal(t, "intent-1", q.Get("id"))
	require.Empty(t, q.Get("token"))
}

func TestProcessCallback_AutoCreationSessionFailure(t *testing.T) {
	intent := intentWithInfo()
	intent.AddHumanUser = &directory.AddHumanUser{Username: "jane@acme.io"}
	f := directoryFor(intent, directory.IdpOptions{IsAutoCreation: true})
	f.addHumanFn = func(ctx context.Context, orgID string, u *directory.AddHumanUser) (string, error) {
		return "user-new", nil
	}
	f.createSessionFn = func(ctx context.Context, req directory.StartSessionRequest) (*directory.SessionResult, error) {
		return nil, errors.New("session backend down")
	}
	svc := NewCallbackService(CallbackDeps{Directory: f})

	d := svc.ProcessCallback(context.Background(), baseParams())

	require.Equal(t, OutcomeAutoCreate, d.Outcome)
	_, q := parseRedirect(t, d.Redirect)
	require.Equal(t, "user_creation_failed", q.Get("error"))
}

func TestProcessCallback_AutoCreationNoOrganization(t *testing.T) {
	intent := intentWithInfo()
	intent.AddHumanUser = &directory.AddHumanUser{Username: "jane"} // no domain suffix
	f := directoryFor(intent, directory.IdpOptions{IsAutoCreation: true})
	f.defaultOrgFn = func(ctx context.Context) (*directory.Org, error) {
		return nil, directory.ErrNotFound
	}
	svc := NewCallbackService(CallbackDeps{Directory: f})

	p := baseParams()
	p.Organization = ""
	d := svc.ProcessCallback(context.Background(), p)

	require.Equal(t, OutcomeAutoCreate, d.Outcome)
	_, q := parseRedirect(t, d.Redirect)
	require.Equal(t, "no_organization_context", q.Get("error"))
	require.Zero(t, f.addHumanCalls)
}

func TestProcessCallback_ManualCreationRedirect(t *testing.T) {
	intent := intentWithInfo()
	intent.AddHumanUser = &directory.AddHumanUser{
		Username: "jane@acme.io",
		Profile:  &directory.Profile{GivenName: "Jane", FamilyName: "Doe"},
		Email:    &directory.Email{Address: "jane@acme.io"},
	}
	f := directoryFor(intent, directory.IdpOptions{IsCreationAllowed: true})
	svc := NewCallbackService(CallbackDeps{Directory: f})

	d := svc.ProcessCallback(context.Background(), baseParams())

	require.Equal(t, OutcomeRegister, d.Outcome)
	path, q := parseRedirect(t, d.Redirect)
	require.Equal(t, "/idp/google/complete-registration", path)
	require.Equal(t, "intent-1", q.Get("id"))
	require.Equal(t, "tok-1", q.Get("token"), "registration needs the token to finish later")
	require.Equal(t, "org-1", q.Get("organization"))
	require.Equal(t, "idp-1", q.Get("idpId"))
	require.Equal(t, "ext-7", q.Get("idpUserId"))
	require.Equal(t, "jdoe", q.Get("idpUserName"))
	require.Equal(t, "Jane", q.Get("givenName"))
	require.Equal(t, "Doe", q.Get("familyName"))
	require.Equal(t, "jane@acme.io", q.Get("email"))
}

func TestProcessCallback_ManualCreationNoOrganization(t *testing.T) {
	intent := intentWithInfo()
	intent.AddHumanUser = &directory.AddHumanUser{Username: "jane"}
	f := directoryFor(intent, directory.IdpOptions{IsCreationAllowed: true})
	f.defaultOrgFn = func(ctx context.Context) (*directory.Org, error) {
		return nil, directory.ErrNotFound
	}
	svc := NewCallbackService(CallbackDeps{Directory: f})

	p := baseParams()
	p.Organization = ""
	d := svc.ProcessCallback(context.Background(), p)

	require.Equal(t, OutcomeRegister, d.Outcome)
	path, q := parseRedirect(t, d.Redirect)
	require.Equal(t, "/idp/google/registration-failed", path)
	require.Equal(t, "intent-1", q.Get("id"))
	require.Equal(t, "tok-1", q.Get("token"))
}

func TestProcessCallback_AccountNotFound(t *testing.T) {
	intent := intentWithInfo()
	f := directoryFor(intent, directory.IdpOptions{})
	svc := NewCallbackService(CallbackDeps{Directory: f})

	d := svc.ProcessCallback(context.Background(), baseParams())

	require.Equal(t, OutcomeNotFound, d.Outcome)
	path, q := parseRedirect(t, d.Redirect)
	require.Equal(t, "/idp/google/account-not-found", path)
	require.Equal(t, "intent-1", q.Get("id"))
	require.Equal(t, "authreq-1", q.Get("requestId"))
	require.Empty(t, q.Get("token"))
	require.Zero(t, f.listUsersCalls)
	require.Zero(t, f.createSessionCalls)
}

func TestProcessCallback_SignInPreferredOverAutoLinking(t *testing.T) {
	intent := intentWithInfo()
	intent.UserID = "user-9"
	f := directoryFor(intent, directory.IdpOptions{AutoLinking: directory.AutoLinkingAny})
	sessionOK(f)
	svc := NewCallbackService(CallbackDeps{Directory: f})

	d := svc.ProcessCallback(context.Background(), baseParams())

	require.Equal(t, OutcomeSignIn, d.Outcome)
	require.Zero(t, f.listUsersCalls, "linked user signs in without any lookup")
}

func TestProcessCallback_AutoLinkingPreferredOverAutoCreation(t *testing.T) {
	intent := intentWithInfo()
	f := directoryFor(intent, directory.IdpOptions{
		AutoLinking:    directory.AutoLinkingUsername,
		IsAutoCreation: true,
	})
	f.listUsersFn = func(ctx context.Context, q directory.ListUsersQuery) ([]directory.User, error) {
		require.Equal(t, "jdoe", q.Username)
		return []directory.User{{UserID: "user-3", OrganizationID: "org-1"}}, nil
	}
	f.loginSettingsFn = func(ctx context.Context, orgID string) (*directory.LoginSettings, error) {
		return &directory.LoginSettings{AllowExternalIdp: true}, nil
	}
	f.activeIDPsFn = func(ctx context.Context, orgID string, linkingAllowed bool) ([]directory.IdentityProvider, error) {
		return []directory.IdentityProvider{{ID: "idp-1"}}, nil
	}
	f.addIDPLinkFn = func(ctx context.Context, idpID, extUserID, extUserName, localUserID string) error {
		return nil
	}
	sessionOK(f)
	svc := NewCallbackService(CallbackDeps{Directory: f})

	d := svc.ProcessCallback(context.Background(), baseParams())

	require.Equal(t, OutcomeAutoLink, d.Outcome)
	require.Zero(t, f.addHumanCalls, "matched user is linked, never created")
}

func TestProcessCallback_AutoLinkMatchWithoutOrg(t *testing.T) {
	intent := intentWithInfo()
	f := directoryFor(intent, directory.IdpOptions{
		AutoLinking:    directory.AutoLinkingUsername,
		IsAutoCreation: true,
	})
	f.listUsersFn = func(ctx context.Context, q directory.ListUsersQuery) ([]directory.User, error) {
		return []directory.User{{UserID: "user-3"}}, nil
	}
	svc := NewCallbackService(CallbackDeps{Directory: f})

	d := svc.ProcessCallback(context.Background(), baseParams())

	// A match without organization stops the chain: no fall-through to creation.
	require.Equal(t, OutcomeAutoLink, d.Outcome)
	_, q := parseRedirect(t, d.Redirect)
	require.Equal(t, "missing_organization", q.Get("error"))
	require.Zero(t, f.addHumanCalls)
}

func TestProcessCallback_AutoCreationPreferredOverManual(t *testing.T) {
	intent := intentWithInfo()
	intent.AddHumanUser = &directory.AddHumanUser{Username: "jane@acme.io"}
	f := directoryFor(intent, directory.IdpOptions{
		IsAutoCreation:    true,
		IsCreationAllowed: true,
	})
	f.addHumanFn = func(ctx context.Context, orgID string, u *directory.AddHumanUser) (string, error) {
		return "user-new", nil
	}
	sessionOK(f)
	svc := NewCallbackService(CallbackDeps{Directory: f})

	d := svc.ProcessCallback(context.Background(), baseParams())

	require.Equal(t, OutcomeAutoCreate, d.Outcome)
	require.False(t, strings.Contains(d.Redirect, "complete-registration"))
}
