package idp

import (
	"context"
	"errors"

	"github.com/dropDatabas3/idpgate/internal/directory"
)

// fakeDirectory implements directory.Client with overridable func fields and
// per-method call counters. Methods without an override fail the flow with a
// sentinel so tests surface unexpected remote calls.
type fakeDirectory struct {
	retrieveIntentFn func(ctx context.Context, id, token string) (*directory.IdpIntent, error)
	getIDPByIDFn     func(ctx context.Context, idpID string) (*directory.IdpConfig, error)
	getUserByIDFn    func(ctx context.Context, userID string) (*directory.User, error)
	listUsersFn      func(ctx context.Context, q directory.ListUsersQuery) ([]directory.User, error)
	updateHumanFn    func(ctx context.Context, userID string, upd *directory.UpdateHumanUser) error
	addHumanFn       func(ctx context.Context, orgID string, u *directory.AddHumanUser) (string, error)
	addIDPLinkFn     func(ctx context.Context, idpID, extUserID, extUserName, localUserID string) error
	createSessionFn  func(ctx context.Context, req directory.StartSessionRequest) (*directory.SessionResult, error)
	getSessionFn     func(ctx context.Context, sessionID, sessionToken string) (*directory.Session, error)
	loginSettingsFn  func(ctx context.Context, orgID string) (*directory.LoginSettings, error)
	activeIDPsFn     func(ctx context.Context, orgID string, linkingAllowed bool) ([]directory.IdentityProvider, error)
	orgsByDomainFn   func(ctx context.Context, domain string) ([]directory.Org, error)
	defaultOrgFn     func(ctx context.Context) (*directory.Org, error)

	retrieveIntentCalls int
	updateHumanCalls    int
	addHumanCalls       int
	addIDPLinkCalls     int
	createSessionCalls  int
	listUsersCalls      int
}

var errFakeUnexpected = errors.New("unexpected directory call")

func (f *fakeDirectory) RetrieveIntent(ctx context.Context, id, token string) (*directory.IdpIntent, error) {
	f.retrieveIntentCalls++
	if f.retrieveIntentFn == nil {
		return nil, errFakeUnexpected
	}
	return f.retrieveIntentFn(ctx, id, token)
}

func (f *fakeDirectory) GetIDPByID(ctx context.Context, idpID string) (*directory.IdpConfig, error) {
	if f.getIDPByIDFn == nil {
		return nil, errFakeUnexpected
	}
	return f.getIDPByIDFn(ctx, idpID)
}

func (f *fakeDirectory) GetUserByID(ctx context.Context, userID string) (*directory.User, error) {
	if f.getUserByIDFn == nil {
		return nil, errFakeUnexpected
	}
	return f.getUserByIDFn(ctx, userID)
}

func (f *fakeDirectory) ListUsers(ctx context.Context, q directory.ListUsersQuery) ([]directory.User, error) {
	f.listUsersCalls++
	if f.listUsersFn == nil {
		return nil, errFakeUnexpected
	}
	return f.listUsersFn(ctx, q)
}

func (f *fakeDirectory) UpdateHuman(ctx context.Context, userID string, upd *directory.UpdateHumanUser) error {
	f.updateHumanCalls++
	if f.updateHumanFn == nil {
		return errFakeUnexpected
	}
	return f.updateHumanFn(ctx, userID, upd)
}

func (f *fakeDirectory) AddHuman(ctx context.Context, orgID string, u *directory.AddHumanUser) (string, error) {
	f.addHumanCalls++
	if f.addHumanFn == nil {
		return "", errFakeUnexpected
	}
	return f.addHumanFn(ctx, orgID, u)
}

func (f *fakeDirectory) AddIDPLink(ctx context.Context, idpID, extUserID, extUserName, localUserID string) error {
	f.addIDPLinkCalls++
	if f.addIDPLinkFn == nil {
		return errFakeUnexpected
	}
	return f.addIDPLinkFn(ctx, idpID, extUserID, extUserName, localUserID)
}

func (f *fakeDirectory) CreateSessionFromIntent(ctx context.Context, req directory.StartSessionRequest) (*directory.SessionResult, error) {
	f.createSessionCalls++
	if f.createSessionFn == nil {
		return nil, errFakeUnexpected
	}
	return f.createSessionFn(ctx, req)
}

func (f *fakeDirectory) GetSession(ctx context.Context, sessionID, sessionToken string) (*directory.Session, error) {
	if f.getSessionFn == nil {
		return nil, errFakeUnexpected
	}
	return f.getSessionFn(ctx, sessionID, sessionToken)
}

func (f *fakeDirectory) GetLoginSettings(ctx context.Context, orgID string) (*directory.LoginSettings, error) {
	if f.loginSettingsFn == nil {
		return nil, errFakeUnexpected
	}
	return f.loginSettingsFn(ctx, orgID)
}

func (f *fakeDirectory) GetActiveIdentityProviders(ctx context.Context, orgID string, linkingAllowed bool) ([]directory.IdentityProvider, error) {
	if f.activeIDPsFn == nil {
		return nil, errFakeUnexpected
	}
	return f.activeIDPsFn(ctx, orgID, linkingAllowed)
}

func (f *fakeDirectory) GetOrgsByDomain(ctx context.Context, domain string) ([]directory.Org, error) {
	if f.orgsByDomainFn == nil {
		return nil, errFakeUnexpected
	}
	return f.orgsByDomainFn(ctx, domain)
}

func (f *fakeDirectory) GetDefaultOrg(ctx context.Context) (*directory.Org, error) {
	if f.defaultOrgFn == nil {
		return nil, errFakeUnexpected
	}
	return f.defaultOrgFn(ctx)
}
