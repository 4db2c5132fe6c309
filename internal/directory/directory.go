// Package directory is the client for the remote identity platform: IDP
// intents, IDP configurations, users, organizations and login settings.
//
// The service owns none of this data; every operation here is a remote read
// or write, and none of them is retried locally.
package directory

import "context"

// AutoLinkingOption controls how an external identity is matched against
// existing local users when no link exists yet.
type AutoLinkingOption string

const (
	// AutoLinkingNone disables auto-linking.
	AutoLinkingNone AutoLinkingOption = ""
	// AutoLinkingEmail matches candidates by email address.
	AutoLinkingEmail AutoLinkingOption = "email"
	// AutoLinkingUsername matches candidates by username.
	AutoLinkingUsername AutoLinkingOption = "username"
	// AutoLinkingAny matches by email or username. This is what an
	// unspecified-but-enabled option resolves to upstream.
	AutoLinkingAny AutoLinkingOption = "any"
)

// IdpOptions gates which callback decision case may fire.
type IdpOptions struct {
	IsAutoUpdate      bool              `json:"isAutoUpdate"`
	IsLinkingAllowed  bool              `json:"isLinkingAllowed"`
	IsCreationAllowed bool              `json:"isCreationAllowed"`
	IsAutoCreation    bool              `json:"isAutoCreation"`
	AutoLinking       AutoLinkingOption `json:"autoLinking"`
}

// IdpConfig is an identity-provider configuration, fetched by idp id.
type IdpConfig struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Options IdpOptions `json:"options"`
}

// IdpInformation identifies the external identity inside a redeemed intent.
// Required: a decision cannot proceed without it.
type IdpInformation struct {
	IdpID    string `json:"idpId"`
	UserID   string `json:"userId"`   // external user id at the provider
	UserName string `json:"userName"` // external username at the provider
}

// Profile holds human profile fields.
type Profile struct {
	GivenName   string `json:"givenName,omitempty"`
	FamilyName  string `json:"familyName,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// Email holds an email address plus its verification state.
type Email struct {
	Address    string `json:"address"`
	IsVerified bool   `json:"isVerified,omitempty"`
}

// Phone holds a phone number plus its verification state.
type Phone struct {
	Number     string `json:"number"`
	IsVerified bool   `json:"isVerified,omitempty"`
}

// AddHumanUser is the candidate profile for creating a new local user.
type AddHumanUser struct {
	Username string   `json:"username,omitempty"`
	Profile  *Profile `json:"profile,omitempty"`
	Email    *Email   `json:"email,omitempty"`
	Phone    *Phone   `json:"phone,omitempty"`
}

// UpdateHumanUser carries profile fields to apply to an already linked user
// on sign-in (auto-update).
type UpdateHumanUser struct {
	Profile *Profile `json:"profile,omitempty"`
	Email   *Email   `json:"email,omitempty"`
	Phone   *Phone   `json:"phone,omitempty"`
}

// IdpIntent is the result of redeeming a one-time provider callback token.
// Redemption is single-use: the platform invalidates the token server-side,
// so callers must redeem at most once per callback and carry the result.
type IdpIntent struct {
	IdpInformation  *IdpInformation  `json:"idpInformation"`
	UserID          string           `json:"userId,omitempty"` // set if already linked to a local user
	AddHumanUser    *AddHumanUser    `json:"addHumanUser,omitempty"`
	UpdateHumanUser *UpdateHumanUser `json:"updateHumanUser,omitempty"`
}

// User is a local user as returned by lookups.
type User struct {
	UserID         string `json:"userId"`
	Username       string `json:"username,omitempty"`
	OrganizationID string `json:"organizationId,omitempty"`
}

// ListUsersQuery filters user lookups. Empty fields are not applied.
type ListUsersQuery struct {
	Email          string `json:"email,omitempty"`
	Username       string `json:"username,omitempty"`
	OrganizationID string `json:"organizationId,omitempty"`
}

// LoginSettings is the per-organization login policy subset this service reads.
type LoginSettings struct {
	AllowExternalIdp     bool `json:"allowExternalIdp"`
	AllowDomainDiscovery bool `json:"allowDomainDiscovery"`
}

// IdentityProvider is an active IDP attached to an organization.
type IdentityProvider struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Org is an organization.
type Org struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// StartSessionRequest asks the platform to create a session bound to a user
// from a redeemed intent.
type StartSessionRequest struct {
	UserID       string `json:"userId"`
	IntentID     string `json:"intentId"`
	IntentToken  string `json:"intentToken"`
	RequestID    string `json:"requestId,omitempty"`
	Organization string `json:"organization,omitempty"`
}

// SessionResult is the platform's answer to a session-creation request.
// Contract: exactly one of Redirect/Error should be populated, but callers
// must not assume it.
type SessionResult struct {
	Redirect string `json:"redirect,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Session is an existing session, used to resolve the target user of an
// explicit linking flow.
type Session struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
}

// Client is the remote identity-platform surface the callback engine consumes.
type Client interface {
	// RetrieveIntent redeems (id, token) into an IdpIntent. Single-use.
	RetrieveIntent(ctx context.Context, id, token string) (*IdpIntent, error)

	// GetIDPByID fetches an IDP configuration. ErrNotFound if absent.
	GetIDPByID(ctx context.Context, idpID string) (*IdpConfig, error)

	// GetUserByID fetches a local user. ErrNotFound if absent.
	GetUserByID(ctx context.Context, userID string) (*User, error)

	// ListUsers searches local users by the non-empty query fields.
	ListUsers(ctx context.Context, q ListUsersQuery) ([]User, error)

	// UpdateHuman applies profile updates to an existing user.
	UpdateHuman(ctx context.Context, userID string, upd *UpdateHumanUser) error

	// AddHuman creates a new local user in the given organization and
	// returns its user id.
	AddHuman(ctx context.Context, orgID string, u *AddHumanUser) (string, error)

	// AddIDPLink links an external identity to a local user.
	// ErrAlreadyExists if the external identity is already linked.
	AddIDPLink(ctx context.Context, idpID, externalUserID, externalUserName, localUserID string) error

	// CreateSessionFromIntent creates a session bound to the intent's user.
	CreateSessionFromIntent(ctx context.Context, req StartSessionRequest) (*SessionResult, error)

	// GetSession fetches an existing session by id and token.
	GetSession(ctx context.Context, sessionID, sessionToken string) (*Session, error)

	// GetLoginSettings fetches an organization's login settings.
	// ErrNotFound if the organization has none.
	GetLoginSettings(ctx context.Context, orgID string) (*LoginSettings, error)

	// GetActiveIdentityProviders lists the organization's active IDPs,
	// optionally filtered to those allowing linking.
	GetActiveIdentityProviders(ctx context.Context, orgID string, linkingAllowed bool) ([]IdentityProvider, error)

	// GetOrgsByDomain lists organizations whose verified domain equals domain.
	GetOrgsByDomain(ctx context.Context, domain string) ([]Org, error)

	// GetDefaultOrg returns the platform default organization.
	// ErrNotFound if none is configured.
	GetDefaultOrg(ctx context.Context) (*Org, error)
}
