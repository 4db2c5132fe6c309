// Package idp implements the IDP callback decision engine: given a redeemed
// provider intent and the IDP's configuration, decide between sign-in,
// explicit linking, auto-linking, auto-creation, manual registration or
// account-not-found, and produce the redirect (or error) for the login UI.
package idp

import "context"

// CallbackService processes IDP callback returns.
type CallbackService interface {
	// ProcessCallback consumes the one-time intent exactly once and walks the
	// decision chain. It always returns a usable Decision; remote failures
	// are folded into failure redirects or error messages, never panics.
	ProcessCallback(ctx context.Context, params CallbackParams) Decision
}

// CallbackParams is the input extracted from the provider callback request.
type CallbackParams struct {
	Provider string // provider slug from the callback path
	ID       string // intent id
	Token    string // one-time intent token

	RequestID            string
	Organization         string
	PostErrorRedirectURL string

	// Explicit linking context: set when a signed-in user started this IDP
	// flow to attach the external identity to their account.
	LinkSessionID   string
	LinkFingerprint string // presented hex(sha256(sessionID + fingerprint cookie))

	// FingerprintCookie is the raw fingerprint cookie value from the browser,
	// needed to verify LinkFingerprint.
	FingerprintCookie string
}

// Decision is the engine's output: exactly one of Redirect or Error is
// meaningful. Outcome labels which case fired, for metrics and audit.
type Decision struct {
	Redirect string
	Error    string
	Outcome  string
}

// Outcome labels, one per decision case plus the two failure shapes.
const (
	OutcomeSignIn     = "signin"
	OutcomeLink       = "link"
	OutcomeAutoLink   = "autolink"
	OutcomeAutoCreate = "autocreate"
	OutcomeRegister   = "register"
	OutcomeNotFound   = "notfound"
	OutcomeError      = "error"   // structured error surfaced to the UI
	OutcomeFailure    = "failure" // generic failure redirect
)

// User-facing messages for error results (no redirect context available).
const (
	msgIDPNotFound           = "identity provider not found"
	msgSessionCreationFailed = "session creation failed"
	msgUnknownError          = "unknown error"
)
