package idp

import "net/url"

// redirectBuilder builds the query string for every redirect the engine
// produces. Context parameters (id, requestId, organization,
// postErrorRedirectUrl, linkToSessionId) are always carried when non-empty;
// the intent token only when the target still needs it to finish the flow
// (manual registration, where no session exists yet).
type redirectBuilder struct {
	params CallbackParams
}

func newRedirectBuilder(p CallbackParams) *redirectBuilder {
	return &redirectBuilder{params: p}
}

// build encodes the context params plus extra, sorted by key. Empty extra
// values are skipped.
func (b *redirectBuilder) build(extra map[string]string, includeToken bool) string {
	q := url.Values{}
	q.Set("id", b.params.ID)
	if includeToken {
		q.Set("token", b.params.Token)
	}
	setIfPresent(q, "requestId", b.params.RequestID)
	setIfPresent(q, "organization", b.params.Organization)
	setIfPresent(q, "postErrorRedirectUrl", b.params.PostErrorRedirectURL)
	setIfPresent(q, "linkToSessionId", b.params.LinkSessionID)

	for k, v := range extra {
		setIfPresent(q, k, v)
	}
	return q.Encode()
}

// contextQuery preserves only the resume-context params, without the intent
// id. Used by the pre-redemption and outer failure redirects.
func contextQuery(p CallbackParams) url.Values {
	q := url.Values{}
	setIfPresent(q, "requestId", p.RequestID)
	setIfPresent(q, "organization", p.Organization)
	setIfPresent(q, "postErrorRedirectUrl", p.PostErrorRedirectURL)
	return q
}

func setIfPresent(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}
