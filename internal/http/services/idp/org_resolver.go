package idp

import (
	"context"
	"errors"
	"strings"

	"github.com/dropDatabas3/idpgate/internal/directory"
	"github.com/dropDatabas3/idpgate/internal/observability/logger"
)

// resolveOrganizationForUser decides which organization a new user should be
// attached to, in priority order:
//
//  1. the explicitly requested organization, untouched;
//  2. domain discovery: the suffix after the last "@" of the candidate
//     username, when exactly one organization owns that domain and its login
//     settings allow domain discovery;
//  3. the platform default organization.
//
// Returns "" when nothing resolves. Remote failures propagate to the caller.
// Idempotent reads throughout; no caching.
func (s *callbackService) resolveOrganizationForUser(ctx context.Context, explicitOrg, candidateUsername string) (string, error) {
	if explicitOrg != "" {
		return explicitOrg, nil
	}

	if suffix := domainSuffix(candidateUsername); suffix != "" {
		orgs, err := s.dir.GetOrgsByDomain(ctx, suffix)
		if err != nil {
			return "", err
		}
		// Ambiguous or zero matches are simply ignored, not an error.
		if len(orgs) == 1 {
			settings, err := s.dir.GetLoginSettings(ctx, orgs[0].ID)
			switch {
			case errors.Is(err, directory.ErrNotFound):
				// no settings: discovery not allowed
			case err != nil:
				return "", err
			case settings.AllowDomainDiscovery:
				logger.From(ctx).Debug("organization resolved by domain discovery",
					logger.OrgID(orgs[0].ID),
					logger.String("domain", suffix),
				)
				return orgs[0].ID, nil
			}
		}
	}

	def, err := s.dir.GetDefaultOrg(ctx)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return def.ID, nil
}

// domainSuffix returns the text after the last "@", or "" if there is none.
func domainSuffix(username string) string {
	i := strings.LastIndex(username, "@")
	if i < 0 || i == len(username)-1 {
		return ""
	}
	return username[i+1:]
}
