package idp

import (
	"context"
	"errors"

	"github.com/dropDatabas3/idpgate/internal/directory"
)

// validateLinkingPermissions checks whether the organization of the target
// user permits linking this IDP:
//
//  1. the organization's login settings must allow external IDP login;
//  2. the IDP must be active for the organization with linking allowed
//     (case-sensitive id match).
//
// Remote failures propagate; callers convert them per-case.
func (s *callbackService) validateLinkingPermissions(ctx context.Context, orgID, idpID string) (bool, error) {
	settings, err := s.dir.GetLoginSettings(ctx, orgID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if !settings.AllowExternalIdp {
		return false, nil
	}

	idps, err := s.dir.GetActiveIdentityProviders(ctx, orgID, true)
	if err != nil {
		return false, err
	}
	for _, p := range idps {
		if p.ID == idpID {
			return true, nil
		}
	}
	return false, nil
}
