package enforcement

import (
	"fmt"

	"github.com/lintasdata/enforcer/internal/models"
	"github.com/lintasdata/enforcer/pkg/types"
)

// DesiredState computes what the router should look like for one customer.
// It is a pure function of connection type, subscription status and package;
// callers feed the result to the reconciler.
func DesiredState(connType types.ConnectionType, status types.SubscriptionStatus, pkg *models.PrepaidPackage, sub *models.Subscription) types.EnforcementTarget {
	active := status == types.SubscriptionStatusActive

	if connType == types.ConnectionTypePPPoE {
		if !active {
			// Redirected, not disconnected: the no-package profile keeps the
			// session up at a minimal rate so the portal is reachable.
			return types.EnforcementTarget{
				Profile:  types.ProfileNoPackage,
				Disabled: false,
			}
		}
		return types.EnforcementTarget{
			Profile:  profileName(pkg),
			Disabled: false,
		}
	}

	if !active {
		return types.EnforcementTarget{
			AddressList: types.AddressListNoPackage,
		}
	}
	target := types.EnforcementTarget{
		AddressList: types.AddressListActive,
	}
	if pkg != nil {
		q := types.QueueSpec{
			ParentDownload: pkg.ParentDownloadQueue,
			ParentUpload:   pkg.ParentUploadQueue,
			DownloadMbps:   pkg.DownloadMbps,
			UploadMbps:     pkg.UploadMbps,
		}
		if sub != nil {
			if sub.CustomDownloadMbps > 0 {
				q.DownloadMbps = sub.CustomDownloadMbps
			}
			if sub.CustomUploadMbps > 0 {
				q.UploadMbps = sub.CustomUploadMbps
			}
		}
		target.Queue = &q
	}
	return target
}

// profileName prefers the package's configured profile and falls back to a
// deterministic name derived from the download rate.
func profileName(pkg *models.PrepaidPackage) string {
	if pkg == nil {
		return types.ProfileNoPackage
	}
	if pkg.MikrotikProfileName != "" {
		return pkg.MikrotikProfileName
	}
	return fmt.Sprintf("prepaid-%dmbps", pkg.DownloadMbps)
}
