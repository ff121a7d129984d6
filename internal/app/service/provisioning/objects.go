package provisioning

import (
	"context"
	"fmt"

	"github.com/lintasdata/enforcer/internal/platform/router"
	"github.com/lintasdata/enforcer/pkg/types"
)

// ensureAddressLists makes both lists exist and readable. The router only
// materializes a list on first member add, so an empty list gets a disabled
// 0.0.0.0 placeholder before the non-zero membership check.
func (s *Service) ensureAddressLists(ctx context.Context, conn router.Conn) (int, error) {
	ensured := 0
	for _, list := range []string{types.AddressListActive, types.AddressListNoPackage} {
		entries, err := conn.Run(ctx, listPath+"/print", "?list="+list)
		if err != nil {
			return ensured, fmt.Errorf("read list %s: %w", list, err)
		}
		if len(entries) == 0 {
			_, err = conn.Run(ctx, listPath+"/add",
				"=list="+list,
				"=address=0.0.0.0",
				"=disabled=yes",
				"=comment="+commentPlaceholder,
			)
			if err != nil {
				return ensured, fmt.Errorf("create list %s: %w", list, err)
			}
		}
		verify, err := conn.Run(ctx, listPath+"/print", "?list="+list)
		if err != nil {
			return ensured, fmt.Errorf("verify list %s: %w", list, err)
		}
		if len(verify) == 0 {
			return ensured, fmt.Errorf("%w: list %s still empty after placeholder add", ErrPartialProvisioning, list)
		}
		ensured++
	}
	return ensured, nil
}

type profileSpec struct {
	name        string
	rateLimit   string
	addressList string
	onlyOne     bool
}

// expectedProfiles is the fixed profile set: one low-rate redirect profile
// plus one profile per speed tier.
func expectedProfiles() []profileSpec {
	specs := []profileSpec{
		{name: types.ProfileNoPackage, rateLimit: "128k/128k", addressList: types.AddressListNoPackage},
	}
	for _, mbps := range []int{10, 20, 50, 100} {
		specs = append(specs, profileSpec{
			name:        fmt.Sprintf("prepaid-%dmbps", mbps),
			rateLimit:   fmt.Sprintf("%dM/%dM", mbps, mbps),
			addressList: types.AddressListActive,
			onlyOne:     true,
		})
	}
	return specs
}

// ensureProfiles creates or updates the PPPoE profile set keyed by name.
func (s *Service) ensureProfiles(ctx context.Context, conn router.Conn) (int, error) {
	ensured := 0
	for _, p := range expectedProfiles() {
		existing, err := conn.Run(ctx, profilePath+"/print", "?name="+p.name)
		if err != nil {
			return ensured, fmt.Errorf("read profile %s: %w", p.name, err)
		}

		onlyOne := "no"
		if p.onlyOne {
			onlyOne = "yes"
		}
		attrs := []string{
			"=rate-limit=" + p.rateLimit,
			"=address-list=" + p.addressList,
			"=only-one=" + onlyOne,
		}
		if len(existing) > 0 {
			words := append([]string{profilePath + "/set", "=.id=" + existing[0][".id"]}, attrs...)
			if _, err := conn.Run(ctx, words...); err != nil {
				return ensured, fmt.Errorf("update profile %s: %w", p.name, err)
			}
		} else {
			words := append([]string{profilePath + "/add", "=name=" + p.name}, attrs...)
			if _, err := conn.Run(ctx, words...); err != nil {
				return ensured, fmt.Errorf("create profile %s: %w", p.name, err)
			}
		}
		ensured++
	}
	return ensured, nil
}
