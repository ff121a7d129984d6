package reconciler

import (
	"context"

	"github.com/lintasdata/enforcer/internal/models"
	"github.com/lintasdata/enforcer/internal/platform/router"
	"github.com/lintasdata/enforcer/pkg/logctx"
	"github.com/lintasdata/enforcer/pkg/types"
)

// postpaidProfile is what a PPPoE secret goes back to when the customer
// leaves prepaid management.
const postpaidProfile = "default"

// Release undoes prepaid enforcement for a customer entirely: the PPPoE
// secret returns to the default profile, a static IP leaves both prepaid
// lists and loses its queues. Used on migration back to postpaid.
func (s *Service) Release(ctx context.Context, customer *models.Customer) types.EnforceResult {
	log := logctx.FromCtx(ctx, s.log)

	conn, cfgRow, err := s.connect(ctx)
	if err != nil {
		log.Errorw("release: cannot reach router", "customer_id", customer.ID, "err", err)
		return types.Failed("router unavailable: %v", err)
	}
	defer conn.Close()

	if customer.ConnectionType == types.ConnectionTypePPPoE {
		if customer.PPPoEUsername == "" {
			return types.Failed("customer %d has no pppoe username", customer.ID)
		}
		return s.applyPPPoE(ctx, conn, customer.PPPoEUsername, types.EnforcementTarget{Profile: postpaidProfile})
	}

	ip, err := s.resolver.Resolve(ctx, customer.ID)
	if err != nil {
		return types.Failed("resolve ip: %v", err)
	}
	if err := s.resolver.Validate(ip, cfgRow.Host); err != nil {
		return types.Failed("ip %s rejected: %v", ip, err)
	}
	if res := s.removeFromLists(ctx, conn, ip); !res.Success {
		return res
	}
	return s.removeQueue(ctx, conn, customer.Name)
}

// removeFromLists takes the IP out of both prepaid lists.
func (s *Service) removeFromLists(ctx context.Context, conn router.Conn, ip string) types.EnforceResult {
	removed := 0
	for _, list := range []string{types.AddressListActive, types.AddressListNoPackage} {
		entries, err := conn.Run(ctx, addressListPath+"/print", "?list="+list, "?address="+ip)
		if err != nil {
			s.metrics.DeviceErrors.WithLabelValues("address_list_print").Inc()
			return types.Failed("read list %s: %v", list, err)
		}
		for _, e := range entries {
			if _, err := conn.Run(ctx, addressListPath+"/remove", "=.id="+e[".id"]); err != nil {
				s.metrics.DeviceErrors.WithLabelValues("address_list_remove").Inc()
				return types.Failed("remove %s from %s: %v", ip, list, err)
			}
			removed++
		}
	}
	return types.Ok("removed %d prepaid list entries for %s", removed, ip)
}
