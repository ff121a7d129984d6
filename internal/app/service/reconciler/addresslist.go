package reconciler

import (
	"context"
	"time"

	"github.com/lintasdata/enforcer/internal/platform/router"
	"github.com/lintasdata/enforcer/pkg/logctx"
	"github.com/lintasdata/enforcer/pkg/types"
)

const addressListPath = "/ip/firewall/address-list"

// applyAddressList moves an IP into the target list with the compensating
// sequence the device requires: remove from the opposite list, check the
// target, add only when absent, then re-read after a delay. The device is
// known to ack writes it has not yet applied, so the verification read is
// what decides success.
func (s *Service) applyAddressList(ctx context.Context, conn router.Conn, ip, targetList string) types.EnforceResult {
	log := logctx.FromCtx(ctx, s.log)

	otherList := types.AddressListNoPackage
	if targetList == types.AddressListNoPackage {
		otherList = types.AddressListActive
	}

	stale, err := conn.Run(ctx, addressListPath+"/print", "?list="+otherList, "?address="+ip)
	if err != nil {
		s.metrics.DeviceErrors.WithLabelValues("address_list_print").Inc()
		return types.Failed("read list %s: %v", otherList, err)
	}
	for _, entry := range stale {
		if _, err := conn.Run(ctx, addressListPath+"/remove", "=.id="+entry[".id"]); err != nil {
			s.metrics.DeviceErrors.WithLabelValues("address_list_remove").Inc()
			return types.Failed("remove %s from %s: %v", ip, otherList, err)
		}
	}

	existing, err := conn.Run(ctx, addressListPath+"/print", "?list="+targetList, "?address="+ip)
	if err != nil {
		s.metrics.DeviceErrors.WithLabelValues("address_list_print").Inc()
		return types.Failed("read list %s: %v", targetList, err)
	}
	if len(existing) > 0 {
		return types.Ok("%s already in %s", ip, targetList)
	}

	_, err = conn.Run(ctx, addressListPath+"/add",
		"=list="+targetList,
		"=address="+ip,
		"=comment=prepaid-system",
	)
	if err != nil {
		s.metrics.DeviceErrors.WithLabelValues("address_list_add").Inc()
		return types.Failed("add %s to %s: %v", ip, targetList, err)
	}

	if delay := s.cfg.Router.VerifyDelay; delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
		}
	}
	verify, err := conn.Run(ctx, addressListPath+"/print", "?list="+targetList, "?address="+ip)
	if err != nil {
		s.metrics.DeviceErrors.WithLabelValues("address_list_verify").Inc()
		return types.Failed("verify %s in %s: %v", ip, targetList, err)
	}
	if len(verify) == 0 {
		log.Errorw("address-list add acked but entry missing on re-read",
			"ip", ip, "list", targetList, "err", ErrDeviceInconsistent)
		s.metrics.DeviceErrors.WithLabelValues("address_list_inconsistent").Inc()
		return types.Failed("%v: %s not in %s after add", ErrDeviceInconsistent, ip, targetList)
	}
	return types.Ok("%s added to %s", ip, targetList)
}
