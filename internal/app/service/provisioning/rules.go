package provisioning

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/lintasdata/enforcer/internal/platform/router"
	"github.com/lintasdata/enforcer/pkg/logctx"
	"github.com/lintasdata/enforcer/pkg/types"
)

// ensureNATRules creates or updates the two dst-nat redirects (TCP/80 and
// TCP/443) that send no-package customers to the portal. Rules are keyed by
// (chain, src-address-list, dst-port); a matching rule is re-pointed at the
// current portal target instead of duplicated. Fewer than 2 ensured rules
// is ErrPartialProvisioning.
func (s *Service) ensureNATRules(ctx context.Context, conn router.Conn, portalHost, portalPort string) (int, error) {
	log := logctx.FromCtx(ctx, s.log)

	rows, err := conn.Run(ctx, natPath+"/print")
	if err != nil {
		return 0, fmt.Errorf("read nat rules: %w", err)
	}

	ensured := 0
	for _, dstPort := range []string{"80", "443"} {
		var existingID string
		for _, r := range rows {
			if r["chain"] == "dstnat" &&
				r["src-address-list"] == types.AddressListNoPackage &&
				r["dst-port"] == dstPort {
				existingID = r[".id"]
				break
			}
		}

		attrs := []string{
			"=action=dst-nat",
			"=protocol=tcp",
			"=to-addresses=" + portalHost,
			"=to-ports=" + portalPort,
			"=comment=" + commentPortalRedirect + " tcp/" + dstPort,
		}
		if existingID != "" {
			words := append([]string{natPath + "/set", "=.id=" + existingID}, attrs...)
			if _, err := conn.Run(ctx, words...); err != nil {
				log.Errorw("nat rule update failed", "dst_port", dstPort, "err", err)
				continue
			}
		} else {
			words := append([]string{
				natPath + "/add",
				"=chain=dstnat",
				"=src-address-list=" + types.AddressListNoPackage,
				"=dst-port=" + dstPort,
			}, attrs...)
			if _, err := conn.Run(ctx, words...); err != nil {
				log.Errorw("nat rule create failed", "dst_port", dstPort, "err", err)
				continue
			}
		}
		ensured++
	}
	if ensured < 2 {
		return ensured, fmt.Errorf("%w: only %d of 2 nat redirect rules ensured", ErrPartialProvisioning, ensured)
	}
	return ensured, nil
}

type filterSpec struct {
	comment string
	words   []string
}

// filterRules is the forward-chain rule set in priority order. Portal HTTP/S
// needs no accept rule here: the NAT redirect intercepts it before the
// filter chain runs, so the final drop intentionally covers it.
func filterRules() []filterSpec {
	return []filterSpec{
		{
			comment: commentAllowActive,
			words: []string{
				"=chain=forward",
				"=src-address-list=" + types.AddressListActive,
				"=action=accept",
			},
		},
		{
			comment: commentAllowEstablished,
			words: []string{
				"=chain=forward",
				"=src-address-list=" + types.AddressListNoPackage,
				"=connection-state=established,related",
				"=action=accept",
			},
		},
		{
			comment: commentDropNoPackage,
			words: []string{
				"=chain=forward",
				"=src-address-list=" + types.AddressListNoPackage,
				"=action=drop",
			},
		},
	}
}

// ensureFilterRules rebuilds the forward-chain rules. Prior same-purpose
// rules are deleted first so re-runs cannot accumulate duplicates or end up
// out of order. Adds that the device reports as failed are tolerated until
// the verification re-read: this device is known to error on writes it did
// apply. Verified rules are moved to position 0 in reverse creation order,
// which puts them at the top in the correct relative order; the drop rule
// must never precede the accepts. Fewer than 3 verified rules is
// ErrPartialProvisioning.
func (s *Service) ensureFilterRules(ctx context.Context, conn router.Conn) (int, error) {
	log := logctx.FromCtx(ctx, s.log)

	if _, err := s.removeByComment(ctx, conn, filterPath, commentMarker); err != nil {
		return 0, err
	}

	specs := filterRules()
	for _, spec := range specs {
		words := append([]string{filterPath + "/add"}, spec.words...)
		words = append(words, "=comment="+spec.comment)
		if _, err := conn.Run(ctx, words...); err != nil {
			log.Warnw("filter rule add reported an error; verification will decide",
				"comment", spec.comment, "err", err)
		}
	}

	rows, err := conn.Run(ctx, filterPath+"/print")
	if err != nil {
		return 0, fmt.Errorf("verify filter rules: %w", err)
	}
	verified := make([]string, 0, len(specs))
	missing := make([]string, 0)
	for _, spec := range specs {
		id := findByCommentFragment(rows, spec.comment)
		if id == "" {
			missing = append(missing, spec.comment)
			continue
		}
		verified = append(verified, id)
	}

	// Last created moves first, producing the original order at the top.
	for i := len(verified) - 1; i >= 0; i-- {
		if _, err := conn.Run(ctx, filterPath+"/move",
			"=numbers="+verified[i],
			"=destination="+strconv.Itoa(0),
		); err != nil {
			log.Warnw("filter rule move failed; rule exists but may be misordered",
				"rule_id", verified[i], "err", err)
		}
	}

	if len(verified) < 3 {
		return len(verified), fmt.Errorf("%w: %d of %d filter rules verified, missing: %s",
			ErrPartialProvisioning, len(verified), len(specs), strings.Join(missing, "; "))
	}
	return len(verified), nil
}

func findByCommentFragment(rows []map[string]string, fragment string) string {
	for _, r := range rows {
		if strings.Contains(r["comment"], fragment) {
			return r[".id"]
		}
	}
	return ""
}
