package ipresolver

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lintasdata/enforcer/internal/models"
)

var (
	// ErrInvalidIP means the stored address is not a usable IPv4 address.
	ErrInvalidIP = errors.New("invalid customer ip")
	// ErrGatewayAddress means the address is a gateway or the router itself
	// and must never be enforced as a customer address.
	ErrGatewayAddress = errors.New("gateway address cannot be enforced")
	// ErrNoIPFound means every lookup source came up empty. Callers treat
	// it as terminal for enforcement but non-fatal to the billing commit.
	ErrNoIPFound = errors.New("no ip address found for customer")
)

// Resolver turns a customer's stored addressing data into the single
// enforceable customer IP.
type Resolver struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewResolver(db *gorm.DB, log *zap.SugaredLogger) *Resolver {
	return &Resolver{db: db, log: log}
}

// CustomerIP extracts the customer host from a stored address. Point-to-point
// /30 subnets get special handling: the network base's first host is the
// gateway and the second is the customer, so a stored gateway address maps to
// the customer host. Any other prefix is returned with the prefix stripped.
func (r *Resolver) CustomerIP(stored string) string {
	host, prefixLen, ok := splitCIDR(stored)
	if !ok {
		return stored
	}
	if prefixLen != 30 {
		return host
	}
	addr, err := netip.ParseAddr(host)
	if err != nil || !addr.Is4() {
		return host
	}
	b := addr.As4()
	base := b[3] &^ 0x03
	gateway := base + 1
	customer := base + 2
	switch b[3] {
	case customer:
		return host
	case gateway:
		// fall through to the customer host below
	default:
		r.log.Warnw("stored /30 address is neither gateway nor customer host; defaulting to second host",
			"stored", stored)
	}
	b[3] = customer
	return netip.AddrFrom4(b).String()
}

// Validate rejects addresses that must never be pushed to the router as a
// customer: malformed strings, conventional gateway octets (.1, .254) and
// the router's own host.
func (r *Resolver) Validate(ip, routerHost string) error {
	addr, err := netip.ParseAddr(ip)
	if err != nil || !addr.Is4() {
		return fmt.Errorf("%w: %q", ErrInvalidIP, ip)
	}
	if ip == routerHost {
		return fmt.Errorf("%w: %s is the router itself", ErrGatewayAddress, ip)
	}
	last := addr.As4()[3]
	if last == 1 || last == 254 {
		return fmt.Errorf("%w: %s", ErrGatewayAddress, ip)
	}
	return nil
}

// Resolve finds the enforceable IP for a static-IP customer. Lookup order:
// the active static_ip_clients row, then the newest row of any status, then
// the customer detail record. Exhausting all sources is ErrNoIPFound.
func (r *Resolver) Resolve(ctx context.Context, customerID uint) (string, error) {
	var client models.StaticIPClient
	err := r.db.WithContext(ctx).
		Where("customer_id = ? AND status = ?", customerID, "active").
		Order("id DESC").
		First(&client).Error
	if err == nil {
		return r.CustomerIP(client.IPAddress), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("lookup static ip client: %w", err)
	}

	err = r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("id DESC").
		First(&client).Error
	if err == nil {
		r.log.Warnw("no active static ip record; using newest inactive one",
			"customer_id", customerID, "record_status", client.Status)
		return r.CustomerIP(client.IPAddress), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("lookup static ip client: %w", err)
	}

	// Last resort: some installations keep the address on the customer
	// detail row instead of static_ip_clients.
	var detail struct{ IPAddress string }
	err = r.db.WithContext(ctx).
		Table("customer_details").
		Select("ip_address").
		Where("customer_id = ? AND ip_address <> ''", customerID).
		Order("id DESC").
		Limit(1).
		Scan(&detail).Error
	if err != nil {
		return "", fmt.Errorf("lookup customer detail ip: %w", err)
	}
	if strings.TrimSpace(detail.IPAddress) != "" {
		return r.CustomerIP(detail.IPAddress), nil
	}
	return "", fmt.Errorf("%w: customer %d", ErrNoIPFound, customerID)
}

func splitCIDR(s string) (host string, prefixLen int, ok bool) {
	i := strings.Index(s, "/")
	if i < 0 {
		return s, 0, false
	}
	p, err := netip.ParsePrefix(s)
	if err != nil {
		return s[:i], 0, false
	}
	return s[:i], p.Bits(), true
}
