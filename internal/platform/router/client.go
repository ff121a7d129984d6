package router

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	routeros "github.com/go-routeros/routeros/v3"
	"go.uber.org/fx"
)

// ErrDeviceUnreachable wraps dial and transport failures so callers can
// distinguish "router down" from command-level errors with errors.Is.
var ErrDeviceUnreachable = errors.New("router device unreachable")

// Conn is a live RouterOS API session. Run sends one command sentence and
// returns the reply rows flattened to attribute maps (the "=key=value"
// words of each re-sentence).
type Conn interface {
	Run(ctx context.Context, words ...string) ([]map[string]string, error)
	Close() error
}

// Dialer opens a Conn against a device. Production wiring uses Dial;
// tests substitute routertest.Device.
type Dialer func(ctx context.Context, target Target) (Conn, error)

// Target identifies a device and the credentials to reach it.
type Target struct {
	Host        string
	Port        int
	Username    string
	Password    string
	DialTimeout time.Duration
}

func (t Target) Address() string {
	port := t.Port
	if port == 0 {
		port = 8728
	}
	return net.JoinHostPort(t.Host, strconv.Itoa(port))
}

type apiConn struct {
	c *routeros.Client
}

// Dial opens a RouterOS API session. Dial failures wrap ErrDeviceUnreachable.
func Dial(ctx context.Context, target Target) (Conn, error) {
	timeout := target.DialTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	c, err := routeros.DialTimeout(target.Address(), target.Username, target.Password, timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrDeviceUnreachable, target.Address(), err)
	}
	return &apiConn{c: c}, nil
}

func (a *apiConn) Run(ctx context.Context, words ...string) ([]map[string]string, error) {
	reply, err := a.c.RunContext(ctx, words...)
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]string, 0, len(reply.Re))
	for _, re := range reply.Re {
		rows = append(rows, re.Map)
	}
	return rows, nil
}

func (a *apiConn) Close() error {
	return a.c.Close()
}

var Module = fx.Options(
	fx.Provide(func() Dialer { return Dial }),
)
