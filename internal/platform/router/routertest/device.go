// Package routertest provides an in-memory RouterOS device for tests. It
// speaks the same word protocol as the production client: command paths
// with /print /add /set /remove /move verbs, "?k=v" query filters and
// "=k=v" attribute words.
package routertest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/lintasdata/enforcer/internal/platform/router"
)

// Row is one object on the device (an address-list entry, a secret, a
// firewall rule, ...). Keys mirror RouterOS attribute names; ".id" is
// assigned by the device.
type Row = map[string]string

// Device is a fake RouterOS box. Zero value is usable. All methods are
// safe for concurrent use.
type Device struct {
	mu     sync.Mutex
	tables map[string][]Row
	nextID int

	// DialErr, when set, makes Dialer fail as if the device were down.
	DialErr error

	// Errors returned for an exact command path ("/ip/firewall/filter/add").
	// The command is NOT executed.
	ErrOn map[string]error

	// Errors returned for an exact command path AFTER executing it. This
	// reproduces devices that apply a write and still report an error, which
	// the provisioning verifier has to tolerate.
	ErrOnButApply map[string]error

	// DropWrites lists command paths that return success without touching
	// any table. This models the device acking a write it never applied,
	// which only a verification re-read can detect.
	DropWrites map[string]bool

	// Commands records every sentence run, for order assertions.
	Commands [][]string
}

// Dialer returns a router.Dialer that hands out connections to this device.
func (d *Device) Dialer() router.Dialer {
	return func(ctx context.Context, target router.Target) (router.Conn, error) {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.DialErr != nil {
			return nil, fmt.Errorf("%w: %v", router.ErrDeviceUnreachable, d.DialErr)
		}
		return &conn{d: d}, nil
	}
}

// Seed inserts rows into a table without recording commands. Path is the
// object path without a verb, e.g. "/ppp/secret".
func (d *Device) Seed(path string, rows ...Row) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range rows {
		d.insertLocked(path, r)
	}
}

// Rows returns a copy of a table for assertions.
func (d *Device) Rows(path string) []Row {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Row, 0, len(d.tables[path]))
	for _, r := range d.tables[path] {
		cp := Row{}
		for k, v := range r {
			cp[k] = v
		}
		out = append(out, cp)
	}
	return out
}

func (d *Device) insertLocked(path string, r Row) Row {
	if d.tables == nil {
		d.tables = map[string][]Row{}
	}
	if _, ok := r[".id"]; !ok {
		d.nextID++
		r[".id"] = "*" + strconv.FormatInt(int64(d.nextID), 16)
	}
	d.tables[path] = append(d.tables[path], r)
	return r
}

type conn struct {
	d      *Device
	closed bool
}

func (c *conn) Close() error {
	c.closed = true
	return nil
}

func (c *conn) Run(ctx context.Context, words ...string) ([]map[string]string, error) {
	if c.closed {
		return nil, fmt.Errorf("routertest: connection closed")
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("routertest: empty sentence")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d := c.d
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Commands = append(d.Commands, words)

	cmd := words[0]
	if err, ok := d.ErrOn[cmd]; ok && err != nil {
		return nil, err
	}
	if d.DropWrites[cmd] {
		return nil, nil
	}
	path, verb := splitVerb(cmd)
	filters, attrs := parseWords(words[1:])

	var rows []map[string]string
	var err error
	switch verb {
	case "print":
		rows = d.printLocked(path, filters)
	case "add":
		d.insertLocked(path, attrs)
	case "set":
		err = d.setLocked(path, attrs)
	case "remove":
		err = d.removeLocked(path, attrs)
	case "move":
		err = d.moveLocked(path, attrs)
	default:
		err = fmt.Errorf("routertest: unsupported verb %q in %q", verb, cmd)
	}
	if err != nil {
		return nil, err
	}
	if applyErr, ok := d.ErrOnButApply[cmd]; ok && applyErr != nil {
		return nil, applyErr
	}
	return rows, nil
}

func splitVerb(cmd string) (path, verb string) {
	i := strings.LastIndex(cmd, "/")
	if i < 0 {
		return cmd, ""
	}
	return cmd[:i], cmd[i+1:]
}

func parseWords(words []string) (filters, attrs map[string]string) {
	filters = map[string]string{}
	attrs = map[string]string{}
	for _, w := range words {
		if len(w) < 2 {
			continue
		}
		rest := w[1:]
		eq := strings.Index(rest, "=")
		if eq < 0 {
			continue
		}
		k, v := rest[:eq], rest[eq+1:]
		switch w[0] {
		case '?':
			filters[k] = v
		case '=':
			attrs[k] = v
		}
	}
	return filters, attrs
}

func (d *Device) printLocked(path string, filters map[string]string) []map[string]string {
	var out []map[string]string
	for _, r := range d.tables[path] {
		match := true
		for k, v := range filters {
			if r[k] != v {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		cp := map[string]string{}
		for k, v := range r {
			cp[k] = v
		}
		out = append(out, cp)
	}
	return out
}

func targetID(attrs map[string]string) string {
	if id := attrs[".id"]; id != "" {
		return id
	}
	return attrs["numbers"]
}

func (d *Device) setLocked(path string, attrs map[string]string) error {
	id := targetID(attrs)
	for _, r := range d.tables[path] {
		if r[".id"] != id {
			continue
		}
		for k, v := range attrs {
			if k == ".id" || k == "numbers" {
				continue
			}
			r[k] = v
		}
		return nil
	}
	return fmt.Errorf("routertest: set: no such item %q in %s", id, path)
}

func (d *Device) removeLocked(path string, attrs map[string]string) error {
	id := targetID(attrs)
	rows := d.tables[path]
	for i, r := range rows {
		if r[".id"] == id {
			d.tables[path] = append(rows[:i:i], rows[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("routertest: remove: no such item %q in %s", id, path)
}

// moveLocked reorders a rule to the given destination index, mirroring the
// firewall "move" verb closely enough for position-0 assertions.
func (d *Device) moveLocked(path string, attrs map[string]string) error {
	id := targetID(attrs)
	dest, err := strconv.Atoi(attrs["destination"])
	if err != nil {
		return fmt.Errorf("routertest: move: bad destination %q", attrs["destination"])
	}
	rows := d.tables[path]
	for i, r := range rows {
		if r[".id"] != id {
			continue
		}
		rows = append(rows[:i:i], rows[i+1:]...)
		if dest > len(rows) {
			dest = len(rows)
		}
		moved := make([]Row, 0, len(rows)+1)
		moved = append(moved, rows[:dest]...)
		moved = append(moved, r)
		moved = append(moved, rows[dest:]...)
		d.tables[path] = moved
		return nil
	}
	return fmt.Errorf("routertest: move: no such item %q in %s", id, path)
}
