// Package binder adds and removes the link-local IPv6 addresses the slot
// engine rotates through. The design note prefers talking to the kernel
// directly over netlink, falling back to shelling out to the "ip" utility
// only when the netlink path is unavailable (e.g. non-Linux, or insufficient
// privilege to open a NETLINK_ROUTE socket).
package binder

import (
	"net"

	"github.com/rng-ops/infrasim/internal/rerr"
)

// Binder adds and removes a /128 link-local address on a named interface.
// Implementations must treat "address already present" and "address already
// absent" as success: the slot engine calls Add/Remove once per slot
// transition and cannot distinguish a crash-restart from a fresh start, so
// both operations need to be idempotent.
type Binder interface {
	Add(iface string, addr net.IP) error
	Remove(iface string, addr net.IP) error
}

// New returns the best available Binder for the current platform: a
// netlink-backed implementation where supported, otherwise one that shells
// out to the "ip" command-line tool.
func New() Binder {
	if nl, err := newNetlinkBinder(); err == nil {
		return nl
	}
	return newSubprocessBinder()
}

// Scoped binds addr on iface, runs fn, and unconditionally releases addr
// afterward on every exit path from fn — including a panic — mirroring the
// slot engine's BIND -> BROADCAST/LISTEN -> UNBIND sequencing so callers
// (tests, the CLI's one-shot broadcast/discover commands) get the same
// bind-use-unbind discipline the daemon's long-running loop uses.
func Scoped(b Binder, iface string, addr net.IP, fn func() error) (fnErr error) {
	if err := b.Add(iface, addr); err != nil {
		return rerr.Binder("failed to bind address", err)
	}
	defer func() {
		removeErr := b.Remove(iface, addr)
		if r := recover(); r != nil {
			panic(r)
		}
		if removeErr != nil && fnErr == nil {
			fnErr = rerr.Binder("failed to unbind address", removeErr)
		}
	}()
	fnErr = fn()
	return fnErr
}
