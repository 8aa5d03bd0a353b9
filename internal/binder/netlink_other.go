//go:build !linux

package binder

import "errors"

func newNetlinkBinder() (Binder, error) {
	return nil, errors.New("netlink binder not supported on this platform")
}
