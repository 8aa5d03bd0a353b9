// Package config loads the process-wide rendezvous configuration from a
// key=value text file and canonicalizes the mesh secret into the HMAC key
// address derivation uses.
package config

import (
	"github.com/rng-ops/infrasim/internal/rerr"
)

// DefaultConfigPath is the system-wide default used by both the daemon and
// the client CLI.
const DefaultConfigPath = "/etc/infrasim/rendezvous.conf"

// Config is the process-wide configuration, loaded once at startup.
type Config struct {
	MeshSecret     string // raw UTF-8 secret as read from the config file
	EpochSeconds   int
	SlotsPerEpoch  int
	SlotDurationMS int
	Interface      string
	MaxPeers       int
	PeerCallback   string
	DescriptorPath string
	PeersDir       string
}

// Default returns a Config with the reference daemon's defaults. MeshSecret
// is empty and must be supplied by the config file or the caller.
func Default() *Config {
	return &Config{
		EpochSeconds:   60,
		SlotsPerEpoch:  4,
		SlotDurationMS: 500,
		Interface:      "eth0",
		MaxPeers:       64,
		PeerCallback:   "",
		DescriptorPath: "/etc/infrasim/node-descriptor.json",
		PeersDir:       "/var/lib/infrasim/peer-descriptors",
	}
}

// Validate checks the loaded configuration against the constraints named in
// the data model: mesh_secret required & non-empty, epoch_seconds and
// slots_per_epoch positive, slot_duration_ms positive and no larger than one
// slot's worth of the epoch.
func (c *Config) Validate() error {
	if c.MeshSecret == "" {
		return rerr.Config("mesh_secret is required", nil)
	}
	if c.EpochSeconds <= 0 {
		return rerr.Config("epoch_seconds must be positive", nil)
	}
	if c.SlotsPerEpoch <= 0 {
		return rerr.Config("slots_per_epoch must be positive", nil)
	}
	if c.SlotDurationMS <= 0 {
		return rerr.Config("slot_duration_ms must be positive", nil)
	}
	maxSlotMS := c.EpochSeconds * 1000 / c.SlotsPerEpoch
	if c.SlotDurationMS > maxSlotMS {
		return rerr.Config("slot_duration_ms exceeds epoch_seconds*1000/slots_per_epoch", nil)
	}
	if c.MaxPeers <= 0 {
		return rerr.Config("max_peers must be positive", nil)
	}
	return nil
}

// MACKey returns the raw UTF-8 bytes of the mesh secret, the literal key
// HMAC-SHA256 address derivation uses. The only canonicalization applied is
// the string-to-bytes encoding done when the config file is read; the
// secret is never re-keyed or re-derived, so identical mesh_secret values
// on different nodes feed HMAC an identical key and therefore derive
// byte-identical rendezvous endpoints (Invariant 1).
func (c *Config) MACKey() ([]byte, error) {
	return []byte(c.MeshSecret), nil
}
