package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultValidateFailsWithoutSecret(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected Validate to reject missing mesh_secret")
	}
}

func TestValidateRejectsNonPositiveFields(t *testing.T) {
	base := func() *Config {
		c := Default()
		c.MeshSecret = "secret"
		return c
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"epoch_seconds", func(c *Config) { c.EpochSeconds = 0 }},
		{"slots_per_epoch", func(c *Config) { c.SlotsPerEpoch = 0 }},
		{"slot_duration_ms", func(c *Config) { c.SlotDurationMS = 0 }},
		{"slot_duration_ms_too_large", func(c *Config) { c.SlotDurationMS = 100000 }},
		{"max_peers", func(c *Config) { c.MaxPeers = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected Validate to reject %s", tc.name)
			}
		})
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	cfg := Default()
	cfg.MeshSecret = "secret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults plus secret to validate, got: %v", err)
	}
}

func TestMACKeyDeterministic(t *testing.T) {
	cfg := Default()
	cfg.MeshSecret = "test_secret_for_validation"

	k1, err := cfg.MACKey()
	if err != nil {
		t.Fatalf("MACKey returned error: %v", err)
	}
	k2, err := cfg.MACKey()
	if err != nil {
		t.Fatalf("MACKey returned error: %v", err)
	}
	if string(k1) != string(k2) {
		t.Fatal("expected MACKey to be deterministic for the same secret")
	}
	if string(k1) != cfg.MeshSecret {
		t.Fatalf("expected MACKey to be the raw mesh_secret bytes, got %q", k1)
	}
}

func TestMACKeyDiffersAcrossSecrets(t *testing.T) {
	c1 := Default()
	c1.MeshSecret = "secret-one"
	c2 := Default()
	c2.MeshSecret = "secret-two"

	k1, _ := c1.MACKey()
	k2, _ := c2.MACKey()
	if string(k1) == string(k2) {
		t.Fatal("expected different secrets to yield different MAC keys")
	}
}

func TestLoadFromFileParsesKeyValuePairs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rendezvous.conf")
	contents := `# rendezvous config
mesh_secret = "correct horse battery staple"
epoch_seconds=120
slots_per_epoch = 8
slot_duration_ms=250
interface = wg0
max_peers = 32
peer_callback = /usr/local/bin/on-peer
descriptor_path = /etc/infrasim/node.json
peers_dir = /var/lib/infrasim/peers

unknown_future_key = ignored
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile returned error: %v", err)
	}

	if cfg.MeshSecret != "correct horse battery staple" {
		t.Errorf("MeshSecret = %q", cfg.MeshSecret)
	}
	if cfg.EpochSeconds != 120 {
		t.Errorf("EpochSeconds = %d", cfg.EpochSeconds)
	}
	if cfg.SlotsPerEpoch != 8 {
		t.Errorf("SlotsPerEpoch = %d", cfg.SlotsPerEpoch)
	}
	if cfg.SlotDurationMS != 250 {
		t.Errorf("SlotDurationMS = %d", cfg.SlotDurationMS)
	}
	if cfg.Interface != "wg0" {
		t.Errorf("Interface = %q", cfg.Interface)
	}
	if cfg.MaxPeers != 32 {
		t.Errorf("MaxPeers = %d", cfg.MaxPeers)
	}
	if cfg.PeerCallback != "/usr/local/bin/on-peer" {
		t.Errorf("PeerCallback = %q", cfg.PeerCallback)
	}
	if cfg.DescriptorPath != "/etc/infrasim/node.json" {
		t.Errorf("DescriptorPath = %q", cfg.DescriptorPath)
	}
	if cfg.PeersDir != "/var/lib/infrasim/peers" {
		t.Errorf("PeersDir = %q", cfg.PeersDir)
	}
}

func TestLoadFromFileValueWithEmbeddedEquals(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rendezvous.conf")
	if err := os.WriteFile(path, []byte("mesh_secret=a=b=c\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile returned error: %v", err)
	}
	if cfg.MeshSecret != "a=b=c" {
		t.Fatalf("MeshSecret = %q, want a=b=c", cfg.MeshSecret)
	}
}

func TestLoadFromFileMissingFile(t *testing.T) {
	if _, err := LoadFromFile("/nonexistent/path/rendezvous.conf"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadFromFileTolerantOfMalformedLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rendezvous.conf")
	contents := "mesh_secret=ok\nthis line has no equals sign\nmax_peers=10\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile returned error: %v", err)
	}
	if cfg.MeshSecret != "ok" || cfg.MaxPeers != 10 {
		t.Fatalf("unexpected config after malformed line: %+v", cfg)
	}
}
