package config

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/rng-ops/infrasim/internal/rerr"
)

// LoadFromFile reads a key=value configuration file. Lines are processed as
// follows: leading/trailing whitespace is trimmed, blank lines and lines
// starting with '#' are skipped, and every remaining line is split on the
// FIRST '=' only — values may themselves contain '=' (e.g. base64 material)
// without needing escaping. Surrounding single or double quotes on the value
// are stripped. Unknown keys are ignored rather than rejected, so operators
// can carry forward comments or future keys without breaking old builds.
func LoadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, rerr.Config("failed to open config file", err)
	}
	defer f.Close()

	cfg := Default()

	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		idx := strings.IndexByte(line, '=')
		if idx < 0 {
			// Malformed line: no '=' present. Tolerated, not fatal.
			continue
		}

		key := strings.TrimSpace(line[:idx])
		value := unquote(strings.TrimSpace(line[idx+1:]))

		if err := processConfigOption(cfg, key, value); err != nil {
			return nil, rerr.Config("invalid value for "+key+" on line "+strconv.Itoa(lineNum), err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, rerr.Config("failed reading config file", err)
	}

	return cfg, nil
}

// unquote strips a single layer of matching single or double quotes.
func unquote(v string) string {
	if len(v) >= 2 {
		first, last := v[0], v[len(v)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			return v[1 : len(v)-1]
		}
	}
	return v
}

func processConfigOption(cfg *Config, key, value string) error {
	switch key {
	case "mesh_secret":
		cfg.MeshSecret = value
	case "epoch_seconds":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.EpochSeconds = n
	case "slots_per_epoch":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.SlotsPerEpoch = n
	case "slot_duration_ms":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.SlotDurationMS = n
	case "interface":
		cfg.Interface = value
	case "max_peers":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.MaxPeers = n
	case "peer_callback":
		cfg.PeerCallback = value
	case "descriptor_path":
		cfg.DescriptorPath = value
	case "peers_dir":
		cfg.PeersDir = value
	default:
		// Unknown key: tolerated, ignored.
	}
	return nil
}
