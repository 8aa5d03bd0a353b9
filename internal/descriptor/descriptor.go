// Package descriptor loads the local node descriptor and its detached
// signature, and persists received peer descriptors atomically.
package descriptor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/rng-ops/infrasim/internal/rerr"
)

// Descriptor is the opaque node descriptor JSON object. Only node_id is
// interpreted by the core; every other field is preserved verbatim.
type Descriptor struct {
	NodeID string
	Raw    map[string]any
}

// nodeIDPattern is the charset a node_id must match before it is allowed to
// touch disk: letters, digits, underscore, dot, hyphen.
var nodeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// ValidNodeID reports whether id is safe to use as a filename component.
func ValidNodeID(id string) bool {
	return id != "" && nodeIDPattern.MatchString(id)
}

// Parse decodes raw descriptor JSON, extracting node_id while preserving
// every other key verbatim for round-tripping to disk.
func Parse(raw []byte) (*Descriptor, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, rerr.Decode("descriptor is not valid JSON", err)
	}
	nodeID, _ := m["node_id"].(string)
	return &Descriptor{NodeID: nodeID, Raw: m}, nil
}

// Local holds the node's own descriptor and detached signature, loaded once
// at startup.
type Local struct {
	Descriptor *Descriptor
	JSON       []byte // canonical bytes as read from descriptor_path
	Signature  []byte // raw bytes from descriptor_path + ".sig", may be nil
	Present    bool   // false if descriptor_path did not exist
}

// LoadLocal reads the local node descriptor and its optional sibling
// signature file. A missing descriptor file is not an error: the daemon may
// still run, it just will not broadcast (Present will be false).
func LoadLocal(descriptorPath string) (*Local, error) {
	raw, err := os.ReadFile(descriptorPath)
	if os.IsNotExist(err) {
		return &Local{Present: false}, nil
	}
	if err != nil {
		return nil, rerr.Store("failed to read local descriptor", err)
	}

	d, err := Parse(raw)
	if err != nil {
		return nil, err
	}

	sig, err := os.ReadFile(descriptorPath + ".sig")
	if err != nil && !os.IsNotExist(err) {
		return nil, rerr.Store("failed to read local signature", err)
	}

	return &Local{Descriptor: d, JSON: raw, Signature: sig, Present: true}, nil
}

// Store writes newly learned peer descriptors to peers_dir.
type Store struct {
	PeersDir string
}

// NewStore creates a Store rooted at peersDir, creating the directory if
// necessary.
func NewStore(peersDir string) (*Store, error) {
	if err := os.MkdirAll(peersDir, 0o755); err != nil {
		return nil, rerr.Store("failed to create peers directory", err)
	}
	return &Store{PeersDir: peersDir}, nil
}

// DescriptorPath returns the path a peer's descriptor would be written to.
func (s *Store) DescriptorPath(nodeID string) string {
	return filepath.Join(s.PeersDir, nodeID+".json")
}

// SignaturePath returns the path a peer's signature sibling would be written to.
func (s *Store) SignaturePath(nodeID string) string {
	return filepath.Join(s.PeersDir, nodeID+".json.sig")
}

// WritePeer atomically persists a peer descriptor (pretty-printed JSON) and,
// if present, its detached signature. nodeID must already have been
// validated with ValidNodeID by the caller. Returns the path the descriptor
// was written to, for the peer callback's positional argument.
func (s *Store) WritePeer(nodeID string, raw map[string]any, signature []byte) (string, error) {
	if !ValidNodeID(nodeID) {
		return "", rerr.Store(fmt.Sprintf("refusing to persist invalid node_id %q", nodeID), nil)
	}

	pretty, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return "", rerr.Store("failed to marshal peer descriptor", err)
	}

	descPath := s.DescriptorPath(nodeID)
	if err := atomicWrite(s.PeersDir, descPath, pretty, 0o644); err != nil {
		return "", rerr.Store("failed to write peer descriptor", err)
	}

	if len(signature) > 0 {
		sigPath := s.SignaturePath(nodeID)
		if err := atomicWrite(s.PeersDir, sigPath, signature, 0o644); err != nil {
			return "", rerr.Store("failed to write peer signature", err)
		}
	}

	return descPath, nil
}

// atomicWrite writes data to a temp file in dir, then renames it into place,
// so a concurrent reader (the peer callback, or anyone else tailing
// peers_dir) never observes a half-written file.
func atomicWrite(dir, finalPath string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
