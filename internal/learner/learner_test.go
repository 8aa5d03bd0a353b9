package learner

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rng-ops/infrasim/internal/descriptor"
	"github.com/rng-ops/infrasim/internal/logger"
	"github.com/rng-ops/infrasim/internal/wire"
)

func newTestLearner(t *testing.T, selfNodeID, callback string, maxPeers int) (*Learner, *descriptor.Store) {
	t.Helper()
	dir := t.TempDir()
	store, err := descriptor.NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore returned error: %v", err)
	}
	return New(logger.NewDefault(), selfNodeID, store, nil, callback, maxPeers), store
}

func frameFor(nodeID string) []byte {
	desc, _ := json.Marshal(map[string]any{"node_id": nodeID})
	return wire.Encode(desc, nil)
}

func TestHandleAcceptsNewPeer(t *testing.T) {
	l, store := newTestLearner(t, "self", "", 10)

	res, err := l.Handle(frameFor("peer-1"))
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !res.Accepted || res.NodeID != "peer-1" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if _, err := os.Stat(store.DescriptorPath("peer-1")); err != nil {
		t.Fatalf("expected descriptor persisted: %v", err)
	}
}

func TestHandleSuppressesSelfSighting(t *testing.T) {
	l, store := newTestLearner(t, "self-node", "", 10)

	res, err := l.Handle(frameFor("self-node"))
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if res.Accepted {
		t.Fatal("expected self-sighting to be suppressed")
	}
	if res.Reason != "self" {
		t.Fatalf("Reason = %q, want self", res.Reason)
	}
	if _, err := os.Stat(store.DescriptorPath("self-node")); !os.IsNotExist(err) {
		t.Fatal("expected self descriptor not to be persisted")
	}
}

func TestHandleDropsMalformedFrame(t *testing.T) {
	l, _ := newTestLearner(t, "self", "", 10)

	res, err := l.Handle([]byte{0x00, 0x00})
	if err != nil {
		t.Fatalf("Handle returned error for malformed frame: %v", err)
	}
	if res.Accepted {
		t.Fatal("expected malformed frame to be dropped, not accepted")
	}
	if res.Reason != "malformed" {
		t.Fatalf("Reason = %q, want malformed", res.Reason)
	}
}

func TestHandleEnforcesMaxPeersWithEviction(t *testing.T) {
	l, store := newTestLearner(t, "self", "", 2)

	for _, id := range []string{"peer-1", "peer-2", "peer-3"} {
		if _, err := l.Handle(frameFor(id)); err != nil {
			t.Fatalf("Handle(%s) returned error: %v", id, err)
		}
	}

	known := l.Known()
	if len(known) != 2 {
		t.Fatalf("expected exactly 2 known peers after eviction, got %v", known)
	}
	for _, id := range known {
		if id != "peer-2" && id != "peer-3" {
			t.Fatalf("expected only the 2 most recent peers retained, got %v", known)
		}
	}

	// The evicted peer's descriptor remains on disk (eviction only bounds
	// the in-memory known_peers tracking, not storage).
	if _, err := os.Stat(store.DescriptorPath("peer-1")); err != nil {
		t.Fatalf("expected evicted peer's descriptor to remain on disk: %v", err)
	}
}

func TestHandleDeduplicatesKnownPeer(t *testing.T) {
	l, _ := newTestLearner(t, "self", "", 10)

	first, err := l.Handle(frameFor("peer-1"))
	if err != nil || !first.Accepted {
		t.Fatalf("expected first sighting accepted: %+v, err=%v", first, err)
	}

	second, err := l.Handle(frameFor("peer-1"))
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if second.Accepted {
		t.Fatal("expected repeated sighting of a known peer not to be reported as newly accepted")
	}
	if second.Reason != "already_known" {
		t.Fatalf("Reason = %q, want already_known", second.Reason)
	}
}

func TestHandleSkipsPersistForKnownPeer(t *testing.T) {
	l, store := newTestLearner(t, "self", "", 10)

	if _, err := l.Handle(frameFor("peer-1")); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}

	descPath := store.DescriptorPath("peer-1")
	info1, err := os.Stat(descPath)
	if err != nil {
		t.Fatalf("expected descriptor persisted after first sighting: %v", err)
	}

	if _, err := l.Handle(frameFor("peer-1")); err != nil {
		t.Fatalf("Handle returned error on repeat sighting: %v", err)
	}

	info2, err := os.Stat(descPath)
	if err != nil {
		t.Fatalf("descriptor disappeared after repeat sighting: %v", err)
	}
	if !info1.ModTime().Equal(info2.ModTime()) {
		t.Fatal("expected repeat sighting of a known peer not to rewrite its descriptor file")
	}
}

func TestInvokeCallbackFailureIsNonFatal(t *testing.T) {
	dir := t.TempDir()
	callback := filepath.Join(dir, "nonexistent-callback-binary")

	l, _ := newTestLearner(t, "self", callback, 10)

	res, err := l.Handle(frameFor("peer-1"))
	if err != nil {
		t.Fatalf("Handle returned error despite callback being non-fatal: %v", err)
	}
	if !res.Accepted {
		t.Fatalf("expected peer to be accepted even though callback fails: %+v", res)
	}

	known := l.Known()
	if len(known) != 1 || known[0] != "peer-1" {
		t.Fatalf("expected peer-1 to remain known despite callback failure, got %v", known)
	}
}
