// Package learner implements peer discovery: decoding inbound frames,
// suppressing self-sightings, deduplicating against already-known peers,
// persisting newly learned descriptors, and invoking the configured peer
// callback.
package learner

import (
	"bytes"
	"container/list"
	"context"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rng-ops/infrasim/internal/descriptor"
	"github.com/rng-ops/infrasim/internal/logger"
	"github.com/rng-ops/infrasim/internal/rerr"
	"github.com/rng-ops/infrasim/internal/verify"
	"github.com/rng-ops/infrasim/internal/wire"
)

// callbackTimeout bounds how long the peer callback subprocess may run
// before it is killed; a hung callback must not stall the slot engine.
const callbackTimeout = 30 * time.Second

// Learner decodes inbound frames and tracks the set of known peers, bounded
// to MaxPeers with least-recently-seen eviction.
type Learner struct {
	log          *logger.Logger
	selfNodeID   string
	store        *descriptor.Store
	verifier     verify.Verifier // nil means no verification is configured
	callback     string
	maxPeers     int

	mu    sync.Mutex
	order *list.List               // front = most recently seen
	elems map[string]*list.Element // node_id -> element holding node_id
}

// New constructs a Learner. selfNodeID is the local node's own node_id, used
// to suppress self-sightings when this node's own broadcasts are received
// back (loopback, or a neighbor reflecting it). callback may be empty, in
// which case no external process is invoked on new peers. verifier may be
// nil, in which case every descriptor is accepted without signature
// verification (the core's default, pluggable-trust posture).
func New(log *logger.Logger, selfNodeID string, store *descriptor.Store, verifier verify.Verifier, callback string, maxPeers int) *Learner {
	return &Learner{
		log:        log.Component("learner"),
		selfNodeID: selfNodeID,
		store:      store,
		verifier:   verifier,
		callback:   callback,
		maxPeers:   maxPeers,
		order:      list.New(),
		elems:      make(map[string]*list.Element),
	}
}

// Result summarizes the outcome of handling one inbound frame, for logging
// and testing.
type Result struct {
	NodeID   string
	Accepted bool   // false if self-sighting, duplicate, or malformed
	Pending  bool   // true if stored under pending/ due to failed verification
	Reason   string
}

// Handle processes one inbound UDP payload. It never returns an error for
// malformed or untrusted input — those are logged and reflected in Result —
// only for conditions that prevent the learner from functioning at all
// (e.g. the peer store itself failing).
func (l *Learner) Handle(frame []byte) (Result, error) {
	signature, descriptorJSON, err := wire.Decode(frame)
	if err != nil {
		l.log.Debug("dropping malformed frame", "error", err)
		return Result{Reason: "malformed"}, nil
	}

	d, err := descriptor.Parse(descriptorJSON)
	if err != nil {
		l.log.Debug("dropping undecodable descriptor", "error", err)
		return Result{Reason: "undecodable"}, nil
	}

	if !descriptor.ValidNodeID(d.NodeID) {
		l.log.Debug("dropping descriptor with invalid node_id", "node_id", d.NodeID)
		return Result{NodeID: d.NodeID, Reason: "invalid_node_id"}, nil
	}

	if d.NodeID == l.selfNodeID {
		return Result{NodeID: d.NodeID, Reason: "self"}, nil
	}

	pending := false
	if l.verifier != nil {
		if verr := l.verifier.Verify(descriptorJSON, signature); verr != nil {
			l.log.Debug("descriptor failed verification, demoting to pending", "node_id", d.NodeID, "error", verr)
			pending = true
		}
	}

	l.mu.Lock()
	alreadyKnown := false
	if el, ok := l.elems[d.NodeID]; ok {
		alreadyKnown = true
		l.order.MoveToFront(el)
	}
	l.mu.Unlock()

	if alreadyKnown {
		// Already handled in this process lifetime (§4.7 step 4): drop
		// before the persist step, not just before remember/callback.
		return Result{NodeID: d.NodeID, Reason: "already_known"}, nil
	}

	store := l.store
	if pending {
		store = l.pendingStore()
	}

	path, err := store.WritePeer(d.NodeID, d.Raw, signature)
	if err != nil {
		return Result{NodeID: d.NodeID, Reason: "store_failed"}, err
	}

	l.remember(d.NodeID)
	l.invokeCallback(d.NodeID, path, pending)

	return Result{NodeID: d.NodeID, Accepted: true, Pending: pending}, nil
}

// pendingStore returns a Store rooted at a "pending" subdirectory of the
// main peers_dir, used for descriptors that failed signature verification.
func (l *Learner) pendingStore() *descriptor.Store {
	s, err := descriptor.NewStore(l.store.PeersDir + "/pending")
	if err != nil {
		// Falling back to the main store is preferable to dropping the
		// descriptor entirely; the callback argument convention below still
		// marks it as unverified via the Pending flag on the frame path.
		return l.store
	}
	return s
}

// remember records nodeID as seen, evicting the least-recently-seen entry
// if MaxPeers would be exceeded.
func (l *Learner) remember(nodeID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	el := l.order.PushFront(nodeID)
	l.elems[nodeID] = el

	for l.order.Len() > l.maxPeers {
		back := l.order.Back()
		if back == nil {
			break
		}
		evicted := back.Value.(string)
		l.order.Remove(back)
		delete(l.elems, evicted)
		l.log.Debug("evicted peer to stay within max_peers", "node_id", evicted)
	}
}

// Known returns the node_ids currently tracked, most-recently-seen first.
func (l *Learner) Known() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids := make([]string, 0, l.order.Len())
	for e := l.order.Front(); e != nil; e = e.Next() {
		ids = append(ids, e.Value.(string))
	}
	return ids
}

// invokeCallback runs the configured peer_callback, parsed as a
// whitespace-separated argv per the callback contract, with the persisted
// descriptor path appended as its final positional argument; when the
// descriptor was demoted to pending storage, "pending" is appended after
// that as a documented extension of the same contract (see DESIGN.md).
// Failures are logged, never fatal: the peer stays known regardless of
// callback outcome.
func (l *Learner) invokeCallback(nodeID, descriptorPath string, pending bool) {
	argv := strings.Fields(l.callback)
	if len(argv) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), callbackTimeout)
	defer cancel()

	args := append(append([]string{}, argv[1:]...), descriptorPath)
	if pending {
		args = append(args, "pending")
	}

	cmd := exec.CommandContext(ctx, argv[0], args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		cbErr := rerr.Callback("peer callback failed", err)
		l.log.Warn("peer callback failed", "node_id", nodeID, "error", cbErr, "stderr", stderr.String())
	}
}
