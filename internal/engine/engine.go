// Package engine runs the slot engine: the cooperative state machine that
// derives each slot's rendezvous endpoint, binds and unbinds the interface
// address, broadcasts the local descriptor, and listens for peers.
//
// Each tick walks IDLE -> DERIVE -> BIND -> BROADCAST -> LISTEN -> UNBIND ->
// IDLE. The engine is single-threaded by design: one goroutine owns the
// socket and the bound address for the lifetime of a slot, so there is
// never a window where two slots' addresses are bound simultaneously except
// during the brief neighbor-slot listen overlap described below.
package engine

import (
	"context"
	"net"
	"time"

	"golang.org/x/net/ipv6"

	"github.com/rng-ops/infrasim/internal/binder"
	"github.com/rng-ops/infrasim/internal/descriptor"
	"github.com/rng-ops/infrasim/internal/learner"
	"github.com/rng-ops/infrasim/internal/logger"
	"github.com/rng-ops/infrasim/internal/oracle"
	"github.com/rng-ops/infrasim/internal/rendezvous"
	"github.com/rng-ops/infrasim/internal/rerr"
	"github.com/rng-ops/infrasim/internal/wire"
)

// tickInterval is the cooperative scheduling granularity: how often the
// engine wakes to check whether the current slot has changed and to poll
// its socket for inbound frames.
const tickInterval = 10 * time.Millisecond

// receiveTimeout bounds each individual read attempt, so the engine loop
// blocks for at most this long (several ticks) on a socket that has
// nothing queued.
const receiveTimeout = 100 * time.Millisecond

// neighborListenFraction is the portion of a slot's duration, measured from
// the start of the current slot, during which the engine keeps listening on
// the immediately preceding slot's endpoint too. This covers peers whose
// clocks lag by less than one slot and would otherwise broadcast to an
// endpoint this node has already vacated.
const neighborListenFraction = 4 // listen on slot-1 for slot_duration/4

// Engine is the slot engine for one running node.
type Engine struct {
	log       *logger.Logger
	macKey    []byte
	iface     string
	oracle    oracle.Oracle
	slotMS    int
	binder    binder.Binder
	local     *descriptor.Local
	learner   *learner.Learner

	current      oracle.SlotKey
	currentBound bool
	currentAddr  net.IP
	primaryConn  *ipv6.PacketConn
	primaryUDP   *net.UDPConn

	neighborConn *ipv6.PacketConn
	neighborUDP  *net.UDPConn
	neighborAddr net.IP
	neighborOK   bool
}

// New constructs an Engine. macKey is the canonicalized mesh MAC key (see
// internal/config.Config.MACKey); local is the node's own descriptor,
// possibly absent (Present == false), in which case the engine still binds
// and listens each slot but never broadcasts.
func New(log *logger.Logger, macKey []byte, iface string, o oracle.Oracle, slotDurationMS int, b binder.Binder, local *descriptor.Local, l *learner.Learner) *Engine {
	return &Engine{
		log:     log.Component("engine"),
		macKey:  macKey,
		iface:   iface,
		oracle:  o,
		slotMS:  slotDurationMS,
		binder:  b,
		local:   local,
		learner: l,
	}
}

// Run drives the slot engine until ctx is canceled, at which point it
// unbinds whatever address is currently bound and returns.
func (e *Engine) Run(ctx context.Context) error {
	defer e.teardown()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if err := e.tick(now); err != nil && !rerr.IsRetryable(err) {
				return err
			}
		}
	}
}

// tick advances the state machine by one tick: if the current wall-clock
// slot has changed since the last tick, it runs the full
// DERIVE/BIND/BROADCAST/UNBIND transition; either way it polls the active
// sockets for inbound frames.
func (e *Engine) tick(now time.Time) error {
	key, _ := e.oracle.Current(now)

	if !e.currentBound || key != e.current {
		if err := e.transition(now, key); err != nil {
			e.log.Warn("slot transition failed", "error", err)
			return err
		}
	}

	e.pollOnce(e.primaryConn, e.primaryUDP)
	if e.neighborOK {
		e.pollOnce(e.neighborConn, e.neighborUDP)
		elapsed := now.Sub(e.slotStart(key))
		if elapsed > time.Duration(e.slotMS)*time.Millisecond/neighborListenFraction {
			e.closeNeighbor()
		}
	}

	return nil
}

// transition performs UNBIND (previous slot, demoted to the neighbor
// listener) -> DERIVE -> BIND -> BROADCAST -> LISTEN for the new slot.
func (e *Engine) transition(now time.Time, key oracle.SlotKey) error {
	slotLog := e.log.Slot(key.Epoch, key.Slot)

	prevConn, prevUDP, prevAddr := e.primaryConn, e.primaryUDP, e.currentAddr
	prevBound := e.currentBound

	endpoint := rendezvous.Derive(e.macKey, key)
	slotLog.Debug("derived rendezvous endpoint", "endpoint", endpoint.String())

	if err := e.binder.Add(e.iface, endpoint.Address); err != nil {
		return rerr.Binder("failed to bind rendezvous address", err)
	}

	udpConn, err := net.ListenUDP("udp6", &net.UDPAddr{IP: endpoint.Address, Port: endpoint.Port})
	if err != nil {
		e.binder.Remove(e.iface, endpoint.Address)
		return rerr.Socket("failed to listen on rendezvous endpoint", err)
	}
	pconn := ipv6.NewPacketConn(udpConn)
	pconn.SetControlMessage(ipv6.FlagInterface, true)

	if e.local != nil && e.local.Present {
		frame := wire.Encode(e.local.JSON, e.local.Signature)
		if err := e.broadcast(udpConn, endpoint, frame); err != nil {
			slotLog.Warn("broadcast failed", "error", err)
		}
	}

	e.primaryConn, e.primaryUDP, e.currentAddr = pconn, udpConn, endpoint.Address
	e.current, e.currentBound = key, true

	// Demote the previous slot's listener to the neighbor listener instead
	// of tearing it down immediately, so peers whose clocks lag slightly
	// still find a listening socket at the address they broadcast to.
	e.closeNeighbor()
	if prevBound {
		e.neighborConn, e.neighborUDP, e.neighborAddr = prevConn, prevUDP, prevAddr
		e.neighborOK = true
	} else if prevConn != nil {
		prevConn.Close()
	}

	return nil
}

// broadcast sends frame to the derived rendezvous endpoint itself — the
// destination every other node listening on this slot has bound and is
// reading from, per the wire protocol's (rendezvous_addr, rendezvous_port,
// 0, iface_scope_id) destination contract. A node's own broadcast loops
// back to its own listening socket the same way, which is what the
// self-suppression behavior in the peer learner exists to filter.
func (e *Engine) broadcast(conn *net.UDPConn, endpoint rendezvous.Endpoint, frame []byte) error {
	iface, err := net.InterfaceByName(e.iface)
	if err != nil {
		return rerr.Socket("failed to resolve broadcast interface", err)
	}
	dst := &net.UDPAddr{
		IP:   endpoint.Address,
		Port: endpoint.Port,
		Zone: iface.Name,
	}
	_, err = conn.WriteToUDP(frame, dst)
	if err != nil {
		return rerr.Socket("failed to send broadcast frame", err)
	}
	return nil
}

// pollOnce attempts a single bounded-duration read from conn and, on
// success, hands the payload to the learner. conn may be nil (nothing bound
// yet); this is not an error.
func (e *Engine) pollOnce(conn *ipv6.PacketConn, udp *net.UDPConn) {
	if conn == nil || udp == nil {
		return
	}

	buf := make([]byte, wire.MaxFrameSize)
	udp.SetReadDeadline(time.Now().Add(receiveTimeout))
	n, _, _, err := conn.ReadFrom(buf)
	if err != nil {
		return // timeout or transient read error; next tick retries
	}

	if _, err := e.learner.Handle(buf[:n]); err != nil {
		e.log.Warn("learner failed to handle frame", "error", err)
	}
}

func (e *Engine) slotStart(key oracle.SlotKey) time.Time {
	slotDur := float64(e.oracle.EpochSeconds) / float64(e.oracle.SlotsPerEpoch)
	epochStart := float64(key.Epoch) * float64(e.oracle.EpochSeconds)
	startSeconds := epochStart + float64(key.Slot)*slotDur
	return time.Unix(0, int64(startSeconds*float64(time.Second)))
}

func (e *Engine) closeNeighbor() {
	if !e.neighborOK {
		return
	}
	if e.neighborConn != nil {
		e.neighborConn.Close()
	}
	e.binder.Remove(e.iface, e.neighborAddr)
	e.neighborConn, e.neighborUDP, e.neighborOK = nil, nil, false
}

// teardown unbinds whatever address is currently bound, best-effort, on
// shutdown.
func (e *Engine) teardown() {
	e.closeNeighbor()
	if e.primaryConn != nil {
		e.primaryConn.Close()
	}
	if e.currentBound {
		if err := e.binder.Remove(e.iface, e.currentAddr); err != nil {
			e.log.Warn("failed to unbind address during shutdown", "error", err)
		}
	}
}
