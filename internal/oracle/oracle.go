// Package oracle maps wall-clock time onto the (epoch, slot) coordinate
// system the rest of the rendezvous mechanism is keyed on.
package oracle

import "time"

// SlotKey identifies one rendezvous slot: the epoch number and the slot
// index within that epoch. It is the sole input (besides the mesh secret)
// to address derivation.
type SlotKey struct {
	Epoch uint64
	Slot  uint32
}

// Oracle converts wall-clock time into SlotKeys according to a fixed
// epoch/slot geometry. Every node configured with the same EpochSeconds and
// SlotsPerEpoch and a synchronized wall clock computes identical SlotKeys.
type Oracle struct {
	EpochSeconds  int
	SlotsPerEpoch int
}

// New constructs an Oracle, defaulting non-positive inputs to the reference
// daemon's defaults (60s epochs, 4 slots) so a zero-value Config never
// produces a divide-by-zero.
func New(epochSeconds, slotsPerEpoch int) Oracle {
	if epochSeconds <= 0 {
		epochSeconds = 60
	}
	if slotsPerEpoch <= 0 {
		slotsPerEpoch = 4
	}
	return Oracle{EpochSeconds: epochSeconds, SlotsPerEpoch: slotsPerEpoch}
}

// slotDuration returns the real-valued duration of one slot, in seconds.
func (o Oracle) slotDuration() float64 {
	return float64(o.EpochSeconds) / float64(o.SlotsPerEpoch)
}

// Current returns the SlotKey containing t and the time remaining until the
// slot boundary.
func (o Oracle) Current(t time.Time) (SlotKey, time.Duration) {
	sec := unixSeconds(t)
	epochSeconds := float64(o.EpochSeconds)

	epoch := uint64(sec / epochSeconds)
	within := mod(sec, epochSeconds)
	slotDur := o.slotDuration()
	slot := uint32(within / slotDur)
	if int(slot) >= o.SlotsPerEpoch {
		slot = uint32(o.SlotsPerEpoch - 1)
	}

	slotStart := float64(epoch)*epochSeconds + float64(slot)*slotDur
	slotEnd := slotStart + slotDur
	remaining := slotEnd - sec
	if remaining < 0 {
		remaining = 0
	}

	return SlotKey{Epoch: epoch, Slot: slot}, time.Duration(remaining * float64(time.Second))
}

// Upcoming returns the k SlotKeys immediately following the slot containing
// t (not including it), wrapping into subsequent epochs as needed.
func (o Oracle) Upcoming(t time.Time, k int) []SlotKey {
	current, _ := o.Current(t)
	out := make([]SlotKey, 0, k)
	epoch, slot := current.Epoch, current.Slot
	for i := 0; i < k; i++ {
		slot++
		if int(slot) >= o.SlotsPerEpoch {
			slot = 0
			epoch++
		}
		out = append(out, SlotKey{Epoch: epoch, Slot: slot})
	}
	return out
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func mod(a, b float64) float64 {
	m := a - b*float64(int64(a/b))
	if m < 0 {
		m += b
	}
	return m
}
