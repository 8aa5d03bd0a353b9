package engine

import (
	"testing"
	"time"

	"github.com/rng-ops/infrasim/internal/oracle"
)

func TestSlotStartMatchesOracleBoundary(t *testing.T) {
	o := oracle.New(60, 4)
	e := &Engine{oracle: o}

	// 27764400 minutes in seconds, an exact epoch boundary per the oracle's
	// own boundary test vector.
	refSeconds := int64(27764400 * 60)
	key, _ := o.Current(time.Unix(refSeconds, 0).UTC())

	start := e.slotStart(key)
	if start.Unix() != refSeconds {
		t.Fatalf("slotStart = %v, want unix seconds %d", start, refSeconds)
	}
}

func TestSlotStartAdvancesBySlotDuration(t *testing.T) {
	o := oracle.New(60, 4)
	e := &Engine{oracle: o}

	base := time.Unix(27764400*60, 0).UTC()
	key0, _ := o.Current(base)
	key1, _ := o.Current(base.Add(16 * time.Second))

	if key1.Slot != key0.Slot+1 {
		t.Fatalf("expected slot to advance by 1 after 16s, got %d -> %d", key0.Slot, key1.Slot)
	}

	start0 := e.slotStart(key0)
	start1 := e.slotStart(key1)
	if start1.Sub(start0) != 15*time.Second {
		t.Fatalf("expected 15s between slot starts (60s/4), got %v", start1.Sub(start0))
	}
}
