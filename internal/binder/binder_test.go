package binder

import (
	"errors"
	"net"
	"testing"
)

type recordingBinder struct {
	added, removed []string
	addErr         error
	removeErr      error
}

func (r *recordingBinder) Add(iface string, addr net.IP) error {
	r.added = append(r.added, iface+"|"+addr.String())
	return r.addErr
}

func (r *recordingBinder) Remove(iface string, addr net.IP) error {
	r.removed = append(r.removed, iface+"|"+addr.String())
	return r.removeErr
}

func TestScopedBindsAndUnbindsOnSuccess(t *testing.T) {
	r := &recordingBinder{}
	addr := net.ParseIP("fe80::1")

	called := false
	err := Scoped(r, "eth0", addr, func() error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("Scoped returned error: %v", err)
	}
	if !called {
		t.Fatal("expected fn to be called")
	}
	if len(r.added) != 1 || len(r.removed) != 1 {
		t.Fatalf("expected exactly one add and one remove, got %v / %v", r.added, r.removed)
	}
}

func TestScopedUnbindsEvenWhenFnFails(t *testing.T) {
	r := &recordingBinder{}
	addr := net.ParseIP("fe80::1")
	fnErr := errors.New("fn failed")

	err := Scoped(r, "eth0", addr, func() error {
		return fnErr
	})
	if err != fnErr {
		t.Fatalf("expected Scoped to propagate fn's error, got %v", err)
	}
	if len(r.removed) != 1 {
		t.Fatalf("expected unbind attempted even though fn failed, got %v", r.removed)
	}
}

func TestScopedReturnsBindErrorWithoutCallingFn(t *testing.T) {
	r := &recordingBinder{addErr: errors.New("bind failed")}
	addr := net.ParseIP("fe80::1")

	called := false
	err := Scoped(r, "eth0", addr, func() error {
		called = true
		return nil
	})
	if err == nil {
		t.Fatal("expected error from failed bind")
	}
	if called {
		t.Fatal("expected fn not to be called when bind fails")
	}
}

func TestScopedUnbindsEvenWhenFnPanics(t *testing.T) {
	r := &recordingBinder{}
	addr := net.ParseIP("fe80::1")

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic to propagate out of Scoped")
			}
		}()
		Scoped(r, "eth0", addr, func() error {
			panic("boom")
		})
	}()

	if len(r.removed) != 1 {
		t.Fatalf("expected unbind attempted even though fn panicked, got %v", r.removed)
	}
}

func TestScopedPrefersFnErrorOverUnbindError(t *testing.T) {
	r := &recordingBinder{removeErr: errors.New("unbind failed")}
	addr := net.ParseIP("fe80::1")
	fnErr := errors.New("fn failed")

	err := Scoped(r, "eth0", addr, func() error {
		return fnErr
	})
	if err != fnErr {
		t.Fatalf("expected fn error to take priority, got %v", err)
	}
}
