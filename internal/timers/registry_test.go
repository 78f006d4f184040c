package timers

import (
	"testing"
	"time"

	"github.com/facebookgo/clock"
)

func TestInstallFires(t *testing.T) {
	clk := clock.NewMock()
	r := New(clk)

	fired := 0
	r.Install("a", time.Second, func() { fired++ })
	if !r.Pending("a") {
		t.Fatal("expected timer pending")
	}

	clk.Add(999 * time.Millisecond)
	if fired != 0 {
		t.Fatalf("fired early")
	}
	clk.Add(time.Millisecond)
	if fired != 1 {
		t.Fatalf("expected 1 fire, got %d", fired)
	}
	if r.Pending("a") {
		t.Error("expected entry removed after firing")
	}
}

func TestInstallSupersedes(t *testing.T) {
	clk := clock.NewMock()
	r := New(clk)

	var got []string
	r.Install("k", time.Second, func() { got = append(got, "first") })
	r.Install("k", 2*time.Second, func() { got = append(got, "second") })

	clk.Add(3 * time.Second)
	if len(got) != 1 || got[0] != "second" {
		t.Errorf("expected only the superseding timer to fire, got %v", got)
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	clk := clock.NewMock()
	r := New(clk)

	fired := false
	r.Install("k", time.Second, func() { fired = true })
	if !r.Cancel("k") {
		t.Error("expected first cancel to report a live timer")
	}
	if r.Cancel("k") {
		t.Error("expected second cancel to be a no-op")
	}
	clk.Add(2 * time.Second)
	if fired {
		t.Error("cancelled timer fired")
	}
}

func TestCancelAllAndClose(t *testing.T) {
	clk := clock.NewMock()
	r := New(clk)

	fired := 0
	r.Install("a", time.Second, func() { fired++ })
	r.Install("b", time.Second, func() { fired++ })
	r.CancelAll()
	if r.Pending("a") || r.Pending("b") {
		t.Error("expected every timer cancelled")
	}
	r.Close()
	r.Install("c", time.Second, func() { fired++ })

	clk.Add(5 * time.Second)
	if fired != 0 {
		t.Errorf("expected no fires, got %d", fired)
	}
	if r.Pending("c") {
		t.Error("expected install after close to be refused")
	}
}

func TestReinstallFromCallbackCanBeSuperseded(t *testing.T) {
	clk := clock.NewMock()
	r := New(clk)

	var got []string
	r.Install("k", time.Second, func() {
		got = append(got, "first")
		r.Install("k", time.Second, func() { got = append(got, "third") })
	})
	clk.Add(time.Second)
	r.Install("k", time.Second, func() { got = append(got, "second") })

	clk.Add(2 * time.Second)
	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Errorf("expected the reinstalled timer to be superseded, got %v", got)
	}
}

func TestCallbackMayReinstall(t *testing.T) {
	clk := clock.NewMock()
	r := New(clk)

	count := 0
	var tick func()
	tick = func() {
		count++
		if count < 3 {
			r.Install("tick", time.Second, tick)
		}
	}
	r.Install("tick", time.Second, tick)

	for i := 0; i < 5; i++ {
		clk.Add(time.Second)
	}
	if count != 3 {
		t.Errorf("expected 3 ticks, got %d", count)
	}
}
