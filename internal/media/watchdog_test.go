// SPDX-License-Identifier: MIT

package media

import (
	"strings"
	"testing"
	"time"
)

// fakeClock drives progressWatch deterministically.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestWatch(start, stall time.Duration) (*progressWatch, *fakeClock) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	return newProgressWatch(start, stall, clk.now), clk
}

func TestWatchSplitWrites(t *testing.T) {
	w, clk := newTestWatch(10*time.Second, 10*time.Second)

	// A single progress record arriving byte by byte must still count as a beat.
	for _, b := range []byte("out_time_ms=500000\n") {
		if _, err := w.Write([]byte{b}); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	clk.advance(9 * time.Second)
	if err := w.check(); err != nil {
		t.Fatalf("check after beat: %v", err)
	}
}

func TestWatchStartTimeout(t *testing.T) {
	w, clk := newTestWatch(5*time.Second, 60*time.Second)

	clk.advance(4 * time.Second)
	if err := w.check(); err != nil {
		t.Fatalf("within start budget: %v", err)
	}
	clk.advance(2 * time.Second)
	err := w.check()
	if err == nil {
		t.Fatal("expected start timeout")
	}
	if !strings.Contains(err.Error(), "of start") {
		t.Errorf("err = %v, want start-phase message", err)
	}
}

func TestWatchStallAfterStart(t *testing.T) {
	w, clk := newTestWatch(5*time.Second, 5*time.Second)

	if _, err := w.Write([]byte("out_time_ms=1000000\nprogress=continue\n")); err != nil {
		t.Fatal(err)
	}
	clk.advance(4 * time.Second)

	// Same out_time again is not forward progress.
	if _, err := w.Write([]byte("out_time_ms=1000000\n")); err != nil {
		t.Fatal(err)
	}
	clk.advance(2 * time.Second)
	if err := w.check(); err == nil {
		t.Fatal("expected stall error")
	}

	// A growing total_size alone keeps the stream alive.
	if _, err := w.Write([]byte("total_size=4096\n")); err != nil {
		t.Fatal(err)
	}
	if err := w.check(); err != nil {
		t.Fatalf("after size beat: %v", err)
	}
}

func TestWatchEndSuppressesStall(t *testing.T) {
	w, clk := newTestWatch(time.Second, time.Second)

	if _, err := w.Write([]byte("out_time_ms=1\nprogress=end\n")); err != nil {
		t.Fatal(err)
	}
	clk.advance(time.Hour)
	if err := w.check(); err != nil {
		t.Fatalf("check after end: %v", err)
	}
}

func TestWatchIgnoresGarbage(t *testing.T) {
	w, clk := newTestWatch(2*time.Second, 2*time.Second)

	if _, err := w.Write([]byte("frame 12\nout_time_ms=abc\nspeed=1.0x\n")); err != nil {
		t.Fatal(err)
	}
	clk.advance(3 * time.Second)
	if err := w.check(); err == nil {
		t.Fatal("garbage lines must not count as progress")
	}
}
