package filter

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncerRunsOnlyLastCall(t *testing.T) {
	d := NewDebouncer(80 * time.Millisecond)

	var calls atomic.Int32
	got := make(chan string, 4)
	for _, q := range []string{"f", "fo", "fol", "follow"} {
		q := q
		d.Trigger(func() {
			calls.Add(1)
			got <- q
		})
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case q := <-got:
		if q != "follow" {
			t.Errorf("ran %q, want the last query", q)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("debounced call never ran")
	}

	time.Sleep(200 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Errorf("callback ran %d times, want 1", n)
	}
	if d.Pending() {
		t.Error("Pending after the call fired")
	}
}

func TestDebouncerStopCancels(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)

	var calls atomic.Int32
	d.Trigger(func() { calls.Add(1) })
	if !d.Pending() {
		t.Error("expected a pending call")
	}
	d.Stop()

	time.Sleep(60 * time.Millisecond)
	if n := calls.Load(); n != 0 {
		t.Errorf("stopped callback ran %d times", n)
	}
}

func TestDebouncerDefaultDelay(t *testing.T) {
	if d := NewDebouncer(0); d.delay != DefaultDebounce {
		t.Errorf("delay = %v, want %v", d.delay, DefaultDebounce)
	}
}
