package clock

import (
	"testing"
	"time"
)

func TestManual_AdvanceFiresInOrder(t *testing.T) {
	start := time.Unix(0, 0)
	c := NewManual(start)

	var got []int
	c.AfterFunc(300*time.Millisecond, func() { got = append(got, 3) })
	c.AfterFunc(100*time.Millisecond, func() { got = append(got, 1) })
	c.AfterFunc(200*time.Millisecond, func() { got = append(got, 2) })

	c.Advance(250 * time.Millisecond)
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("expected [1 2], got %v", got)
	}
	if !c.Now().Equal(start.Add(250 * time.Millisecond)) {
		t.Fatalf("unexpected now: %v", c.Now())
	}

	c.Advance(time.Second)
	if len(got) != 3 || got[2] != 3 {
		t.Fatalf("expected third timer to fire, got %v", got)
	}
	if c.Pending() != 0 {
		t.Fatalf("expected no pending timers, got %d", c.Pending())
	}
}

func TestManual_StopPreventsFire(t *testing.T) {
	c := NewManual(time.Unix(0, 0))
	fired := false
	tm := c.AfterFunc(time.Second, func() { fired = true })

	if !tm.Stop() {
		t.Fatalf("expected first Stop to report true")
	}
	if tm.Stop() {
		t.Fatalf("expected second Stop to report false")
	}
	c.Advance(2 * time.Second)
	if fired {
		t.Fatalf("stopped timer fired")
	}
}

func TestManual_CallbackCanReschedule(t *testing.T) {
	c := NewManual(time.Unix(0, 0))
	n := 0
	var tick func()
	tick = func() {
		n++
		c.AfterFunc(100*time.Millisecond, tick)
	}
	c.AfterFunc(100*time.Millisecond, tick)

	c.Advance(550 * time.Millisecond)
	if n != 5 {
		t.Fatalf("expected 5 ticks, got %d", n)
	}
	if c.Pending() != 1 {
		t.Fatalf("expected the next tick to be pending, got %d", c.Pending())
	}
}
