package interrupt

import (
	"testing"

	"nachos/testutils"
)

func TestSetLevelAdvancesClock(t *testing.T) {
	intr := New()
	before := intr.TotalTicks()
	intr.SetLevel(IntOff)
	intr.SetLevel(IntOn) // re-enabling costs one system tick
	intr.SetLevel(IntOff)
	intr.SetLevel(IntOn)
	if got := intr.TotalTicks() - before; got != 2*SystemTick {
		testutils.FatalHere(t, "clock advanced %d ticks, expected %d", got, 2*SystemTick)
	}
}

func TestScheduleFiresInOrder(t *testing.T) {
	intr := New()
	var fired []string
	intr.Schedule(func() { fired = append(fired, "late") }, 50, "late")
	intr.Schedule(func() { fired = append(fired, "early") }, 10, "early")

	intr.SetLevel(IntOff)
	intr.Idle()
	intr.SetLevel(IntOn)
	if len(fired) == 0 || fired[0] != "early" {
		testutils.FatalHere(t, "got %v, expected early first", fired)
	}

	intr.SetLevel(IntOff)
	for len(fired) < 2 {
		intr.Idle()
	}
	intr.SetLevel(IntOn)
	if fired[1] != "late" {
		testutils.FatalHere(t, "got %v, expected late second", fired)
	}
}

func TestIdleJumpsToPending(t *testing.T) {
	intr := New()
	fired := false
	intr.Schedule(func() { fired = true }, 500, "far")

	intr.SetLevel(IntOff)
	intr.Idle()
	intr.SetLevel(IntOn)
	if !fired {
		testutils.FatalHere(t, "idle did not reach the pending interrupt")
	}
	if intr.TotalTicks() < 500 {
		testutils.ErrorHere(t, "clock at %d, expected at least 500", intr.TotalTicks())
	}
}

func TestTimerRearms(t *testing.T) {
	intr := New()
	count := 0
	timer := NewTimer(intr, TimerTicks, func() { count++ })

	intr.SetLevel(IntOff)
	for count < 3 {
		intr.Idle()
	}
	timer.Stop()
	intr.SetLevel(IntOn)
	if count < 3 {
		testutils.FatalHere(t, "timer fired %d times, expected 3", count)
	}
}
