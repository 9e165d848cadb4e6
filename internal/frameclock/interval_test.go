package frameclock

import (
	"math/rand"
	"testing"
	"time"
)

func TestIntervalPrepare_NotReadyReportsDelay(t *testing.T) {
	clock := NewFakeClock()
	iv := NewInterval(clock.Now(), 60)

	ready, delay := iv.Prepare(clock.Now())
	if ready {
		t.Fatalf("expected interval not to be ready at its start")
	}
	if delay != 16*time.Millisecond {
		t.Fatalf("expected delay 16ms, got %v", delay)
	}

	clock.Advance(17 * time.Millisecond)
	ready, delay = iv.Prepare(clock.Now())
	if !ready || delay != 0 {
		t.Fatalf("expected ready with zero delay, got ready=%v delay=%v", ready, delay)
	}
}

func TestIntervalDispatch_CountsOnlyContinuingTicks(t *testing.T) {
	iv := NewInterval(NewFakeClock().Now(), 10)

	if !iv.Dispatch(func() bool { return true }) {
		t.Fatalf("expected dispatch to continue")
	}
	if iv.Frames() != 1 {
		t.Fatalf("expected 1 frame, got %d", iv.Frames())
	}
	if iv.Dispatch(func() bool { return false }) {
		t.Fatalf("expected dispatch to stop")
	}
	if iv.Frames() != 1 {
		t.Fatalf("expected stopped dispatch to leave frames at 1, got %d", iv.Frames())
	}
}

func TestIntervalPrepare_StallResyncs(t *testing.T) {
	clock := NewFakeClock()
	iv := NewInterval(clock.Now(), 10)

	clock.Advance(100 * time.Millisecond)
	if ready, _ := iv.Prepare(clock.Now()); !ready {
		t.Fatalf("expected first tick to be ready")
	}
	iv.Dispatch(func() bool { return true })

	// Ten tick lengths pass without anyone servicing the timer.
	clock.Advance(1000 * time.Millisecond)
	ready, delay := iv.Prepare(clock.Now())
	if !ready || delay != 0 {
		t.Fatalf("expected resync to report ready now, got ready=%v delay=%v", ready, delay)
	}
	if iv.Frames() != 0 {
		t.Fatalf("expected frame counter reset to 0, got %d", iv.Frames())
	}
	if iv.Resyncs() != 1 {
		t.Fatalf("expected one resync, got %d", iv.Resyncs())
	}
	if want := clock.Now().Add(-100 * time.Millisecond); !iv.Start().Equal(want) {
		t.Fatalf("expected start one tick before now (%v), got %v", want, iv.Start())
	}

	// Exactly one tick is owed after the resync, not ten.
	iv.Dispatch(func() bool { return true })
	ready, delay = iv.Prepare(clock.Now())
	if ready {
		t.Fatalf("expected no backlog after resync")
	}
	if delay != 100*time.Millisecond {
		t.Fatalf("expected a full tick of delay, got %v", delay)
	}
}

func TestIntervalPrepare_SmallLagReplays(t *testing.T) {
	clock := NewFakeClock()
	iv := NewInterval(clock.Now(), 10)

	clock.Advance(250 * time.Millisecond)
	ready, _ := iv.Prepare(clock.Now())
	if !ready {
		t.Fatalf("expected ready")
	}
	if iv.Resyncs() != 0 {
		t.Fatalf("expected a two tick lag to be replayed, not resynced")
	}
}

func TestIntervalPrepare_BackwardClockResyncs(t *testing.T) {
	clock := NewFakeClock()
	iv := NewInterval(clock.Now(), 10)

	for i := 0; i < 3; i++ {
		clock.Advance(100 * time.Millisecond)
		if ready, _ := iv.Prepare(clock.Now()); !ready {
			t.Fatalf("tick %d: expected ready", i)
		}
		iv.Dispatch(func() bool { return true })
	}

	clock.Advance(-250 * time.Millisecond)
	ready, delay := iv.Prepare(clock.Now())
	if !ready || delay != 0 {
		t.Fatalf("expected resync on backward time, got ready=%v delay=%v", ready, delay)
	}
	if iv.Frames() != 0 || iv.Resyncs() != 1 {
		t.Fatalf("expected reset counter and one resync, got frames=%d resyncs=%d", iv.Frames(), iv.Resyncs())
	}
}

func TestTimeoutInterval_FiresAtDelay(t *testing.T) {
	clock := NewFakeClock()
	iv := NewTimeoutInterval(clock.Now(), 300*time.Millisecond)

	clock.Advance(299 * time.Millisecond)
	if ready, _ := iv.Prepare(clock.Now()); ready {
		t.Fatalf("expected timeout not to fire before 300ms")
	}
	clock.Advance(time.Millisecond)
	if ready, _ := iv.Prepare(clock.Now()); !ready {
		t.Fatalf("expected timeout to fire at 300ms")
	}
}

func TestTimeoutInterval_LongDelayIsExact(t *testing.T) {
	clock := NewFakeClock()
	iv := NewTimeoutInterval(clock.Now(), 10*time.Minute)

	if got := iv.Period(); got != 600000 {
		t.Fatalf("expected period 600000ms, got %d", got)
	}
	clock.Advance(10*time.Minute - time.Millisecond)
	ready, delay := iv.Prepare(clock.Now())
	if ready || delay != time.Millisecond {
		t.Fatalf("expected 1ms left before the timeout, got ready=%v delay=%v", ready, delay)
	}
	clock.Advance(time.Millisecond)
	if ready, _ := iv.Prepare(clock.Now()); !ready {
		t.Fatalf("expected timeout to fire at 10m")
	}
}

func TestCompareExpiration_FasterRateSortsFirst(t *testing.T) {
	now := NewFakeClock().Now()
	slow := NewInterval(now, 10)
	fast := NewInterval(now, 30)

	if got := CompareExpiration(fast, slow); got >= 0 {
		t.Fatalf("expected 30Hz interval before 10Hz, got %d", got)
	}
	if got := CompareExpiration(slow, fast); got <= 0 {
		t.Fatalf("expected 10Hz interval after 30Hz, got %d", got)
	}
}

func TestCompareExpiration_StartOffsetShiftsSecondOperand(t *testing.T) {
	now := NewFakeClock().Now()
	a := NewInterval(now, 10)
	b := NewInterval(now.Add(-40*time.Millisecond), 10)

	// aNext = 100, bNext = 100 + (a.start - b.start) = 140
	if got := CompareExpiration(a, b); got != -1 {
		t.Fatalf("expected -1, got %d", got)
	}
	if got := CompareExpiration(b, a); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
}

func randomInterval(rng *rand.Rand, base time.Time) *Interval {
	rates := []uint{1, 5, 10, 24, 30, 60, 120}
	iv := NewInterval(base.Add(time.Duration(rng.Intn(2000))*time.Millisecond), rates[rng.Intn(len(rates))])
	iv.frames = int64(rng.Intn(50))
	return iv
}

func TestCompareExpiration_StrictWeakOrdering(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	base := NewFakeClock().Now()

	ivs := make([]*Interval, 40)
	for i := range ivs {
		ivs[i] = randomInterval(rng, base)
	}

	for _, a := range ivs {
		if CompareExpiration(a, a) != 0 {
			t.Fatalf("comparison is not irreflexive for %v", a)
		}
		for _, b := range ivs {
			ab, ba := CompareExpiration(a, b), CompareExpiration(b, a)
			if ab != -ba {
				t.Fatalf("inconsistent comparison: cmp(a,b)=%d cmp(b,a)=%d", ab, ba)
			}
			for _, c := range ivs {
				bc, ac := CompareExpiration(b, c), CompareExpiration(a, c)
				if ab < 0 && bc < 0 && ac >= 0 {
					t.Fatalf("ordering is not transitive")
				}
				if ab == 0 && bc == 0 && ac != 0 {
					t.Fatalf("equivalence is not transitive")
				}
			}
		}
	}
}
