package gpio

import "time"

const defaultSpinThreshold = 500 * time.Microsecond

// SpinWaiter sleeps for the bulk of a duration and busy-waits the rest.
// time.Sleep alone overshoots by tens of microseconds on a loaded kernel,
// which is a sizeable fraction of a 250µs base unit.
type SpinWaiter struct {
	Threshold time.Duration
}

func (w SpinWaiter) Wait(d time.Duration) {
	if d <= 0 {
		return
	}
	deadline := time.Now().Add(d)
	threshold := w.Threshold
	if threshold <= 0 {
		threshold = defaultSpinThreshold
	}
	if d > threshold {
		time.Sleep(d - threshold)
	}
	for time.Now().Before(deadline) {
	}
}
