package gpio

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const unit = 250 * time.Microsecond

func TestSequencerRecordsPulses(t *testing.T) {
	rec := NewRecorder(0)
	line := NewOutputLine(rec, nil)

	line.Transmit("test", func(seq *Sequencer) {
		seq.Pulse(PulseSpec{High: 1, Low: 10}, unit)
		seq.PulseHigh(3 * unit)
		seq.PulseLow(unit)
		seq.Sleep(unit)
	})

	require.Equal(t, []Event{
		{Level: High, Duration: unit},
		{Level: Low, Duration: 10 * unit},
		{Level: High, Duration: 3 * unit},
		{Level: Low, Duration: unit},
		{Level: Low, Duration: unit},
	}, rec.Events())
	require.Equal(t, Low, rec.Level())
}

func TestTransmitLeavesLineLowAfterPanic(t *testing.T) {
	rec := NewRecorder(0)
	line := NewOutputLine(rec, nil)

	require.Panics(t, func() {
		line.Transmit("boom", func(seq *Sequencer) {
			seq.PulseHigh(unit)
			panic("boom")
		})
	})
	require.Equal(t, Low, rec.Level())

	// the lock was released, so a second transmission goes through
	done := make(chan struct{})
	go func() {
		line.Transmit("after", func(seq *Sequencer) { seq.PulseHigh(unit) })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("line still locked after panic")
	}
}

func TestConcurrentTransmissionsDoNotInterleave(t *testing.T) {
	rec := NewRecorder(0)
	line := NewOutputLine(rec, nil)

	a := make([]PulseSpec, 50)
	b := make([]PulseSpec, 50)
	for i := range a {
		a[i] = PulseSpec{High: 1, Low: 3}
		b[i] = PulseSpec{High: 3, Low: 1}
	}

	var wg sync.WaitGroup
	start := make(chan struct{})
	for _, wf := range [][]PulseSpec{a, b} {
		wg.Add(1)
		go func(wf []PulseSpec) {
			defer wg.Done()
			<-start
			line.Transmit("concurrent", func(seq *Sequencer) { seq.Play(wf, unit) })
		}(wf)
	}
	close(start)
	wg.Wait()

	ea, eb := Expand(a, unit), Expand(b, unit)
	got := rec.Events()
	require.Len(t, got, len(ea)+len(eb))
	if got[0] == ea[0] {
		require.Equal(t, append(ea, eb...), got)
	} else {
		require.Equal(t, append(eb, ea...), got)
	}
}

type closingRecorder struct {
	*Recorder
	closed chan struct{}
}

func (c *closingRecorder) Close() error {
	close(c.closed)
	return nil
}

func TestCloseWaitsForRunningTransmission(t *testing.T) {
	rec := &closingRecorder{Recorder: NewRecorder(0), closed: make(chan struct{})}
	line := NewOutputLine(rec, rec.Recorder)

	started := make(chan struct{})
	finish := make(chan struct{})
	sent := make(chan error, 1)
	go func() {
		sent <- line.Transmit("long", func(seq *Sequencer) {
			seq.PulseHigh(unit)
			close(started)
			<-finish
			seq.PulseHigh(unit)
		})
	}()
	<-started

	closed := make(chan error, 1)
	go func() { closed <- line.Close() }()

	select {
	case <-rec.closed:
		t.Fatal("pin released during a transmission")
	case <-time.After(50 * time.Millisecond):
	}
	require.Equal(t, High, rec.Level())

	close(finish)
	require.NoError(t, <-sent)
	require.NoError(t, <-closed)
	<-rec.closed
	require.Equal(t, Low, rec.Level())

	require.ErrorIs(t, line.Transmit("late", func(seq *Sequencer) { seq.PulseHigh(unit) }), ErrLineClosed)
	require.Equal(t, Low, rec.Level())
	require.NoError(t, line.Close())
}

func TestPulseSpecInverse(t *testing.T) {
	require.Equal(t, PulseSpec{High: 3, Low: 1}, PulseSpec{High: 1, Low: 3}.Inverse())
}

func TestRecorderLimit(t *testing.T) {
	rec := NewRecorder(2)
	rec.Wait(unit)
	rec.Wait(2 * unit)
	rec.Wait(3 * unit)
	require.Equal(t, []Event{{Level: Low, Duration: 2 * unit}, {Level: Low, Duration: 3 * unit}}, rec.Events())
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open("bogus", 17)
	require.ErrorIs(t, err, ErrHardwareUnavailable)
}

func TestSpinWaiterWaitsAtLeastDuration(t *testing.T) {
	start := time.Now()
	SpinWaiter{}.Wait(2 * time.Millisecond)
	require.GreaterOrEqual(t, time.Since(start), 2*time.Millisecond)
}
