package gpio

import (
	"errors"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/fisaks/rfedge/internal/logging"
)

// PulseSpec is one high period followed by one low period, both counted in
// protocol base units.
type PulseSpec struct {
	High uint
	Low  uint
}

// Inverse swaps the high and low counts.
func (p PulseSpec) Inverse() PulseSpec {
	return PulseSpec{High: p.Low, Low: p.High}
}

var ErrLineClosed = errors.New("output line closed")

// OutputLine owns the physical output. Transmissions are serialized: a
// transmission holds the line from its first pulse to its last repeat.
type OutputLine struct {
	mu     sync.Mutex
	pin    Pin
	waiter Waiter
	closed bool
}

// NewOutputLine wraps pin. A nil waiter falls back to the pin itself when it
// can wait (Recorder), otherwise to a SpinWaiter.
func NewOutputLine(pin Pin, waiter Waiter) *OutputLine {
	if waiter == nil {
		if w, ok := pin.(Waiter); ok {
			waiter = w
		} else {
			waiter = SpinWaiter{}
		}
	}
	pin.Set(Low)
	return &OutputLine{pin: pin, waiter: waiter}
}

// Transmit runs fn with exclusive access to the line. The line is left low
// and released on every exit path, including a panic inside fn.
func (l *OutputLine) Transmit(label string, fn func(seq *Sequencer)) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrLineClosed
	}
	runtime.LockOSThread()
	start := time.Now()
	defer func() {
		l.pin.Set(Low)
		runtime.UnlockOSThread()
		l.mu.Unlock()
		logging.Debug("Transmission finished", "label", label, "duration", time.Since(start))
	}()

	seq := &Sequencer{pin: l.pin, waiter: l.waiter}
	seq.HoldLow()
	fn(seq)
	return nil
}

// Close waits for the running transmission, drives the line low and releases
// the pin when it can be closed. Later transmissions fail with ErrLineClosed.
func (l *OutputLine) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	l.pin.Set(Low)
	if c, ok := l.pin.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Sequencer drives the line while a transmission holds it. It is only valid
// inside the Transmit callback that created it.
type Sequencer struct {
	pin    Pin
	waiter Waiter
}

func (s *Sequencer) HoldLow() {
	s.pin.Set(Low)
}

func (s *Sequencer) PulseHigh(d time.Duration) {
	s.pin.Set(High)
	s.waiter.Wait(d)
}

func (s *Sequencer) PulseLow(d time.Duration) {
	s.pin.Set(Low)
	s.waiter.Wait(d)
}

// Sleep waits without touching the line.
func (s *Sequencer) Sleep(d time.Duration) {
	s.waiter.Wait(d)
}

func (s *Sequencer) Pulse(p PulseSpec, unit time.Duration) {
	s.PulseHigh(time.Duration(p.High) * unit)
	s.PulseLow(time.Duration(p.Low) * unit)
}

func (s *Sequencer) Play(waveform []PulseSpec, unit time.Duration) {
	for _, p := range waveform {
		s.Pulse(p, unit)
	}
}
