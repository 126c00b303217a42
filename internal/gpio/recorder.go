package gpio

import (
	"runtime"
	"sync"
	"time"
)

// Event is one timed level hold on the line.
type Event struct {
	Level    Level
	Duration time.Duration
}

// Recorder is a Pin and Waiter that records instead of driving hardware.
// Wait returns immediately after yielding the processor, so concurrent
// writers get every chance to interleave.
type Recorder struct {
	mu     sync.Mutex
	level  Level
	events []Event
	limit  int
}

// NewRecorder keeps at most limit events, zero means unbounded.
func NewRecorder(limit int) *Recorder {
	return &Recorder{limit: limit}
}

func (r *Recorder) Set(level Level) {
	r.mu.Lock()
	r.level = level
	r.mu.Unlock()
}

func (r *Recorder) Wait(d time.Duration) {
	r.mu.Lock()
	r.events = append(r.events, Event{Level: r.level, Duration: d})
	if r.limit > 0 && len(r.events) > r.limit {
		r.events = r.events[len(r.events)-r.limit:]
	}
	r.mu.Unlock()
	runtime.Gosched()
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *Recorder) Level() Level {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.level
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// Expand converts a waveform into the events a Sequencer produces for it.
func Expand(waveform []PulseSpec, unit time.Duration) []Event {
	out := make([]Event, 0, 2*len(waveform))
	for _, p := range waveform {
		out = append(out,
			Event{Level: High, Duration: time.Duration(p.High) * unit},
			Event{Level: Low, Duration: time.Duration(p.Low) * unit},
		)
	}
	return out
}
