// Package rollo encodes and transmits commands for tri-state roller shutter
// motors. Every symbol is sent as two pulses; a command is six writes of
// sync + sender code + direction suffix.
package rollo

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fisaks/rfedge/internal/gpio"
)

const (
	PulseLength = 250 * time.Microsecond
	Repeats     = 6
)

var (
	ErrInvalidCode      = errors.New("invalid rollo code")
	ErrIllegalSymbol    = errors.New("illegal rollo symbol")
	ErrUnknownDirection = errors.New("unknown rollo direction")
)

var syncPulse = gpio.PulseSpec{High: 18, Low: 6}

var (
	short = gpio.PulseSpec{High: 1, Low: 3}
	long  = gpio.PulseSpec{High: 3, Low: 1}
)

// symbols maps each symbol to its two pulses. 'Q' is never produced by a
// direction suffix but is kept so hand-written codes can use it.
var symbols = map[byte][2]gpio.PulseSpec{
	'0': {short, short},
	'1': {long, long},
	'F': {short, long},
	'Q': {long, short},
}

// Symbol returns the two pulses of one symbol.
func Symbol(c byte) ([2]gpio.PulseSpec, error) {
	p, ok := symbols[c]
	if !ok {
		return [2]gpio.PulseSpec{}, fmt.Errorf("%w: %q", ErrIllegalSymbol, c)
	}
	return p, nil
}

type Direction int

const (
	Up Direction = iota
	Pause
	Down
)

var suffixes = [...]string{Up: "F0F", Pause: "FFF", Down: "101"}

func (d Direction) Suffix() string {
	if d < Up || d > Down {
		return ""
	}
	return suffixes[d]
}

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Pause:
		return "pause"
	case Down:
		return "down"
	}
	return fmt.Sprintf("Direction(%d)", int(d))
}

// DirectionFromSuffix is the inverse of Suffix.
func DirectionFromSuffix(suffix string) (Direction, error) {
	for d, s := range suffixes {
		if s == suffix {
			return Direction(d), nil
		}
	}
	return 0, fmt.Errorf("%w: suffix %q", ErrUnknownDirection, suffix)
}

// ParseDirection accepts "up"/"u", "down"/"d" and "pause"/"p"/"stop".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up", "u":
		return Up, nil
	case "down", "d":
		return Down, nil
	case "pause", "p", "stop":
		return Pause, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownDirection, s)
}

// Waveform expands a full code (sender code + suffix) into sync and symbol
// pulses.
func Waveform(code string) ([]gpio.PulseSpec, error) {
	out := make([]gpio.PulseSpec, 0, 1+2*len(code))
	out = append(out, syncPulse)
	for i := 0; i < len(code); i++ {
		p, err := Symbol(code[i])
		if err != nil {
			return nil, err
		}
		out = append(out, p[0], p[1])
	}
	return out, nil
}

// Device is one learned motor code sharing the output line.
type Device struct {
	name        string
	code        string
	line        *gpio.OutputLine
	pulseLength time.Duration
}

// NewDevice validates code against the sender alphabet {0, 1, F}. A zero
// pulseLength selects PulseLength.
func NewDevice(name, code string, line *gpio.OutputLine, pulseLength time.Duration) (*Device, error) {
	if err := ValidateCode(code); err != nil {
		return nil, err
	}
	if pulseLength <= 0 {
		pulseLength = PulseLength
	}
	return &Device{name: name, code: code, line: line, pulseLength: pulseLength}, nil
}

func ValidateCode(code string) error {
	if code == "" {
		return fmt.Errorf("%w: empty", ErrInvalidCode)
	}
	if strings.Trim(code, "01F") != "" {
		return fmt.Errorf("%w: %q has symbols outside 0, 1, F", ErrInvalidCode, code)
	}
	return nil
}

func (d *Device) Name() string { return d.name }

func (d *Device) Code(dir Direction) string {
	return d.code + dir.Suffix()
}

func (d *Device) Send(dir Direction) error {
	if dir.Suffix() == "" {
		return fmt.Errorf("%w: %d", ErrUnknownDirection, int(dir))
	}
	waveform, err := Waveform(d.Code(dir))
	if err != nil {
		return err
	}
	return d.line.Transmit("rollo/"+d.name, func(seq *gpio.Sequencer) {
		for i := 0; i < Repeats; i++ {
			seq.Play(waveform, d.pulseLength)
		}
		seq.Sleep(d.pulseLength)
	})
}
