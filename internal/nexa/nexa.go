// Package nexa encodes and transmits commands for Nexa/Proove self-learning
// power sockets.
//
// Bit pattern of one write:
//
//	S HHHH HHHH HHHH HHHH HHHH HHHH HHGO CCEE P
//
//	S sync, H sender id, G group (0 group, 1 unit), O mode (0 on, 1 off),
//	C channel (always 11), E unit (1=11, 2=01, 3=10), P pause.
package nexa

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fisaks/rfedge/internal/gpio"
)

const (
	PulseLength    = 250 * time.Microsecond
	SenderIDLength = 26
	CodeLength     = 32
	Repeats        = 5

	channel = "11"
)

var (
	ErrInvalidSenderID = errors.New("invalid nexa sender id")
	ErrIllegalSymbol   = errors.New("illegal symbol in nexa code")
)

var (
	syncPulse  = gpio.PulseSpec{High: 1, Low: 10}
	zeroPulse  = gpio.PulseSpec{High: 1, Low: 5}
	onePulse   = gpio.PulseSpec{High: 1, Low: 1}
	pausePulse = gpio.PulseSpec{High: 1, Low: 40}
)

type Unit int

const (
	UnitOne Unit = iota + 1
	UnitTwo
	UnitThree
)

func (u Unit) code() string {
	switch u {
	case UnitOne:
		return "11"
	case UnitTwo:
		return "01"
	case UnitThree:
		return "10"
	}
	return ""
}

func (u Unit) Valid() bool { return u.code() != "" }

type Mode int

const (
	On Mode = iota
	Off
)

func (m Mode) String() string {
	if m == Off {
		return "off"
	}
	return "on"
}

func (m Mode) bit() string {
	if m == Off {
		return "1"
	}
	return "0"
}

// LogicalCode is the 32 symbol string sent between sync and pause.
type LogicalCode string

// Waveform expands the code into its physical pulses: sync, two pulses per
// bit, pause.
func (c LogicalCode) Waveform() ([]gpio.PulseSpec, error) {
	if len(c) != CodeLength {
		return nil, fmt.Errorf("%w: code length %d", ErrIllegalSymbol, len(c))
	}
	out := make([]gpio.PulseSpec, 0, 2+2*CodeLength)
	out = append(out, syncPulse)
	for i := 0; i < len(c); i++ {
		switch c[i] {
		case '0':
			out = append(out, zeroPulse, onePulse)
		case '1':
			out = append(out, onePulse, zeroPulse)
		default:
			return nil, fmt.Errorf("%w: %q at %d", ErrIllegalSymbol, c[i], i)
		}
	}
	return append(out, pausePulse), nil
}

// Sender is one remote: a sender id sharing the output line with all others.
type Sender struct {
	name        string
	id          string
	line        *gpio.OutputLine
	pulseLength time.Duration
}

// NewSender validates id and binds it to line. A zero pulseLength selects
// PulseLength.
func NewSender(name, id string, line *gpio.OutputLine, pulseLength time.Duration) (*Sender, error) {
	if err := ValidateSenderID(id); err != nil {
		return nil, err
	}
	if pulseLength <= 0 {
		pulseLength = PulseLength
	}
	return &Sender{name: name, id: id, line: line, pulseLength: pulseLength}, nil
}

func ValidateSenderID(id string) error {
	if len(id) != SenderIDLength {
		return fmt.Errorf("%w: length %d, want %d", ErrInvalidSenderID, len(id), SenderIDLength)
	}
	if strings.Trim(id, "01") != "" {
		return fmt.Errorf("%w: %q is not a bit string", ErrInvalidSenderID, id)
	}
	return nil
}

func (s *Sender) Name() string { return s.name }
func (s *Sender) ID() string   { return s.id }

// Code composes the logical code. Group commands ignore unit and address
// every unit learned to this sender.
func (s *Sender) Code(wholeGroup bool, unit Unit, mode Mode) LogicalCode {
	group := "1"
	if wholeGroup {
		group = "0"
		unit = UnitOne
	}
	return LogicalCode(s.id + group + mode.bit() + channel + unit.code())
}

func (s *Sender) TurnDeviceOn(unit Unit) error  { return s.Set(unit, On) }
func (s *Sender) TurnDeviceOff(unit Unit) error { return s.Set(unit, Off) }
func (s *Sender) TurnGroupOn() error            { return s.SetGroup(On) }
func (s *Sender) TurnGroupOff() error           { return s.SetGroup(Off) }

func (s *Sender) Set(unit Unit, mode Mode) error {
	if !unit.Valid() {
		return fmt.Errorf("nexa sender %s: invalid unit %d", s.name, unit)
	}
	return s.write(s.Code(false, unit, mode))
}

func (s *Sender) SetGroup(mode Mode) error {
	return s.write(s.Code(true, UnitOne, mode))
}

func (s *Sender) write(code LogicalCode) error {
	waveform, err := code.Waveform()
	if err != nil {
		return err
	}
	return s.line.Transmit("nexa/"+s.name, func(seq *gpio.Sequencer) {
		for i := 0; i < Repeats; i++ {
			seq.Play(waveform, s.pulseLength)
		}
	})
}
