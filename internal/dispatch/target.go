package dispatch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fisaks/rfedge/internal/nexa"
	"github.com/fisaks/rfedge/internal/rollo"
)

var (
	ErrUnknownDevice = errors.New("unknown device")
	ErrInvalidAction = errors.New("invalid action")
)

type Action string

const (
	ActionOn    Action = "on"
	ActionOff   Action = "off"
	ActionUp    Action = "up"
	ActionPause Action = "pause"
	ActionDown  Action = "down"
)

func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionOn, ActionOff, ActionUp, ActionPause, ActionDown:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAction, s)
}

// Target is where a device id sends its commands. The set of variants is
// closed; it is resolved once when the configuration is loaded.
type Target interface {
	Kind() string
	target()
}

// NexaUnit addresses one sub-unit of a sender.
type NexaUnit struct {
	Sender *nexa.Sender
	Unit   nexa.Unit
}

// NexaGroup addresses every unit learned to a sender.
type NexaGroup struct {
	Sender *nexa.Sender
}

// RolloDevice is a roller shutter motor; on and off map to up and down.
type RolloDevice struct {
	Device *rollo.Device
}

// Broadcast sends group commands to every sender, in order.
type Broadcast struct {
	Senders []*nexa.Sender
}

// Relay is a coil on a Modbus relay board.
type Relay struct {
	Bus    string
	UnitId uint8
	Coil   uint16
}

// Remote forwards the command to another automation host.
type Remote struct {
	Host   *RemoteHost
	Device string
}

func (NexaUnit) Kind() string    { return "nexa-unit" }
func (NexaGroup) Kind() string   { return "nexa-group" }
func (RolloDevice) Kind() string { return "rollo" }
func (Broadcast) Kind() string   { return "broadcast" }
func (Relay) Kind() string       { return "relay" }
func (Remote) Kind() string      { return "remote" }

func (NexaUnit) target()    {}
func (NexaGroup) target()   {}
func (RolloDevice) target() {}
func (Broadcast) target()   {}
func (Relay) target()       {}
func (Remote) target()      {}

// Switchable reports whether the target has a persistent on/off state that
// can be re-sent by the resync loop.
func Switchable(t Target) bool {
	switch t.(type) {
	case NexaUnit, Relay:
		return true
	}
	return false
}

func nexaMode(a Action) (nexa.Mode, error) {
	switch a {
	case ActionOn:
		return nexa.On, nil
	case ActionOff:
		return nexa.Off, nil
	}
	return 0, fmt.Errorf("%w: %s on a switch", ErrInvalidAction, a)
}

func rolloDirection(a Action) (rollo.Direction, error) {
	switch a {
	case ActionUp, ActionOn:
		return rollo.Up, nil
	case ActionDown, ActionOff:
		return rollo.Down, nil
	case ActionPause:
		return rollo.Pause, nil
	}
	return 0, fmt.Errorf("%w: %s on a shutter", ErrInvalidAction, a)
}
