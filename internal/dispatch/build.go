package dispatch

import (
	"fmt"

	"github.com/fisaks/rfedge/internal/config"
	"github.com/fisaks/rfedge/internal/gpio"
	"github.com/fisaks/rfedge/internal/nexa"
	"github.com/fisaks/rfedge/internal/rollo"
)

// FromConfig builds every codec on line and resolves each configured device
// to its target. Codec construction errors are configuration errors.
func FromConfig(cfg *config.EdgeConfig, line *gpio.OutputLine, relays RelaySwitcher) (*Dispatcher, error) {
	senders := make(map[string]*nexa.Sender, len(cfg.Nexa))
	for _, n := range cfg.Nexa {
		bits, err := n.SenderBits()
		if err != nil {
			return nil, fmt.Errorf("nexa %s: %w", n.Name, err)
		}
		s, err := nexa.NewSender(n.Name, bits, line, n.PulseLength())
		if err != nil {
			return nil, fmt.Errorf("nexa %s: %w", n.Name, err)
		}
		senders[n.Name] = s
	}

	rollos := make(map[string]*rollo.Device, len(cfg.Rollo))
	for _, r := range cfg.Rollo {
		d, err := rollo.NewDevice(r.Name, r.Code, line, r.PulseLength())
		if err != nil {
			return nil, fmt.Errorf("rollo %s: %w", r.Name, err)
		}
		rollos[r.Name] = d
	}

	remotes := make(map[string]*RemoteHost, len(cfg.Remotes))
	for _, r := range cfg.Remotes {
		remotes[r.Name] = NewRemoteHost(r.Name, r.BaseURL, r.Timeout())
	}

	ids := make([]string, 0, len(cfg.Devices))
	targets := make(map[string]Target, len(cfg.Devices))
	for _, d := range cfg.Devices {
		t, err := resolve(d, senders, rollos, remotes)
		if err != nil {
			return nil, fmt.Errorf("device %s: %w", d.ID, err)
		}
		ids = append(ids, d.ID)
		targets[d.ID] = t
	}
	return New(ids, targets, relays), nil
}

func resolve(d config.DeviceConfig, senders map[string]*nexa.Sender, rollos map[string]*rollo.Device, remotes map[string]*RemoteHost) (Target, error) {
	sender := func(name string) (*nexa.Sender, error) {
		s, ok := senders[name]
		if !ok {
			return nil, fmt.Errorf("unknown nexa sender %q", name)
		}
		return s, nil
	}

	switch d.Kind {
	case config.KindNexaUnit:
		s, err := sender(d.Sender)
		if err != nil {
			return nil, err
		}
		unit := nexa.Unit(d.Unit)
		if !unit.Valid() {
			return nil, fmt.Errorf("invalid unit %d", d.Unit)
		}
		return NexaUnit{Sender: s, Unit: unit}, nil

	case config.KindNexaGroup:
		s, err := sender(d.Sender)
		if err != nil {
			return nil, err
		}
		return NexaGroup{Sender: s}, nil

	case config.KindBroadcast:
		b := Broadcast{Senders: make([]*nexa.Sender, 0, len(d.Senders))}
		for _, name := range d.Senders {
			s, err := sender(name)
			if err != nil {
				return nil, err
			}
			b.Senders = append(b.Senders, s)
		}
		return b, nil

	case config.KindRollo:
		r, ok := rollos[d.Rollo]
		if !ok {
			return nil, fmt.Errorf("unknown rollo %q", d.Rollo)
		}
		return RolloDevice{Device: r}, nil

	case config.KindRelay:
		return Relay{Bus: d.Bus, UnitId: d.UnitId, Coil: d.Coil}, nil

	case config.KindRemote:
		h, ok := remotes[d.Remote]
		if !ok {
			return nil, fmt.Errorf("unknown remote %q", d.Remote)
		}
		return Remote{Host: h, Device: d.RemoteDevice}, nil
	}
	return nil, fmt.Errorf("unknown kind %q", d.Kind)
}
