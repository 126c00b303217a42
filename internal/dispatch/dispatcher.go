package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/fisaks/rfedge/internal/logging"
)

// Observer is told the outcome of every command that reached a target.
type Observer func(ctx context.Context, id string, t Target, action Action, err error)

// RelaySwitcher writes a relay coil.
type RelaySwitcher interface {
	SetRelay(ctx context.Context, bus string, unitId uint8, coil uint16, on bool) error
}

// Dispatcher maps device ids to targets and performs the blocking
// transmission. RF has no acknowledgement: a command that was sent is
// reported as accepted.
type Dispatcher struct {
	targets  map[string]Target
	order    []string
	relays   RelaySwitcher
	observer Observer
}

// New keeps ids in the order given; relays may be nil when no relay target
// is configured.
func New(ids []string, targets map[string]Target, relays RelaySwitcher) *Dispatcher {
	return &Dispatcher{targets: targets, order: ids, relays: relays}
}

// Observe installs fn as the result observer. Call before the dispatcher is
// shared.
func (d *Dispatcher) Observe(fn Observer) {
	d.observer = fn
}

func (d *Dispatcher) Lookup(id string) (Target, bool) {
	t, ok := d.targets[id]
	return t, ok
}

// IDs returns the configured device ids in configuration order.
func (d *Dispatcher) IDs() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// Apply sends action to the device. Unknown devices and transmission
// failures are logged and absorbed; only an action the target cannot
// perform is returned.
func (d *Dispatcher) Apply(ctx context.Context, id string, action Action) error {
	err := d.Send(ctx, id, action)
	switch {
	case errors.Is(err, ErrUnknownDevice):
		logging.Warn("Unknown device, command ignored", "device", id, "action", action)
		return nil
	case errors.Is(err, ErrInvalidAction):
		return err
	case err != nil:
		logging.Error("Command failed", "device", id, "action", action, "error", err)
	}
	if d.observer != nil {
		d.observer(ctx, id, d.targets[id], action, err)
	}
	return nil
}

// Send is Apply without absorbing errors.
func (d *Dispatcher) Send(ctx context.Context, id string, action Action) error {
	t, ok := d.targets[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}
	logging.Debug("Dispatching command", "device", id, "kind", t.Kind(), "action", action)

	switch t := t.(type) {
	case NexaUnit:
		mode, err := nexaMode(action)
		if err != nil {
			return err
		}
		return t.Sender.Set(t.Unit, mode)

	case NexaGroup:
		mode, err := nexaMode(action)
		if err != nil {
			return err
		}
		return t.Sender.SetGroup(mode)

	case Broadcast:
		mode, err := nexaMode(action)
		if err != nil {
			return err
		}
		var errs []error
		for _, s := range t.Senders {
			errs = append(errs, s.SetGroup(mode))
		}
		return errors.Join(errs...)

	case RolloDevice:
		dir, err := rolloDirection(action)
		if err != nil {
			return err
		}
		return t.Device.Send(dir)

	case Relay:
		if _, err := nexaMode(action); err != nil {
			return err
		}
		if d.relays == nil {
			return fmt.Errorf("relay %s: no modbus buses configured", id)
		}
		return d.relays.SetRelay(ctx, t.Bus, t.UnitId, t.Coil, action == ActionOn)

	case Remote:
		if _, err := nexaMode(action); err != nil {
			return err
		}
		return t.Host.Call(ctx, t.Device, string(action))
	}
	return fmt.Errorf("unhandled target %T", t)
}
