package control

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/fisaks/rfedge/internal/dispatch"
	"github.com/fisaks/rfedge/internal/logging"
	"github.com/fisaks/rfedge/internal/registry"
	"github.com/fisaks/rfedge/internal/rfedge"
	"github.com/fisaks/rfedge/internal/util"
)

var (
	ErrDeviceNotFound   = errors.New("device not found")
	ErrRegistryDisabled = errors.New("device registry not configured")
)

// Repository is the part of the registry the controller needs.
type Repository interface {
	GetDevices(ctx context.Context) ([]registry.Device, error)
	GetDevice(ctx context.Context, id int64) (*registry.Device, error)
	UpdateDevice(ctx context.Context, d *registry.Device) error
}

// Controller turns requests from the outer surfaces into dispatcher calls.
// repo and publisher may be nil.
type Controller struct {
	dispatcher *dispatch.Dispatcher
	repo       Repository
	publisher  rfedge.EdgePublisher
	scheduler  CommandScheduler

	mu     sync.Mutex
	resync *ResyncPoller
}

func NewController(d *dispatch.Dispatcher, repo Repository, publisher rfedge.EdgePublisher) *Controller {
	c := &Controller{dispatcher: d, repo: repo, publisher: publisher}
	c.scheduler = NewCommandScheduler(c)
	d.Observe(c.publishOutcome)
	return c
}

// SetPublisher replaces the state publisher; the broker is created after
// the controller it delivers commands to.
func (c *Controller) SetPublisher(p rfedge.EdgePublisher) {
	c.publisher = p
}

func (c *Controller) Dispatcher() *dispatch.Dispatcher { return c.dispatcher }

// SetDevice applies action to device now. A positive delay instead arms a
// timer that turns the device off when it expires and returns at once.
func (c *Controller) SetDevice(ctx context.Context, device string, action dispatch.Action, delay time.Duration) error {
	if delay > 0 {
		logging.Info("Delayed off scheduled", "device", device, "delay", delay)
		_, err := c.scheduler.Schedule(DeviceCommand{Device: device, Action: dispatch.ActionOff}, delay)
		return err
	}
	logging.Info("Setting device", "device", device, "action", action)
	return c.dispatcher.Apply(ctx, device, action)
}

// SetRegisteredDevice is SetDevice for a registry device: the new state is
// stored, on the device and the devices it references, before transmitting.
func (c *Controller) SetRegisteredDevice(ctx context.Context, id int64, action dispatch.Action, delay time.Duration) (*registry.Device, error) {
	if c.repo == nil {
		return nil, ErrRegistryDisabled
	}
	dev, err := c.repo.GetDevice(ctx, id)
	if err != nil {
		return nil, err
	}
	if dev == nil {
		return nil, fmt.Errorf("%w: %d", ErrDeviceNotFound, id)
	}
	device := strconv.FormatInt(id, 10)

	if delay > 0 {
		logging.Info("Delayed off scheduled", "device", device, "delay", delay)
		_, err := c.scheduler.Schedule(DeviceCommand{Device: device, Action: dispatch.ActionOff, Registered: id}, delay)
		return dev, err
	}

	switch action {
	case dispatch.ActionOn:
		dev.CurrentState = true
	case dispatch.ActionOff:
		dev.CurrentState = false
	default:
		return nil, fmt.Errorf("%w: %s on a registered device", dispatch.ErrInvalidAction, action)
	}
	if err := c.repo.UpdateDevice(ctx, dev); err != nil {
		return nil, err
	}
	return dev, c.dispatcher.Apply(ctx, device, action)
}

// PushCommand runs a command whose timer expired.
func (c *Controller) PushCommand(cmd DeviceCommand) bool {
	ctx := context.Background()
	if cmd.Registered != 0 && c.repo != nil {
		dev, err := c.repo.GetDevice(ctx, cmd.Registered)
		switch {
		case err != nil:
			logging.Error("Delayed command lookup failed", "device", cmd.Device, "error", err)
		case dev != nil:
			dev.CurrentState = cmd.Action == dispatch.ActionOn
			if err := c.repo.UpdateDevice(ctx, dev); err != nil {
				logging.Error("Failed to store delayed state", "device", cmd.Device, "error", err)
			}
		}
	}
	if err := c.dispatcher.Apply(ctx, cmd.Device, cmd.Action); err != nil {
		logging.Warn("Delayed command rejected", "device", cmd.Device, "action", cmd.Action, "error", err)
		return false
	}
	logging.Info("Delayed command sent", "device", cmd.Device, "action", cmd.Action)
	return true
}

// OnDeviceCommand handles a command received over MQTT. Ids known to the
// registry go through SetRegisteredDevice so their state is stored. The
// action is not required when a delay is given.
func (c *Controller) OnDeviceCommand(ctx context.Context, command rfedge.IncomingDeviceCommand) error {
	logging.Debug("Received device command", "device", command.Device, "action", command.Action, "delaySec", command.DelaySec)
	delay := time.Duration(util.ToInt(command.DelaySec)) * time.Second
	action, err := dispatch.ParseAction(command.Action)
	if err != nil && delay <= 0 {
		return err
	}
	if id, ok := c.registered(ctx, command.Device); ok {
		_, err := c.SetRegisteredDevice(ctx, id, action, delay)
		return err
	}
	return c.SetDevice(ctx, command.Device, action, delay)
}

func (c *Controller) registered(ctx context.Context, device string) (int64, bool) {
	if c.repo == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(device, 10, 64)
	if err != nil {
		return 0, false
	}
	dev, err := c.repo.GetDevice(ctx, id)
	return id, err == nil && dev != nil
}

func (c *Controller) OnCommand(ctx context.Context, command rfedge.IncomingCommand) error {
	switch command.Action {
	case "resync":
		logging.Info("Received resync command")
		if c.publisher != nil {
			c.publisher.ClearPublishedState()
		}
		if p := c.resyncPoller(); p != nil {
			p.Trigger()
		} else {
			go c.Resync(context.WithoutCancel(ctx))
		}
		return nil
	}
	return fmt.Errorf("unknown command %q", command.Action)
}

// Resync re-sends the stored state of every registry device addressed by a
// single-unit target. Receivers that missed a command catch up this way.
func (c *Controller) Resync(ctx context.Context) {
	if c.repo == nil {
		return
	}
	devices, err := c.repo.GetDevices(ctx)
	if err != nil {
		logging.Error("Resync failed to read registry", "error", err)
		return
	}
	sent := 0
	for _, d := range devices {
		if ctx.Err() != nil {
			return
		}
		id := strconv.FormatInt(d.ID, 10)
		t, ok := c.dispatcher.Lookup(id)
		if !ok || !dispatch.Switchable(t) {
			continue
		}
		action := dispatch.ActionOff
		if d.CurrentState {
			action = dispatch.ActionOn
		}
		if err := c.dispatcher.Apply(ctx, id, action); err != nil {
			logging.Warn("Resync command rejected", "device", id, "error", err)
			continue
		}
		sent++
	}
	logging.Debug("Sending periodic update", "devices", sent)
}

// StartResync runs Resync every period until ctx is done.
func (c *Controller) StartResync(ctx context.Context, period time.Duration) {
	p := NewResyncPoller(period, c.Resync)
	c.mu.Lock()
	c.resync = p
	c.mu.Unlock()
	go p.Start(ctx)
}

func (c *Controller) resyncPoller() *ResyncPoller {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resync
}

// Stop drops pending delayed commands.
func (c *Controller) Stop() {
	c.scheduler.Stop()
}

func (c *Controller) publishOutcome(ctx context.Context, id string, t dispatch.Target, action dispatch.Action, err error) {
	if c.publisher == nil {
		return
	}
	state := rfedge.DeviceState{
		Timestamp: time.Now(),
		Device:    id,
		Kind:      t.Kind(),
		State:     string(action),
		Status:    "ok",
	}
	if err != nil {
		state.Status = "error"
		state.Error = err.Error()
	}
	if perr := c.publisher.PublishDeviceState(ctx, state); perr != nil {
		logging.Warn("Failed to publish state", "device", id, "error", perr)
	}
}
