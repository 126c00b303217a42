package rfedge

import (
	"context"
	"time"
)

// DeviceState is the last command sent to a device. RF targets never
// report back, so State is what was transmitted, not what was observed.
type DeviceState struct {
	Timestamp time.Time `json:"timestamp"`
	Device    string    `json:"device"`
	Kind      string    `json:"kind"`
	State     string    `json:"state"`  // "on", "off", "up", "down", "pause"
	Status    string    `json:"status"` // "ok", "error"
	Error     string    `json:"error,omitempty"`
}

type IncomingDeviceCommand struct {
	ID       string `json:"id,omitempty"`
	Device   string `json:"device,omitempty"` // overridden by topic
	Action   string `json:"action"`
	DelaySec any    `json:"delaySec,omitempty"` // accept number or string
}

type IncomingCommand struct {
	Action string `json:"action"`
}

type EdgePublisher interface {
	PublishDeviceState(ctx context.Context, state DeviceState) error
	ClearPublishedState()
}

type EdgeSubscriber interface {
	OnDeviceCommand(ctx context.Context, command IncomingDeviceCommand) error
	OnCommand(ctx context.Context, command IncomingCommand) error
}
