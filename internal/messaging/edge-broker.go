package messaging

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/fisaks/rfedge/internal/logging"
	"github.com/fisaks/rfedge/internal/rfedge"
	"github.com/fisaks/rfedge/internal/state"
)

const (
	deviceCmdTopic = "device/+/cmd"
	edgeCmdTopic   = "cmd"
)

type EdgeBroker interface {
	Broker
	rfedge.EdgePublisher
	StartEdgeSubscriber(ctx context.Context, subscriber rfedge.EdgeSubscriber) error
}

type edgeBroker struct {
	Broker
	subscriber        rfedge.EdgeSubscriber
	edgeState         state.EdgeStateStore
	heartbeatInterval time.Duration
}

// NewEdgeBroker publishes catalog on every connect and deduplicates
// device states, republishing unchanged ones every heartbeatInterval.
func NewEdgeBroker(cfg BrokerConfig, catalog OnConnectPublisher, heartbeatInterval time.Duration) EdgeBroker {
	return newEdgeBroker(NewMsgBroker(cfg), catalog, heartbeatInterval)
}

func newEdgeBroker(broker Broker, catalog OnConnectPublisher, heartbeatInterval time.Duration) *edgeBroker {
	b := &edgeBroker{
		Broker:            broker,
		heartbeatInterval: heartbeatInterval,
		edgeState:         state.NewEdgeStateStore(),
	}
	if catalog != nil {
		b.AddOnConnectPublisher("catalog", catalog)
	}
	return b
}

func (b *edgeBroker) StartEdgeSubscriber(ctx context.Context, subscriber rfedge.EdgeSubscriber) error {
	b.subscriber = subscriber
	if _, err := b.Subscribe(ctx, deviceCmdTopic, AtLeastOnce, b.onDeviceCommand); err != nil {
		return err
	}
	_, err := b.Subscribe(ctx, edgeCmdTopic, AtLeastOnce, b.onCommand)
	return err
}

func (b *edgeBroker) PublishDeviceState(ctx context.Context, st rfedge.DeviceState) error {
	if !b.edgeState.NeedsPublish(st, b.heartbeatInterval) {
		return nil
	}
	logging.Debug("Publishing device state", "deviceState", st)
	err := b.PublishJSON(ctx, "device/"+st.Device+"/state", FireAndForget, true, st)
	if err == nil {
		b.edgeState.Update(st.Device, st)
	}
	return err
}

func (b *edgeBroker) ClearPublishedState() {
	b.edgeState.Clear()
}

func (b *edgeBroker) onDeviceCommand(ctx context.Context, topic string, payload []byte) {
	logging.Debug("Received cmd message", "topic", topic)
	// <prefix...>/device/<id>/cmd
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[len(parts)-1] != "cmd" || parts[len(parts)-3] != "device" {
		logging.Warn("cmd topic malformed", "topic", topic)
		return
	}
	device := parts[len(parts)-2]

	var in rfedge.IncomingDeviceCommand
	if err := json.Unmarshal(payload, &in); err != nil {
		logging.Warn("cmd json", "topic", topic, "error", err)
		return
	}
	in.Device = device
	if err := b.subscriber.OnDeviceCommand(ctx, in); err != nil {
		logging.Warn("cmd handling", "device", device, "error", err)
	}
}

func (b *edgeBroker) onCommand(ctx context.Context, topic string, payload []byte) {
	var in rfedge.IncomingCommand
	if err := json.Unmarshal(payload, &in); err != nil {
		logging.Warn("cmd json", "topic", topic, "error", err)
		return
	}
	if err := b.subscriber.OnCommand(ctx, in); err != nil {
		logging.Warn("cmd handling", "topic", topic, "error", err)
	}
}
