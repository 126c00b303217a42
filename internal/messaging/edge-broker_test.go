package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fisaks/rfedge/internal/rfedge"
)

type published struct {
	topic  string
	retain bool
	body   []byte
}

type fakeBroker struct {
	mu        sync.Mutex
	prefix    string
	out       []published
	handlers  map[string]func(context.Context, string, []byte)
	onConnect map[string]OnConnectPublisher
	failNext  bool
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		prefix:    "rfedge/pi",
		handlers:  map[string]func(context.Context, string, []byte){},
		onConnect: map[string]OnConnectPublisher{},
	}
}

func (f *fakeBroker) Connect(context.Context) error { return nil }
func (f *fakeBroker) Close(context.Context) error   { return nil }
func (f *fakeBroker) IsConnected() bool             { return true }

func (f *fakeBroker) Topic(parts ...string) string {
	return (&MsgBroker{config: BrokerConfig{TopicPrefix: f.prefix}}).Topic(parts...)
}

func (f *fakeBroker) Publish(_ context.Context, topic string, _ QoS, retain bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return errors.New("not connected")
	}
	f.out = append(f.out, published{f.Topic(topic), retain, payload})
	return nil
}

func (f *fakeBroker) PublishJSON(ctx context.Context, topic string, qos QoS, retain bool, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return f.Publish(ctx, topic, qos, retain, b)
}

func (f *fakeBroker) Subscribe(_ context.Context, topic string, _ QoS, h func(context.Context, string, []byte)) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[f.Topic(topic)] = h
	return nil, nil
}

func (f *fakeBroker) AddOnConnectPublisher(id string, fn OnConnectPublisher) {
	f.onConnect[id] = fn
}

func (f *fakeBroker) deliver(filter, topic, payload string) {
	f.handlers[filter](context.Background(), topic, []byte(payload))
}

func (f *fakeBroker) topics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, p := range f.out {
		out = append(out, p.topic)
	}
	return out
}

type fakeSubscriber struct {
	device []rfedge.IncomingDeviceCommand
	edge   []rfedge.IncomingCommand
}

func (s *fakeSubscriber) OnDeviceCommand(_ context.Context, c rfedge.IncomingDeviceCommand) error {
	s.device = append(s.device, c)
	return nil
}

func (s *fakeSubscriber) OnCommand(_ context.Context, c rfedge.IncomingCommand) error {
	s.edge = append(s.edge, c)
	return nil
}

func TestTopicPrefix(t *testing.T) {
	b := NewMsgBroker(BrokerConfig{TopicPrefix: "rfedge/pi/"})
	require.Equal(t, "rfedge/pi/device/2/state", b.Topic("device/2/state"))
	require.Equal(t, "rfedge/pi/device/2/cmd", b.Topic("device", "2", "cmd"))
	require.Equal(t, "catalog", NewMsgBroker(BrokerConfig{}).Topic("catalog"))
}

func TestPublishDeviceStateDeduplicates(t *testing.T) {
	fb := newFakeBroker()
	b := newEdgeBroker(fb, nil, time.Hour)
	ctx := context.Background()

	st := rfedge.DeviceState{Device: "2", Kind: "nexa-unit", State: "on", Status: "ok"}
	require.NoError(t, b.PublishDeviceState(ctx, st))
	require.NoError(t, b.PublishDeviceState(ctx, st))
	st.State = "off"
	require.NoError(t, b.PublishDeviceState(ctx, st))

	require.Equal(t, []string{"rfedge/pi/device/2/state", "rfedge/pi/device/2/state"}, fb.topics())
	require.True(t, fb.out[0].retain)

	b.ClearPublishedState()
	require.NoError(t, b.PublishDeviceState(ctx, st))
	require.Len(t, fb.topics(), 3)
}

func TestFailedPublishIsRetried(t *testing.T) {
	fb := newFakeBroker()
	b := newEdgeBroker(fb, nil, time.Hour)
	st := rfedge.DeviceState{Device: "2", State: "on", Status: "ok"}

	fb.failNext = true
	require.Error(t, b.PublishDeviceState(context.Background(), st))
	require.NoError(t, b.PublishDeviceState(context.Background(), st))
	require.Len(t, fb.topics(), 1)
}

func TestCommandsReachSubscriber(t *testing.T) {
	fb := newFakeBroker()
	b := newEdgeBroker(fb, nil, 0)
	sub := &fakeSubscriber{}
	require.NoError(t, b.StartEdgeSubscriber(context.Background(), sub))

	fb.deliver("rfedge/pi/device/+/cmd", "rfedge/pi/device/7/cmd", `{"action":"on","delaySec":5,"device":"ignored"}`)
	fb.deliver("rfedge/pi/device/+/cmd", "rfedge/pi/device/7/cmd", `not json`)
	fb.deliver("rfedge/pi/device/+/cmd", "rfedge/pi/7/cmd", `{"action":"on"}`)
	fb.deliver("rfedge/pi/cmd", "rfedge/pi/cmd", `{"action":"resync"}`)

	require.Len(t, sub.device, 1)
	require.Equal(t, "7", sub.device[0].Device)
	require.Equal(t, "on", sub.device[0].Action)
	require.EqualValues(t, 5, sub.device[0].DelaySec)
	require.Equal(t, []rfedge.IncomingCommand{{Action: "resync"}}, sub.edge)
}

func TestCatalogRegisteredOnConnect(t *testing.T) {
	fb := newFakeBroker()
	newEdgeBroker(fb, func() (PublishRequest, error) { return PublishRequest{Topic: "catalog"}, nil }, 0)
	require.Contains(t, fb.onConnect, "catalog")
}
