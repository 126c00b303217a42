package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fisaks/rfedge/internal/config"
	"github.com/fisaks/rfedge/internal/dispatch"
	"github.com/fisaks/rfedge/internal/gpio"
	"github.com/fisaks/rfedge/internal/messaging"
)

func TestCatalogFollowsConfigOrder(t *testing.T) {
	cfg := &config.EdgeConfig{
		Nexa:  []config.NexaSenderConfig{{Name: "m1", SenderID: "11000000000000000000000010"}},
		Rollo: []config.RolloDeviceConfig{{Name: "blinds", Code: "0FF0F0F0FFFF"}},
		Devices: []config.DeviceConfig{
			{ID: "1", Name: "Hall", Kind: config.KindNexaUnit, Sender: "m1", Unit: 1},
			{ID: "blinds", Kind: config.KindRollo, Rollo: "blinds"},
			{ID: "13", Kind: config.KindRelay, Bus: "relays", UnitId: 1, Coil: 2},
		},
	}
	d, err := dispatch.FromConfig(cfg, gpio.NewOutputLine(gpio.NewRecorder(0), nil), nil)
	require.NoError(t, err)

	req, err := NewEdgeCatalog(cfg, d).OnConnectPublish()
	require.NoError(t, err)
	require.Equal(t, "catalog", req.Topic)
	require.True(t, req.Retain)
	require.Equal(t, messaging.AtLeastOnce, req.Qos)

	msg := req.Payload.(*EdgeCatalogMessage)
	require.Equal(t, []DeviceSummary{
		{ID: "1", Name: "Hall", Kind: "nexa-unit", Actions: []string{"on", "off"}, Sender: "m1", Unit: 1},
		{ID: "blinds", Kind: "rollo", Actions: []string{"up", "pause", "down"}},
		{ID: "13", Kind: "relay", Actions: []string{"on", "off"}, BusId: "relays"},
	}, msg.Devices)
}
