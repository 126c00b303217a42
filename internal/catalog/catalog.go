package catalog

import (
	"github.com/fisaks/rfedge/internal/config"
	"github.com/fisaks/rfedge/internal/dispatch"
	"github.com/fisaks/rfedge/internal/messaging"
)

type EdgeCatalogMessage struct {
	Devices []DeviceSummary `json:"devices"`
}

// DeviceSummary describes one addressable device and the actions it takes.
type DeviceSummary struct {
	ID      string   `json:"id"`
	Name    string   `json:"name,omitempty"`
	Kind    string   `json:"kind"`
	Actions []string `json:"actions"`
	Sender  string   `json:"sender,omitempty"`
	Unit    int      `json:"unit,omitempty"`
	BusId   string   `json:"busId,omitempty"`
}

type Catalog struct {
	cfg        *config.EdgeConfig
	dispatcher *dispatch.Dispatcher
}

func NewEdgeCatalog(cfg *config.EdgeConfig, d *dispatch.Dispatcher) *Catalog {
	return &Catalog{cfg: cfg, dispatcher: d}
}

func (c *Catalog) Build() *EdgeCatalogMessage {
	names := make(map[string]config.DeviceConfig, len(c.cfg.Devices))
	for _, d := range c.cfg.Devices {
		names[d.ID] = d
	}

	devices := []DeviceSummary{}
	for _, id := range c.dispatcher.IDs() {
		t, _ := c.dispatcher.Lookup(id)
		dc := names[id]
		devices = append(devices, DeviceSummary{
			ID:      id,
			Name:    dc.Name,
			Kind:    t.Kind(),
			Actions: actions(t),
			Sender:  dc.Sender,
			Unit:    dc.Unit,
			BusId:   dc.Bus,
		})
	}
	return &EdgeCatalogMessage{Devices: devices}
}

func actions(t dispatch.Target) []string {
	if _, ok := t.(dispatch.RolloDevice); ok {
		return []string{"up", "pause", "down"}
	}
	return []string{"on", "off"}
}

// OnConnectPublish publishes the catalog, retained, on every connect.
func (c *Catalog) OnConnectPublish() (messaging.PublishRequest, error) {
	return messaging.PublishRequest{
		Topic:   "catalog",
		Qos:     messaging.AtLeastOnce,
		Retain:  true,
		Payload: c.Build(),
	}, nil
}
