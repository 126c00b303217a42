package modbus

import (
	"context"
	"fmt"
	"strings"

	"github.com/fisaks/rfedge/internal/config"
)

// Relays holds one client per configured bus.
type Relays struct {
	clients map[string]*RelayClient
}

func NewRelays(buses []config.BusConfig) (*Relays, error) {
	r := &Relays{clients: make(map[string]*RelayClient, len(buses))}
	for _, bus := range buses {
		switch strings.ToLower(bus.Type) {
		case "rtu":
			r.clients[bus.BusId] = NewRTURelayClient(bus)
		case "tcp":
			r.clients[bus.BusId] = NewTCPRelayClient(bus)
		default:
			return nil, fmt.Errorf("unsupported bus type: %s", bus.Type)
		}
	}
	return r, nil
}

func (r *Relays) SetRelay(ctx context.Context, busId string, unitId uint8, coil uint16, on bool) error {
	c, ok := r.clients[busId]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBus, busId)
	}
	return c.WriteCoil(ctx, unitId, coil, on)
}

func (r *Relays) Close() {
	for _, c := range r.clients {
		c.Close()
	}
}
