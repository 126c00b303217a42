package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/serial"
	"github.com/womat/mbserver"

	"github.com/fisaks/rfedge/internal/config"
	"github.com/fisaks/rfedge/internal/logging"
)

// SimBoard is one relay board (Modbus unit) on a simulated bus.
type SimBoard struct {
	UnitID uint8
	Coils  int
	Relays map[uint16]string // coil => device id
}

var (
	simulators   = make(map[string]*mbserver.Server) // busId => server
	boards       = make(map[string]map[uint8]*SimBoard)
	simulatorsMu sync.RWMutex
)

// boardsFor groups the relay devices of bus by unit id.
func boardsFor(bus config.BusConfig, devices []config.DeviceConfig) map[uint8]*SimBoard {
	out := make(map[uint8]*SimBoard)
	for _, d := range devices {
		if d.Kind != config.KindRelay || d.Bus != bus.BusId {
			continue
		}
		b, ok := out[d.UnitId]
		if !ok {
			b = &SimBoard{UnitID: d.UnitId, Relays: make(map[uint16]string)}
			out[d.UnitId] = b
		}
		b.Relays[d.Coil] = d.ID
		if int(d.Coil)+1 > b.Coils {
			b.Coils = int(d.Coil) + 1
		}
	}
	return out
}

// StartRTUSim launches a simulator for each rtu bus in config.
func StartRTUSim(edgeConfig *config.EdgeConfig) error {
	started := 0
	for _, bus := range edgeConfig.Buses {
		if bus.Type != "rtu" {
			continue
		}
		b := boardsFor(bus, edgeConfig.Devices)
		if len(b) == 0 {
			logging.Warn("No relays on bus, skipping", "bus", bus.BusId)
			continue
		}
		s, err := newBusSimulator(b)
		if err != nil {
			return fmt.Errorf("bus %s: %w", bus.BusId, err)
		}
		simulatorsMu.Lock()
		simulators[bus.BusId] = s
		boards[bus.BusId] = b
		simulatorsMu.Unlock()

		go serveBus(bus, s, len(b))
		started++
	}
	if started == 0 {
		return fmt.Errorf("no rtu bus with relays in config")
	}
	return nil
}

func newBusSimulator(b map[uint8]*SimBoard) (*mbserver.Server, error) {
	s := mbserver.NewServer()
	for id := range b {
		// unit 1 exists from the start
		if id != 1 {
			if err := s.NewDevice(id); err != nil {
				return nil, fmt.Errorf("NewDevice(%d): %w", id, err)
			}
		}
	}
	return s, nil
}

func serveBus(bus config.BusConfig, s *mbserver.Server, units int) {
	port, err := serial.Open(&serial.Config{
		Address:  bus.Port,
		BaudRate: bus.Baud,
		DataBits: bus.DataBits,
		StopBits: bus.StopBits,
		Parity:   bus.Parity,
		Timeout:  2 * time.Second,
	})
	if err != nil {
		logging.Fatal("serial open", "port", bus.Port, "error", err)
	}
	defer port.Close()

	if err := s.ListenRTU(port); err != nil {
		logging.Fatal("listenRTU", "port", bus.Port, "error", err)
	}
	logging.Info("RTU simulator ready", "port", bus.Port, "bus", bus.BusId, "units", units)
	select {}
}
