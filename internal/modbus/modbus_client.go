package modbus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goburrow/modbus"

	"github.com/fisaks/rfedge/internal/config"
	"github.com/fisaks/rfedge/internal/logging"
)

var ErrUnknownBus = errors.New("unknown modbus bus")

type ModbusHandler interface {
	modbus.ClientHandler
	Connect() error
	Close() error
}

// RelayClient switches relay coils on one bus. Calls are serialized because
// the slave id lives on the shared handler.
type RelayClient struct {
	mu      sync.Mutex
	handler ModbusHandler
	client  modbus.Client
	bus     config.BusConfig
	// Connection and backoff state
	connOK      bool
	backoff     time.Duration
	backoffMin  time.Duration
	backoffMax  time.Duration
	lastConnErr error
}

func newRelayClient(handler ModbusHandler, bus config.BusConfig) *RelayClient {
	return &RelayClient{
		handler:    handler,
		client:     modbus.NewClient(handler),
		bus:        bus,
		backoffMin: 200 * time.Millisecond,
		backoffMax: 5 * time.Second,
	}
}

func NewRTURelayClient(bus config.BusConfig) *RelayClient {
	handler := modbus.NewRTUClientHandler(bus.Port)
	handler.BaudRate = bus.Baud
	handler.DataBits = bus.DataBits
	handler.Parity = bus.Parity
	handler.StopBits = bus.StopBits
	handler.Timeout = bus.Timeout()
	if bus.Debug {
		handler.Logger = logging.WrapSlog("bus", bus.BusId)
	}
	return newRelayClient(handler, bus)
}

func NewTCPRelayClient(bus config.BusConfig) *RelayClient {
	handler := modbus.NewTCPClientHandler(bus.TCPAddr)
	handler.Timeout = bus.Timeout()
	if bus.Debug {
		handler.Logger = logging.WrapSlog("bus", bus.BusId)
	}
	return newRelayClient(handler, bus)
}

func (m *RelayClient) ensureConnected(ctx context.Context) error {
	if m.connOK {
		return nil
	}
	if m.backoff > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.backoff):
		}
	}

	_ = m.handler.Close() // cleanup any stale
	if err := m.handler.Connect(); err != nil {
		m.bumpBackoff(err)
		return err
	}
	m.client = modbus.NewClient(m.handler)
	m.connOK = true
	m.backoff = 0
	m.lastConnErr = nil
	return nil
}

func (m *RelayClient) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	_ = m.handler.Close()
	m.connOK = false
}

func (m *RelayClient) bumpBackoff(err error) {
	m.connOK = false
	m.lastConnErr = err
	if m.backoff == 0 {
		m.backoff = m.backoffMin
	} else {
		m.backoff *= 2
		if m.backoff > m.backoffMax {
			m.backoff = m.backoffMax
		}
	}
}

func (m *RelayClient) setSlave(id byte) {
	switch h := m.handler.(type) {
	case *modbus.RTUClientHandler:
		h.SlaveId = id
	case *modbus.TCPClientHandler:
		h.SlaveId = id
	default:
		logging.Error("Unknown Modbus handler type", "type", fmt.Sprintf("%T", h))
	}
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "connection") ||
		strings.Contains(s, "broken pipe") ||
		strings.Contains(s, "reset") ||
		strings.Contains(s, "closed") ||
		strings.Contains(s, "i/o") ||
		strings.Contains(s, "timeout") ||
		strings.Contains(s, "eof")
}

// withClient runs fn against the slave, reconnecting once on transient errors.
func (m *RelayClient) withClient(ctx context.Context, unitId uint8, fn func() ([]byte, error)) ([]byte, error) {
	if err := m.ensureConnected(ctx); err != nil {
		return nil, err
	}
	m.setSlave(unitId)

	v, err := fn()
	if err == nil {
		return v, m.settleAfterWrite(ctx)
	}
	logging.Warn("relay write failed", "bus", m.bus.BusId, "unitId", unitId, "error", err)
	if isTransient(err) {
		m.bumpBackoff(err)
		m.backoff = 0 // retry right away, later failures back off
		if err2 := m.ensureConnected(ctx); err2 == nil {
			m.setSlave(unitId)
			if v, err = fn(); err == nil {
				return v, m.settleAfterWrite(ctx)
			}
		}
	}
	return nil, err
}

func (m *RelayClient) settleAfterWrite(ctx context.Context) error {
	if gap := m.bus.SettleAfterWrite(); gap > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(gap):
		}
	}
	return nil
}

// WriteCoil switches one relay coil (FC5).
func (m *RelayClient) WriteCoil(ctx context.Context, unitId uint8, coil uint16, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, err := m.withClient(ctx, unitId, func() ([]byte, error) {
		val := uint16(0)
		if on {
			val = 0xFF00
		}
		return m.client.WriteSingleCoil(coil, val)
	})
	return err
}

// ReadCoil reads back one relay coil (FC1).
func (m *RelayClient) ReadCoil(ctx context.Context, unitId uint8, coil uint16) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := m.withClient(ctx, unitId, func() ([]byte, error) {
		// qty=1 returns 1 byte; bit0 is the coil
		return m.client.ReadCoils(coil, 1)
	})
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, fmt.Errorf("empty coil response")
	}
	return data[0]&0x01 != 0, nil
}
