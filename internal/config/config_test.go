package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fisaks/rfedge/internal/nexa"
)

const minimalJSON = `
// comment line
{
  "gpio": { "driver": "trace" }, /* block */
  "nexa": [
    { "name": "m1", "senderId": "11000000000000000000000010" },
    { "name": "m3", "senderId": 50331648 }
  ],
  "rollo": [ { "name": "blinds", "code": "0FF0" } ],
  "remotes": [ { "name": "garage", "baseUrl": "http://192.168.10.124" } ],
  "devices": [
    { "id": "1", "kind": "nexa-unit", "sender": "m1", "unit": 2 },
    { "id": "all", "kind": "broadcast", "senders": ["m1", "m3"] },
    { "id": "r", "kind": "rollo", "rollo": "blinds" },
    { "id": "11", "kind": "remote", "remote": "garage", "remoteDevice": "4" }
  ]
}`

func TestLoadJSONWithCommentsAndDefaults(t *testing.T) {
	cfg, err := LoadEdgeConfigFromReader(strings.NewReader(minimalJSON))
	require.NoError(t, err)

	require.Equal(t, 17, cfg.GPIO.Pin)
	require.Equal(t, ":80", cfg.HTTP.Addr)
	require.Equal(t, 3000, cfg.Remotes[0].TimeoutMs)
	require.Equal(t, "http://192.168.10.124", cfg.Remotes[0].BaseURL)
	require.Len(t, cfg.Devices, 4)

	bits, err := cfg.Nexa[1].SenderBits()
	require.NoError(t, err)
	require.Equal(t, "11000000000000000000000000", bits)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
gpio:
  driver: trace
  pin: 27
nexa:
  - name: m4
    senderId: 50331651
devices:
  - id: "10"
    kind: nexa-unit
    sender: m4
    unit: 1
resyncIntervalSec: 30
`), 0o600))

	cfg, err := LoadEdgeConfig(path)
	require.NoError(t, err)
	require.Equal(t, 27, cfg.GPIO.Pin)
	require.Equal(t, 30, int(cfg.ResyncInterval().Seconds()))

	bits, err := cfg.Nexa[0].SenderBits()
	require.NoError(t, err)
	require.Equal(t, "11000000000000000000000011", bits)
}

func TestLoadYAMLRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edge.yml")
	require.NoError(t, os.WriteFile(path, []byte("gpio:\n  driver: trace\nbogus: 1\n"), 0o600))
	_, err := LoadEdgeConfig(path)
	require.Error(t, err)
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := &EdgeConfig{
		GPIO: GPIOConfig{Driver: "trace"},
		Nexa: []NexaSenderConfig{
			{Name: "short", SenderID: "1100"},
			{Name: "short", SenderID: "11000000000000000000000010"},
		},
		Rollo: []RolloDeviceConfig{{Name: "r", Code: "01X"}},
		Devices: []DeviceConfig{
			{ID: "1", Kind: KindNexaUnit, Sender: "missing", Unit: 4},
			{ID: "1", Kind: "lamp"},
			{ID: "2", Kind: KindRelay, Bus: "nope"},
		},
	}
	err := cfg.Validate()
	require.Error(t, err)

	msg := err.Error()
	for _, want := range []string{
		"nexa[0/short]",
		"duplicate name",
		"rollo[0/r]",
		"unknown nexa sender",
		"unit must be 1..3",
		"duplicate id",
		"unknown kind",
		"unknown bus",
	} {
		require.Contains(t, msg, want)
	}
}

func TestValidateNormalizesBuses(t *testing.T) {
	cfg := &EdgeConfig{
		GPIO: GPIOConfig{Driver: "trace"},
		Buses: []BusConfig{
			{BusId: "net", Type: "TCP", TCPAddr: "10.0.0.5:502"},
			{BusId: "serial", Type: " Rtu ", Port: "/dev/ttyUSB0", Baud: 9600, Parity: "e"},
		},
	}
	require.NoError(t, cfg.Validate())
	require.Equal(t, "tcp", cfg.Buses[0].Type)
	require.Equal(t, "rtu", cfg.Buses[1].Type)
	require.Equal(t, "E", cfg.Buses[1].Parity)
}

func TestSenderBitsRange(t *testing.T) {
	_, err := NexaSenderConfig{SenderID: int64(1 << 26)}.SenderBits()
	require.ErrorIs(t, err, nexa.ErrInvalidSenderID)

	_, err = NexaSenderConfig{}.SenderBits()
	require.ErrorIs(t, err, nexa.ErrInvalidSenderID)
}

func TestExampleConfigLoads(t *testing.T) {
	cfg, err := LoadEdgeConfig(filepath.Join("..", "..", "configs", "edge-config.json"))
	require.NoError(t, err)
	require.Len(t, cfg.Nexa, 4)
	require.Equal(t, "rpio", cfg.GPIO.Driver)
}
