// internal/config/config-edge.go
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fisaks/rfedge/internal/logging"
	"github.com/fisaks/rfedge/internal/nexa"
	"github.com/fisaks/rfedge/internal/rollo"
	"github.com/fisaks/rfedge/internal/util"
)

/* =========================
   Types
   ========================= */

type EdgeConfig struct {
	GPIO              GPIOConfig          `json:"gpio" yaml:"gpio"`
	Nexa              []NexaSenderConfig  `json:"nexa" yaml:"nexa"`
	Rollo             []RolloDeviceConfig `json:"rollo" yaml:"rollo"`
	Buses             []BusConfig         `json:"buses" yaml:"buses"`
	Remotes           []RemoteConfig      `json:"remotes" yaml:"remotes"`
	Devices           []DeviceConfig      `json:"devices" yaml:"devices"`
	DatabasePath      string              `json:"databasePath" yaml:"databasePath"`
	HTTP              HTTPConfig          `json:"http" yaml:"http"`
	ResyncIntervalSec int                 `json:"resyncIntervalSec" yaml:"resyncIntervalSec"` // 0 disables the resync loop
	HeartbeatInterval int                 `json:"heartbeatInterval" yaml:"heartbeatInterval"` // seconds between state republish
}

type GPIOConfig struct {
	Driver string `json:"driver" yaml:"driver"` // "rpio" | "trace"
	Pin    int    `json:"pin" yaml:"pin"`       // BCM numbering
}

// SenderID holds the 26 character bit string or the same value as a decimal number.
type NexaSenderConfig struct {
	Name          string `json:"name" yaml:"name"`
	SenderID      any    `json:"senderId" yaml:"senderId"`
	PulseLengthUs int    `json:"pulseLengthUs,omitempty" yaml:"pulseLengthUs,omitempty"`
}

type RolloDeviceConfig struct {
	Name          string `json:"name" yaml:"name"`
	Code          string `json:"code" yaml:"code"`
	PulseLengthUs int    `json:"pulseLengthUs,omitempty" yaml:"pulseLengthUs,omitempty"`
}

// BusConfig describes a Modbus bus carrying relay boards.
type BusConfig struct {
	BusId              string `json:"busId" yaml:"busId"`
	Type               string `json:"type" yaml:"type"` // "rtu" | "tcp"
	TCPAddr            string `json:"tcpAddr" yaml:"tcpAddr"`
	Port               string `json:"port" yaml:"port"`
	Baud               int    `json:"baud" yaml:"baud"`
	DataBits           int    `json:"dataBits" yaml:"dataBits"`
	StopBits           int    `json:"stopBits" yaml:"stopBits"`
	Parity             string `json:"parity" yaml:"parity"`
	TimeoutMs          int    `json:"timeoutMs" yaml:"timeoutMs"`
	SettleAfterWriteMs int    `json:"settleAfterWriteMs" yaml:"settleAfterWriteMs"`
	Debug              bool   `json:"debug" yaml:"debug"`
}

// RemoteConfig is another automation host reachable over HTTP.
type RemoteConfig struct {
	Name      string `json:"name" yaml:"name"`
	BaseURL   string `json:"baseUrl" yaml:"baseUrl"`
	TimeoutMs int    `json:"timeoutMs" yaml:"timeoutMs"`
}

const (
	KindNexaUnit  = "nexa-unit"
	KindNexaGroup = "nexa-group"
	KindRollo     = "rollo"
	KindBroadcast = "broadcast"
	KindRelay     = "relay"
	KindRemote    = "remote"
)

type DeviceConfig struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	Kind string `json:"kind" yaml:"kind"`

	Sender  string   `json:"sender,omitempty" yaml:"sender,omitempty"`   // nexa-unit, nexa-group
	Unit    int      `json:"unit,omitempty" yaml:"unit,omitempty"`       // nexa-unit: 1..3
	Senders []string `json:"senders,omitempty" yaml:"senders,omitempty"` // broadcast, in transmit order
	Rollo   string   `json:"rollo,omitempty" yaml:"rollo,omitempty"`     // rollo

	Bus    string `json:"bus,omitempty" yaml:"bus,omitempty"`       // relay
	UnitId uint8  `json:"unitId,omitempty" yaml:"unitId,omitempty"` // relay
	Coil   uint16 `json:"coil,omitempty" yaml:"coil,omitempty"`     // relay

	Remote       string `json:"remote,omitempty" yaml:"remote,omitempty"`             // remote
	RemoteDevice string `json:"remoteDevice,omitempty" yaml:"remoteDevice,omitempty"` // remote
}

type HTTPConfig struct {
	Addr      string `json:"addr" yaml:"addr"`
	StaticDir string `json:"staticDir" yaml:"staticDir"`
}

/* =========================
   Helpers
   ========================= */

func (b BusConfig) Timeout() time.Duration { return time.Duration(b.TimeoutMs) * time.Millisecond }
func (b BusConfig) SettleAfterWrite() time.Duration {
	return time.Duration(b.SettleAfterWriteMs) * time.Millisecond
}

func (r RemoteConfig) Timeout() time.Duration { return time.Duration(r.TimeoutMs) * time.Millisecond }

func (n NexaSenderConfig) PulseLength() time.Duration {
	return time.Duration(n.PulseLengthUs) * time.Microsecond
}

func (r RolloDeviceConfig) PulseLength() time.Duration {
	return time.Duration(r.PulseLengthUs) * time.Microsecond
}

// SenderBits returns the sender id as a bit string, converting the decimal form.
func (n NexaSenderConfig) SenderBits() (string, error) {
	switch v := n.SenderID.(type) {
	case string:
		return v, nil
	case int:
		return decimalSenderID(int64(v))
	case int64:
		return decimalSenderID(v)
	case float64:
		if v != float64(int64(v)) {
			return "", fmt.Errorf("%w: %v is not an integer", nexa.ErrInvalidSenderID, v)
		}
		return decimalSenderID(int64(v))
	case nil:
		return "", fmt.Errorf("%w: missing", nexa.ErrInvalidSenderID)
	default:
		return "", fmt.Errorf("%w: unsupported type %T", nexa.ErrInvalidSenderID, v)
	}
}

func decimalSenderID(v int64) (string, error) {
	if v < 0 || v >= 1<<nexa.SenderIDLength {
		return "", fmt.Errorf("%w: %d does not fit %d bits", nexa.ErrInvalidSenderID, v, nexa.SenderIDLength)
	}
	return util.IntToBinaryString(uint64(v), nexa.SenderIDLength), nil
}

func (c *EdgeConfig) ResyncInterval() time.Duration {
	return time.Duration(c.ResyncIntervalSec) * time.Second
}

/* =========================
   Strict load + validate
   ========================= */

// LoadEdgeConfig reads JSON (comments allowed) or, for .yaml/.yml files, YAML.
func LoadEdgeConfig(path string) (*EdgeConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return decodeYAML(raw)
	default:
		return decodeJSON(raw)
	}
}

func LoadEdgeConfigFromReader(r io.Reader) (*EdgeConfig, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return decodeJSON(raw)
}

func decodeJSON(raw []byte) (*EdgeConfig, error) {
	clean := stripJSONComments(raw)
	dec := json.NewDecoder(bytes.NewReader(clean))
	dec.DisallowUnknownFields()
	dec.UseNumber()

	var cfg EdgeConfig
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	for i := range cfg.Nexa {
		if n, ok := cfg.Nexa[i].SenderID.(json.Number); ok {
			v, err := n.Int64()
			if err != nil {
				return nil, fmt.Errorf("invalid JSON: nexa[%d].senderId: %w", i, err)
			}
			cfg.Nexa[i].SenderID = v
		}
	}
	return validated(&cfg)
}

func decodeYAML(raw []byte) (*EdgeConfig, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var cfg EdgeConfig
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	return validated(&cfg)
}

func validated(cfg *EdgeConfig) (*EdgeConfig, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *EdgeConfig) Validate() error {
	var errs multiErr

	/* GPIO */
	if c.GPIO.Driver == "" {
		c.GPIO.Driver = "rpio"
	}
	if !slices.Contains([]string{"rpio", "trace"}, strings.ToLower(c.GPIO.Driver)) {
		errs.add("gpio.driver must be 'rpio' or 'trace'")
	}
	if c.GPIO.Pin == 0 {
		c.GPIO.Pin = 17
	}
	if c.GPIO.Pin < 0 || c.GPIO.Pin > 27 {
		errs.add("gpio.pin must be a BCM pin 0..27")
	}

	/* Nexa senders */
	senders := map[string]struct{}{}
	for i, n := range c.Nexa {
		if strings.TrimSpace(n.Name) == "" {
			errs.addf("nexa[%d]: name is required", i)
		} else if _, dup := senders[n.Name]; dup {
			errs.addf("nexa[%d]: duplicate name %q", i, n.Name)
		} else {
			senders[n.Name] = struct{}{}
		}
		bits, err := n.SenderBits()
		if err == nil {
			err = nexa.ValidateSenderID(bits)
		}
		if err != nil {
			errs.addf("nexa[%d/%s]: %v", i, n.Name, err)
		}
		if n.PulseLengthUs < 0 {
			errs.addf("nexa[%d/%s]: pulseLengthUs cannot be negative", i, n.Name)
		}
	}

	/* Rollo devices */
	rollos := map[string]struct{}{}
	for i, r := range c.Rollo {
		if strings.TrimSpace(r.Name) == "" {
			errs.addf("rollo[%d]: name is required", i)
		} else if _, dup := rollos[r.Name]; dup {
			errs.addf("rollo[%d]: duplicate name %q", i, r.Name)
		} else {
			rollos[r.Name] = struct{}{}
		}
		if err := rollo.ValidateCode(r.Code); err != nil {
			errs.addf("rollo[%d/%s]: %v", i, r.Name, err)
		}
		if r.PulseLengthUs < 0 {
			errs.addf("rollo[%d/%s]: pulseLengthUs cannot be negative", i, r.Name)
		}
	}

	/* Modbus buses */
	buses := map[string]struct{}{}
	for i := range c.Buses {
		b := &c.Buses[i]
		if strings.TrimSpace(b.BusId) == "" {
			errs.addf("buses[%d]: busId is required", i)
		} else if _, dup := buses[b.BusId]; dup {
			errs.addf("buses[%d]: duplicate busId %q", i, b.BusId)
		} else {
			buses[b.BusId] = struct{}{}
		}

		b.Type = strings.ToLower(strings.TrimSpace(b.Type))
		switch b.Type {
		case "tcp":
			if strings.TrimSpace(b.TCPAddr) == "" {
				errs.addf("buses[%d/%s]: tcpAddr is required for type=tcp", i, b.BusId)
			}
		case "rtu":
			if strings.TrimSpace(b.Port) == "" {
				errs.addf("buses[%d/%s]: port is required for type=rtu", i, b.BusId)
			}
			if b.Baud <= 0 {
				errs.addf("buses[%d/%s]: baud must be > 0 for type=rtu", i, b.BusId)
			}
			if b.DataBits == 0 {
				b.DataBits = 8
			}
			if b.StopBits == 0 {
				b.StopBits = 1
			}
			b.Parity = strings.ToUpper(b.Parity)
			if b.Parity == "" {
				b.Parity = "N"
			}
			if !slices.Contains([]string{"N", "E", "O"}, b.Parity) {
				errs.addf("buses[%d/%s]: parity must be one of N,E,O", i, b.BusId)
			}
		default:
			errs.addf("buses[%d/%s]: type must be 'rtu' or 'tcp'", i, b.BusId)
		}
		if b.TimeoutMs <= 0 {
			b.TimeoutMs = 150
		}
		if b.SettleAfterWriteMs < 0 {
			errs.addf("buses[%d/%s]: settleAfterWriteMs cannot be negative", i, b.BusId)
		}
	}

	/* Remotes */
	remotes := map[string]struct{}{}
	for i := range c.Remotes {
		r := &c.Remotes[i]
		if strings.TrimSpace(r.Name) == "" {
			errs.addf("remotes[%d]: name is required", i)
		} else {
			remotes[r.Name] = struct{}{}
		}
		if u, err := url.Parse(r.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs.addf("remotes[%d/%s]: baseUrl must be an absolute URL", i, r.Name)
		}
		if r.TimeoutMs <= 0 {
			r.TimeoutMs = 3000
		}
	}

	/* Devices */
	ids := map[string]int{}
	for i, d := range c.Devices {
		if strings.TrimSpace(d.ID) == "" {
			errs.addf("devices[%d]: id is required", i)
		} else if j, dup := ids[d.ID]; dup {
			errs.addf("devices[%d]: duplicate id %q (also at devices[%d])", i, d.ID, j)
		} else {
			ids[d.ID] = i
		}

		switch d.Kind {
		case KindNexaUnit:
			if _, ok := senders[d.Sender]; !ok {
				errs.addf("devices[%d/%s]: unknown nexa sender %q", i, d.ID, d.Sender)
			}
			if d.Unit < 1 || d.Unit > 3 {
				errs.addf("devices[%d/%s]: unit must be 1..3", i, d.ID)
			}
		case KindNexaGroup:
			if _, ok := senders[d.Sender]; !ok {
				errs.addf("devices[%d/%s]: unknown nexa sender %q", i, d.ID, d.Sender)
			}
		case KindBroadcast:
			if len(d.Senders) == 0 {
				errs.addf("devices[%d/%s]: broadcast needs at least one sender", i, d.ID)
			}
			for _, s := range d.Senders {
				if _, ok := senders[s]; !ok {
					errs.addf("devices[%d/%s]: unknown nexa sender %q", i, d.ID, s)
				}
			}
		case KindRollo:
			if _, ok := rollos[d.Rollo]; !ok {
				errs.addf("devices[%d/%s]: unknown rollo %q", i, d.ID, d.Rollo)
			}
		case KindRelay:
			if _, ok := buses[d.Bus]; !ok {
				errs.addf("devices[%d/%s]: unknown bus %q", i, d.ID, d.Bus)
			}
			if d.UnitId == 0 || d.UnitId > 247 {
				errs.addf("devices[%d/%s]: unitId must be 1..247", i, d.ID)
			}
		case KindRemote:
			if _, ok := remotes[d.Remote]; !ok {
				errs.addf("devices[%d/%s]: unknown remote %q", i, d.ID, d.Remote)
			}
			if d.RemoteDevice == "" {
				errs.addf("devices[%d/%s]: remoteDevice is required", i, d.ID)
			}
		default:
			errs.addf("devices[%d/%s]: unknown kind %q", i, d.ID, d.Kind)
		}
	}
	if len(c.Devices) == 0 {
		logging.Warn("no devices configured, every command will be ignored")
	}

	/* Service */
	if c.ResyncIntervalSec < 0 {
		errs.add("resyncIntervalSec cannot be negative")
	}
	if c.HeartbeatInterval < 0 {
		c.HeartbeatInterval = 60
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":80"
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

/* =========================
   Comment stripping + utils
   ========================= */

var (
	lineComments  = regexp.MustCompile(`(?m)^\s*//[^\n\r]*|\s//[^\n\r]*`)
	blockComments = regexp.MustCompile(`(?s)/\*.*?\*/`)
)

// stripJSONComments removes block comments and // comments that start a line
// or follow whitespace, so URLs such as "tcp://host" survive.
func stripJSONComments(in []byte) []byte {
	text := string(in)
	text = blockComments.ReplaceAllString(text, "")
	text = lineComments.ReplaceAllString(text, "")
	return []byte(text)
}

// small multi-error
type multiErr []string

func (m *multiErr) add(s string)            { *m = append(*m, s) }
func (m *multiErr) addf(f string, a ...any) { *m = append(*m, fmt.Sprintf(f, a...)) }
func (m multiErr) Error() string            { return "validation errors: " + strings.Join(m, "; ") }
