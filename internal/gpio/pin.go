package gpio

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrHardwareUnavailable = errors.New("gpio hardware unavailable")

type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l {
		return "high"
	}
	return "low"
}

// Pin is a single digital output. Set must not block.
type Pin interface {
	Set(level Level)
}

// Waiter blocks the calling goroutine for d.
type Waiter interface {
	Wait(d time.Duration)
}

// Open returns the pin for the configured driver. Driver "rpio" maps the BCM
// pin through /dev/gpiomem and is released by OutputLine.Close, "trace"
// records level changes in memory for hosts without GPIO.
func Open(driver string, bcm int) (Pin, error) {
	switch strings.ToLower(driver) {
	case "", "rpio":
		return OpenRpio(bcm)
	case "trace":
		return NewRecorder(traceLimit), nil
	default:
		return nil, fmt.Errorf("%w: unsupported driver %q", ErrHardwareUnavailable, driver)
	}
}

// keeps a dry-run service from growing without bound
const traceLimit = 4096
