package gpio

import (
	"fmt"

	"github.com/stianeikeland/go-rpio/v4"
)

// RpioPin drives a Raspberry Pi header pin through memory mapped registers.
type RpioPin struct {
	bcm int
	pin rpio.Pin
}

func OpenRpio(bcm int) (*RpioPin, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHardwareUnavailable, err)
	}
	pin := rpio.Pin(bcm)
	pin.Output()
	pin.Low()
	return &RpioPin{bcm: bcm, pin: pin}, nil
}

func (p *RpioPin) Set(level Level) {
	if level {
		p.pin.High()
	} else {
		p.pin.Low()
	}
}

func (p *RpioPin) Close() error {
	p.pin.Low()
	return rpio.Close()
}
