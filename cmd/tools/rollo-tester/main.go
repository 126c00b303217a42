package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/fisaks/rfedge/internal/gpio"
	"github.com/fisaks/rfedge/internal/logging"
	"github.com/fisaks/rfedge/internal/rollo"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage:
  rollo-tester CODE u|d|p

Sends CODE with the direction suffix three times in a row on the
transmitter pin. Anything other than u or d sends pause.

Environment:
  RF_GPIO_PIN     BCM pin of the transmitter (default: 17)
  RF_GPIO_DRIVER  rpio | trace (default: rpio)
`)
}

func main() {
	if len(os.Args) < 3 {
		usage()
		os.Exit(2)
	}
	if err := run(os.Args[1], os.Args[2]); err != nil {
		logging.Fatal("Rollo test failed", "error", err)
	}
	logging.Info("Sent")
}

func run(code, direction string) error {
	dir := rollo.Pause
	switch direction {
	case "u":
		dir = rollo.Up
	case "d":
		dir = rollo.Down
	}

	bcm := 17
	if v := os.Getenv("RF_GPIO_PIN"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RF_GPIO_PIN is not a number: %q", v)
		}
		bcm = n
	}

	pin, err := gpio.Open(os.Getenv("RF_GPIO_DRIVER"), bcm)
	if err != nil {
		return fmt.Errorf("gpio pin %d: %w", bcm, err)
	}
	line := gpio.NewOutputLine(pin, nil)
	defer line.Close()

	device, err := rollo.NewDevice("tester", code, line, 0)
	if err != nil {
		return fmt.Errorf("invalid code %q: %w", code, err)
	}

	logging.Info("Writing", "code", device.Code(dir), "direction", dir)
	for i := 0; i < 3; i++ {
		if err := device.Send(dir); err != nil {
			return fmt.Errorf("send: %w", err)
		}
	}
	return nil
}
