package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/fisaks/rfedge/internal/dispatch"
	"github.com/fisaks/rfedge/internal/rfedge"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage:
  rfctl set --edge EDGE --device DEVICE --action ACTION [--delay SECONDS]
  rfctl resync --edge EDGE

Required flags for 'set':
  --edge     (string)   Name of the edge
  --device   (string)   Device id, as configured on the edge
  --action   (string)   on | off | up | pause | down
Optional flags for 'set':
  --delay    (int)      Turn the device off after this many seconds instead

Optional flags:
  --broker   (string)   MQTT broker address (default: tcp://localhost:1883)

`)
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Missing command (e.g. set)\n")
		usage()
		os.Exit(2)
	}

	switch cmd := os.Args[1]; cmd {
	case "set":
		set(os.Args[2:])
	case "resync":
		resync(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(2)
	}
}

func set(args []string) {
	fs := flag.NewFlagSet("set", flag.ExitOnError)
	edge := fs.String("edge", "", "Edge name (required)")
	device := fs.String("device", "", "Device id (required)")
	action := fs.String("action", "", "Action (required unless --delay)")
	delay := fs.Int("delay", 0, "Delay in seconds before the device is turned off")
	broker := fs.String("broker", "tcp://localhost:1883", "MQTT broker address")
	fs.Usage = usage
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}

	missing := false
	if *edge == "" {
		fmt.Fprintf(os.Stderr, "--edge is required\n")
		missing = true
	}
	if *device == "" {
		fmt.Fprintf(os.Stderr, "--device is required\n")
		missing = true
	}
	if *delay <= 0 {
		if _, err := dispatch.ParseAction(*action); err != nil {
			fmt.Fprintf(os.Stderr, "--action: %v\n", err)
			missing = true
		}
	}
	if missing {
		usage()
		os.Exit(2)
	}

	payload := rfedge.IncomingDeviceCommand{
		ID:     fmt.Sprintf("rfctl-%d", time.Now().UnixNano()),
		Action: *action,
		Device: *device,
	}
	if *delay > 0 {
		payload.DelaySec = *delay
	}
	publish(*broker, fmt.Sprintf("rfedge/%s/device/%s/cmd", *edge, *device), payload)
	fmt.Printf("Sent %s to device %s on edge %s\n", *action, *device, *edge)
}

func resync(args []string) {
	fs := flag.NewFlagSet("resync", flag.ExitOnError)
	edge := fs.String("edge", "", "Edge name (required)")
	broker := fs.String("broker", "tcp://localhost:1883", "MQTT broker address")
	fs.Usage = usage
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}
	if *edge == "" {
		fmt.Fprintf(os.Stderr, "--edge is required\n")
		usage()
		os.Exit(2)
	}
	publish(*broker, fmt.Sprintf("rfedge/%s/cmd", *edge), rfedge.IncomingCommand{Action: "resync"})
	fmt.Printf("Requested resync on edge %s\n", *edge)
}

func publish(broker, topic string, payload any) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(fmt.Sprintf("rfctl-%d", time.Now().UnixNano()))
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		fmt.Fprintf(os.Stderr, "MQTT connect error: %v\n", token.Error())
		os.Exit(1)
	}
	defer client.Disconnect(250)

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		fmt.Fprintf(os.Stderr, "JSON marshal error: %v\n", err)
		os.Exit(1)
	}
	token := client.Publish(topic, 1, false, payloadBytes)
	token.Wait()
	if token.Error() != nil {
		fmt.Fprintf(os.Stderr, "MQTT publish error: %v\n", token.Error())
		os.Exit(1)
	}
}
