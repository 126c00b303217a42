package main

// cSpell:ignore mbserver Modbus
import (
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/tbrandon/mbserver"

	"github.com/fisaks/rfedge/internal/logging"
)

// A Modbus TCP relay board: every coil is a relay. Set MB_WATCH_COILS to
// log changes to the first N coils.
func main() {
	addr := os.Getenv("MB_LISTEN_ADDR")
	if addr == "" {
		addr = ":1502"
	}
	watch, _ := strconv.Atoi(os.Getenv("MB_WATCH_COILS"))
	if watch <= 0 {
		watch = 8
	}

	srv := mbserver.NewServer()
	if err := srv.ListenTCP(addr); err != nil {
		logging.Fatal("ListenTCP", "addr", addr, "error", err)
	}
	defer srv.Close()
	logging.Info("Modbus TCP relay board listening", "addr", addr, "coils", watch)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	t := time.NewTicker(200 * time.Millisecond)
	defer t.Stop()

	last := make([]byte, watch)
	for {
		select {
		case s := <-sigCh:
			logging.Info("Shutting down", "signal", s)
			return
		case <-t.C:
			for i := 0; i < watch && i < len(srv.Coils); i++ {
				if srv.Coils[i] != last[i] {
					logging.Info("Relay changed", "coil", i, "on", srv.Coils[i] != 0)
					last[i] = srv.Coils[i]
				}
			}
		}
	}
}
