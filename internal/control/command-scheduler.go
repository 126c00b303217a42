package control

import (
	"fmt"
	"sync"
	"time"

	"github.com/fisaks/rfedge/internal/dispatch"
	"github.com/fisaks/rfedge/internal/logging"
)

// DeviceCommand is a command waiting for its timer. Registered is the
// registry id when the command came through the registry, zero otherwise.
type DeviceCommand struct {
	ID         string
	Device     string
	Action     dispatch.Action
	Registered int64
}

type CommandPusher interface {
	PushCommand(cmd DeviceCommand) bool
}

type CommandScheduler interface {
	Schedule(cmd DeviceCommand, delay time.Duration) (id string, err error)
	Cancel(id string) bool
	Pending() int
	Stop()
}

type commandScheduler struct {
	mu            sync.Mutex
	timers        map[string]*time.Timer
	seq           uint64
	stopped       bool
	commandPusher CommandPusher
}

func NewCommandScheduler(pusher CommandPusher) CommandScheduler {
	logging.Debug("Command scheduler created")
	return &commandScheduler{
		timers:        make(map[string]*time.Timer),
		commandPusher: pusher,
	}
}

// Schedule pushes cmd after delay. Later commands for the same device do
// not cancel it.
func (cs *commandScheduler) Schedule(cmd DeviceCommand, delay time.Duration) (string, error) {
	if delay <= 0 {
		cs.commandPusher.PushCommand(cmd)
		return "", nil
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.stopped {
		return "", fmt.Errorf("scheduler stopped, dropping %s %s", cmd.Device, cmd.Action)
	}
	cs.seq++
	id := cmd.ID
	if id == "" {
		id = fmt.Sprintf("%s-%d", cmd.Device, cs.seq)
	}
	if _, exists := cs.timers[id]; exists {
		id = fmt.Sprintf("%s-%d", id, cs.seq)
	}

	cs.timers[id] = time.AfterFunc(delay, func() {
		cs.mu.Lock()
		delete(cs.timers, id)
		cs.mu.Unlock()
		cs.commandPusher.PushCommand(cmd)
	})
	logging.Debug("Command scheduled", "id", id, "device", cmd.Device, "action", cmd.Action, "delay", delay)
	return id, nil
}

func (cs *commandScheduler) Cancel(id string) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if timer, exists := cs.timers[id]; exists {
		timer.Stop()
		delete(cs.timers, id)
		return true
	}
	return false
}

func (cs *commandScheduler) Pending() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return len(cs.timers)
}

func (cs *commandScheduler) Stop() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.stopped = true
	for id, timer := range cs.timers {
		timer.Stop()
		delete(cs.timers, id)
	}
	logging.Debug("Command scheduler stopped")
}
