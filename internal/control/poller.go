package control

import (
	"context"
	"time"

	"github.com/fisaks/rfedge/internal/logging"
)

type ZeroSignal struct{}

// Zero is the canonical value to send on signal channels.
var Zero ZeroSignal

// DefaultResyncPeriod matches the interval receivers were commissioned with.
const DefaultResyncPeriod = 120 * time.Second

// ResyncPoller calls resync on a fixed period and whenever Trigger is
// called. Runs never overlap.
type ResyncPoller struct {
	period time.Duration
	resync func(ctx context.Context)
	pollCh chan ZeroSignal
}

func NewResyncPoller(period time.Duration, resync func(ctx context.Context)) *ResyncPoller {
	if period <= 0 {
		period = DefaultResyncPeriod
	}
	return &ResyncPoller{
		period: period,
		resync: resync,
		pollCh: make(chan ZeroSignal, 1),
	}
}

// Trigger requests a run; it is dropped if one is already queued.
func (p *ResyncPoller) Trigger() {
	select {
	case p.pollCh <- Zero:
	default:
	}
}

// Start blocks until ctx is done.
func (p *ResyncPoller) Start(ctx context.Context) {
	go func() {
		t := time.NewTicker(p.period)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				p.Trigger()
			}
		}
	}()
	logging.Info("Resync poller started", "period", p.period)

	for {
		select {
		case <-ctx.Done():
			logging.Info("Resync poller stopped")
			return
		case <-p.pollCh:
			p.resync(ctx)
		}
	}
}
