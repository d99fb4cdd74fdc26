package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/mmcdole/brewsync/internal/domain"
)

// Run schedules passes for userID until ctx is done: one on every
// disconnected to connected transition and a periodic one once the cooldown
// since the last pass has elapsed.
func (e *Engine) Run(ctx context.Context, userID string) {
	reconnected := make(chan domain.NetworkState, 1)
	var mu sync.Mutex
	online := e.network.CurrentState().Online()
	unsubscribe := e.network.Subscribe(func(s domain.NetworkState) {
		now := s.Online()
		mu.Lock()
		was := online
		online = now
		mu.Unlock()
		if now && !was {
			// One pending reconnect is enough.
			select {
			case reconnected <- s:
			default:
			}
		}
	})
	defer unsubscribe()

	interval := e.Config().CheckInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Debug("sync loop started", "user", userID, "interval", interval)

	for {
		select {
		case <-ctx.Done():
			e.logger.Debug("sync loop stopped", "user", userID)
			return

		case s := <-reconnected:
			e.logger.Info("network restored, syncing", "user", userID, "connection", s.ConnectionType)
			e.Trigger(ctx, userID, domain.TriggerReconnect)

		case <-ticker.C:
			cfg := e.Config()
			if cfg.CheckInterval != interval {
				interval = cfg.CheckInterval
				ticker.Reset(interval)
			}
			if e.dueForPeriodic(userID, cfg.Cooldown) {
				e.Trigger(ctx, userID, domain.TriggerPeriodic)
			}
		}
	}
}

// dueForPeriodic reports whether the cooldown since the last pass elapsed
// and there is work to do.
func (e *Engine) dueForPeriodic(userID string, cooldown time.Duration) bool {
	e.mu.RLock()
	last := e.lastPass[userID]
	e.mu.RUnlock()

	if !last.IsZero() && e.clock().Sub(last) < cooldown {
		return false
	}
	n, err := e.queue.Count(userID)
	if err != nil {
		e.logger.Warn("failed to count pending operations", "user", userID, "error", err)
		return false
	}
	return n > 0
}
