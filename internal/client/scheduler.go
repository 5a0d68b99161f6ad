package client

import "time"

// scheduler owns every recurring timer the synchronizer runs, so
// teardown is a single Stop call and no handle can leak.
type scheduler struct {
	heartbeat *time.Ticker
	online    *time.Ticker
	backstop  *time.Ticker
	reconnect *time.Timer
}

func newScheduler(o Options) *scheduler {
	return &scheduler{
		heartbeat: time.NewTicker(o.HeartbeatInterval),
		online:    time.NewTicker(o.OnlinePollInterval),
		backstop:  time.NewTicker(o.BackstopInterval),
	}
}

// reconnectC returns the pending reconnect channel, or nil (blocks
// forever in a select) when no reconnect is armed.
func (s *scheduler) reconnectC() <-chan time.Time {
	if s.reconnect == nil {
		return nil
	}
	return s.reconnect.C
}

func (s *scheduler) armReconnect(d time.Duration) {
	s.cancelReconnect()
	s.reconnect = time.NewTimer(d)
}

func (s *scheduler) cancelReconnect() {
	if s.reconnect != nil {
		s.reconnect.Stop()
		s.reconnect = nil
	}
}

func (s *scheduler) Stop() {
	s.heartbeat.Stop()
	s.online.Stop()
	s.backstop.Stop()
	s.cancelReconnect()
}
