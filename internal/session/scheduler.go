package session

import "time"

const tickPeriod = time.Second / 60

// drive runs s's 60Hz loop until requestStop. Ticks are never skipped:
// if wall-clock scheduling falls behind, the loop executes consecutive
// ticks back-to-back without sleeping until it catches back up to
// within one period of the deadline (spec §4.3: "bounded drift < 1
// tick under nominal load").
func (m *Manager) drive(s *session) {
	defer close(s.doneCh)

	next := time.Now().Add(tickPeriod)
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		now := time.Now()
		if now.Before(next) {
			timer := time.NewTimer(next.Sub(now))
			select {
			case <-timer.C:
			case <-s.stopCh:
				timer.Stop()
				return
			}
		}

		if !m.tickOnce(s) {
			return
		}
		next = next.Add(tickPeriod)

		for time.Now().Sub(next) > tickPeriod {
			select {
			case <-s.stopCh:
				return
			default:
			}
			if !m.tickOnce(s) {
				return
			}
			next = next.Add(tickPeriod)
		}
	}
}
