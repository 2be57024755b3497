package app

import "time"

// alarm is a re-armable timer whose channel is nil while disarmed, so it can
// sit in a select without firing.
type alarm struct {
	t     *time.Timer
	armed bool
}

func (a *alarm) Start(d time.Duration) {
	a.Stop()
	if a.t == nil {
		a.t = time.NewTimer(d)
	} else {
		a.t.Reset(d)
	}
	a.armed = true
}

func (a *alarm) Stop() {
	if a.t == nil {
		return
	}
	if !a.t.Stop() && a.armed {
		select {
		case <-a.t.C:
		default:
		}
	}
	a.armed = false
}

// C returns the firing channel, or nil when disarmed.
func (a *alarm) C() <-chan time.Time {
	if !a.armed {
		return nil
	}
	return a.t.C
}

// Fired marks the alarm as consumed after a receive on C.
func (a *alarm) Fired() { a.armed = false }
