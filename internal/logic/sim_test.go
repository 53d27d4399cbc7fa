package logic

import (
	"strings"
	"testing"
)

type transitionAt struct {
	From State
	To   State
	At   Millis
}

type logAt struct {
	Text string
	At   Millis
}

// sim drives a Controller on a simulated clock and records every effect.
type sim struct {
	t    *testing.T
	c    *Controller
	now  Millis
	step Millis
	in   Input

	trans  []transitionAt
	logs   []logAt
	relays [NumRelays]Level
	everOn [NumRelays]bool
}

func newSim(t *testing.T, start, step Millis) *sim {
	t.Helper()
	s := &sim{t: t, c: NewController(start), now: start, step: step}
	s.apply(s.c.Boot())
	return s
}

// newGridSim returns a sim in Idle with the grid stably present.
func newGridSim(t *testing.T) *sim {
	t.Helper()
	s := newSim(t, 0, 10)
	s.in.GridRaw = true
	s.in.GridADC = 500
	s.runFor(200)
	if !s.c.Status().GridPresent {
		t.Fatal("setup: grid not present after settling")
	}
	return s
}

func (s *sim) apply(effects []Effect) {
	for _, e := range effects {
		switch e.Kind {
		case EffectRelay:
			s.relays[e.Relay] = e.Level
			if e.Level == On {
				s.everOn[e.Relay] = true
			}
		case EffectLog:
			s.logs = append(s.logs, logAt{Text: e.Text, At: s.now})
		case EffectTransition:
			if e.To == StateGridRestoredWait {
				s.t.Errorf("t=%d: unexpected transition into %s", s.now, e.To)
			}
			s.trans = append(s.trans, transitionAt{From: e.From, To: e.To, At: s.now})
		}
	}
}

func (s *sim) tick() {
	s.in.Now = s.now
	s.apply(s.c.Tick(s.in))
	s.now += s.step
}

func (s *sim) runFor(d Millis) {
	for n := d / s.step; n > 0; n-- {
		s.tick()
	}
}

// runUntil ticks until the controller enters want and returns the tick time
// of that transition.
func (s *sim) runUntil(want State, limit Millis) Millis {
	s.t.Helper()
	seen := len(s.trans)
	for n := limit / s.step; n > 0; n-- {
		s.tick()
		for _, tr := range s.trans[seen:] {
			if tr.To == want {
				return tr.At
			}
		}
		seen = len(s.trans)
	}
	s.t.Fatalf("state %s not reached within %dms (in %s)", want, limit, s.c.State())
	return 0
}

func (s *sim) countEntries(st State) int {
	n := 0
	for _, tr := range s.trans {
		if tr.To == st {
			n++
		}
	}
	return n
}

func (s *sim) logsContaining(substr string) []logAt {
	var out []logAt
	for _, l := range s.logs {
		if strings.Contains(l.Text, substr) {
			out = append(out, l)
		}
	}
	return out
}

// loseGrid drops the grid and runs until GridLossDetected.
func (s *sim) loseGrid() Millis {
	s.t.Helper()
	s.in.GridRaw = false
	return s.runUntil(StateGridLossDetected, 1000)
}

// crankToCheck runs a start sequence from GridLossDetected or a retry up to
// CheckRunning. If engineCatches is set the generator sense loop reports
// running once cranking starts.
func (s *sim) crankToCheck(engineCatches bool) Millis {
	s.t.Helper()
	s.runUntil(StateStartCranking, GridLossWait+StartCheckDelay+StartRetryDelay+10000)
	if engineCatches {
		s.in.GenRaw = true
	}
	return s.runUntil(StateCheckRunning, CrankTime+ChokeOffDelay+1000)
}

// runToWaitATS takes a fresh grid sim through a successful start.
func (s *sim) runToWaitATS() Millis {
	s.t.Helper()
	s.loseGrid()
	s.crankToCheck(true)
	return s.runUntil(StateRunningWaitATS, StartCheckDelay+1000)
}

// runToATS takes a fresh grid sim all the way to RunningWithATS.
func (s *sim) runToATS() Millis {
	s.t.Helper()
	s.in.GenADC = 500
	s.runToWaitATS()
	return s.runUntil(StateRunningWithATS, ATSDelay+1000)
}
