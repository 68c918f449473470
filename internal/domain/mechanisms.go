package domain

import "sync/atomic"

// Mechanisms holds the runtime switches toggled by chat commands.
type Mechanisms struct {
	htest   atomic.Bool
	fastout atomic.Bool
}

// NewMechanisms returns switches with the given initial state.
func NewMechanisms(htest, fastout bool) *Mechanisms {
	m := &Mechanisms{}
	m.htest.Store(htest)
	m.fastout.Store(fastout)
	return m
}

// HTest reports whether new participants are challenged.
func (m *Mechanisms) HTest() bool { return m.htest.Load() }

// FastOut reports whether messages are tracked for purge on departure.
func (m *Mechanisms) FastOut() bool { return m.fastout.Load() }

// SetHTest toggles the challenge mechanism.
func (m *Mechanisms) SetHTest(on bool) { m.htest.Store(on) }

// SetFastOut toggles message tracking.
func (m *Mechanisms) SetFastOut(on bool) { m.fastout.Store(on) }
