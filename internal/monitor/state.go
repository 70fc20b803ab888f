package monitor

import (
	"sync"
	"time"
)

// Snapshot is a consistent copy of the monitor state.
type Snapshot struct {
	Running        bool
	StartTime      time.Time
	MonitorStarted time.Time
	TotalRelayed   int
	LastCheck      time.Time
	LastError      string
	LastErrorAt    time.Time
	Cycles         int
	FailedCycles   int
}

func (s Snapshot) Uptime(now time.Time) time.Duration {
	return now.Sub(s.StartTime).Truncate(time.Second)
}

// State is written by the controller only and read by status surfaces.
// TotalRelayed never decreases and LastCheck never moves back.
type State struct {
	mu sync.RWMutex
	s  Snapshot
}

func NewState(startTime time.Time) *State {
	return &State{s: Snapshot{StartTime: startTime}}
}

func (st *State) Snapshot() Snapshot {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s
}

func (st *State) setRunning(running bool, at time.Time) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.Running = running
	if running {
		st.s.MonitorStarted = at
	}
}

func (st *State) recordCheck(at time.Time) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if at.After(st.s.LastCheck) {
		st.s.LastCheck = at
	}
}

func (st *State) addRelayed(n int) {
	if n <= 0 {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.TotalRelayed += n
}

func (st *State) recordCycle(err error, at time.Time) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.Cycles++
	if err != nil {
		st.s.FailedCycles++
		st.s.LastError = err.Error()
		st.s.LastErrorAt = at
	}
}

// RecordError stores a failure that happened outside of a cycle, e.g. a
// status message that could not be delivered.
func (st *State) RecordError(err error, at time.Time) {
	if err == nil {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.LastError = err.Error()
	st.s.LastErrorAt = at
}
