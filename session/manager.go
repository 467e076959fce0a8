// Package session tracks connection epochs and runs the throttled join
// sequence for each epoch.
//
// An epoch identifies one connect lifecycle. Work tied to a connection (the
// join sequence) holds the epoch it started under and polls IsCurrent before
// each step; a disconnect or a newer connect makes it stale and the work stops
// at its next check.
package session

import (
	"fmt"
	"sync"
)

// State is the connection state tracked by Manager.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Epoch identifies one connect lifecycle. The zero value is never allocated.
type Epoch uint64

// Manager owns the current epoch. It has no timers and no retry logic;
// reconnecting is the transport's job.
type Manager struct {
	mu    sync.Mutex
	state State
	epoch Epoch // valid only in StateConnected
	last  Epoch
}

// NewManager returns a manager in StateDisconnected.
func NewManager() *Manager { return &Manager{} }

// Connecting records an explicit connect request. It only moves
// Disconnected to Connecting and reports whether it did.
func (m *Manager) Connecting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateDisconnected {
		return false
	}
	m.state = StateConnecting
	return true
}

// Connected allocates a fresh epoch and makes it current, superseding any
// previous epoch regardless of state.
func (m *Manager) Connected() Epoch {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last++
	m.epoch = m.last
	m.state = StateConnected
	return m.epoch
}

// Disconnected invalidates the current epoch.
func (m *Manager) Disconnected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.epoch = 0
	m.state = StateDisconnected
}

// Current returns the current epoch, if connected.
func (m *Manager) Current() (Epoch, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch, m.state == StateConnected
}

// IsCurrent reports whether e is the live epoch.
func (m *Manager) IsCurrent(e Epoch) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return e != 0 && m.state == StateConnected && m.epoch == e
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}
