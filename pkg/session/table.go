// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"fmt"
	"sync"
	"time"
)

// Conn is the outbound side of one push-channel connection
type Conn interface {
	// Send writes one message. Implementations serialise their own writes.
	Send(v interface{}) error
	Close() error
	RemoteAddr() string
}

// SlotInfo is a copy of one slot's state
type SlotInfo struct {
	ID            int
	Occupied      bool
	Authenticated bool
	LastActivity  time.Time
	ConnectedAt   time.Time
	SessionToken  string
	PeerAddress   string
	ClientLabel   string
}

type slot struct {
	conn          Conn
	authenticated bool
	lastActivity  time.Time
	connectedAt   time.Time
	sessionToken  string
	peerAddress   string
	clientLabel   string
}

func (s *slot) info(id int) SlotInfo {
	return SlotInfo{
		ID:            id,
		Occupied:      s.conn != nil,
		Authenticated: s.authenticated,
		LastActivity:  s.lastActivity,
		ConnectedAt:   s.connectedAt,
		SessionToken:  s.sessionToken,
		PeerAddress:   s.peerAddress,
		ClientLabel:   s.clientLabel,
	}
}

// target is a connection picked under the lock and written to after it
type target struct {
	id   int
	conn Conn
}

// Table is the fixed arena of push-channel slots. All slot state lives here
// and is only touched under the table lock.
type Table struct {
	mu    sync.Mutex
	slots []slot
}

// NewTable creates a table with n slots
func NewTable(n int) *Table {
	if n <= 0 {
		n = 1
	}
	return &Table{slots: make([]slot, n)}
}

// Capacity returns the number of slots
func (t *Table) Capacity() int {
	return len(t.slots)
}

func (t *Table) valid(id int) bool {
	return id >= 0 && id < len(t.slots)
}

// Claim places conn in the lowest free slot
func (t *Table) Claim(conn Conn, now time.Time) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.slots {
		if t.slots[i].conn == nil {
			t.slots[i] = slot{
				conn:         conn,
				lastActivity: now,
				connectedAt:  now,
				peerAddress:  conn.RemoteAddr(),
			}
			return i, nil
		}
	}
	return -1, ErrTableFull
}

// Release clears the slot if it still holds conn
func (t *Table) Release(id int, conn Conn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.valid(id) || t.slots[id].conn == nil || t.slots[id].conn != conn {
		return false
	}
	t.slots[id] = slot{}
	return true
}

// Evict clears the slot and returns the connection it held
func (t *Table) Evict(id int) (Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.valid(id) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSlot, id)
	}
	conn := t.slots[id].conn
	t.slots[id] = slot{}
	return conn, nil
}

// Get returns a copy of the slot
func (t *Table) Get(id int) (SlotInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.valid(id) {
		return SlotInfo{}, fmt.Errorf("%w: %d", ErrInvalidSlot, id)
	}
	return t.slots[id].info(id), nil
}

// Conn returns the slot's connection and whether it is authenticated
func (t *Table) Conn(id int) (Conn, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.valid(id) || t.slots[id].conn == nil {
		return nil, false, fmt.Errorf("%w: %d", ErrInvalidSlot, id)
	}
	return t.slots[id].conn, t.slots[id].authenticated, nil
}

// Touch refreshes last activity if the slot still holds conn
func (t *Table) Touch(id int, conn Conn, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.valid(id) && t.slots[id].conn != nil && t.slots[id].conn == conn {
		t.slots[id].lastActivity = now
	}
}

// Authenticate marks the slot authenticated with token and label
func (t *Table) Authenticate(id int, token, label string, now time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.valid(id) || t.slots[id].conn == nil {
		return fmt.Errorf("%w: %d", ErrInvalidSlot, id)
	}
	if token == "" {
		return fmt.Errorf("%w: empty token", ErrMalformedMessage)
	}
	s := &t.slots[id]
	s.authenticated = true
	s.sessionToken = token
	s.clientLabel = label
	s.lastActivity = now
	return nil
}

// authenticated returns every authenticated connection
func (t *Table) authenticated() []target {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []target
	for i := range t.slots {
		if t.slots[i].conn != nil && t.slots[i].authenticated {
			out = append(out, target{id: i, conn: t.slots[i].conn})
		}
	}
	return out
}

// evictIf clears every occupied slot matching pred and returns what it held
func (t *Table) evictIf(pred func(s *slot) bool) ([]target, []SlotInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var conns []target
	var infos []SlotInfo
	for i := range t.slots {
		s := &t.slots[i]
		if s.conn == nil || !pred(s) {
			continue
		}
		conns = append(conns, target{id: i, conn: s.conn})
		infos = append(infos, s.info(i))
		t.slots[i] = slot{}
	}
	return conns, infos
}

// Counts returns occupied and authenticated slot counts
func (t *Table) Counts() (occupied, authenticated int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.slots {
		if t.slots[i].conn != nil {
			occupied++
			if t.slots[i].authenticated {
				authenticated++
			}
		}
	}
	return occupied, authenticated
}

// Snapshot returns copies of all occupied slots
func (t *Table) Snapshot() []SlotInfo {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []SlotInfo
	for i := range t.slots {
		if t.slots[i].conn != nil {
			out = append(out, t.slots[i].info(i))
		}
	}
	return out
}
