// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package auth manages the single operator login session.
package auth

import (
	"crypto/subtle"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// TokenPrefix marks tokens issued by Login
const TokenPrefix = "session_"

// ErrBadCredentials is returned by Login for a wrong username or password
var ErrBadCredentials = errors.New("invalid username or password")

// HashPassword returns the bcrypt hash of password
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CheckPassword reports whether password matches hash
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Manager holds at most one operator session. A new login replaces the
// previous one.
type Manager struct {
	mu       sync.Mutex
	username string
	hash     string
	timeout  time.Duration

	token    string
	started  time.Time
	lastSeen time.Time

	now func() time.Time
}

// NewManager creates a manager for one account
func NewManager(username, passwordHash string, timeout time.Duration) *Manager {
	return &Manager{
		username: username,
		hash:     passwordHash,
		timeout:  timeout,
		now:      time.Now,
	}
}

func (m *Manager) log() *log.Entry {
	return log.WithField("source", "AUTH")
}

// SetCredentials replaces the account, keeping the current session
func (m *Manager) SetCredentials(username, passwordHash string, timeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.username = username
	m.hash = passwordHash
	m.timeout = timeout
}

// Login checks the credentials and issues a new session token
func (m *Manager) Login(username, password string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.hash == "" || subtle.ConstantTimeCompare([]byte(username), []byte(m.username)) != 1 || !CheckPassword(password, m.hash) {
		m.log().WithField("user", username).Warn("Login failed")
		return "", ErrBadCredentials
	}

	m.token = TokenPrefix + uuid.NewString()
	m.started = m.now()
	m.lastSeen = m.started
	m.log().WithFields(log.Fields{"user": username, "success": true}).Info("Operator logged in")
	return m.token, nil
}

// LoggedIn reports whether a session is active
func (m *Manager) LoggedIn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token != ""
}

// Token returns the active token, empty without a session
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// Started returns when the active session began
func (m *Manager) Started() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

// SessionTimeout is the inactivity limit of a session
func (m *Manager) SessionTimeout() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timeout
}

// Logout ends the session
func (m *Manager) Logout() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token != "" {
		m.log().Info("Operator logged out")
	}
	m.token = ""
}

// ValidToken reports whether tok is the active token and refreshes the
// session on success
func (m *Manager) ValidToken(tok string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token == "" || subtle.ConstantTimeCompare([]byte(tok), []byte(m.token)) != 1 {
		return false
	}
	m.lastSeen = m.now()
	return true
}

// Expire ends the session when it has been unused for longer than the
// timeout. It reports whether a session was ended.
func (m *Manager) Expire(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token == "" || m.timeout <= 0 || now.Sub(m.lastSeen) <= m.timeout {
		return false
	}
	m.token = ""
	return true
}
