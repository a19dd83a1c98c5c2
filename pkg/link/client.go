// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/eklim/faultlink/pkg/frame"
)

// EventHandler receives unsolicited frames from the peer.
type EventHandler func(f *frame.Frame)

// Client runs request/response transactions over a Transport. At most one
// transaction is outstanding at any time.
type Client struct {
	transport *Transport
	guard     chan struct{}

	mu           sync.Mutex
	onEvent      EventHandler
	lastResponse string
}

// NewClient creates a transaction client on top of t
func NewClient(t *Transport) *Client {
	return &Client{
		transport: t,
		guard:     make(chan struct{}, 1),
	}
}

func (c *Client) log() *log.Entry {
	return log.WithField("source", "UART")
}

// Transport returns the underlying transport
func (c *Client) Transport() *Transport {
	return c.transport
}

// OnEvent registers the handler for unsolicited event frames
func (c *Client) OnEvent(h EventHandler) {
	c.mu.Lock()
	c.onEvent = h
	c.mu.Unlock()
}

func (c *Client) dispatch(f *frame.Frame) {
	c.mu.Lock()
	h := c.onEvent
	c.mu.Unlock()

	if h == nil {
		c.log().WithField("command", frame.FormatCommand(f.Command())).Debug("Unhandled event frame")
		return
	}
	h(f)
}

// acquire takes the link for one transaction, waiting at most timeout.
func (c *Client) acquire(timeout time.Duration) error {
	select {
	case c.guard <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case c.guard <- struct{}{}:
		return nil
	case <-timer.C:
		return ErrBusy
	}
}

func (c *Client) release() {
	<-c.guard
}

// Transact sends one request and waits for its response. Event frames that
// arrive while waiting go to the event handler and do not end the wait.
func (c *Client) Transact(command byte, payload []byte, timeout time.Duration) (*frame.Frame, error) {
	req, err := frame.New(command, payload)
	if err != nil {
		return nil, err
	}

	if err := c.acquire(timeout); err != nil {
		return nil, err
	}
	defer c.release()

	if err := c.transport.SendFrame(req); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			c.transport.Stats().AddTimeout()
			return nil, ErrTimeout
		}

		resp, err := c.transport.ReceiveFrame(remaining)
		if err != nil {
			c.log().WithError(err).WithField("command", frame.FormatCommand(command)).Debug("Transaction failed")
			return nil, err
		}

		if frame.IsEvent(resp.Command()) {
			c.dispatch(resp)
			continue
		}
		if resp.Command() == frame.CmdNack {
			return resp, fmt.Errorf("%s: %w", frame.FormatCommand(command), ErrNacked)
		}
		return resp, nil
	}
}

// Listen polls once for an unsolicited event frame outside any transaction.
// When a transaction holds the link it waits up to timeout for it and then
// returns with no error.
func (c *Client) Listen(timeout time.Duration) error {
	if c.acquire(timeout) != nil {
		return nil
	}
	defer c.release()

	f, err := c.transport.Poll(timeout)
	if err != nil {
		return err
	}
	if f == nil {
		return nil
	}
	if frame.IsEvent(f.Command()) {
		c.dispatch(f)
		return nil
	}
	c.log().WithField("command", frame.FormatCommand(f.Command())).Debug("Discarding stray response frame")
	return nil
}

// Reinit restarts the transport between transactions. It waits up to
// ReinitWait for a running transaction to finish.
func (c *Client) Reinit() error {
	if err := c.acquire(ReinitWait); err != nil {
		return err
	}
	defer c.release()
	return c.transport.Reinit()
}

// LastResponse returns the last meaningful reply text, shortened for display
func (c *Client) LastResponse() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.lastResponse) > 50 {
		return c.lastResponse[:47] + "..."
	}
	return c.lastResponse
}

func (c *Client) setLastResponse(s string) {
	c.mu.Lock()
	c.lastResponse = s
	c.mu.Unlock()
}
