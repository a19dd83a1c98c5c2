// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/eklim/faultlink/pkg/frame"
)

// Command timeouts used by the peer firmware
const (
	PingTimeout      = 2 * time.Second
	TimeQueryTimeout = 3 * time.Second
	ConfigTimeout    = 3 * time.Second
	FaultTimeout     = 5 * time.Second
	StatusTimeout    = 3 * time.Second
	ResetTimeout     = 5 * time.Second

	// ReinitWait bounds how long a transport restart waits for the link
	ReinitWait = ResetTimeout
)

// EndOfList is recorded as the last response once the fault list is drained
const EndOfList = "EOL"

// isAck reports whether a reply acknowledges a command
func isAck(f *frame.Frame) bool {
	text := f.Text()
	return f.Command() == frame.CmdAck || text == "ACK" || strings.Contains(text, "OK")
}

// Ping checks that the peer answers. Any reply counts as alive.
func (c *Client) Ping() error {
	resp, err := c.Transact(frame.CmdPing, []byte("PING"), PingTimeout)
	if err != nil {
		return err
	}
	if text := resp.Text(); text != "PONG" && !isAck(resp) {
		c.log().WithField("response", text).Debug("Ping answered")
	}
	return nil
}

// QueryTime asks the peer for its clock
func (c *Client) QueryTime() (time.Time, error) {
	resp, err := c.Transact(frame.CmdGetTime, nil, TimeQueryTimeout)
	if err != nil {
		return time.Time{}, err
	}

	text := resp.Text()
	if len(text) < 12 {
		c.log().WithField("response", text).Error("Invalid time format")
		return time.Time{}, fmt.Errorf("%w: time reply %q", ErrMalformedReply, text)
	}
	c.setLastResponse(text)

	t, err := ParsePeerTime(text)
	if err != nil {
		return time.Time{}, err
	}
	c.log().WithField("time", t.Format("02.01.2006 15:04:05")).Info("Peer time received")
	return t, nil
}

// PushNTPServers sends the NTP server pair to the peer. Any reply is accepted.
func (c *Client) PushNTPServers(server1, server2 string) error {
	resp, err := c.Transact(frame.CmdSetNTP, []byte(server1+","+server2), ConfigTimeout)
	if err != nil {
		c.log().WithError(err).Error("NTP config not delivered")
		return err
	}
	if !isAck(resp) {
		c.log().WithField("response", resp.Text()).Warn("NTP config reply")
		return nil
	}
	c.log().Info("NTP config delivered")
	return nil
}

// SetBaudRate asks the peer to switch baud rate
func (c *Client) SetBaudRate(baud int) error {
	if !ValidBaudRate(baud) {
		return fmt.Errorf("set baud rate %d: %w", baud, ErrUnsupportedBaud)
	}
	resp, err := c.Transact(frame.CmdSetBaudRate, []byte(strconv.Itoa(baud)), ConfigTimeout)
	if err != nil {
		return err
	}
	if !isAck(resp) {
		c.log().WithField("response", resp.Text()).Warn("Baud rate reply")
		return fmt.Errorf("set baud rate %d: %w", baud, ErrRejected)
	}
	c.log().WithField("baud", baud).Info("Baud rate change sent")
	return nil
}

// FirstFault rewinds the peer's fault list and returns the first record
func (c *Client) FirstFault() (string, error) {
	resp, err := c.Transact(frame.CmdGetFirstFault, nil, FaultTimeout)
	if err != nil {
		return "", err
	}
	if resp.Length() == 0 {
		return "", ErrNoRecord
	}
	record := resp.Text()
	c.setLastResponse(record)
	c.log().WithField("bytes", len(record)).Info("First fault record received")
	return record, nil
}

// NextFault returns the next record. more is false once the list is exhausted.
func (c *Client) NextFault() (record string, more bool, err error) {
	resp, err := c.Transact(frame.CmdGetNextFault, nil, FaultTimeout)
	if err != nil {
		return "", false, err
	}
	if resp.Length() == 0 {
		c.setLastResponse(EndOfList)
		c.log().Debug("No more fault records")
		return "", false, nil
	}
	record = resp.Text()
	c.setLastResponse(record)
	c.log().WithField("bytes", len(record)).Info("Next fault record received")
	return record, true, nil
}

// FetchFaults reads up to max records starting from the first one
func (c *Client) FetchFaults(max int) ([]string, error) {
	first, err := c.FirstFault()
	if err != nil {
		return nil, err
	}
	records := []string{first}
	for len(records) < max {
		record, more, err := c.NextFault()
		if err != nil {
			return records, err
		}
		if !more {
			break
		}
		records = append(records, record)
	}
	return records, nil
}

// QueryStatus returns the peer's status text
func (c *Client) QueryStatus() (string, error) {
	resp, err := c.Transact(frame.CmdGetStatus, nil, StatusTimeout)
	if err != nil {
		return "", err
	}
	if resp.Length() == 0 {
		return "", fmt.Errorf("%w: empty status", ErrMalformedReply)
	}
	c.setLastResponse(resp.Text())
	return resp.Text(), nil
}

// ClearFaults erases the peer's fault list
func (c *Client) ClearFaults() error {
	resp, err := c.Transact(frame.CmdClearFaults, nil, ConfigTimeout)
	if err != nil {
		return err
	}
	if !isAck(resp) {
		return fmt.Errorf("clear faults: %w", ErrRejected)
	}
	c.log().Info("Fault records cleared")
	return nil
}

// ResetPeer asks the peer controller to restart
func (c *Client) ResetPeer() error {
	resp, err := c.Transact(frame.CmdReset, []byte("RESET"), ResetTimeout)
	if err != nil {
		return err
	}
	if !isAck(resp) {
		return fmt.Errorf("reset: %w", ErrRejected)
	}
	c.log().Info("Peer reset command sent")
	return nil
}
