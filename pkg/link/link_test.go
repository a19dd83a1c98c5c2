// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/eklim/faultlink/pkg/frame"
)

// ============================================================
// Test Helpers
// ============================================================

// fakePort is an in-memory Port. Writes are decoded and passed to respond,
// whose reply bytes become readable.
type fakePort struct {
	mu      sync.Mutex
	rx      []byte
	sent    []*frame.Frame
	timeout time.Duration
	closed  bool
	resets  int
	respond func(req *frame.Frame) []byte
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	if len(p.rx) > 0 {
		n := copy(b, p.rx)
		p.rx = p.rx[n:]
		p.mu.Unlock()
		return n, nil
	}
	timeout := p.timeout
	p.mu.Unlock()

	time.Sleep(timeout)
	return 0, nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, io.ErrClosedPipe
	}

	r := frame.NewReceiver()
	for _, c := range b {
		if f, _ := r.Feed(c); f != nil {
			p.sent = append(p.sent, f)
			if p.respond != nil {
				p.rx = append(p.rx, p.respond(f)...)
			}
		}
	}
	return len(b), nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	p.mu.Lock()
	p.timeout = t
	p.mu.Unlock()
	return nil
}

func (p *fakePort) ResetInputBuffer() error {
	p.mu.Lock()
	p.rx = nil
	p.resets++
	p.mu.Unlock()
	return nil
}

func (p *fakePort) inject(data []byte) {
	p.mu.Lock()
	p.rx = append(p.rx, data...)
	p.mu.Unlock()
}

func (p *fakePort) sentCommands() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	var cmds []byte
	for _, f := range p.sent {
		cmds = append(cmds, f.Command())
	}
	return cmds
}

// mustEncode builds wire bytes or panics
func mustEncode(cmd byte, payload string) []byte {
	wire, err := frame.Encode(cmd, []byte(payload))
	if err != nil {
		panic(err)
	}
	return wire
}

// reply answers every request with the given command and payload
func reply(cmd byte, payload string) func(*frame.Frame) []byte {
	return func(*frame.Frame) []byte {
		return mustEncode(cmd, payload)
	}
}

// newTestClient opens a client on a fresh fake port
func newTestClient(t *testing.T, respond func(*frame.Frame) []byte) (*Client, *fakePort) {
	t.Helper()
	port := &fakePort{respond: respond}
	tr := NewTransport(func() (Port, error) { return port, nil }, nil)
	if err := tr.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return NewClient(tr), port
}

// ============================================================
// Transport Tests
// ============================================================

func TestTransport_SendReceive(t *testing.T) {
	c, port := newTestClient(t, reply(frame.CmdAck, "ACK"))
	tr := c.Transport()

	if err := tr.Send(frame.CmdPing, []byte("PING")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	f, err := tr.ReceiveFrame(time.Second)
	if err != nil {
		t.Fatalf("ReceiveFrame failed: %v", err)
	}
	if f.Command() != frame.CmdAck || f.Text() != "ACK" {
		t.Errorf("unexpected frame: %s", frame.FormatFrame(f))
	}
	if port.resets != 1 {
		t.Errorf("expected input buffer reset before send, got %d resets", port.resets)
	}

	snap := tr.Stats().Snapshot()
	if snap.Sent != 1 || snap.Received != 1 {
		t.Errorf("unexpected counters: %+v", snap)
	}
}

func TestTransport_TimeoutCountsOnlyTimeout(t *testing.T) {
	c, _ := newTestClient(t, nil)
	tr := c.Transport()

	_, err := tr.ReceiveFrame(80 * time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}

	snap := tr.Stats().Snapshot()
	if snap.TimeoutErrors != 1 {
		t.Errorf("expected 1 timeout, got %d", snap.TimeoutErrors)
	}
	if snap.ChecksumErrors != 0 || snap.FrameErrors != 0 {
		t.Errorf("timeout leaked into other counters: %+v", snap)
	}
}

func TestTransport_PollDoesNotCountQuietLine(t *testing.T) {
	c, _ := newTestClient(t, nil)
	tr := c.Transport()

	f, err := tr.Poll(60 * time.Millisecond)
	if f != nil || err != nil {
		t.Fatalf("expected nothing, got %v, %v", f, err)
	}
	if snap := tr.Stats().Snapshot(); snap.TimeoutErrors != 0 {
		t.Errorf("poll counted a timeout: %+v", snap)
	}
}

func TestTransport_ChecksumError(t *testing.T) {
	c, port := newTestClient(t, nil)
	tr := c.Transport()

	port.inject([]byte{frame.StartByte, frame.CmdAck, 0x00, 0x01, 'A', 0x00, frame.EndByte})
	_, err := tr.ReceiveFrame(time.Second)
	if !errors.Is(err, frame.ErrChecksum) {
		t.Fatalf("expected ErrChecksum, got %v", err)
	}
	if snap := tr.Stats().Snapshot(); snap.ChecksumErrors != 1 || snap.FrameErrors != 0 {
		t.Errorf("unexpected counters: %+v", snap)
	}
}

func TestTransport_KeepsBytesAfterFrame(t *testing.T) {
	c, port := newTestClient(t, nil)
	tr := c.Transport()

	data := append(mustEncode(frame.CmdEventLog, "one"), mustEncode(frame.CmdEventLog, "two")...)
	port.inject(data)

	for _, want := range []string{"one", "two"} {
		f, err := tr.ReceiveFrame(time.Second)
		if err != nil {
			t.Fatalf("ReceiveFrame failed: %v", err)
		}
		if f.Text() != want {
			t.Errorf("expected %q, got %q", want, f.Text())
		}
	}
}

func TestTransport_Unavailable(t *testing.T) {
	tr := NewTransport(func() (Port, error) { return nil, io.ErrClosedPipe }, nil)

	if err := tr.Send(frame.CmdPing, nil); !errors.Is(err, ErrTransportUnavailable) {
		t.Errorf("Send: expected ErrTransportUnavailable, got %v", err)
	}
	if _, err := tr.ReceiveFrame(10 * time.Millisecond); !errors.Is(err, ErrTransportUnavailable) {
		t.Errorf("ReceiveFrame: expected ErrTransportUnavailable, got %v", err)
	}
	if snap := tr.Stats().Snapshot(); snap.FrameErrors != 1 {
		t.Errorf("expected 1 frame error, got %+v", snap)
	}
}

func TestTransport_ReinitKeepsStatistics(t *testing.T) {
	opens := 0
	var ports []*fakePort
	tr := NewTransport(func() (Port, error) {
		opens++
		p := &fakePort{}
		ports = append(ports, p)
		return p, nil
	}, nil)
	if err := tr.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	_ = tr.Send(frame.CmdPing, nil)

	if err := tr.Reinit(); err != nil {
		t.Fatalf("Reinit failed: %v", err)
	}
	if opens != 2 {
		t.Errorf("expected 2 opens, got %d", opens)
	}
	if !ports[0].closed {
		t.Error("old port not closed")
	}
	if snap := tr.Stats().Snapshot(); snap.Sent != 1 {
		t.Errorf("statistics reset by reinit: %+v", snap)
	}
}

// ============================================================
// Client Tests
// ============================================================

func TestClient_TransactNack(t *testing.T) {
	c, _ := newTestClient(t, reply(frame.CmdNack, ""))

	_, err := c.Transact(frame.CmdGetStatus, nil, time.Second)
	if !errors.Is(err, ErrNacked) {
		t.Errorf("expected ErrNacked, got %v", err)
	}
}

func TestClient_TransactTimeout(t *testing.T) {
	c, _ := newTestClient(t, nil)

	_, err := c.Transact(frame.CmdPing, []byte("PING"), 100*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	snap := c.Transport().Stats().Snapshot()
	if snap.TimeoutErrors != 1 || snap.ChecksumErrors != 0 || snap.FrameErrors != 0 {
		t.Errorf("unexpected counters: %+v", snap)
	}
}

func TestClient_EventDuringTransaction(t *testing.T) {
	c, _ := newTestClient(t, func(req *frame.Frame) []byte {
		out := mustEncode(frame.CmdEventFault, "F07 EARTH FAULT")
		return append(out, mustEncode(frame.CmdAck, "STATUS OK")...)
	})

	var events []string
	c.OnEvent(func(f *frame.Frame) {
		events = append(events, f.Text())
	})

	resp, err := c.Transact(frame.CmdGetStatus, nil, time.Second)
	if err != nil {
		t.Fatalf("Transact failed: %v", err)
	}
	if resp.Text() != "STATUS OK" {
		t.Errorf("expected the real response, got %q", resp.Text())
	}
	if len(events) != 1 || events[0] != "F07 EARTH FAULT" {
		t.Errorf("event not dispatched: %v", events)
	}
}

func TestClient_SingleOutstanding(t *testing.T) {
	c, _ := newTestClient(t, reply(frame.CmdAck, "ACK"))

	// Hold the link as if a transaction were in flight
	c.guard <- struct{}{}
	_, err := c.Transact(frame.CmdPing, nil, 50*time.Millisecond)
	if !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}
	c.release()

	if _, err := c.Transact(frame.CmdPing, nil, time.Second); err != nil {
		t.Errorf("Transact after release failed: %v", err)
	}
}

func TestClient_ConcurrentTransactionsSerialize(t *testing.T) {
	c, port := newTestClient(t, reply(frame.CmdAck, "ACK"))

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Transact(frame.CmdPing, []byte("PING"), 2*time.Second)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("transaction failed: %v", err)
		}
	}
	if n := len(port.sentCommands()); n != 4 {
		t.Errorf("expected 4 requests, got %d", n)
	}
}

func TestClient_Listen(t *testing.T) {
	c, port := newTestClient(t, nil)

	got := make(chan string, 1)
	c.OnEvent(func(f *frame.Frame) { got <- f.Text() })
	port.inject(mustEncode(frame.CmdEventLog, "BREAKER 3 OPEN"))

	if err := c.Listen(time.Second); err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	select {
	case text := <-got:
		if text != "BREAKER 3 OPEN" {
			t.Errorf("unexpected event text %q", text)
		}
	default:
		t.Error("event not delivered")
	}
}

func TestClient_ListenWaitsWhileBusy(t *testing.T) {
	c, _ := newTestClient(t, nil)

	c.guard <- struct{}{}
	defer c.release()

	start := time.Now()
	if err := c.Listen(80 * time.Millisecond); err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 70*time.Millisecond {
		t.Errorf("Listen returned after %v while the link was held", elapsed)
	}
}

func TestClient_ReinitWaitsForTransaction(t *testing.T) {
	var mu sync.Mutex
	var ports []*fakePort
	tr := NewTransport(func() (Port, error) {
		p := &fakePort{respond: func(*frame.Frame) []byte {
			wire := mustEncode(frame.CmdAck, "STATUS OK")
			return wire[:len(wire)/2]
		}}
		mu.Lock()
		ports = append(ports, p)
		mu.Unlock()
		return p, nil
	}, nil)
	if err := tr.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	c := NewClient(tr)

	done := make(chan time.Time, 1)
	go func() {
		_, err := c.Transact(frame.CmdGetStatus, nil, 150*time.Millisecond)
		if !errors.Is(err, ErrTimeout) {
			t.Errorf("expected ErrTimeout, got %v", err)
		}
		done <- time.Now()
	}()

	mu.Lock()
	first := ports[0]
	mu.Unlock()
	deadline := time.Now().Add(time.Second)
	for len(first.sentCommands()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	// The half frame is now being read
	time.Sleep(20 * time.Millisecond)

	if err := c.Reinit(); err != nil {
		t.Fatalf("Reinit failed: %v", err)
	}
	reinitAt := time.Now()

	finished := <-done
	if reinitAt.Before(finished) {
		t.Error("transport restarted while a transaction was running")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(ports) != 2 {
		t.Errorf("expected 2 opens, got %d", len(ports))
	}
}

func TestClient_ReinitAfterRelease(t *testing.T) {
	c, port := newTestClient(t, nil)

	c.guard <- struct{}{}
	go func() {
		time.Sleep(30 * time.Millisecond)
		c.release()
	}()

	if err := c.Reinit(); err != nil {
		t.Fatalf("Reinit failed: %v", err)
	}
	port.mu.Lock()
	closed := port.closed
	port.mu.Unlock()
	if !closed {
		t.Error("old port not closed by reinit")
	}
}

// ============================================================
// Convenience Command Tests
// ============================================================

func TestClient_Ping(t *testing.T) {
	tests := []struct {
		name    string
		respond func(*frame.Frame) []byte
		wantErr error
	}{
		{"pong", reply(frame.CmdAck, "PONG"), nil},
		{"any text", reply(frame.CmdAck, "hello"), nil},
		{"nack", reply(frame.CmdNack, ""), ErrNacked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, port := newTestClient(t, tt.respond)
			err := c.Ping()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if cmds := port.sentCommands(); len(cmds) != 1 || cmds[0] != frame.CmdPing {
				t.Errorf("expected one PING, got %v", cmds)
			}
		})
	}
}

func TestClient_QueryTime(t *testing.T) {
	c, _ := newTestClient(t, reply(frame.CmdAck, "150325134502"))
	got, err := c.QueryTime()
	if err != nil {
		t.Fatalf("QueryTime failed: %v", err)
	}
	want := time.Date(2025, time.March, 15, 13, 45, 2, 0, time.Local)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if c.LastResponse() != "150325134502" {
		t.Errorf("last response not recorded: %q", c.LastResponse())
	}
}

func TestClient_QueryTimeTooShort(t *testing.T) {
	c, _ := newTestClient(t, reply(frame.CmdAck, "1503251345"))
	if _, err := c.QueryTime(); !errors.Is(err, ErrMalformedReply) {
		t.Errorf("expected ErrMalformedReply, got %v", err)
	}
}

func TestClient_PushNTPServersLenient(t *testing.T) {
	var payload string
	c, _ := newTestClient(t, func(req *frame.Frame) []byte {
		payload = req.Text()
		return mustEncode(frame.CmdAck, "WHATEVER")
	})
	if err := c.PushNTPServers("pool.ntp.org", "time.google.com"); err != nil {
		t.Errorf("expected lenient success, got %v", err)
	}
	if payload != "pool.ntp.org,time.google.com" {
		t.Errorf("unexpected payload %q", payload)
	}
}

func TestClient_AckRequired(t *testing.T) {
	tests := []struct {
		name    string
		call    func(*Client) error
		respond func(*frame.Frame) []byte
		wantErr error
	}{
		{"baud ack", func(c *Client) error { return c.SetBaudRate(115200) }, reply(frame.CmdAck, ""), nil},
		{"baud ok text", func(c *Client) error { return c.SetBaudRate(9600) }, reply(0x70, "BAUD OK"), nil},
		{"baud rejected", func(c *Client) error { return c.SetBaudRate(9600) }, reply(0x70, "BAD"), ErrRejected},
		{"baud unsupported", func(c *Client) error { return c.SetBaudRate(12345) }, reply(frame.CmdAck, ""), ErrUnsupportedBaud},
		{"clear ack", func(c *Client) error { return c.ClearFaults() }, reply(frame.CmdAck, "ACK"), nil},
		{"clear rejected", func(c *Client) error { return c.ClearFaults() }, reply(0x70, "NO"), ErrRejected},
		{"reset ok", func(c *Client) error { return c.ResetPeer() }, reply(0x70, "OK"), nil},
		{"reset rejected", func(c *Client) error { return c.ResetPeer() }, reply(0x70, ""), ErrRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, tt.respond)
			err := tt.call(c)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestClient_FetchFaults(t *testing.T) {
	records := []string{"F01 OVERCURRENT", "F02 UNDERVOLTAGE"}
	next := 0
	c, _ := newTestClient(t, func(req *frame.Frame) []byte {
		switch req.Command() {
		case frame.CmdGetFirstFault:
			next = 1
			return mustEncode(frame.CmdAck, records[0])
		case frame.CmdGetNextFault:
			if next >= len(records) {
				return mustEncode(frame.CmdAck, "")
			}
			next++
			return mustEncode(frame.CmdAck, records[next-1])
		}
		return mustEncode(frame.CmdNack, "")
	})

	got, err := c.FetchFaults(10)
	if err != nil {
		t.Fatalf("FetchFaults failed: %v", err)
	}
	if len(got) != 2 || got[0] != records[0] || got[1] != records[1] {
		t.Errorf("unexpected records: %v", got)
	}
	if c.LastResponse() != EndOfList {
		t.Errorf("expected EOL, got %q", c.LastResponse())
	}
}

func TestClient_FirstFaultEmpty(t *testing.T) {
	c, _ := newTestClient(t, reply(frame.CmdAck, ""))
	if _, err := c.FirstFault(); !errors.Is(err, ErrNoRecord) {
		t.Errorf("expected ErrNoRecord, got %v", err)
	}
}

func TestClient_LastResponseTruncated(t *testing.T) {
	long := "0123456789012345678901234567890123456789012345678901234567890"
	c, _ := newTestClient(t, reply(frame.CmdAck, long))
	if _, err := c.QueryStatus(); err != nil {
		t.Fatalf("QueryStatus failed: %v", err)
	}
	got := c.LastResponse()
	if len(got) != 50 || got[47:] != "..." {
		t.Errorf("expected 47 chars plus ellipsis, got %q", got)
	}
}

// ============================================================
// Peer Time Tests
// ============================================================

func TestParsePeerTime(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{"compact", "010124000000", time.Date(2024, 1, 1, 0, 0, 0, 0, time.Local), false},
		{"tagged", "DATE:311225,TIME:235959", time.Date(2025, 12, 31, 23, 59, 59, 0, time.Local), false},
		{"trailing data", "150325134502XYZ", time.Date(2025, 3, 15, 13, 45, 2, 0, time.Local), false},
		{"year too early", "010119000000", time.Time{}, true},
		{"bad month", "011325000000", time.Time{}, true},
		{"bad hour", "010125250000", time.Time{}, true},
		{"not digits", "ABCDEFGHIJKL", time.Time{}, true},
		{"short", "0101", time.Time{}, true},
		{"tagged short", "DATE:0101,TIME:1200", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePeerTime(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedReply) {
					t.Errorf("expected ErrMalformedReply, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
