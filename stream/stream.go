/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package stream implements non-blocking reliable byte-stream
// endpoints: a client/accepted Stream connection with an internal
// send-queue and three-state machine, and a listening Server that
// produces Streams via non-blocking accept.
package stream

import (
	"context"
	"sync"
	"time"

	"github.com/nabbar/netsock/address"
	"github.com/nabbar/netsock/atomicx"
	liberr "github.com/nabbar/netsock/errors"
	"github.com/nabbar/netsock/fault"
	"github.com/nabbar/netsock/logging"
	"github.com/nabbar/netsock/platform"
)

// Status is the three-state connection machine.
type Status int32

const (
	Pending Status = iota
	Connected
	Failed
)

func (s Status) String() string {
	switch s {
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	default:
		return "pending"
	}
}

// Stream is a client or accepted connection: a non-blocking byte pipe
// with an internal send-queue.
type Stream struct {
	peer   *address.Address
	port   int
	fd     int
	family platform.Family

	status atomicx.Value[Status]
	errMsg atomicx.Value[string]

	mu     sync.Mutex
	outbuf []byte
	outLen int

	loss      *fault.Percent
	failUntil atomicx.Value[time.Time]
}

const maxQueueCapacity = 1 << 40

// Connect begins a non-blocking client connection to peer:port: a
// non-blocking socket is created and connect() is attempted; a
// would-block error leaves the socket pending; any other error goes
// straight to failed. peer must be Resolved.
func Connect(peer *address.Address, port int) (*Stream, error) {
	if peer == nil {
		return nil, liberr.New(liberr.CodeInvalidArgument, "nil address", nil)
	}
	if st, _ := peer.Status(); st != address.Resolved {
		return nil, liberr.New(liberr.CodeNotResolved, "address not resolved", nil)
	}

	records := peer.Records()
	if len(records) == 0 {
		return nil, liberr.New(liberr.CodeNotResolved, "address has no records", nil)
	}
	ip := records[0]
	family := platform.FamilyOf(ip)

	fd, err := platform.NewStreamSocket(family)
	if err != nil {
		return nil, liberr.New(liberr.CodeTransientOS, platform.ErrnoText(err), err)
	}

	s := &Stream{
		peer:   peer.Ref(),
		port:   port,
		fd:     fd,
		family: family,
		loss:   fault.NewPercent(),
	}
	s.status.Store(Pending)

	cerr := platform.Connect(fd, family, ip, port)
	if cerr == nil {
		s.status.Store(Connected)
		logging.Component("stream").WithField("peer", peer.String()).Debug("connect: completed synchronously")
		return s, nil
	}
	if cerr == platform.ErrInProgress {
		logging.Component("stream").WithField("peer", peer.String()).Debug("connect: pending")
		return s, nil
	}

	s.fail(cerr)
	_ = platform.Close(fd)
	peer.Unref()
	return nil, liberr.New(liberr.CodeTransientOS, platform.ErrnoText(cerr), cerr)
}

// fromAccepted wraps an already-connected fd produced by Server.Accept.
func fromAccepted(fd int, family platform.Family, peer *address.Address, port int) *Stream {
	s := &Stream{
		peer:   peer,
		port:   port,
		fd:     fd,
		family: family,
		loss:   fault.NewPercent(),
	}
	s.status.Store(Connected)
	return s
}

func (s *Stream) fail(cause error) {
	s.status.Store(Failed)
	if cause != nil {
		s.errMsg.Store(platform.ErrnoText(cause))
	}
	logging.Component("stream").WithField("peer", s.peer.String()).Warn("stream: failed")
}

// Status returns the connection state without blocking. On Failed it
// also returns the stored error.
func (s *Stream) Status() (Status, error) {
	st := s.status.Load()
	if st == Failed {
		return st, liberr.New(liberr.CodeFatalEndpoint, s.errMsg.Load(), nil)
	}
	return st, nil
}

// WaitConnected blocks until s leaves Pending, timeoutMS elapses, or ctx
// is cancelled. timeoutMS of -1 waits indefinitely (bounded only by
// ctx); 0 polls once without waiting. It works by polling the raw
// descriptor for writability/failure, the same signal OnWritable/
// OnFailed react to when driven by a multiplexer.
func (s *Stream) WaitConnected(ctx context.Context, timeoutMS int) Status {
	if st := s.status.Load(); st != Pending {
		return st
	}
	if ctx == nil {
		ctx = context.Background()
	}

	deadline := time.Time{}
	if timeoutMS > 0 {
		deadline = time.Now().Add(time.Duration(timeoutMS) * time.Millisecond)
	}

	for s.status.Load() == Pending {
		select {
		case <-ctx.Done():
			return s.status.Load()
		default:
		}

		step := timeoutMS
		if timeoutMS > 0 {
			remaining := int(time.Until(deadline) / time.Millisecond)
			if remaining < 0 {
				remaining = 0
			}
			step = remaining
		}

		fds := []platform.PollFD{{FD: s.fd, Events: platform.EventWritable}}
		n, err := platform.Poll(fds, pollStep(step))
		if err != nil {
			s.fail(err)
			break
		}
		if n > 0 {
			if fds[0].Revents&platform.EventFailed != 0 {
				s.OnFailed()
			} else if fds[0].Revents&platform.EventWritable != 0 {
				s.OnWritable()
			}
		}

		if timeoutMS >= 0 && !time.Now().Before(deadline) {
			break
		}
	}

	return s.status.Load()
}

// pollStep caps a single poll() call at 250ms so a long or infinite
// WaitConnected/Drain still notices ctx cancellation promptly.
func pollStep(step int) int {
	if step < 0 || step > 250 {
		return 250
	}
	return step
}

// FD exposes the raw descriptor for the multiplexer package only.
func (s *Stream) FD() int { return s.fd }

// HasQueuedOutput reports whether pump has bytes still owed to the peer,
// used by the multiplexer to decide whether to request writability.
func (s *Stream) HasQueuedOutput() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outLen > 0
}

// OnWritable is called by the multiplexer when poll reports this stream
// writable: a pending connect completes, and any queued output is
// pumped.
func (s *Stream) OnWritable() {
	if s.status.Load() == Pending {
		s.status.Store(Connected)
		logging.Component("stream").WithField("peer", s.peer.String()).Info("stream: connected")
	}
	s.pump()
}

// OnFailed is called by the multiplexer when poll reports error/hangup/
// invalid on this stream: a pending connect consults SO_ERROR and fails.
func (s *Stream) OnFailed() {
	if s.status.Load() == Pending {
		cause := platform.SockError(s.fd)
		s.fail(cause)
		return
	}
	s.fail(nil)
}

// pump is the internal "make progress" step invoked at the head of
// Write, Read, PendingWrites (and so Drain) and Destroy, and from the
// multiplexer on writability.
func (s *Stream) pump() {
	if s.status.Load() == Failed {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.outLen == 0 {
		return
	}
	if until := s.failUntil.Load(); !until.IsZero() && time.Now().Before(until) {
		return
	}

	n, err := platform.Write(s.fd, s.outbuf[:s.outLen])
	if err == platform.ErrWouldBlock {
		return
	}
	if err != nil {
		s.fail(err)
		return
	}

	if n < s.outLen {
		copy(s.outbuf, s.outbuf[n:s.outLen])
	}
	s.outLen -= n

	s.rollFailWindowLocked()
}

// rollFailWindowLocked re-rolls the loss dice after a real I/O op: any
// real read or write may open a new simulated-failure window. Caller
// holds s.mu.
func (s *Stream) rollFailWindowLocked() {
	percent := s.loss.Get()
	if percent <= 0 {
		return
	}
	if fault.RollPercent(percent) {
		s.failUntil.Store(time.Now().Add(fault.Window(percent)))
	}
}

func (s *Stream) ensureQueueCapLocked(need int) error {
	cur := cap(s.outbuf)
	if cur == 0 {
		cur = 1
	}
	for cur < need {
		if cur > maxQueueCapacity {
			return liberr.New(liberr.CodeResourceExhaustion, "send queue capacity overflow", nil)
		}
		cur *= 2
	}
	if cur == cap(s.outbuf) {
		return nil
	}
	nb := make([]byte, s.outLen, cur)
	copy(nb, s.outbuf[:s.outLen])
	s.outbuf = nb
	return nil
}

// Write queues or immediately transmits b: pump first; zero-length is
// a no-op; if the queue is empty and loss is zero, attempt one direct
// write; otherwise enqueue.
func (s *Stream) Write(b []byte) error {
	s.pump()

	if st, err := s.Status(); st == Failed {
		return err
	}
	if len(b) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.outLen == 0 && s.loss.Get() == 0 {
		n, err := platform.Write(s.fd, b)
		if err == platform.ErrWouldBlock {
			return s.enqueueLocked(b)
		}
		if err != nil {
			s.fail(err)
			return liberr.New(liberr.CodeFatalEndpoint, platform.ErrnoText(err), err)
		}
		if n < len(b) {
			return s.enqueueLocked(b[n:])
		}
		s.rollFailWindowLocked()
		return nil
	}

	return s.enqueueLocked(b)
}

func (s *Stream) enqueueLocked(b []byte) error {
	if err := s.ensureQueueCapLocked(s.outLen + len(b)); err != nil {
		return err
	}
	if s.outLen+len(b) > len(s.outbuf) {
		grown := make([]byte, s.outLen+len(b), cap(s.outbuf))
		copy(grown, s.outbuf[:s.outLen])
		s.outbuf = grown
	}
	copy(s.outbuf[s.outLen:], b)
	s.outLen += len(b)
	return nil
}

// PendingWrites returns the number of bytes still queued.
func (s *Stream) PendingWrites() int {
	s.pump()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outLen
}

// Drain pumps queued output and, while bytes remain, repeatedly polls
// the descriptor for writability and pumps again, until the queue
// empties, s fails, timeoutMS elapses, or ctx is cancelled. It returns
// the number of bytes still queued when it returns (0 means fully
// drained).
func (s *Stream) Drain(ctx context.Context, timeoutMS int) int {
	pending := s.PendingWrites()
	if pending == 0 || s.status.Load() == Failed || timeoutMS == 0 {
		return pending
	}
	if ctx == nil {
		ctx = context.Background()
	}

	deadline := time.Time{}
	if timeoutMS > 0 {
		deadline = time.Now().Add(time.Duration(timeoutMS) * time.Millisecond)
	}

	for s.PendingWrites() > 0 && s.status.Load() != Failed {
		select {
		case <-ctx.Done():
			return s.PendingWrites()
		default:
		}

		step := timeoutMS
		if timeoutMS > 0 {
			remaining := int(time.Until(deadline) / time.Millisecond)
			if remaining < 0 {
				remaining = 0
			}
			step = remaining
		}

		fds := []platform.PollFD{{FD: s.fd, Events: platform.EventWritable}}
		n, err := platform.Poll(fds, pollStep(step))
		if err != nil {
			s.fail(err)
			break
		}
		if n > 0 && fds[0].Revents&platform.EventFailed != 0 {
			s.OnFailed()
			break
		}

		s.pump()

		if timeoutMS >= 0 && !time.Now().Before(deadline) {
			break
		}
	}

	return s.PendingWrites()
}

// Read performs one non-blocking read into buf: pump first; inside a
// simulated-failure window, report zero bytes; zero bytes from the OS
// is end-of-stream and is reported as failure.
func (s *Stream) Read(buf []byte) (int, error) {
	s.pump()

	if st, err := s.Status(); st == Failed {
		return 0, err
	}
	if len(buf) == 0 {
		return 0, nil
	}

	if until := s.failUntil.Load(); !until.IsZero() && time.Now().Before(until) {
		return 0, nil
	}

	n, err := platform.Read(s.fd, buf)
	if err == platform.ErrWouldBlock {
		return 0, nil
	}
	if err != nil {
		s.fail(err)
		return 0, liberr.New(liberr.CodeFatalEndpoint, platform.ErrnoText(err), err)
	}
	if n == 0 {
		eof := liberr.New(liberr.CodeFatalEndpoint, "end of stream", nil)
		s.fail(eof)
		return 0, eof
	}

	s.mu.Lock()
	s.rollFailWindowLocked()
	s.mu.Unlock()

	return n, nil
}

// SimulateLoss sets this stream's per-socket fault-injection percentage.
func (s *Stream) SimulateLoss(percent int) {
	s.loss.Set(percent)
}

// PeerAddress returns a new reference to the peer Address.
func (s *Stream) PeerAddress() *address.Address {
	return s.peer.Ref()
}

// Destroy performs a best-effort final pump, drops the peer reference,
// and closes the handle.
func (s *Stream) Destroy() {
	s.pump()
	if s.peer != nil {
		s.peer.Unref()
	}
	_ = platform.Close(s.fd)
	s.mu.Lock()
	s.outbuf = nil
	s.outLen = 0
	s.mu.Unlock()
	logging.Component("stream").Debug("stream: destroyed")
}
