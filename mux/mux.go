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

// Package mux implements a readiness multiplexer: a single poll(2)
// call per iteration over every registered endpoint,
// promoting pending streams and pumping queued output, with a
// stack-sized descriptor array for small endpoint sets and a
// heap-allocated one beyond that.
package mux

import (
	"context"
	"time"

	"github.com/nabbar/netsock/datagram"
	"github.com/nabbar/netsock/netcfg"
	"github.com/nabbar/netsock/platform"
	"github.com/nabbar/netsock/stream"
)

// stackDescriptors bounds the set of endpoints handled without a heap
// allocation for the poll array, matching netcfg's default
// MuxStackDescriptors (32).
const stackDescriptors = 32

// endpoint is the multiplexer's uniform view over the three endpoint
// kinds it can wait on.
type endpoint struct {
	fd      int
	events  platform.Event
	onEvent func(rev platform.Event)
}

// Set is a registration batch for one Wait (or netsock.WaitUntilInput) call. It
// is rebuilt by the caller each time: endpoints are re-registered on
// every call rather than held as a long-lived subscription.
type Set struct {
	items []endpoint
}

// NewSet returns an empty registration set.
func NewSet() *Set {
	return &Set{}
}

// AddStream registers a client/accepted stream connection. Its requested
// event mask: a pending connection waits for writable (connect
// completion); a connected one waits for readable, plus writable when
// output is queued.
func (s *Set) AddStream(c *stream.Stream) {
	st, _ := c.Status()

	var ev platform.Event
	switch st {
	case stream.Pending:
		ev = platform.EventWritable
	case stream.Connected:
		ev = platform.EventReadable
		if c.HasQueuedOutput() {
			ev |= platform.EventWritable
		}
	default:
		return
	}

	s.items = append(s.items, endpoint{
		fd:     c.FD(),
		events: ev,
		onEvent: func(rev platform.Event) {
			if rev&platform.EventFailed != 0 {
				c.OnFailed()
				return
			}
			if rev&platform.EventWritable != 0 {
				c.OnWritable()
			}
		},
	})
}

// AddDatagram registers a bound datagram socket: always readable, plus
// writable when output is queued.
func (s *Set) AddDatagram(d *datagram.Datagram) {
	ev := platform.EventReadable
	if d.HasQueuedOutput() {
		ev |= platform.EventWritable
	}

	s.items = append(s.items, endpoint{
		fd:     d.FD(),
		events: ev,
		onEvent: func(rev platform.Event) {
			if rev&platform.EventWritable != 0 {
				d.OnWritable()
			}
		},
	})
}

// AddServer registers a listening stream server: always readable
// (pending connections).
func (s *Set) AddServer(srv *stream.Server) {
	s.items = append(s.items, endpoint{
		fd:     srv.FD(),
		events: platform.EventReadable,
	})
}

// readyFDs collects every descriptor of the last poll with a non-zero
// observed event mask, keyed by fd; Wait returns it so callers can
// decide which server/datagram/stream to service.
func (s *Set) readyFDs(fds []platform.PollFD) map[int]platform.Event {
	out := make(map[int]platform.Event, len(fds))
	for _, f := range fds {
		if f.Revents != 0 {
			out[f.FD] = f.Revents
		}
	}
	return out
}

// Wait polls every registered endpoint, firing each one's
// writable/failed callback inline, and returns the set of fds that had
// any event so the caller can then Accept/Read/Receive on them. A poll
// that reports only writable events is serviced and polling goes on;
// Wait returns once a descriptor is readable or failed. It blocks up to
// timeoutMS (-1 waits indefinitely, 0 polls once without waiting) or
// until ctx is done (checked between polls), returning nil then.
func (s *Set) Wait(ctx context.Context, timeoutMS int) (map[int]platform.Event, error) {
	if len(s.items) == 0 {
		return nil, nil
	}

	var stackFDs [stackDescriptors]platform.PollFD
	var fds []platform.PollFD
	if len(s.items) <= stackDescriptors {
		fds = stackFDs[:len(s.items)]
	} else {
		fds = make([]platform.PollFD, len(s.items))
	}

	for i, it := range s.items {
		fds[i] = platform.PollFD{FD: it.fd, Events: it.events}
	}

	deadline := time.Time{}
	if timeoutMS > 0 {
		deadline = time.Now().Add(time.Duration(timeoutMS) * time.Millisecond)
	}

	for {
		step := timeoutMS
		if timeoutMS > 0 {
			remaining := int(time.Until(deadline) / time.Millisecond)
			if remaining < 0 {
				remaining = 0
			}
			step = remaining
		}

		n, err := platform.Poll(fds, minStep(step))
		if err != nil {
			return nil, err
		}

		if n > 0 {
			for i, it := range s.items {
				if fds[i].Revents != 0 && it.onEvent != nil {
					it.onEvent(fds[i].Revents)
				}
			}
			if timeoutMS == 0 || hasReadableOrFailed(fds) {
				return s.readyFDs(fds), nil
			}
			// a purely writable wake (e.g. a pending connect completing
			// with no data yet) is not a reason to hand control back;
			// keep polling for the remaining time.
		} else if timeoutMS == 0 {
			return nil, nil
		}

		if ctx != nil {
			select {
			case <-ctx.Done():
				return nil, nil
			default:
			}
		}
		if timeoutMS >= 0 && !time.Now().Before(deadline) {
			return nil, nil
		}
	}
}

// hasReadableOrFailed reports whether any descriptor's observed events
// include readable or failed, as opposed to writable alone.
func hasReadableOrFailed(fds []platform.PollFD) bool {
	for _, f := range fds {
		if f.Revents&(platform.EventReadable|platform.EventFailed) != 0 {
			return true
		}
	}
	return false
}

// minStep caps a single poll() call at 250ms so a WaitUntilInput with a
// long or infinite timeout still observes ctx cancellation promptly.
func minStep(step int) int {
	if step < 0 || step > 250 {
		return 250
	}
	return step
}

// DefaultConfig exposes netcfg's MuxStackDescriptors for callers that
// want to confirm the stack/heap split threshold in use.
func DefaultConfig() int {
	return netcfg.Default().MuxStackDescriptors
}
