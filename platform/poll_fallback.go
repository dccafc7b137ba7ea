//go:build !unix

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

package platform

import "time"

type Event int16

const (
	EventReadable Event = 1 << iota
	EventWritable
	EventFailed
)

type PollFD struct {
	FD      int
	Events  Event
	Revents Event
}

// Poll approximates readiness from each handle's registry state (an open
// listener/connection/packet socket, a finished background dial) and
// sleeps briefly between rounds. It is a
// reach-for-portability fallback, not the primary implementation: unix
// hosts use a real poll(2) (poll_unix.go).
func Poll(fds []PollFD, timeoutMS int) (int, error) {
	deadline := time.Now().Add(time.Duration(timeoutMS) * time.Millisecond)
	infinite := timeoutMS < 0

	for {
		ready := 0
		for i := range fds {
			fds[i].Revents = probe(fds[i])
			if fds[i].Revents != 0 {
				ready++
			}
		}
		if ready > 0 || timeoutMS == 0 {
			return ready, nil
		}
		if !infinite && time.Now().After(deadline) {
			return 0, nil
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func probe(f PollFD) Event {
	e := lookup(f.FD)
	if e == nil {
		return EventFailed
	}

	var rev Event

	if f.Events&EventWritable != 0 {
		e.mu.Lock()
		pending := e.dialDone != nil
		connected := e.conn != nil
		e.mu.Unlock()
		if connected && !pending {
			rev |= EventWritable
		} else if pending {
			select {
			case err := <-e.dialDone:
				e.dialDone = nil
				if err != nil {
					rev |= EventFailed
				} else {
					rev |= EventWritable
				}
			default:
			}
		}
	}

	if f.Events&EventReadable != 0 {
		if e.listener != nil || e.conn != nil || e.pconn != nil {
			rev |= EventReadable
		}
	}

	return rev
}
