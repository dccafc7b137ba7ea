//go:build unix

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

import "golang.org/x/sys/unix"

// Event is the readiness mask requested/observed for one descriptor.
type Event int16

const (
	EventReadable Event = 1 << iota
	EventWritable
	EventFailed // error, hangup, or invalid fd
)

// PollFD is one entry in a Poll call: an fd and the events requested for
// it. After Poll returns, Revents holds what was actually observed.
type PollFD struct {
	FD      int
	Events  Event
	Revents Event
}

// Poll blocks until at least one descriptor is ready, timeoutMS elapses
// (-1 = infinite, 0 = non-blocking poll), or an error occurs. It is the
// sole place in this module that calls into the kernel's poll(2).
func Poll(fds []PollFD, timeoutMS int) (int, error) {
	raw := make([]unix.PollFd, len(fds))
	for i, f := range fds {
		var ev int16
		if f.Events&EventReadable != 0 {
			ev |= unix.POLLIN
		}
		if f.Events&EventWritable != 0 {
			ev |= unix.POLLOUT
		}
		raw[i] = unix.PollFd{Fd: int32(f.FD), Events: ev}
	}

	n, err := unix.Poll(raw, timeoutMS)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}

	for i, r := range raw {
		var rev Event
		if r.Revents&unix.POLLIN != 0 {
			rev |= EventReadable
		}
		if r.Revents&unix.POLLOUT != 0 {
			rev |= EventWritable
		}
		if r.Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			rev |= EventFailed
		}
		fds[i].Revents = rev
	}

	return n, nil
}
