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

package stream

import (
	"net"

	"github.com/nabbar/netsock/address"
	liberr "github.com/nabbar/netsock/errors"
	"github.com/nabbar/netsock/logging"
	"github.com/nabbar/netsock/netcfg"
	"github.com/nabbar/netsock/platform"
)

// Server is a listening stream endpoint: bind, listen with a fixed
// backlog, and non-blocking accept producing connected Streams.
type Server struct {
	fd      int
	family  platform.Family
	backlog int
}

// Listen binds and listens on bindIP:port. A nil bindIP listens on the
// wildcard address. backlog of 0 uses netcfg's default (16).
func Listen(bindIP net.IP, port int, backlog int) (*Server, error) {
	if backlog <= 0 {
		backlog = netcfg.Default().ServerBacklog
	}

	family := platform.FamilyV4
	if bindIP != nil {
		family = platform.FamilyOf(bindIP)
	}

	fd, err := platform.NewStreamSocket(family)
	if err != nil {
		return nil, liberr.New(liberr.CodeTransientOS, platform.ErrnoText(err), err)
	}

	platform.SetDualStack(fd, family)

	if err = platform.Bind(fd, family, bindIP, port); err != nil {
		_ = platform.Close(fd)
		return nil, liberr.New(liberr.CodeTransientOS, platform.ErrnoText(err), err)
	}
	if err = platform.Listen(fd, backlog); err != nil {
		_ = platform.Close(fd)
		return nil, liberr.New(liberr.CodeTransientOS, platform.ErrnoText(err), err)
	}

	logging.Component("stream-server").WithField("port", port).Info("server: listening")

	return &Server{fd: fd, family: family, backlog: backlog}, nil
}

// FD exposes the raw descriptor for the multiplexer package only.
func (s *Server) FD() int { return s.fd }

// Accept performs one non-blocking accept attempt. It returns (nil, nil)
// on would-block.
func (s *Server) Accept() (*Stream, error) {
	fd, ip, port, err := platform.Accept(s.fd)
	if err == platform.ErrWouldBlock {
		return nil, nil
	}
	if err != nil {
		return nil, liberr.New(liberr.CodeTransientOS, platform.ErrnoText(err), err)
	}

	peer := address.FromNative(ip, address.ReverseNumeric(ip))
	conn := fromAccepted(fd, platform.FamilyOf(ip), peer, port)

	logging.Component("stream-server").WithField("peer", peer.String()).Debug("accept: new connection")
	return conn, nil
}

// LocalPort returns the bound local port, useful when port 0 (ephemeral)
// was requested at Listen time.
func (s *Server) LocalPort() (int, error) {
	return platform.LocalPort(s.fd)
}

// Destroy closes the listening descriptor.
func (s *Server) Destroy() {
	_ = platform.Close(s.fd)
	logging.Component("stream-server").Debug("server: destroyed")
}
