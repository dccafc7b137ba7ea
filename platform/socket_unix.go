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

import (
	"net"

	"golang.org/x/sys/unix"
)

// Family mirrors the two address families this module understands.
type Family int

const (
	FamilyV4 Family = iota
	FamilyV6
)

// FamilyOf returns the family of ip, defaulting to V4 for nil/invalid.
func FamilyOf(ip net.IP) Family {
	if ip != nil && ip.To4() == nil && ip.To16() != nil {
		return FamilyV6
	}
	return FamilyV4
}

func sockaddr(family Family, ip net.IP, port int) unix.Sockaddr {
	if family == FamilyV6 {
		sa := &unix.SockaddrInet6{Port: port}
		if ip != nil {
			copy(sa.Addr[:], ip.To16())
		}
		return sa
	}
	sa := &unix.SockaddrInet4{Port: port}
	if ip != nil {
		if v4 := ip.To4(); v4 != nil {
			copy(sa.Addr[:], v4)
		}
	}
	return sa
}

func domainOf(family Family) int {
	if family == FamilyV6 {
		return unix.AF_INET6
	}
	return unix.AF_INET
}

// NewStreamSocket creates a non-blocking, close-on-exec TCP socket of the
// given family.
func NewStreamSocket(family Family) (fd int, err error) {
	fd, err = unix.Socket(domainOf(family), unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return -1, err
	}
	return fd, nil
}

// NewDatagramSocket creates a non-blocking, close-on-exec UDP socket of
// the given family.
func NewDatagramSocket(family Family) (fd int, err error) {
	fd, err = unix.Socket(domainOf(family), unix.SOCK_DGRAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_UDP)
	if err != nil {
		return -1, err
	}
	return fd, nil
}

// SetDualStack clears IPV6_V6ONLY on an AF_INET6 socket so it services
// both families where the host allows it. Failure here is silently
// tolerated.
func SetDualStack(fd int, family Family) {
	if family != FamilyV6 {
		return
	}
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0)
}

// Bind binds fd to ip:port (ip may be nil/unspecified for "any").
func Bind(fd int, family Family, ip net.IP, port int) error {
	return unix.Bind(fd, sockaddr(family, ip, port))
}

// Listen marks fd as a passive listening socket with the given backlog.
func Listen(fd int, backlog int) error {
	return unix.Listen(fd, backlog)
}

// Connect begins a non-blocking connect. A nil error means the connect
// completed synchronously (rare, usually loopback); ErrInProgress means
// the caller should wait for writability; any other error is fatal.
func Connect(fd int, family Family, ip net.IP, port int) error {
	err := unix.Connect(fd, sockaddr(family, ip, port))
	if err == nil {
		return nil
	}
	if err == unix.EINPROGRESS {
		return ErrInProgress
	}
	return err
}

// Accept performs a non-blocking accept, returning the new connection's
// fd and its peer address, or ErrWouldBlock if nothing is pending.
func Accept(fd int) (newfd int, ip net.IP, port int, err error) {
	nfd, sa, aerr := unix.Accept4(fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if aerr != nil {
		if WouldBlock(aerr) {
			return -1, nil, 0, ErrWouldBlock
		}
		return -1, nil, 0, aerr
	}
	ip, port = ipPortOf(sa)
	return nfd, ip, port, nil
}

func ipPortOf(sa unix.Sockaddr) (net.IP, int) {
	switch s := sa.(type) {
	case *unix.SockaddrInet4:
		ip := make(net.IP, 4)
		copy(ip, s.Addr[:])
		return ip, s.Port
	case *unix.SockaddrInet6:
		ip := make(net.IP, 16)
		copy(ip, s.Addr[:])
		return ip, s.Port
	default:
		return nil, 0
	}
}

// Write performs one non-blocking write, returning ErrWouldBlock if the
// socket buffer is full.
func Write(fd int, p []byte) (int, error) {
	n, err := unix.Write(fd, p)
	if err != nil {
		if WouldBlock(err) {
			return 0, ErrWouldBlock
		}
		return 0, err
	}
	return n, nil
}

// Read performs one non-blocking read, returning ErrWouldBlock if no data
// is currently available.
func Read(fd int, p []byte) (int, error) {
	n, err := unix.Read(fd, p)
	if err != nil {
		if WouldBlock(err) {
			return 0, ErrWouldBlock
		}
		return 0, err
	}
	return n, nil
}

// SendTo performs one non-blocking sendto.
func SendTo(fd int, p []byte, family Family, ip net.IP, port int) error {
	err := unix.Sendto(fd, p, 0, sockaddr(family, ip, port))
	if err != nil {
		if WouldBlock(err) {
			return ErrWouldBlock
		}
		return err
	}
	return nil
}

// RecvFrom performs one non-blocking recvfrom into p.
func RecvFrom(fd int, p []byte) (n int, ip net.IP, port int, err error) {
	n, sa, rerr := unix.Recvfrom(fd, p, 0)
	if rerr != nil {
		if WouldBlock(rerr) {
			return 0, nil, 0, ErrWouldBlock
		}
		return 0, nil, 0, rerr
	}
	ip, port = ipPortOf(sa)
	return n, ip, port, nil
}

// Close closes fd.
func Close(fd int) error {
	return unix.Close(fd)
}

// SockError consults SO_ERROR on fd (used after a pending connect is
// reported writable, to tell success from failure).
func SockError(fd int) error {
	v, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if v == 0 {
		return nil
	}
	return unix.Errno(v)
}

// LocalPort returns the local port fd is bound to (used for port-0
// "pick a free ephemeral port" clients).
func LocalPort(fd int) (int, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return 0, err
	}
	_, port := ipPortOf(sa)
	return port, nil
}

// WouldBlock reports whether err is the host's "try again" signal.
func WouldBlock(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINPROGRESS
}

// ErrnoText returns a human-readable description of err.
func ErrnoText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
