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

// Portable fallback for hosts without a unix-style poll(2): "fd" becomes
// an opaque handle into a small registry of net.Conn-family objects, and
// non-blocking semantics are approximated with short deadlines instead of
// O_NONBLOCK + poll(2).
package platform

import (
	"net"
	"strconv"
	"sync"
	"time"
)

type Family int

const (
	FamilyV4 Family = iota
	FamilyV6
)

func FamilyOf(ip net.IP) Family {
	if ip != nil && ip.To4() == nil && ip.To16() != nil {
		return FamilyV6
	}
	return FamilyV4
}

type entry struct {
	mu       sync.Mutex
	conn     net.Conn
	listener net.Listener
	pconn    net.PacketConn
	bindIP   net.IP
	bindFam  Family
	pending  bool
	dialDone chan error
}

var (
	regMu sync.Mutex
	reg   = map[int]*entry{}
	next  int
)

func register(e *entry) int {
	regMu.Lock()
	defer regMu.Unlock()
	next++
	reg[next] = e
	return next
}

func lookup(fd int) *entry {
	regMu.Lock()
	defer regMu.Unlock()
	return reg[fd]
}

func NewStreamSocket(family Family) (int, error) {
	return register(&entry{bindFam: family}), nil
}

func NewDatagramSocket(family Family) (int, error) {
	return register(&entry{bindFam: family}), nil
}

func SetDualStack(fd int, family Family) {}

func Bind(fd int, family Family, ip net.IP, port int) error {
	e := lookup(fd)
	if e == nil {
		return ErrWouldBlock
	}
	e.bindIP = ip
	e.bindFam = family
	addr := net.JoinHostPort(ipOrAny(ip), strconv.Itoa(port))
	pc, err := net.ListenPacket("udp", addr)
	if err == nil {
		e.pconn = pc
	}
	return nil
}

func ipOrAny(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}

func Listen(fd int, backlog int) error {
	e := lookup(fd)
	if e == nil {
		return ErrWouldBlock
	}
	addr := net.JoinHostPort(ipOrAny(e.bindIP), "0")
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	e.listener = l
	return nil
}

func Connect(fd int, family Family, ip net.IP, port int) error {
	e := lookup(fd)
	if e == nil {
		return ErrWouldBlock
	}
	e.mu.Lock()
	if e.dialDone != nil {
		e.mu.Unlock()
		return ErrInProgress
	}
	e.dialDone = make(chan error, 1)
	e.mu.Unlock()

	go func() {
		c, err := net.DialTimeout("tcp", net.JoinHostPort(ip.String(), strconv.Itoa(port)), 30*time.Second)
		e.mu.Lock()
		if err == nil {
			e.conn = c
		}
		e.mu.Unlock()
		e.dialDone <- err
	}()

	return ErrInProgress
}

func Accept(fd int) (int, net.IP, int, error) {
	e := lookup(fd)
	if e == nil || e.listener == nil {
		return -1, nil, 0, ErrWouldBlock
	}
	type res struct {
		c   net.Conn
		err error
	}
	ch := make(chan res, 1)
	go func() {
		c, err := e.listener.Accept()
		ch <- res{c, err}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			return -1, nil, 0, r.err
		}
		ne := &entry{conn: r.c}
		host, portStr, _ := net.SplitHostPort(r.c.RemoteAddr().String())
		port, _ := strconv.Atoi(portStr)
		return register(ne), net.ParseIP(host), port, nil
	case <-time.After(time.Millisecond):
		return -1, nil, 0, ErrWouldBlock
	}
}

func Write(fd int, p []byte) (int, error) {
	e := lookup(fd)
	if e == nil || e.conn == nil {
		return 0, ErrWouldBlock
	}
	_ = e.conn.SetWriteDeadline(time.Now().Add(50 * time.Millisecond))
	n, err := e.conn.Write(p)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return n, ErrWouldBlock
		}
		return n, err
	}
	return n, nil
}

func Read(fd int, p []byte) (int, error) {
	e := lookup(fd)
	if e == nil || e.conn == nil {
		return 0, ErrWouldBlock
	}
	_ = e.conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	n, err := e.conn.Read(p)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return n, ErrWouldBlock
		}
		return n, err
	}
	return n, nil
}

func SendTo(fd int, p []byte, family Family, ip net.IP, port int) error {
	e := lookup(fd)
	if e == nil || e.pconn == nil {
		return ErrWouldBlock
	}
	_, err := e.pconn.WriteTo(p, &net.UDPAddr{IP: ip, Port: port})
	return err
}

func RecvFrom(fd int, p []byte) (int, net.IP, int, error) {
	e := lookup(fd)
	if e == nil || e.pconn == nil {
		return 0, nil, 0, ErrWouldBlock
	}
	_ = e.pconn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	n, addr, err := e.pconn.ReadFrom(p)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return 0, nil, 0, ErrWouldBlock
		}
		return 0, nil, 0, err
	}
	u, _ := addr.(*net.UDPAddr)
	if u == nil {
		return n, nil, 0, nil
	}
	return n, u.IP, u.Port, nil
}

func Close(fd int) error {
	e := lookup(fd)
	if e == nil {
		return nil
	}
	if e.conn != nil {
		_ = e.conn.Close()
	}
	if e.listener != nil {
		_ = e.listener.Close()
	}
	if e.pconn != nil {
		_ = e.pconn.Close()
	}
	regMu.Lock()
	delete(reg, fd)
	regMu.Unlock()
	return nil
}

func SockError(fd int) error {
	e := lookup(fd)
	if e == nil {
		return nil
	}
	select {
	case err := <-e.dialDone:
		return err
	default:
		return nil
	}
}

func LocalPort(fd int) (int, error) {
	e := lookup(fd)
	if e == nil {
		return 0, ErrWouldBlock
	}
	if e.listener != nil {
		_, p, _ := net.SplitHostPort(e.listener.Addr().String())
		n, _ := strconv.Atoi(p)
		return n, nil
	}
	if e.pconn != nil {
		_, p, _ := net.SplitHostPort(e.pconn.LocalAddr().String())
		n, _ := strconv.Atoi(p)
		return n, nil
	}
	return 0, nil
}

func WouldBlock(err error) bool {
	return err == ErrWouldBlock || err == ErrInProgress
}

func ErrnoText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
