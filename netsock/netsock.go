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

// Package netsock is the library's external facade: a single,
// process-wide, refcounted library handle (Init/Quit) fronting the
// resolver pool, and constructors for Stream, Server and Datagram
// endpoints plus the readiness multiplexer.
package netsock

import (
	"context"
	"net"
	"sync"

	"github.com/nabbar/netsock/address"
	"github.com/nabbar/netsock/datagram"
	liberr "github.com/nabbar/netsock/errors"
	"github.com/nabbar/netsock/fault"
	"github.com/nabbar/netsock/logging"
	"github.com/nabbar/netsock/mux"
	"github.com/nabbar/netsock/netcfg"
	"github.com/nabbar/netsock/resolver"
	"github.com/nabbar/netsock/stream"
)

var (
	initMu   sync.Mutex
	initRefs int
	pool     *resolver.Pool
	lastErr  atomicLastError
)

// Init brings the library up on first call and bumps a reference count
// on subsequent calls: only the first Init and the last Quit do real
// work.
func Init(cfg *netcfg.Config) error {
	initMu.Lock()
	defer initMu.Unlock()

	initRefs++
	if initRefs > 1 {
		return nil
	}

	if cfg == nil {
		cfg = netcfg.Default()
	}
	cfg.Validate()

	logging.SetLevel(cfg.LogLevel)
	fault.SetResolverLoss(cfg.ResolverLossPercent)
	pool = resolver.New(cfg)

	logging.Component("netsock").Info("library: initialized")
	return nil
}

// Quit decrements the refcount and, on the last release, shuts the
// resolver pool down.
func Quit() {
	initMu.Lock()
	defer initMu.Unlock()

	if initRefs == 0 {
		return
	}
	initRefs--
	if initRefs > 0 {
		return
	}

	if pool != nil {
		pool.Shutdown()
		pool = nil
	}
	logging.Component("netsock").Info("library: shut down")
}

func currentPool() *resolver.Pool {
	initMu.Lock()
	defer initMu.Unlock()
	return pool
}

// atomicLastError stores the most recent operation error as a
// compatibility convenience for callers used to a thread-local
// "get last error" idiom; idiomatic Go code should prefer the error
// values returned directly.
type atomicLastError struct {
	mu  sync.Mutex
	err error
}

func (l *atomicLastError) set(err error) {
	l.mu.Lock()
	l.err = err
	l.mu.Unlock()
}

func (l *atomicLastError) get() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// LastError returns the last error recorded by any netsock operation on
// this process. Prefer each function's own returned error.
func LastError() error {
	return lastErr.get()
}

// Resolve starts asynchronous resolution of hostname; it requires a
// prior Init.
func Resolve(hostname string) (*address.Address, error) {
	p := currentPool()
	if p == nil {
		err := liberr.New(liberr.CodeInvalidArgument, "netsock: not initialized", nil)
		lastErr.set(err)
		return nil, err
	}
	return p.Resolve(hostname), nil
}

// WaitResolved blocks until a resolves, fails, timeoutMS elapses, or ctx
// is done.
func WaitResolved(ctx context.Context, a *address.Address, timeoutMS int) address.Status {
	return a.WaitResolved(ctx, timeoutMS)
}

// Status reports a's current resolution status.
func Status(a *address.Address) (address.Status, error) {
	return a.Status()
}

// String returns a's cached numeric form, or "" if unresolved.
func String(a *address.Address) string {
	return a.String()
}

// Compare implements the total order over Addresses.
func Compare(a, b *address.Address) int {
	return address.Compare(a, b)
}

// Ref increments a's reference count.
func Ref(a *address.Address) *address.Address {
	return a.Ref()
}

// Unref decrements a's reference count.
func Unref(a *address.Address) {
	a.Unref()
}

// SimulateLoss sets the process-wide resolver fault-injection
// percentage.
func SimulateLoss(percent int) {
	fault.SetResolverLoss(percent)
}

// LocalAddresses enumerates this host's non-loopback unicast addresses,
// sorted per Compare. The returned slice is ordinary garbage-collected
// memory, so callers simply drop the reference, though any Address
// obtained this way still needs Unref to balance the Ref taken here.
func LocalAddresses() ([]*address.Address, error) {
	ifaceAddrs, err := net.InterfaceAddrs()
	if err != nil {
		lastErr.set(err)
		return nil, liberr.New(liberr.CodeTransientOS, "enumerate interfaces", err)
	}

	out := make([]*address.Address, 0, len(ifaceAddrs))
	for _, ifa := range ifaceAddrs {
		ipn, ok := ifa.(*net.IPNet)
		if !ok || ipn.IP.IsLoopback() {
			continue
		}
		out = append(out, address.FromNative(ipn.IP, address.ReverseNumeric(ipn.IP)))
	}

	address.Sort(out)
	return out, nil
}

// FreeLocalAddresses releases every Address returned by LocalAddresses.
func FreeLocalAddresses(addrs []*address.Address) {
	for _, a := range addrs {
		a.Unref()
	}
}

// NewClient opens a non-blocking client stream connection.
func NewClient(peer *address.Address, port int) (*stream.Stream, error) {
	s, err := stream.Connect(peer, port)
	if err != nil {
		lastErr.set(err)
	}
	return s, err
}

// NewServer binds and listens a stream server.
func NewServer(bindIP net.IP, port int, backlog int) (*stream.Server, error) {
	s, err := stream.Listen(bindIP, port, backlog)
	if err != nil {
		lastErr.set(err)
	}
	return s, err
}

// NewDatagram binds a datagram socket.
func NewDatagram(bindIP net.IP, port int, cfg *netcfg.Config) (*datagram.Datagram, error) {
	d, err := datagram.Bind(bindIP, port, cfg)
	if err != nil {
		lastErr.set(err)
	}
	return d, err
}

// NewMultiplexSet returns a fresh, empty readiness-multiplexer
// registration set.
func NewMultiplexSet() *mux.Set {
	return mux.NewSet()
}

// WaitUntilInput polls the endpoints registered on set until one is
// readable or failed (see mux.Set.Wait), servicing pending-connect
// completions and queued output inline. It returns the
// number of descriptors with a pending event (0 on timeout, -1 on
// error) alongside that error.
func WaitUntilInput(ctx context.Context, set *mux.Set, timeoutMS int) (int, error) {
	readyFDs, err := set.Wait(ctx, timeoutMS)
	if err != nil {
		return -1, err
	}
	return len(readyFDs), nil
}

// Drain flushes c's queued output, polling for writability until the
// queue empties or the deadline passes. It returns the number of bytes
// still queued (0 means fully drained).
func Drain(ctx context.Context, c *stream.Stream, timeoutMS int) int {
	return c.Drain(ctx, timeoutMS)
}

// WaitConnected blocks until c leaves Pending, timeoutMS elapses, or
// ctx is done.
func WaitConnected(ctx context.Context, c *stream.Stream, timeoutMS int) stream.Status {
	return c.WaitConnected(ctx, timeoutMS)
}
