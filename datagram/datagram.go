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

// Package datagram implements a non-blocking UDP endpoint: a bound
// socket with an outbound FIFO send queue and a bounded LRU cache of
// recently-seen peer Addresses for receive.
package datagram

import (
	"net"
	"sync"

	"github.com/nabbar/netsock/address"
	liberr "github.com/nabbar/netsock/errors"
	"github.com/nabbar/netsock/fault"
	"github.com/nabbar/netsock/logging"
	"github.com/nabbar/netsock/netcfg"
	"github.com/nabbar/netsock/platform"
)

// MaxPacketSize is the hard limit on a single datagram payload.
const MaxPacketSize = 64 * 1024

type pendingPacket struct {
	peer *address.Address
	port int
	data []byte
}

// Datagram is a bound UDP endpoint with an outbound queue and an
// address cache.
type Datagram struct {
	fd     int
	family platform.Family

	mu    sync.Mutex
	queue []pendingPacket

	cache     []*address.Address
	cacheSize int

	scratch []byte

	loss *fault.Percent
}

// Bind creates and binds a non-blocking UDP socket. A nil bindIP binds
// the wildcard address.
func Bind(bindIP net.IP, port int, cfg *netcfg.Config) (*Datagram, error) {
	if cfg == nil {
		cfg = netcfg.Default()
	}
	cfg.Validate()

	family := platform.FamilyV4
	if bindIP != nil {
		family = platform.FamilyOf(bindIP)
	}

	fd, err := platform.NewDatagramSocket(family)
	if err != nil {
		return nil, liberr.New(liberr.CodeTransientOS, platform.ErrnoText(err), err)
	}
	platform.SetDualStack(fd, family)

	if err = platform.Bind(fd, family, bindIP, port); err != nil {
		_ = platform.Close(fd)
		return nil, liberr.New(liberr.CodeTransientOS, platform.ErrnoText(err), err)
	}

	d := &Datagram{
		fd:        fd,
		family:    family,
		cacheSize: cfg.DatagramCacheSize,
		scratch:   make([]byte, cfg.DatagramScratchSize),
		loss:      fault.NewPercent(),
	}

	logging.Component("datagram").WithField("port", port).Info("datagram: bound")
	return d, nil
}

// FD exposes the raw descriptor for the multiplexer package only.
func (d *Datagram) FD() int { return d.fd }

// HasQueuedOutput reports whether the send queue is non-empty, used by
// the multiplexer to decide whether to request writability.
func (d *Datagram) HasQueuedOutput() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue) > 0
}

// OnWritable drains the send queue, invoked by the multiplexer on
// writability.
func (d *Datagram) OnWritable() {
	d.pump()
}

// pump drains as much of the FIFO send queue as can be sent without
// blocking.
func (d *Datagram) pump() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for len(d.queue) > 0 {
		pkt := d.queue[0]
		ip := pkt.peer.Records()
		if len(ip) == 0 {
			d.queue = d.queue[1:]
			continue
		}

		err := platform.SendTo(d.fd, pkt.data, platform.FamilyOf(ip[0]), ip[0], pkt.port)
		if err == platform.ErrWouldBlock {
			return
		}

		pkt.peer.Unref()
		d.queue = d.queue[1:]

		if err != nil {
			logging.Component("datagram").WithField("err", err.Error()).Warn("send: transient failure, packet dropped")
		}
	}
}

// Send queues, or immediately transmits, one packet to peer:port: pump
// first; zero-length payloads are a documented no-op that reports
// success without transmitting; payloads over MaxPacketSize are
// rejected; a nil peer is rejected rather than dereferenced. Once past
// validation, the loss dice is rolled: on a "drop" verdict the packet
// is silently discarded and Send still reports success, same as a
// packet that really left the wire and vanished in transit.
func (d *Datagram) Send(peer *address.Address, port int, payload []byte) error {
	d.pump()

	if len(payload) == 0 {
		return nil
	}
	if peer == nil {
		return liberr.New(liberr.CodeInvalidArgument, "nil peer address", nil)
	}
	if len(payload) > MaxPacketSize {
		return liberr.New(liberr.CodeInvalidArgument, "datagram payload exceeds 64 KiB", nil)
	}
	if st, _ := peer.Status(); st != address.Resolved {
		return liberr.New(liberr.CodeNotResolved, "peer address not resolved", nil)
	}

	if d.loss.Roll() {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.queue) == 0 {
		ip := peer.Records()[0]
		err := platform.SendTo(d.fd, payload, platform.FamilyOf(ip), ip, port)
		if err == nil {
			return nil
		}
		if err != platform.ErrWouldBlock {
			return liberr.New(liberr.CodeTransientOS, platform.ErrnoText(err), err)
		}
	}

	cp := make([]byte, len(payload))
	copy(cp, payload)
	d.queue = append(d.queue, pendingPacket{peer: peer.Ref(), port: port, data: cp})
	return nil
}

// Receive performs one non-blocking recvfrom: pump first; would-block
// returns (nil, nil, 0, nil); the peer Address is resolved from the
// cache by scanning most-recently-used first, else built fresh and
// inserted, evicting the oldest entry once the cache is full; the
// returned port is the sender's source port. The loss dice is rolled
// after a successful read too: on a "drop" verdict the packet is
// discarded as if it had never arrived, same as Receive reporting
// would-block.
func (d *Datagram) Receive() (payload []byte, peer *address.Address, srcPort int, err error) {
	d.pump()

	n, ip, port, rerr := platform.RecvFrom(d.fd, d.scratch)
	if rerr == platform.ErrWouldBlock {
		return nil, nil, 0, nil
	}
	if rerr != nil {
		return nil, nil, 0, liberr.New(liberr.CodeTransientOS, platform.ErrnoText(rerr), rerr)
	}

	if d.loss.Roll() {
		return nil, nil, 0, nil
	}

	out := make([]byte, n)
	copy(out, d.scratch[:n])

	return out, d.cachedPeer(ip), port, nil
}

// cachedPeer implements the peer-address cache: a bounded list searched
// most-recently-inserted-first; a hit is promoted to the front, a miss
// is inserted at the front and the oldest entry is evicted once the
// cache is at capacity. The cache is keyed on the sender's IP alone;
// Receive returns the source port separately.
func (d *Datagram) cachedPeer(ip net.IP) *address.Address {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, a := range d.cache {
		if samePeer(a, ip) {
			if i != 0 {
				d.cache = append(d.cache[:i:i], d.cache[i+1:]...)
				d.cache = append([]*address.Address{a}, d.cache...)
			}
			return a.Ref()
		}
	}

	a := address.FromNative(ip, address.ReverseNumeric(ip))
	d.cache = append([]*address.Address{a}, d.cache...)
	if d.cacheSize <= 0 {
		d.cacheSize = netcfg.Default().DatagramCacheSize
	}
	if len(d.cache) > d.cacheSize {
		evicted := d.cache[len(d.cache)-1]
		d.cache = d.cache[:len(d.cache)-1]
		evicted.Unref()
	}
	return a.Ref()
}

func samePeer(a *address.Address, ip net.IP) bool {
	recs := a.Records()
	if len(recs) == 0 {
		return false
	}
	return recs[0].Equal(ip)
}

// SimulateLoss sets this datagram socket's per-socket fault-injection
// percentage.
func (d *Datagram) SimulateLoss(percent int) {
	d.loss.Set(percent)
}

// LocalPort returns the bound local port.
func (d *Datagram) LocalPort() (int, error) {
	return platform.LocalPort(d.fd)
}

// Destroy drains best-effort, releases the cache and queue references,
// and closes the handle.
func (d *Datagram) Destroy() {
	d.pump()

	d.mu.Lock()
	for _, pkt := range d.queue {
		pkt.peer.Unref()
	}
	d.queue = nil
	for _, a := range d.cache {
		a.Unref()
	}
	d.cache = nil
	d.mu.Unlock()

	_ = platform.Close(d.fd)
	logging.Component("datagram").Debug("datagram: destroyed")
}
