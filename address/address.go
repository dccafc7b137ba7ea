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

// Package address implements a reference-counted, possibly-still-
// resolving host handle: created in-progress by a resolve call, mutated
// exactly once by the resolver worker that dequeues it, and destroyed
// when its refcount reaches zero.
package address

import (
	"net"
	"sort"
	"sync/atomic"

	"github.com/nabbar/netsock/atomicx"
	liberr "github.com/nabbar/netsock/errors"
)

// Status is the three-state lifecycle named here: once it
// leaves InProgress it is final.
type Status int32

const (
	InProgress Status = iota
	Resolved
	Failed
)

func (s Status) String() string {
	switch s {
	case Resolved:
		return "resolved"
	case Failed:
		return "failed"
	default:
		return "in-progress"
	}
}

// Address is an opaque, reference-counted handle for a host. The zero
// value is not usable; construct with Resolve or FromNative.
//
// Concurrency: status and the fields it gates (human, errStr, records)
// follow a publish discipline — every field below is written by
// the single goroutine that owns the Address (the resolver worker, or
// the constructor for FromNative) strictly before the atomic store to
// status; any reader that observes a non-InProgress status via Load may
// then read human/errStr/records without further synchronisation, since
// Go's memory model gives atomic operations the same happens-before
// guarantee as a mutex.
type Address struct {
	hostname string

	status atomic.Int32
	refs   atomicx.Counter

	human   string
	errStr  string
	records []net.IP

	done chan struct{}
}

// newInProgress allocates an Address in the in-progress state with
// refcount 1 (the caller's reference; the resolver package adds its own
// reference when it enqueues the job, bringing it to refcount 2).
func newInProgress(hostname string) *Address {
	a := &Address{hostname: hostname, done: make(chan struct{})}
	a.status.Store(int32(InProgress))
	a.refs.Store(1)
	return a
}

// NewInProgress is exported for the resolver package, which is the only
// caller allowed to construct a not-yet-resolved Address.
func NewInProgress(hostname string) *Address {
	return newInProgress(hostname)
}

// Hostname returns the original, unresolved hostname string this Address
// was created from.
func (a *Address) Hostname() string {
	return a.hostname
}

// FromNative builds an already-resolved Address directly from a native
// address record (the accept / datagram-receive path). human is the
// numeric reverse-lookup form.
func FromNative(ip net.IP, human string) *Address {
	a := &Address{hostname: human, human: human, records: []net.IP{ip}}
	a.status.Store(int32(Resolved))
	a.refs.Store(1)
	return a
}

// publishResolved installs the resolved outcome. Called by the resolver
// worker only, and only once. Writes records/human before the atomic
// status store, so a reader that observes Resolved always sees them.
func (a *Address) publishResolved(records []net.IP, human string) {
	a.records = records
	a.human = human
	a.status.Store(int32(Resolved))
	a.signalDone()
}

// publishFailed installs a terminal failure. Called by the resolver
// worker only, and only once.
func (a *Address) publishFailed(errStr string) {
	a.errStr = errStr
	a.status.Store(int32(Failed))
	a.signalDone()
}

func (a *Address) signalDone() {
	if a.done != nil {
		close(a.done)
	}
}

// Status returns the current resolution status without blocking. On
// Failed, it also returns the stored error text so the caller can
// install it as their own last-error.
func (a *Address) Status() (Status, error) {
	s := Status(a.status.Load())
	if s == Failed {
		return s, liberr.New(liberr.CodeFatalEndpoint, a.errStr, nil)
	}
	return s, nil
}

// String returns the cached human-readable numeric form, or "" if the
// Address is not yet resolved.
func (a *Address) String() string {
	if Status(a.status.Load()) != Resolved {
		return ""
	}
	return a.human
}

// Records returns the native address records, or nil if not resolved.
func (a *Address) Records() []net.IP {
	if Status(a.status.Load()) != Resolved {
		return nil
	}
	return a.records
}

// Ref increments the reference count and returns a (the same pointer),
// matching the C API's ref-returns-self convention.
func (a *Address) Ref() *Address {
	a.refs.Inc()
	return a
}

// Unref decrements the reference count. The Address itself is a
// garbage-collected Go value, so "destroyed when refcount hits zero"
// is expressed as a correctness invariant callers can assert on
// (RefCount()==0) rather than an explicit free; Unref below zero is a
// programmer error surfaced via a panic, enforcing that ref/unref stay
// balanced on every code path.
func (a *Address) Unref() {
	if n := a.refs.Dec(); n < 0 {
		panic("address: Unref called more times than Ref")
	}
}

// RefCount returns the current reference count, for tests asserting
// that ref/unref stay balanced.
func (a *Address) RefCount() int64 {
	return a.refs.Load()
}

// Compare implements a total order over Addresses: nil-ordering
// (non-nil < nil; equal pointers compare 0), then family, then raw
// address-record length, then lexicographic bytes. Addresses with no
// record compare before addresses with one.
func Compare(a, b *Address) int {
	if a == b {
		return 0
	}
	if a == nil {
		return 1
	}
	if b == nil {
		return -1
	}

	ra, rb := a.Records(), b.Records()
	if len(ra) == 0 && len(rb) == 0 {
		return 0
	}
	if len(ra) == 0 {
		return -1
	}
	if len(rb) == 0 {
		return 1
	}

	ia, ib := ra[0], rb[0]
	fa, fb := familyOf(ia), familyOf(ib)
	if fa != fb {
		return fa - fb
	}

	ba, bb := ia.To16(), ib.To16()
	if len(ba) != len(bb) {
		if len(ba) < len(bb) {
			return -1
		}
		return 1
	}

	return compareBytes(ba, bb)
}

func familyOf(ip net.IP) int {
	if ip.To4() != nil {
		return 0
	}
	return 1
}

func compareBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return int(a[i]) - int(b[i])
		}
	}
	return len(a) - len(b)
}

// Sort sorts a slice of Addresses using Compare, for callers that want a
// deterministic ordering (e.g. local-addresses() enumeration).
func Sort(addrs []*Address) {
	sort.Slice(addrs, func(i, j int) bool {
		return Compare(addrs[i], addrs[j]) < 0
	})
}
