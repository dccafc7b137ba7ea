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

package address_test

import (
	"context"
	"errors"
	"net"
	"time"

	. "github.com/nabbar/netsock/address"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Address lifecycle", func() {
	It("starts in-progress with refcount 1 and an empty string form", func() {
		a := NewInProgress("example.test")
		Expect(a.Hostname()).To(Equal("example.test"))
		Expect(a.RefCount()).To(Equal(int64(1)))

		st, err := a.Status()
		Expect(st).To(Equal(InProgress))
		Expect(err).ToNot(HaveOccurred())
		Expect(a.String()).To(Equal(""))
	})

	It("publishes a resolved outcome exactly once, visible after WaitResolved", func() {
		a := NewInProgress("example.test")
		ip := net.ParseIP("93.184.216.34")

		go func() {
			time.Sleep(10 * time.Millisecond)
			a.Publish([]net.IP{ip}, nil)
		}()

		st := a.WaitResolved(context.Background(), -1)
		Expect(st).To(Equal(Resolved))
		Expect(a.String()).To(Equal("93.184.216.34"))
		Expect(a.Records()).To(ConsistOf(ip))
	})

	It("publishes a failed outcome with the cause available via Status", func() {
		a := NewInProgress("nowhere.invalid")
		a.Publish(nil, errors.New("simulated failure"))

		st, err := a.Status()
		Expect(st).To(Equal(Failed))
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("simulated failure"))
	})

	It("WaitResolved returns immediately once already resolved", func() {
		a := NewInProgress("example.test")
		a.Publish([]net.IP{net.ParseIP("127.0.0.1")}, nil)

		st := a.WaitResolved(context.Background(), 0)
		Expect(st).To(Equal(Resolved))
	})

	It("WaitResolved honours a timeout while still in-progress", func() {
		a := NewInProgress("hangs.invalid")
		start := time.Now()
		st := a.WaitResolved(context.Background(), 20)
		Expect(time.Since(start)).To(BeNumerically(">=", 15*time.Millisecond))
		Expect(st).To(Equal(InProgress))
	})
})

var _ = Describe("FromNative", func() {
	It("is immediately resolved with the given record", func() {
		ip := net.ParseIP("192.0.2.1")
		a := FromNative(ip, "192.0.2.1")

		st, _ := a.Status()
		Expect(st).To(Equal(Resolved))
		Expect(a.String()).To(Equal("192.0.2.1"))
		Expect(a.Records()).To(ConsistOf(ip))
	})
})

var _ = Describe("Ref/Unref", func() {
	It("increments and decrements the count, and panics on over-release", func() {
		a := NewInProgress("example.test")
		a.Ref()
		Expect(a.RefCount()).To(Equal(int64(2)))

		a.Unref()
		a.Unref()
		Expect(a.RefCount()).To(Equal(int64(0)))

		Expect(func() { a.Unref() }).To(Panic())
	})
})

var _ = Describe("Compare", func() {
	It("orders nil consistently: non-nil before nil, equal pointers at zero", func() {
		a := FromNative(net.ParseIP("10.0.0.1"), "10.0.0.1")
		Expect(Compare(a, a)).To(Equal(0))
		Expect(Compare(a, nil)).To(BeNumerically("<", 0))
		Expect(Compare(nil, a)).To(BeNumerically(">", 0))
	})

	It("orders IPv4 before IPv6", func() {
		v4 := FromNative(net.ParseIP("10.0.0.1"), "10.0.0.1")
		v6 := FromNative(net.ParseIP("2001:db8::1"), "2001:db8::1")
		Expect(Compare(v4, v6)).To(BeNumerically("<", 0))
		Expect(Compare(v6, v4)).To(BeNumerically(">", 0))
	})

	It("orders lexicographically within the same family", func() {
		a := FromNative(net.ParseIP("10.0.0.1"), "10.0.0.1")
		b := FromNative(net.ParseIP("10.0.0.2"), "10.0.0.2")
		Expect(Compare(a, b)).To(BeNumerically("<", 0))
		Expect(Compare(b, a)).To(BeNumerically(">", 0))
	})

	It("Sort produces a stable total ordering", func() {
		addrs := []*Address{
			FromNative(net.ParseIP("10.0.0.3"), "10.0.0.3"),
			FromNative(net.ParseIP("10.0.0.1"), "10.0.0.1"),
			FromNative(net.ParseIP("10.0.0.2"), "10.0.0.2"),
		}
		Sort(addrs)
		Expect(addrs[0].String()).To(Equal("10.0.0.1"))
		Expect(addrs[1].String()).To(Equal("10.0.0.2"))
		Expect(addrs[2].String()).To(Equal("10.0.0.3"))
	})
})
