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

package netsock_test

import (
	"context"

	"github.com/nabbar/netsock/address"
	"github.com/nabbar/netsock/netcfg"
	. "github.com/nabbar/netsock/netsock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Init/Quit refcounting", func() {
	It("only the outermost Init/Quit pair does real work", func() {
		Expect(Init(netcfg.Default())).To(Succeed())
		Expect(Init(netcfg.Default())).To(Succeed())

		a, err := Resolve("localhost")
		Expect(err).ToNot(HaveOccurred())
		Expect(a).ToNot(BeNil())

		Quit()
		// Still initialized: the inner Quit only released one reference.
		_, err = Resolve("localhost")
		Expect(err).ToNot(HaveOccurred())

		Quit()
		_, err = Resolve("localhost")
		Expect(err).To(HaveOccurred())
	})

	It("Resolve fails cleanly before Init", func() {
		_, err := Resolve("localhost")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Resolve/WaitResolved/Status/String", func() {
	It("resolves localhost end to end through the facade", func() {
		Expect(Init(netcfg.Default())).To(Succeed())
		defer Quit()

		a, err := Resolve("localhost")
		Expect(err).ToNot(HaveOccurred())

		st := WaitResolved(context.Background(), a, 5000)
		Expect(st).To(Equal(address.Resolved))

		st2, serr := Status(a)
		Expect(st2).To(Equal(address.Resolved))
		Expect(serr).ToNot(HaveOccurred())
		Expect(String(a)).ToNot(BeEmpty())

		Unref(a)
	})
})

var _ = Describe("LocalAddresses/FreeLocalAddresses", func() {
	It("returns a sorted, non-loopback address list without error", func() {
		addrs, err := LocalAddresses()
		Expect(err).ToNot(HaveOccurred())
		for i := 1; i < len(addrs); i++ {
			Expect(Compare(addrs[i-1], addrs[i])).To(BeNumerically("<=", 0))
		}
		FreeLocalAddresses(addrs)
	})
})

var _ = Describe("NewServer/NewClient/NewDatagram", func() {
	It("constructs endpoints without error on loopback", func() {
		Expect(Init(netcfg.Default())).To(Succeed())
		defer Quit()

		srv, err := NewServer(nil, 0, 4)
		Expect(err).ToNot(HaveOccurred())
		defer srv.Destroy()

		d, err := NewDatagram(nil, 0, netcfg.Default())
		Expect(err).ToNot(HaveOccurred())
		defer d.Destroy()
	})
})
