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

package resolver_test

import (
	"context"
	"time"

	"github.com/nabbar/netsock/address"
	"github.com/nabbar/netsock/fault"
	"github.com/nabbar/netsock/netcfg"
	. "github.com/nabbar/netsock/resolver"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Pool", func() {
	var cfg *netcfg.Config

	BeforeEach(func() {
		fault.SetResolverLoss(0)
		cfg = netcfg.Default()
		cfg.MinWorkers = 1
		cfg.MaxWorkers = 3
	})

	It("starts MinWorkers warm workers", func() {
		p := New(cfg)
		defer p.Shutdown()
		Expect(p.LiveWorkers()).To(Equal(int64(1)))
	})

	It("resolves localhost to a loopback address", func() {
		p := New(cfg)
		defer p.Shutdown()

		a := p.Resolve("localhost")
		Expect(a).ToNot(BeNil())

		st := a.WaitResolved(context.Background(), 5000)
		Expect(st).To(Equal(address.Resolved))
		Expect(a.Records()).ToNot(BeEmpty())
	})

	It("never exceeds MaxWorkers live workers under a burst of requests", func() {
		p := New(cfg)
		defer p.Shutdown()

		for i := 0; i < 20; i++ {
			p.Resolve("localhost")
		}
		Eventually(func() int64 { return p.LiveWorkers() }, time.Second).Should(BeNumerically("<=", int64(cfg.MaxWorkers)))
	})

	It("surfaces a simulated resolver failure verbatim when global loss is forced", func() {
		p := New(cfg)
		defer p.Shutdown()

		fault.SetResolverLoss(100)
		defer fault.SetResolverLoss(0)

		a := p.Resolve("example.test")
		// at 100% loss the lag window can last up to 2000+50*100 ms.
		st := a.WaitResolved(context.Background(), 10000)
		Expect(st).To(Equal(address.Failed))

		_, err := a.Status()
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("simulated failure"))
	})

	It("Shutdown joins every worker, leaving none live", func() {
		p := New(cfg)
		p.Shutdown()
		Eventually(func() int64 { return p.LiveWorkers() }).Should(Equal(int64(0)))
	})
})
