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

package netcfg_test

import (
	"github.com/spf13/viper"

	. "github.com/nabbar/netsock/netcfg"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Default", func() {
	It("matches the documented defaults", func() {
		c := Default()
		Expect(c.MinWorkers).To(Equal(2))
		Expect(c.MaxWorkers).To(Equal(10))
		Expect(c.ReadBufferSize).To(Equal(32 * 1024))
		Expect(c.DatagramScratchSize).To(Equal(64 * 1024))
		Expect(c.DatagramCacheSize).To(Equal(64))
		Expect(c.ServerBacklog).To(Equal(16))
		Expect(c.MuxStackDescriptors).To(Equal(32))
		Expect(c.ResolverLossPercent).To(Equal(0))
	})
})

var _ = Describe("Validate", func() {
	It("clamps MaxWorkers to the documented ceiling of 10", func() {
		c := &Config{MaxWorkers: 999, MinWorkers: 1}
		c.Validate()
		Expect(c.MaxWorkers).To(Equal(10))
	})

	It("never errors and always produces a runnable configuration", func() {
		c := &Config{MinWorkers: -5, MaxWorkers: -5, ResolverLossPercent: 500}
		c.Validate()
		Expect(c.MinWorkers).To(BeNumerically(">", 0))
		Expect(c.MaxWorkers).To(BeNumerically(">", 0))
		Expect(c.MinWorkers).To(BeNumerically("<=", c.MaxWorkers))
		Expect(c.ResolverLossPercent).To(Equal(100))
	})

	It("clamps MinWorkers down to MaxWorkers when it exceeds it", func() {
		c := &Config{MinWorkers: 8, MaxWorkers: 3}
		c.Validate()
		Expect(c.MinWorkers).To(Equal(3))
	})
})

var _ = Describe("Load", func() {
	It("overlays viper values onto the defaults", func() {
		v := viper.New()
		v.Set("max_workers", 4)
		v.Set("log_level", "debug")

		c, err := Load(v)
		Expect(err).ToNot(HaveOccurred())
		Expect(c.MaxWorkers).To(Equal(4))
		Expect(c.LogLevel).To(Equal("debug"))
		Expect(c.MinWorkers).To(Equal(2))
	})

	It("returns Default() when v is nil", func() {
		c, err := Load(nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(c).To(Equal(Default()))
	})
})
