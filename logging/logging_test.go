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

package logging_test

import (
	"github.com/sirupsen/logrus"

	. "github.com/nabbar/netsock/logging"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("L", func() {
	It("returns a usable, non-nil default logger", func() {
		Expect(L()).ToNot(BeNil())
	})
})

var _ = Describe("SetLevel", func() {
	It("applies a valid level", func() {
		SetLevel("debug")
		Expect(L().GetLevel()).To(Equal(logrus.DebugLevel))
		SetLevel("info")
	})

	It("ignores an invalid level rather than panicking", func() {
		SetLevel("info")
		SetLevel("not-a-level")
		Expect(L().GetLevel()).To(Equal(logrus.InfoLevel))
	})
})

var _ = Describe("Component", func() {
	It("tags the returned entry with the component field", func() {
		e := Component("test-component")
		Expect(e.Data["component"]).To(Equal("test-component"))
	})
})
