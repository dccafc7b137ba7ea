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

package atomicx

import "sync/atomic"

// Counter is a signed counter used for refcounts and pool bookkeeping
// (live workers, outstanding requests). Zero value is ready to use at 0.
type Counter struct {
	n atomic.Int64
}

// Add adds delta and returns the new value.
func (c *Counter) Add(delta int64) int64 {
	return c.n.Add(delta)
}

// Inc is Add(1).
func (c *Counter) Inc() int64 {
	return c.n.Add(1)
}

// Dec is Add(-1).
func (c *Counter) Dec() int64 {
	return c.n.Add(-1)
}

// Load returns the current value.
func (c *Counter) Load() int64 {
	return c.n.Load()
}

// Store sets the value unconditionally.
func (c *Counter) Store(v int64) {
	c.n.Store(v)
}
