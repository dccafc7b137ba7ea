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

// Package atomicx is a small generic wrapper around sync/atomic, used
// for most fields in this module that are written by one goroutine and
// read by another without a dedicated mutex: Address refcount, stream
// status, fault-injector percent knobs, resolver worker/request
// counters. (Address status is a plain sync/atomic.Int32.)
package atomicx

import "sync/atomic"

// Value is a type-safe, lock-free cell for T. The zero Value is ready to
// use and loads as the zero value of T; NewValue sets an initial value.
type Value[T any] struct {
	av atomic.Value
	zero T
}

type box[T any] struct {
	v T
}

// NewValue returns a Value initialised to init.
func NewValue[T any](init T) *Value[T] {
	v := &Value[T]{}
	v.Store(init)
	return v
}

// Load returns the current value, or the zero value of T if never stored.
func (v *Value[T]) Load() T {
	i := v.av.Load()
	if i == nil {
		return v.zero
	}
	return i.(*box[T]).v
}

// Store sets the value atomically.
func (v *Value[T]) Store(val T) {
	v.av.Store(&box[T]{v: val})
}

// Swap atomically stores val and returns the previous value.
func (v *Value[T]) Swap(val T) (old T) {
	i := v.av.Swap(&box[T]{v: val})
	if i == nil {
		return v.zero
	}
	return i.(*box[T]).v
}

// CompareAndSwap atomically stores new if the current value equals old,
// using the comparer function (since T may not be comparable with ==).
func (v *Value[T]) CompareAndSwap(old, new T, equal func(a, b T) bool) bool {
	for {
		cur := v.av.Load()
		var curVal T
		if cur != nil {
			curVal = cur.(*box[T]).v
		}
		if !equal(curVal, old) {
			return false
		}
		if v.av.CompareAndSwap(cur, &box[T]{v: new}) {
			return true
		}
	}
}
