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

// Package fault implements the deterministic-PRNG fault injector
// described as follows: a process-wide resolver loss percentage,
// per-endpoint loss percentages, and the dice-roll helpers the resolver,
// stream, and datagram packages use to decide "drop this / lag this /
// fail this". The PRNG is explicitly weak; it exists for reproducible
// testing, not security.
package fault

import (
	"sync"
	"time"

	"github.com/nabbar/netsock/atomicx"
)

// lcg is the linear-congruential generator named here:
// multiplier 1103515245, increment 12345, bits 30..16 mod 32768 returned
// — the same constants (and the same bit-slice trick) as the glibc-style
// rand() implementation this module's fault injection is modelled on.
type lcg struct {
	mu   sync.Mutex
	seed uint32
}

func newLCG(seed uint32) *lcg {
	return &lcg{seed: seed}
}

func (g *lcg) next() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seed = g.seed*1103515245 + 12345
	return int((g.seed >> 16) % 32768)
}

// intn returns a pseudo-random int in [0, n).
func (g *lcg) intn(n int) int {
	if n <= 0 {
		return 0
	}
	return g.next() % n
}

var (
	prng = newLCG(uint32(time.Now().UnixNano()))

	globalResolverLoss = atomicx.NewValue(0)
)

func clamp(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// SetResolverLoss sets the process-wide resolver loss percentage,
// clamped to [0,100].
func SetResolverLoss(percent int) {
	globalResolverLoss.Store(clamp(percent))
}

// ResolverLoss returns the current process-wide resolver loss percentage.
func ResolverLoss() int {
	return globalResolverLoss.Load()
}

// RollPercent reports true with probability percent/100, using the
// shared weak PRNG.
func RollPercent(percent int) bool {
	if percent <= 0 {
		return false
	}
	if percent >= 100 {
		return true
	}
	return prng.intn(100) < percent
}

// RandomDuration returns a random duration in [min, max). Used for the
// resolver's sleep window and the stream/datagram simulated-failure
// window: a random 250ms to (2000+50p)ms span.
func RandomDuration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	span := int64(max - min)
	return min + time.Duration(int64(prng.next())*span/32768)
}

// Window computes the simulated-failure window bound: 250ms to
// (2000+50p)ms, where p is the loss percent in force.
func Window(percent int) time.Duration {
	lo := 250 * time.Millisecond
	hi := time.Duration(2000+50*percent) * time.Millisecond
	return RandomDuration(lo, hi)
}

// Percent is a per-endpoint loss/knob holder (stream or datagram socket),
// clamped to [0,100] on every Set.
type Percent struct {
	v atomicx.Value[int]
}

// NewPercent returns a Percent initialised to 0.
func NewPercent() *Percent {
	p := &Percent{}
	p.v.Store(0)
	return p
}

// Set clamps and stores percent.
func (p *Percent) Set(percent int) {
	p.v.Store(clamp(percent))
}

// Get returns the current percentage.
func (p *Percent) Get() int {
	return p.v.Load()
}

// Roll reports true with probability Get()/100.
func (p *Percent) Roll() bool {
	return RollPercent(p.Get())
}
