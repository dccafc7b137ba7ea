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

// Package resolver implements a bounded worker pool: a shared queue of
// Addresses awaiting a blocking name lookup, drained by up to MaxWorkers
// goroutines with at least MinWorkers kept warm.
package resolver

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/nabbar/netsock/address"
	"github.com/nabbar/netsock/atomicx"
	"github.com/nabbar/netsock/fault"
	"github.com/nabbar/netsock/logging"
	"github.com/nabbar/netsock/netcfg"
)

// Pool is the resolver worker pool. The zero value is not usable;
// construct with New.
type Pool struct {
	min, max int

	mu    sync.Mutex
	cond  *sync.Cond
	queue []*address.Address

	shutdown atomicx.Value[bool]

	liveWorkers atomicx.Counter
	outstanding atomicx.Counter

	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

// New creates a pool and starts MinWorkers warm workers.
func New(cfg *netcfg.Config) *Pool {
	if cfg == nil {
		cfg = netcfg.Default()
	}
	cfg.Validate()

	p := &Pool{
		min: cfg.MinWorkers,
		max: cfg.MaxWorkers,
		sem: semaphore.NewWeighted(int64(cfg.MaxWorkers)),
	}
	p.cond = sync.NewCond(&p.mu)
	p.shutdown.Store(false)

	for i := 0; i < p.min; i++ {
		p.spawnWorker()
	}

	return p
}

// Resolve enqueues hostname for asynchronous resolution and returns
// immediately with an Address already in the in-progress state. The
// returned Address carries the caller's reference; the pool holds its
// own until the worker publishes an outcome.
func (p *Pool) Resolve(hostname string) *address.Address {
	a := address.NewInProgress(hostname)
	reqID := uuid.New()

	p.mu.Lock()
	// Prepend, not append: deliberately kept as a documented
	// FIFO-starvation quirk rather than "fixed" into an append.
	p.queue = append([]*address.Address{a.Ref()}, p.queue...)
	outstanding := p.outstanding.Inc()
	live := p.liveWorkers.Load()
	p.mu.Unlock()

	logging.Component("resolver").WithFields(map[string]any{
		"request_id": reqID.String(),
		"hostname":   hostname,
	}).Debug("resolve: admitted")

	if outstanding >= live && live < int64(p.max) {
		p.spawnWorker()
	}

	p.mu.Lock()
	p.cond.Broadcast()
	p.mu.Unlock()

	return a
}

// spawnWorker attempts to start one more worker goroutine, respecting
// the MAX cap via the weighted semaphore. Failing to spawn is non-fatal:
// existing workers still drain the queue.
func (p *Pool) spawnWorker() {
	if !p.sem.TryAcquire(1) {
		return
	}
	p.liveWorkers.Inc()
	p.wg.Add(1)
	go p.workerLoop()
}

func (p *Pool) workerLoop() {
	defer p.wg.Done()
	defer p.sem.Release(1)

	log := logging.Component("resolver")

	for {
		p.mu.Lock()

		if p.shutdown.Load() {
			p.liveWorkers.Dec()
			p.mu.Unlock()
			log.Debug("worker: shutdown, exiting")
			return
		}

		if len(p.queue) > 0 {
			a := p.queue[0]
			p.queue = p.queue[1:]
			p.mu.Unlock()

			p.runLookup(a)

			a.Unref()
			p.outstanding.Dec()

			p.mu.Lock()
			p.cond.Broadcast()
			p.mu.Unlock()
			continue
		}

		if p.liveWorkers.Load() > int64(p.min) {
			p.liveWorkers.Dec()
			p.mu.Unlock()
			log.Debug("worker: over-provisioned, self-detaching")
			return
		}

		p.cond.Wait()
		p.mu.Unlock()
	}
}

// runLookup performs the single blocking lookup step for a, applying the
// resolver fault injector: independent dice rolls for a sleep-lag and
// for a forced "simulated failure".
func (p *Pool) runLookup(a *address.Address) {
	percent := fault.ResolverLoss()

	if fault.RollPercent(percent) {
		time.Sleep(fault.Window(percent))
	}

	if fault.RollPercent(percent) {
		a.Publish(nil, errSimulatedFailure)
		logging.Component("resolver").WithField("hostname", a.Hostname()).Warn("resolve: simulated failure")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	records, err := address.Lookup(ctx, a.Hostname())
	a.Publish(records, err)
}

// Shutdown tears the pool down: sets the shutdown flag, wakes every
// waiting worker, and joins them all.
func (p *Pool) Shutdown() {
	p.shutdown.Store(true)
	p.mu.Lock()
	p.cond.Broadcast()
	p.mu.Unlock()
	p.wg.Wait()
}

// LiveWorkers returns the current live-worker count. Always within
// [0, MAX], and >= MIN unless shutting down.
func (p *Pool) LiveWorkers() int64 {
	return p.liveWorkers.Load()
}

// Outstanding returns the current outstanding-request count.
func (p *Pool) Outstanding() int64 {
	return p.outstanding.Load()
}
