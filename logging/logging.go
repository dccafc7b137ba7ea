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

// Package logging wraps a single package-level logrus.Logger, the way
// nabbar-golib/logger wraps logrus for its whole module, trimmed down to
// the fluent-field-by-component shape this library actually needs.
package logging

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu  sync.RWMutex
	log = newDefault()
)

func newDefault() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}

// L returns the package-level logger.
func L() *logrus.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// SetLevel adjusts the package-level logger's verbosity. Invalid levels
// are ignored, matching the forgiving-defaulting style used across the
// rest of this module's configuration surface.
func SetLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	log.SetLevel(lvl)
}

// SetLogger replaces the package-level logger wholesale, for callers
// embedding this module that want their own logrus configuration
// (output, hooks, formatter) honoured.
func SetLogger(l *logrus.Logger) {
	if l == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	log = l
}

// Component returns a *logrus.Entry pre-tagged with "component", the
// fluent-field entry point every package in this module that logs goes
// through (resolver, stream, datagram, netsock).
func Component(name string) *logrus.Entry {
	return L().WithField("component", name)
}
