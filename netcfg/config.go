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

// Package netcfg holds the runtime-tunable knobs this module exposes:
// resolver pool sizing, buffer sizes, and initial fault-injection
// percentages. The original C library fixed these as compile-time
// #defines; here they are a viper-bindable struct, the same shape
// nabbar-golib/logger/config and nabbar-golib/viper use for their option
// structs.
package netcfg

import (
	"github.com/spf13/viper"
)

// Config is the full set of tunables for this module. Zero value is not
// meaningful; use Default() or Load.
type Config struct {
	// MinWorkers is the resolver worker count kept warm (spec MIN).
	MinWorkers int `mapstructure:"min_workers" json:"min_workers" yaml:"min_workers"`
	// MaxWorkers is the resolver worker ceiling (spec MAX).
	MaxWorkers int `mapstructure:"max_workers" json:"max_workers" yaml:"max_workers"`

	// ReadBufferSize is validated and carried here but read by no other
	// package; Stream.Read reads into the caller's buffer.
	ReadBufferSize int `mapstructure:"read_buffer_size" json:"read_buffer_size" yaml:"read_buffer_size"`
	// DatagramScratchSize is the fixed receive buffer for datagram sockets.
	DatagramScratchSize int `mapstructure:"datagram_scratch_size" json:"datagram_scratch_size" yaml:"datagram_scratch_size"`
	// DatagramCacheSize is the size of the per-datagram-socket peer LRU ring.
	DatagramCacheSize int `mapstructure:"datagram_cache_size" json:"datagram_cache_size" yaml:"datagram_cache_size"`
	// ServerBacklog is the default listen backlog. stream.Listen takes its
	// backlog as an argument and, when that is 0 or less, uses
	// Default().ServerBacklog, not the value of a loaded Config.
	ServerBacklog int `mapstructure:"server_backlog" json:"server_backlog" yaml:"server_backlog"`
	// MuxStackDescriptors reports the mux package's on-stack poll
	// descriptor array size (32); that array has a fixed size, so
	// changing this field does not resize it.
	MuxStackDescriptors int `mapstructure:"mux_stack_descriptors" json:"mux_stack_descriptors" yaml:"mux_stack_descriptors"`

	// ResolverLossPercent is the initial global resolver fault-injection
	// percentage; 0 disables it.
	ResolverLossPercent int `mapstructure:"resolver_loss_percent" json:"resolver_loss_percent" yaml:"resolver_loss_percent"`

	// LogLevel is passed to logging.SetLevel at startup.
	LogLevel string `mapstructure:"log_level" json:"log_level" yaml:"log_level"`
}

// Default returns the library's baked-in defaults: MIN=2, MAX=10, 32 KiB
// stream buffer, 64 KiB datagram scratch buffer, 64-slot peer cache,
// backlog 16, 32-entry stack descriptor array, no simulated loss.
func Default() *Config {
	return &Config{
		MinWorkers:          2,
		MaxWorkers:          10,
		ReadBufferSize:      32 * 1024,
		DatagramScratchSize: 64 * 1024,
		DatagramCacheSize:   64,
		ServerBacklog:       16,
		MuxStackDescriptors: 32,
		ResolverLossPercent: 0,
		LogLevel:            "info",
	}
}

// Validate clamps every field to a sane range instead of erroring,
// matching nabbar-golib/logger/config's forgiving-default style: a
// misconfigured deployment should still run the worker pool within
// spec-mandated bounds rather than refuse to start.
func (c *Config) Validate() {
	if c.MinWorkers <= 0 {
		c.MinWorkers = 2
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 10
	}
	if c.MaxWorkers > 10 {
		c.MaxWorkers = 10
	}
	if c.MinWorkers > c.MaxWorkers {
		c.MinWorkers = c.MaxWorkers
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = 32 * 1024
	}
	if c.DatagramScratchSize <= 0 {
		c.DatagramScratchSize = 64 * 1024
	}
	if c.DatagramCacheSize <= 0 {
		c.DatagramCacheSize = 64
	}
	if c.ServerBacklog <= 0 {
		c.ServerBacklog = 16
	}
	if c.MuxStackDescriptors <= 0 {
		c.MuxStackDescriptors = 32
	}
	c.ResolverLossPercent = clampPercent(c.ResolverLossPercent)
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// Load reads configuration from v (an already-configured viper.Viper,
// e.g. with SetConfigFile/AddConfigPath/ReadInConfig already called by
// the embedding application), overlaying onto Default().
func Load(v *viper.Viper) (*Config, error) {
	cfg := Default()
	if v == nil {
		return cfg, nil
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	cfg.Validate()
	return cfg, nil
}
