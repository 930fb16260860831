// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package blemidi

type options struct {
	runningStatus bool
	runningArity  bool
}

// Option configures an Engine or Packetizer.
type Option func(*options)

// WithRunningStatus omits the status byte of a channel event that repeats the
// previous channel status within the same packet.
func WithRunningStatus() Option {
	return func(o *options) {
		o.runningStatus = true
	}
}

// WithRunningStatusArity makes a data byte after a completed program change or
// channel pressure start a new one-byte message under the same status. By
// default every running status message waits for two data bytes.
func WithRunningStatusArity() Option {
	return func(o *options) {
		o.runningArity = true
	}
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
