package channel

import "time"

type options struct {
	pollInterval time.Duration
	maxLineSize  int
	writeTimeout time.Duration
}

func defaultOptions() options {
	return options{
		pollInterval: time.Second,
		maxLineSize:  1024 * 1024,
		writeTimeout: 10 * time.Second,
	}
}

type Option func(*options)

// Interval at which undelivered outbound lines are retried.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// Longest inbound line accepted from a peer, in bytes.
func WithMaxLineSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.maxLineSize = size
		}
	}
}

// Deadline for writing one line to a peer. Zero disables it.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		o.writeTimeout = d
	}
}
