package remote

import "time"

const (
	DefaultReadTimeout = 30 * time.Second
	DefaultDialTimeout = 10 * time.Second
)

type options struct {
	readTimeout time.Duration
	dialTimeout time.Duration
}

func defaultOptions() options {
	return options{
		readTimeout: DefaultReadTimeout,
		dialTimeout: DefaultDialTimeout,
	}
}

type Option func(*options)

// WithReadTimeout bounds the wait for each response and each request
// write. Zero disables the deadline.
func WithReadTimeout(d time.Duration) Option {
	return func(o *options) {
		o.readTimeout = d
	}
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *options) {
		o.dialTimeout = d
	}
}
