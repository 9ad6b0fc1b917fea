package services

import "time"

type options struct {
	now func() time.Time
}

// Option customizes a service at construction.
type Option func(*options)

// WithClock replaces time.Now. Tests use it to move sessions past their end time.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
