package cache

import (
	"time"
)

const defaultConnectTimeout = 5 * time.Second

// Option configures a server backed counter.
type Option func(*Options)

// Options holds the connection settings of a server backed counter.
type Options struct {
	URI            string
	Name           string
	ConnectTimeout time.Duration
}

// NewOptions applies opts over the defaults shared by all backends.
func NewOptions(opts ...Option) *Options {
	o := &Options{ConnectTimeout: defaultConnectTimeout}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Key namespaces key with the configured name, so sites sharing one server
// keep separate counters.
func (o *Options) Key(key string) string {
	if o.Name == "" {
		return key
	}
	return o.Name + ":" + key
}

func WithURI(uri string) Option {
	return func(o *Options) {
		o.URI = uri
	}
}

// WithName sets the key namespace, usually the service name.
func WithName(name string) Option {
	return func(o *Options) {
		o.Name = name
	}
}

// WithConnectTimeout bounds the ping made when the counter is opened.
func WithConnectTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		if timeout > 0 {
			o.ConnectTimeout = timeout
		}
	}
}
