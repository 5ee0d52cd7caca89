package redis

import (
	"github.com/cschleiden/go-wfnet/backend"
)

type RedisOptions struct {
	backend.Options

	KeyPrefix string

	// Notifications publishes a message on a pub/sub channel whenever pending work is committed, so that
	// workers in other processes wake up without waiting for their next poll.
	Notifications bool
}

type RedisBackendOption func(*RedisOptions)

func WithBackendOptions(opts ...backend.BackendOption) RedisBackendOption {
	return func(o *RedisOptions) {
		for _, opt := range opts {
			opt(&o.Options)
		}
	}
}

func WithKeyPrefix(keyPrefix string) RedisBackendOption {
	return func(o *RedisOptions) {
		o.KeyPrefix = keyPrefix
	}
}

// WithNotifications enables or disables pending work notifications over pub/sub. Enabled by default.
func WithNotifications(enabled bool) RedisBackendOption {
	return func(o *RedisOptions) {
		o.Notifications = enabled
	}
}
