package worker

import (
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
)

type Options struct {
	// Pollers is the number of goroutines running scheduler ticks. Defaults to 2.
	Pollers int

	// PollingInterval is the interval between ticks while no pending work is known. Backends that signal
	// committed pending work wake the pollers earlier. Defaults to 200ms.
	PollingInterval time.Duration

	// TickTimeout bounds a single scheduler tick. Defaults to 30 seconds.
	TickTimeout time.Duration

	// Schedule is an optional cron expression (e.g. "@every 1m") triggering additional ticks, for
	// deployments that disable polling with a long PollingInterval.
	Schedule string

	// Subscriber receives pending work notifications published by engines in other processes.
	Subscriber message.Subscriber

	// CacheEviction removes expired entries of the engine's instance cache while the worker runs.
	CacheEviction bool
}

var DefaultOptions = Options{
	Pollers:         2,
	PollingInterval: 200 * time.Millisecond,
	TickTimeout:     30 * time.Second,
	CacheEviction:   true,
}
