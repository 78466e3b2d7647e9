package health

import "context"

// Pinger checks a datastore's availability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a plain ping function to the Pinger interface.
type PingerFunc func(ctx context.Context) error

// Ping implements Pinger.
func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// UpstreamChecker checks an external dependency's availability.
type UpstreamChecker interface {
	HealthCheck(ctx context.Context) error
}
