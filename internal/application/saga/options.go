package saga

import (
	"time"

	"saga-transaction/internal/domain/saga"
)

const (
	DefaultStragglerPollInterval = 100 * time.Millisecond
	DefaultStragglerMaxRetries   = 10
)

// Options tune an orchestrator run
type Options struct {
	// MaxParallelism bounds concurrent stage calls in parallel mode; zero means unbounded
	MaxParallelism int
	// StragglerPollInterval and StragglerMaxRetries bound the wait for stages still in process
	// before compensation starts
	StragglerPollInterval time.Duration
	StragglerMaxRetries   uint64
	// CompensateOnCancel compensates a saga whose context was cancelled, on a context detached
	// from that cancellation. When false, compensation is skipped and the rollback status stays None.
	CompensateOnCancel bool
	Observer           saga.Observer
}

func DefaultOptions() Options {
	return Options{
		StragglerPollInterval: DefaultStragglerPollInterval,
		StragglerMaxRetries:   DefaultStragglerMaxRetries,
		CompensateOnCancel:    true,
		Observer:              saga.NopObserver{},
	}
}

type Option func(*Options)

func WithMaxParallelism(n int) Option {
	return func(o *Options) {
		o.MaxParallelism = n
	}
}

func WithStragglerWait(interval time.Duration, maxRetries uint64) Option {
	return func(o *Options) {
		o.StragglerPollInterval = interval
		o.StragglerMaxRetries = maxRetries
	}
}

func WithCompensateOnCancel(enabled bool) Option {
	return func(o *Options) {
		o.CompensateOnCancel = enabled
	}
}

// WithObserver adds obs to the observers notified of lifecycle changes
func WithObserver(obs saga.Observer) Option {
	return func(o *Options) {
		if obs == nil {
			return
		}
		switch current := o.Observer.(type) {
		case nil, saga.NopObserver:
			o.Observer = obs
		case saga.Observers:
			o.Observer = append(current, obs)
		default:
			o.Observer = saga.Observers{current, obs}
		}
	}
}
