package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Reconnect policies.
const (
	PolicyManual  = "manual"
	PolicyBackoff = "backoff"
)

// shutdownTimeout bounds the Disconnect issued when the supervisor stops.
const shutdownTimeout = 5 * time.Second

// Connector is the part of Manager the Supervisor drives.
type Connector interface {
	Connect(ctx context.Context) error
	Wait(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Status() Status
}

// SupervisorOptions configures reconnection.
type SupervisorOptions struct {
	// AutoConnect connects when Run starts.
	AutoConnect bool

	// Policy is PolicyManual or PolicyBackoff.
	Policy string

	InitialDelay time.Duration
	MaxDelay     time.Duration

	// MaxAttempts caps consecutive failed attempts under PolicyBackoff.
	// Zero retries until the context ends.
	MaxAttempts int

	Logger Logger
}

// Supervisor connects on startup and, under PolicyBackoff, reconnects
// after failures. A handshake rejection or a local Disconnect ends the
// retry loop.
type Supervisor struct {
	conn   Connector
	opts   SupervisorOptions
	logger Logger
}

// NewSupervisor creates a Supervisor for conn.
func NewSupervisor(conn Connector, opts SupervisorOptions) *Supervisor {
	s := &Supervisor{conn: conn, opts: opts, logger: opts.Logger}
	if s.logger == nil {
		s.logger = noopLogger{}
	}
	return s
}

// Run blocks until ctx ends, then disconnects.
func (s *Supervisor) Run(ctx context.Context) error {
	if s.opts.AutoConnect {
		switch s.opts.Policy {
		case PolicyBackoff:
			if err := s.retry(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("gateway reconnection stopped", "error", err)
			}
		default:
			if err := s.conn.Connect(ctx); err != nil {
				s.logger.Warn("gateway connection failed", "error", err)
			}
		}
	}

	<-ctx.Done()

	dctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.conn.Disconnect(dctx)
}

// retry connects and reconnects until a permanent outcome or ctx ends.
// It returns nil when the session was closed locally.
func (s *Supervisor) retry(ctx context.Context) error {
	b := s.backOff(ctx)

	op := func() error {
		err := s.conn.Connect(ctx)
		switch {
		case err == nil:
			b.Reset()
		case errors.Is(err, ErrAlreadyConnected):
			// Another caller owns the attempt; supervise it once connected.
			if s.conn.Status().State != StateConnected {
				return err
			}
		case IsRejected(err) || ctx.Err() != nil:
			return backoff.Permanent(err)
		default:
			return err
		}

		err = s.conn.Wait(ctx)
		if err == nil || ctx.Err() != nil {
			return nil
		}
		return err
	}

	notify := func(err error, next time.Duration) {
		s.logger.Info("reconnecting to gateway", "error", err, "in", next)
	}

	return backoff.RetryNotify(op, b, notify)
}

func (s *Supervisor) backOff(ctx context.Context) backoff.BackOff {
	opts := []backoff.ExponentialBackOffOpts{backoff.WithMaxElapsedTime(0)}
	if s.opts.InitialDelay > 0 {
		opts = append(opts, backoff.WithInitialInterval(s.opts.InitialDelay))
	}
	if s.opts.MaxDelay > 0 {
		opts = append(opts, backoff.WithMaxInterval(s.opts.MaxDelay))
	}

	var b backoff.BackOff = backoff.NewExponentialBackOff(opts...)
	switch {
	case s.opts.MaxAttempts == 1:
		b = &backoff.StopBackOff{}
	case s.opts.MaxAttempts > 1:
		b = backoff.WithMaxRetries(b, uint64(s.opts.MaxAttempts-1))
	}
	return backoff.WithContext(b, ctx)
}
