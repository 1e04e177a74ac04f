package mail

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned while the breaker rejects sends.
var ErrCircuitOpen = errors.New("mail: transport circuit open")

// BreakerSettings tune the circuit breaker wrapped around a transport.
type BreakerSettings struct {
	Name string
	// ConsecutiveFailures trips the breaker once reached.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
	// HalfOpenRequests caps trial requests while half-open.
	HalfOpenRequests uint32
	OnStateChange    func(name, from, to string)
}

type breakerMailer struct {
	next Mailer
	cb   *gobreaker.CircuitBreaker[struct{}]
}

// WithCircuitBreaker wraps next so repeated transport failures fail fast
// with ErrCircuitOpen until the open timeout elapses.
func WithCircuitBreaker(next Mailer, cfg BreakerSettings) Mailer {
	if cfg.Name == "" {
		cfg.Name = "mail-transport"
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.HalfOpenRequests == 0 {
		cfg.HalfOpenRequests = 1
	}

	threshold := cfg.ConsecutiveFailures
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Cancellation and disabled delivery do not count as transport failures.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrSMTPDisabled)
		},
	}
	if cfg.OnStateChange != nil {
		notify := cfg.OnStateChange
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			notify(name, from.String(), to.String())
		}
	}

	return &breakerMailer{
		next: next,
		cb:   gobreaker.NewCircuitBreaker[struct{}](settings),
	}
}

func (m *breakerMailer) Send(ctx context.Context, msg Message) error {
	_, err := m.cb.Execute(func() (struct{}, error) {
		return struct{}{}, m.next.Send(ctx, msg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return errors.Join(ErrCircuitOpen, err)
	}
	return err
}

// State reports the breaker state as "closed", "half-open" or "open".
func (m *breakerMailer) State() string {
	return m.cb.State().String()
}
