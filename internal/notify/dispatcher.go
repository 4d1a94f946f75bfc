package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/habana-express/market-engine/internal/events"
	"github.com/habana-express/market-engine/internal/shared"
)

// Sink receives envelopes. Implementations must be safe for concurrent use.
type Sink interface {
	Name() string
	Publish(ctx context.Context, env Envelope) error
}

// Config groups dispatcher settings.
type Config struct {
	// Timeout bounds one delivery batch across every sink.
	Timeout time.Duration
	// Language selects the summary locale.
	Language language.Tag
	Metrics  *Metrics
}

// Dispatcher fans committed events out to sinks on a background goroutine.
// Delivery failures are logged and counted, never returned to the caller.
type Dispatcher struct {
	logger  *slog.Logger
	sinks   []Sink
	timeout time.Duration
	printer *message.Printer
	metrics *Metrics
	now     func() time.Time
	wg      sync.WaitGroup
}

var _ events.Dispatcher = (*Dispatcher)(nil)

// NewDispatcher constructs a dispatcher over sinks.
func NewDispatcher(logger *slog.Logger, cfg Config, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	tag := cfg.Language
	if tag == language.Und {
		tag = language.Spanish
	}
	return &Dispatcher{
		logger:  logger,
		sinks:   sinks,
		timeout: timeout,
		printer: message.NewPrinter(tag),
		metrics: cfg.Metrics,
		now:     time.Now,
	}
}

// Dispatch queues evts for delivery. The request context only contributes
// the caller identity; delivery runs detached with its own timeout.
func (d *Dispatcher) Dispatch(ctx context.Context, evts ...events.Event) {
	if d == nil || len(evts) == 0 || len(d.sinks) == 0 {
		return
	}
	actor := shared.IdentityFromContext(ctx).ID
	envs := make([]Envelope, 0, len(evts))
	at := d.now()
	for _, evt := range evts {
		env, err := NewEnvelope(evt, actor, at, d.printer)
		if err != nil {
			d.logger.Error("notify encode", slog.String("kind", string(evt.Kind())), slog.Any("error", err))
			continue
		}
		envs = append(envs, env)
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		deliverCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()
		d.deliver(deliverCtx, envs)
	}()
}

// Wait blocks until queued deliveries finish.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, envs []Envelope) {
	for _, env := range envs {
		for _, sink := range d.sinks {
			err := publish(ctx, sink, env)
			d.metrics.observe(sink.Name(), string(env.Kind), err)
			if err == nil {
				continue
			}
			level := slog.LevelWarn
			if errors.Is(err, errSinkPanic) {
				level = slog.LevelError
			}
			d.logger.Log(ctx, level, "notify delivery failed",
				slog.String("sink", sink.Name()),
				slog.String("kind", string(env.Kind)),
				slog.String("envelope_id", env.ID),
				slog.Any("error", err))
		}
	}
}

var errSinkPanic = errors.New("sink panicked")

// publish turns a sink panic into an error so one broken sink cannot take
// the process down or starve the sinks after it.
func publish(ctx context.Context, sink Sink, env Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errSinkPanic, r)
		}
	}()
	return sink.Publish(ctx, env)
}
