// Package geo detects a caller's country from their IP address. Detection
// never fails: a slow, broken or malformed lookup yields a flagged default.
package geo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"idforge/pkg/platform/circuit"
	"idforge/pkg/platform/sentinel"
)

const (
	DefaultTimeout = 3 * time.Second
	DefaultCountry = "US"
	// Unreachable stands in for the IP when the lookup did not answer.
	Unreachable = "unreachable"
)

// Fallback reasons.
const (
	ReasonTimeout   = "timeout"
	ReasonCanceled  = "canceled"
	ReasonError     = "lookup_error"
	ReasonMalformed = "malformed_response"
	// ReasonCircuitOpen means the lookup was skipped after repeated failures.
	ReasonCircuitOpen = "circuit_open"
)

// Info is the detection outcome. Fallback is true when Country and IP are
// defaults rather than observed values. Accurate is the provider's confidence
// in an observed answer and is always false for a fallback.
type Info struct {
	IP       string `json:"ip"`
	Country  string `json:"country"`
	Accurate bool   `json:"accurate"`
	Fallback bool   `json:"fallback"`
	Reason   string `json:"reason,omitempty"`
}

// Lookup resolves ip (empty means "the caller") to location info. It must
// honor ctx cancellation.
type Lookup func(ctx context.Context, ip string) (Info, error)

// ErrMalformed marks a lookup answer that lacks the ip or country field.
var ErrMalformed = fmt.Errorf("geo response missing ip or country: %w", sentinel.ErrCorrupt)

type Option func(*Detector)

func WithTimeout(d time.Duration) Option {
	return func(det *Detector) {
		if d > 0 {
			det.timeout = d
		}
	}
}

func WithDefaultCountry(country string) Option {
	return func(det *Detector) {
		if country != "" {
			det.defaultCountry = strings.ToUpper(country)
		}
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(det *Detector) {
		if clock != nil {
			det.clock = clock
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(det *Detector) {
		if logger != nil {
			det.logger = logger
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(det *Detector) {
		det.metrics = m
	}
}

// WithBreaker skips the lookup while b is open. Timeouts, errors and
// malformed answers count as failures; caller cancellation does not.
func WithBreaker(b *circuit.Breaker) Option {
	return func(det *Detector) {
		det.breaker = b
	}
}

// Detector races a Lookup against a timeout.
type Detector struct {
	lookup         Lookup
	timeout        time.Duration
	defaultCountry string
	clock          clockwork.Clock
	logger         *slog.Logger
	metrics        *Metrics
	breaker        *circuit.Breaker
	tracer         trace.Tracer
}

func NewDetector(lookup Lookup, opts ...Option) (*Detector, error) {
	if lookup == nil {
		return nil, fmt.Errorf("geo lookup is required: %w", sentinel.ErrMisconfigured)
	}
	d := &Detector{
		lookup:         lookup,
		timeout:        DefaultTimeout,
		defaultCountry: DefaultCountry,
		clock:          clockwork.NewRealClock(),
		logger:         slog.Default(),
		tracer:         otel.Tracer("idforge/internal/geo"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d, nil
}

type outcome struct {
	info Info
	err  error
}

// Detect returns the location of ip, or the default when the lookup fails,
// answers malformed data, or does not answer within the timeout. The lookup
// context is cancelled as soon as Detect returns.
func (d *Detector) Detect(ctx context.Context, ip string) Info {
	ctx, span := d.tracer.Start(ctx, "geo.detect")
	defer span.End()

	start := d.clock.Now()
	if d.breaker != nil && !d.breaker.Allow() {
		info := d.fallback(ReasonCircuitOpen)
		span.SetAttributes(attribute.Bool("geo.fallback", true), attribute.String("geo.reason", info.Reason))
		d.metrics.observe(info, 0)
		return info
	}

	lookupCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	timer := d.clock.NewTimer(d.timeout)
	defer timer.Stop()

	// Buffered so a late answer does not block the lookup goroutine.
	done := make(chan outcome, 1)
	go func() {
		info, err := d.lookup(lookupCtx, ip)
		done <- outcome{info: info, err: err}
	}()

	var info Info
	select {
	case <-timer.Chan():
		info = d.fallback(ReasonTimeout)
	case <-ctx.Done():
		info = d.fallback(ReasonCanceled)
	case out := <-done:
		info = d.settle(ctx, out)
	}
	d.record(ctx, info)

	span.SetAttributes(
		attribute.Bool("geo.fallback", info.Fallback),
		attribute.String("geo.country", info.Country),
	)
	d.metrics.observe(info, d.clock.Since(start))
	if info.Fallback {
		d.logger.DebugContext(ctx, "geo detection fell back to default", "reason", info.Reason)
	}
	return info
}

func (d *Detector) record(ctx context.Context, info Info) {
	if d.breaker == nil || info.Reason == ReasonCanceled {
		return
	}
	if !info.Fallback {
		if _, change := d.breaker.RecordSuccess(); change.Closed {
			d.logger.InfoContext(ctx, "geo lookup recovered, circuit closed", "circuit", d.breaker.Name())
		}
		return
	}
	if _, change := d.breaker.RecordFailure(); change.Opened {
		d.logger.WarnContext(ctx, "geo lookup failing, circuit opened",
			"circuit", d.breaker.Name(),
			"reason", info.Reason,
		)
	}
}

func (d *Detector) settle(ctx context.Context, out outcome) Info {
	if out.err != nil {
		if ctx.Err() != nil {
			return d.fallback(ReasonCanceled)
		}
		if errors.Is(out.err, ErrMalformed) || errors.Is(out.err, sentinel.ErrCorrupt) {
			return d.fallback(ReasonMalformed)
		}
		d.logger.DebugContext(ctx, "geo lookup failed", "error", out.err)
		return d.fallback(ReasonError)
	}
	if out.info.IP == "" || out.info.Country == "" {
		return d.fallback(ReasonMalformed)
	}
	return Info{IP: out.info.IP, Country: strings.ToUpper(out.info.Country), Accurate: out.info.Accurate}
}

func (d *Detector) fallback(reason string) Info {
	return Info{
		IP:       Unreachable,
		Country:  d.defaultCountry,
		Fallback: true,
		Reason:   reason,
	}
}
