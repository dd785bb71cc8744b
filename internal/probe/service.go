// Package probe runs consent adapters against real pages: one page, several
// regimes at once, a shared wait budget, and cleanup on every path.
package probe

import (
	"context"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"cmpbridge/internal/consent/correlation"
	"cmpbridge/internal/consent/inspect"
	consentmetrics "cmpbridge/internal/consent/metrics"
	"cmpbridge/internal/consent/ports"
	"cmpbridge/internal/consent/regime"
	"cmpbridge/internal/platform/metrics"
	dErrors "cmpbridge/pkg/domain-errors"
	"cmpbridge/pkg/platform/circuit"
	"cmpbridge/pkg/platform/sentinel"
	pstrings "cmpbridge/pkg/platform/strings"
)

const (
	defaultTimeout    = 5 * time.Second
	defaultNavTimeout = 30 * time.Second
	maxTimeout        = 60 * time.Second
)

// Service probes pages for consent.
type Service struct {
	browser        Browser
	logger         *slog.Logger
	metrics        *metrics.Metrics
	consentMetrics *consentmetrics.Metrics
	tracer         trace.Tracer
	breaker        *circuit.Breaker
	registry       *correlation.Registry
	group          singleflight.Group

	timeout      time.Duration
	navTimeout   time.Duration
	pollInterval time.Duration
	maxDepth     int
	regimes      []string
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithConsentMetrics passes consent engine metrics to every adapter.
func WithConsentMetrics(m *consentmetrics.Metrics) Option {
	return func(s *Service) {
		s.consentMetrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// WithBreaker guards browser opens.
func WithBreaker(b *circuit.Breaker) Option {
	return func(s *Service) {
		s.breaker = b
	}
}

// WithTimeout sets the default wait budget.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithNavigationTimeout bounds page loads.
func WithNavigationTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.navTimeout = d
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(s *Service) {
		s.pollInterval = d
	}
}

func WithMaxFrameDepth(depth int) Option {
	return func(s *Service) {
		s.maxDepth = depth
	}
}

// WithRegimes sets the regimes probed when a request names none.
func WithRegimes(names []string) Option {
	return func(s *Service) {
		if len(names) > 0 {
			s.regimes = slices.Clone(names)
		}
	}
}

// New creates a probe service.
func New(browser Browser, opts ...Option) *Service {
	s := &Service{
		browser:    browser,
		logger:     slog.Default(),
		tracer:     otel.Tracer("cmpbridge/probe"),
		breaker:    circuit.New("browser"),
		registry:   correlation.New(),
		timeout:    defaultTimeout,
		navTimeout: defaultNavTimeout,
		regimes:    regime.Names(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Regimes lists the regimes this service can probe.
func (s *Service) Regimes() []regime.Definition {
	out := make([]regime.Definition, 0, len(s.regimes))
	for _, name := range s.regimes {
		def, _ := regime.Lookup(name)
		out = append(out, def)
	}
	return out
}

// Probe opens req.URL and reports the consent state for each regime.
// Concurrent probes of the same page, regimes and budget share one run; a
// caller whose ctx ends stops waiting without cancelling the shared run.
//
// Errors: CodeInvalidInput for a bad URL, unknown regime or out-of-range
// timeout; CodeUnavailable when the page cannot be opened; CodeTimeout when
// ctx ends first.
func (s *Service) Probe(ctx context.Context, req Request) (*Report, error) {
	req, err := s.normalize(req)
	if err != nil {
		return nil, err
	}

	ch := s.group.DoChan(req.key(), func() (any, error) {
		return s.run(context.WithoutCancel(ctx), req)
	})
	select {
	case res := <-ch:
		if res.Shared {
			s.metrics.IncShared()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Report), nil
	case <-ctx.Done():
		return nil, dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "probe abandoned")
	}
}

func (s *Service) normalize(req Request) (Request, error) {
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		return req, dErrors.New(dErrors.CodeInvalidInput, "url is required")
	}
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return req, dErrors.New(dErrors.CodeInvalidInput, "url must be an absolute http(s) URL")
	}

	req.Regimes = pstrings.CanonicalSet(req.Regimes)
	if len(req.Regimes) == 0 {
		req.Regimes = slices.Clone(s.regimes)
	}
	for _, name := range req.Regimes {
		if _, ok := regime.Lookup(name); !ok {
			return req, dErrors.New(dErrors.CodeInvalidInput, "unknown regime "+name)
		}
	}
	slices.Sort(req.Regimes)

	switch {
	case req.Timeout == 0:
		req.Timeout = s.timeout
	case req.Timeout < 0 || req.Timeout > maxTimeout:
		return req, dErrors.New(dErrors.CodeInvalidInput, "timeout must be between 0 and "+maxTimeout.String())
	}
	return req, nil
}

func (r Request) key() string {
	return r.URL + "|" + strings.Join(r.Regimes, ",") + "|" + r.Timeout.String()
}

func (s *Service) run(ctx context.Context, req Request) (report *Report, err error) {
	ctx, span := s.tracer.Start(ctx, "probe.run", trace.WithAttributes(
		attribute.String("probe.url", req.URL),
		attribute.StringSlice("probe.regimes", req.Regimes),
	))
	start := time.Now()
	defer func() {
		outcome := metrics.OutcomeError
		if err == nil {
			outcome = metrics.OutcomeNone
			if report.Obtained() {
				outcome = metrics.OutcomeObtained
			}
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		s.metrics.ObserveProbe(outcome, time.Since(start))
		span.End()
	}()

	page, err := s.open(ctx, req.URL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			s.logger.WarnContext(ctx, "page close failed", "url", req.URL, "error", cerr)
		}
	}()

	results := make([]Result, len(req.Regimes))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range req.Regimes {
		g.Go(func() error {
			res, err := s.probeRegime(gctx, page.Host(), name, req.Timeout)
			results[i] = res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report = &Report{
		URL:        req.URL,
		StartedAt:  start.UTC(),
		DurationMS: time.Since(start).Milliseconds(),
		Results:    results,
	}
	s.logger.InfoContext(ctx, "probe_completed",
		"url", req.URL,
		"regimes", req.Regimes,
		"obtained", report.Obtained(),
		"duration_ms", report.DurationMS,
	)
	return report, nil
}

func (s *Service) open(ctx context.Context, rawURL string) (Page, error) {
	if !s.breaker.Allow() {
		return nil, dErrors.Wrap(sentinel.ErrUnavailable, dErrors.CodeUnavailable, "browser circuit open")
	}
	navCtx, cancel := context.WithTimeout(ctx, s.navTimeout)
	defer cancel()

	page, err := s.browser.Open(navCtx, rawURL)
	if err != nil {
		if _, change := s.breaker.RecordFailure(); change.Opened {
			s.logger.WarnContext(ctx, "browser circuit opened", "breaker", s.breaker.Name())
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "open page")
	}
	if _, change := s.breaker.RecordSuccess(); change.Closed {
		s.logger.InfoContext(ctx, "browser circuit closed", "breaker", s.breaker.Name())
	}
	return page, nil
}

// probeRegime waits for one adapter. Running out of budget is a normal
// "not obtained" result, not an error.
func (s *Service) probeRegime(ctx context.Context, host ports.Host, name string, budget time.Duration) (Result, error) {
	ctx, span := s.tracer.Start(ctx, "probe.regime", trace.WithAttributes(attribute.String("consent.regime", name)))
	defer span.End()

	def, _ := regime.Lookup(name)
	a, err := regime.New(host, def,
		regime.WithLogger(s.logger),
		regime.WithMetrics(s.consentMetrics),
		regime.WithRegistry(s.registry),
		regime.WithPollInterval(s.pollInterval),
		regime.WithMaxFrameDepth(s.maxDepth),
	)
	if err != nil {
		span.RecordError(err)
		return Result{Regime: name}, err
	}
	defer a.RunCleanup()

	waitCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()
	snap, err := a.Wait(waitCtx)
	if err != nil && !dErrors.HasCode(err, dErrors.CodeTimeout) && !dErrors.HasCode(err, dErrors.CodeConsentUnavailable) {
		span.RecordError(err)
		return Result{Regime: name}, err
	}

	res := Result{
		Regime:   name,
		Obtained: a.HasObtainedConsent(),
		Consent:  snap,
		CallID:   a.CallID(),
		Source:   snap.Source,
	}
	if res.Obtained {
		res.Decoded = inspect.Decode(name, snap.ConsentString)
	}
	span.SetAttributes(
		attribute.Bool("consent.obtained", res.Obtained),
		attribute.String("consent.source", res.Source),
	)
	return res, nil
}
