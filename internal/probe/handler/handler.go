package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"cmpbridge/internal/consent/regime"
	"cmpbridge/internal/platform/metrics"
	"cmpbridge/internal/probe"
	dErrors "cmpbridge/pkg/domain-errors"
	"cmpbridge/pkg/platform/httputil"
	"cmpbridge/pkg/platform/middleware/metadata"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service defines the probe operations the handler needs.
type Service interface {
	Probe(ctx context.Context, req probe.Request) (*probe.Report, error)
	Regimes() []regime.Definition
}

// Handler serves the probe API.
type Handler struct {
	service Service
	logger  *slog.Logger
	metrics *metrics.Metrics
	limits  *clientLimiter
}

// New creates a probe Handler. rps <= 0 disables throttling.
func New(service Service, logger *slog.Logger, m *metrics.Metrics, rps float64, burst int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service: service,
		logger:  logger,
		metrics: m,
		limits:  newClientLimiter(rps, burst),
	}
}

// Register registers the probe routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/v1/regimes", h.handleListRegimes)
	r.With(h.throttle).Post("/v1/probes", h.handleProbe)
}

type probeRequest struct {
	URL       string   `json:"url"`
	Regimes   []string `json:"regimes"`
	TimeoutMS int64    `json:"timeoutMs"`
}

type regimeView struct {
	Name          string `json:"name"`
	GlobalFunc    string `json:"globalFunction"`
	Command       string `json:"command"`
	Version       int    `json:"version"`
	Locator       string `json:"locator"`
	EventListener bool   `json:"eventListener"`
}

func (h *Handler) handleListRegimes(w http.ResponseWriter, r *http.Request) {
	defs := h.service.Regimes()
	out := make([]regimeView, 0, len(defs))
	for _, d := range defs {
		out = append(out, regimeView{
			Name:          d.Name,
			GlobalFunc:    d.GlobalFunc,
			Command:       d.GetCommand,
			Version:       d.Version,
			Locator:       d.LocatorName,
			EventListener: d.EventListener != nil,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"regimes": out})
}

func (h *Handler) handleProbe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req probeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid probe request", "error", err.Error())
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	sanitize(&req)
	if req.TimeoutMS < 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "timeoutMs must not be negative"))
		return
	}

	report, err := h.service.Probe(ctx, probe.Request{
		URL:     req.URL,
		Regimes: req.Regimes,
		Timeout: time.Duration(req.TimeoutMS) * time.Millisecond,
	})
	if err != nil {
		code := dErrors.CodeOf(err)
		if code == dErrors.CodeInternal {
			h.logger.ErrorContext(ctx, "probe failed", "url", req.URL, "error", err.Error())
		} else {
			h.logger.WarnContext(ctx, "probe rejected", "url", req.URL, "code", string(code), "error", err.Error())
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := metadata.ClientIP(r.Context())
		if client == "" {
			client = metadata.PeerIP(r)
		}
		if !h.limits.allow(client) {
			h.metrics.IncThrottled()
			w.Header().Set("Retry-After", "1")
			httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "too many probe requests"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

const minVisitorIdle = 3 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiter keeps one token bucket per client and forgets clients idle
// for longer than it takes their bucket to refill.
type clientLimiter struct {
	limit rate.Limit
	burst int
	idle  time.Duration
	now   func() time.Time

	mu        sync.Mutex
	visitors  map[string]*visitor
	nextSweep time.Time
}

func newClientLimiter(rps float64, burst int) *clientLimiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	idle := time.Duration(float64(burst) / rps * float64(time.Second))
	if idle < minVisitorIdle {
		idle = minVisitorIdle
	}
	return &clientLimiter{
		limit:    rate.Limit(rps),
		burst:    burst,
		idle:     idle,
		now:      time.Now,
		visitors: make(map[string]*visitor),
	}
}

func (c *clientLimiter) allow(client string) bool {
	if c == nil {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if !now.Before(c.nextSweep) {
		c.cleanupVisitors(now)
		c.nextSweep = now.Add(c.idle)
	}
	v, ok := c.visitors[client]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(c.limit, c.burst)}
		c.visitors[client] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// cleanupVisitors drops clients whose bucket is full again. Caller holds mu.
func (c *clientLimiter) cleanupVisitors(now time.Time) {
	for client, v := range c.visitors {
		if now.Sub(v.lastSeen) > c.idle {
			delete(c.visitors, client)
		}
	}
}

func (c *clientLimiter) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.visitors)
}
