package invoke

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"jobsched/internal/job"
	logx "jobsched/pkg/logx"
)

// maxDrain bounds how much of a response body is read before the connection
// is released.
const maxDrain = 64 << 10

type Config struct {
	Timeout    time.Duration
	RatePerSec int
	Burst      int
	UserAgent  string
	// NotFoundStatuses are the HTTP statuses that mean the target is gone.
	NotFoundStatuses []int
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 50
	}
	if c.Burst <= 0 {
		c.Burst = c.RatePerSec
	}
	if strings.TrimSpace(c.UserAgent) == "" {
		c.UserAgent = "jobsched/1"
	}
	if len(c.NotFoundStatuses) == 0 {
		c.NotFoundStatuses = []int{http.StatusNotFound, http.StatusGone}
	}
	return c
}

// HTTP performs job actions as HTTP requests.
type HTTP struct {
	log    logx.Logger
	client *http.Client

	mu       sync.RWMutex
	cfg      Config
	limiter  *rate.Limiter
	notFound map[int]struct{}
}

// New builds an invoker. client may be nil.
func New(cfg Config, client *http.Client, log logx.Logger) *HTTP {
	if client == nil {
		client = &http.Client{}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	h := &HTTP{client: client, log: log.With(logx.String("comp", "invoker"))}
	h.Apply(cfg)
	return h
}

// Apply swaps timeout, rate and classification settings. Requests already
// waiting on the old limiter finish against it.
func (h *HTTP) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	nf := make(map[int]struct{}, len(cfg.NotFoundStatuses))
	for _, s := range cfg.NotFoundStatuses {
		nf[s] = struct{}{}
	}
	h.mu.Lock()
	h.cfg = cfg
	h.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst)
	h.notFound = nf
	h.mu.Unlock()
}

func (h *HTTP) current() (Config, *rate.Limiter, map[int]struct{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg, h.limiter, h.notFound
}

// Invoke performs the action once and classifies the result.
func (h *HTTP) Invoke(ctx context.Context, a job.Action) job.Outcome {
	cfg, lim, notFound := h.current()
	start := time.Now()

	if err := lim.Wait(ctx); err != nil {
		return withDuration(job.Failure(0, fmt.Errorf("rate limit wait: %w", err)), start)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	var body io.Reader
	if a.Body != "" {
		body = strings.NewReader(a.Body)
	}
	method := a.Method
	if method == "" {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(ctx, method, a.URL, body)
	if err != nil {
		return withDuration(job.Failure(0, fmt.Errorf("build request: %w", err)), start)
	}
	req.Header.Set("User-Agent", cfg.UserAgent)
	if a.Body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range a.Headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return withDuration(job.Failure(0, err), start)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain))
	_ = resp.Body.Close()

	out := classify(resp.StatusCode, notFound)
	h.log.Trace("action invoked",
		logx.String("method", method),
		logx.String("url", a.URL),
		logx.Int("status", resp.StatusCode),
		logx.String("outcome", string(out.Kind)),
		logx.Duration("dur", time.Since(start)),
	)
	return withDuration(out, start)
}

var errStatus = errors.New("unexpected status")

func classify(status int, notFound map[int]struct{}) job.Outcome {
	if status >= 200 && status < 300 {
		return job.Success(status)
	}
	if _, ok := notFound[status]; ok {
		return job.NotFound(status)
	}
	return job.Failure(status, fmt.Errorf("%w %d", errStatus, status))
}

func withDuration(o job.Outcome, start time.Time) job.Outcome {
	o.Duration = time.Since(start)
	return o
}
