// Package webhook posts routed documents to tenant endpoints.
package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/docflow/internal/infrastructure/resilience"
)

type Options struct {
	Timeout   time.Duration
	HostRPS   float64
	HostBurst int
	UserAgent string
	Executor  *resilience.Executor
}

// Sender throttles per destination host so one busy tenant endpoint does not
// starve the others.
type Sender struct {
	httpClient *http.Client
	executor   *resilience.Executor
	userAgent  string
	rps        rate.Limit
	burst      int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewSender(opts Options) *Sender {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rps := rate.Inf
	if opts.HostRPS > 0 {
		rps = rate.Limit(opts.HostRPS)
	}
	burst := opts.HostBurst
	if burst <= 0 {
		burst = 1
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = "docflow-webhook/1"
	}
	return &Sender{
		httpClient: &http.Client{Timeout: timeout},
		executor:   opts.Executor,
		userAgent:  userAgent,
		rps:        rps,
		burst:      burst,
		limiters:   make(map[string]*rate.Limiter),
	}
}

// Send returns nil only for a 2xx response. Non-2xx responses come back as
// *resilience.StatusError.
func (s *Sender) Send(ctx context.Context, endpoint string, headers map[string]string, body []byte) error {
	target, err := url.Parse(endpoint)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		return fmt.Errorf("invalid webhook url %q", endpoint)
	}
	if err := s.limiter(target.Host).Wait(ctx); err != nil {
		return fmt.Errorf("webhook rate limit: %w", err)
	}

	return s.executor.Execute(ctx, "webhook."+target.Host, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create webhook request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", s.userAgent)
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("webhook request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return &resilience.StatusError{
				Operation: "webhook " + target.Host,
				Code:      resp.StatusCode,
				Body:      strings.TrimSpace(string(raw)),
			}
		}
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil
	}, resilience.ClassifyHTTP)
}

func (s *Sender) limiter(host string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[host]
	if !ok {
		l = rate.NewLimiter(s.rps, s.burst)
		s.limiters[host] = l
	}
	return l
}
