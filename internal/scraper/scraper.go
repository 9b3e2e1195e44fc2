// Package scraper fetches job posting pages and turns them into
// domain.JobRecord values. Fetch is the processor's fetch-and-parse step.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/ricirt/job-harvester/internal/domain"
	"github.com/ricirt/job-harvester/internal/ratelimiter"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// StatusError is returned when the server answers with a non-success status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: HTTP %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Options configures a Scraper. Zero values fall back to sensible defaults.
type Options struct {
	UserAgent string
	Timeout   time.Duration
	Limiter   *ratelimiter.HostLimiters
	Logger    *zap.Logger
	Now       func() time.Time
}

// Scraper fetches one posting per call. It is safe for concurrent use; each
// call builds its own collector.
type Scraper struct {
	userAgent string
	timeout   time.Duration
	limiter   *ratelimiter.HostLimiters
	logger    *zap.Logger
	now       func() time.Time
}

func New(opts Options) *Scraper {
	s := &Scraper{
		userAgent: opts.UserAgent,
		timeout:   opts.Timeout,
		limiter:   opts.Limiter,
		logger:    opts.Logger,
		now:       opts.Now,
	}
	if s.userAgent == "" {
		s.userAgent = defaultUserAgent
	}
	if s.timeout <= 0 {
		s.timeout = 20 * time.Second
	}
	if s.limiter == nil {
		s.limiter = ratelimiter.Unlimited()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Fetch downloads item.URL and parses it into a record whose ID is item.ID().
// Errors are tagged with domain.ErrTransientFetch or domain.ErrPermanentFetch.
func (s *Scraper) Fetch(ctx context.Context, item domain.WorkItem) (*domain.JobRecord, error) {
	u, err := url.Parse(item.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, domain.PermanentFetch(fmt.Errorf("%w: %q", domain.ErrInvalidURL, item.URL))
	}

	if err := s.limiter.Wait(ctx, u.Host); err != nil {
		return nil, domain.TransientFetch(fmt.Errorf("rate limiter: %w", err))
	}

	body, err := s.get(ctx, item.URL)
	if err != nil {
		return nil, err
	}

	rec, err := Parse(item.URL, body)
	if err != nil {
		return nil, domain.PermanentFetch(err)
	}
	rec.ID = item.ID()
	rec.FetchedAt = s.now().UTC()

	if rec.Title == "" {
		s.logger.Warn("no title found", zap.String("url", item.URL), zap.String("job_id", rec.ID))
	}
	return rec, nil
}

// get performs a single GET through a fresh colly collector and returns the
// response body.
func (s *Scraper) get(ctx context.Context, rawURL string) ([]byte, error) {
	c := colly.NewCollector(
		colly.UserAgent(s.userAgent),
		colly.StdlibContext(ctx),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(s.timeout)

	var (
		body   []byte
		status int
	)

	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = r.Body
	})

	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	visitErr := c.Visit(rawURL)
	if visitErr == nil {
		return body, nil
	}
	return nil, classify(rawURL, status, visitErr)
}

// classify maps a failed request to a transient or permanent error.
// 408, 429 and 5xx are worth retrying; any other 4xx is not. Without a
// status the failure happened in transport and is retried.
func classify(rawURL string, status int, err error) error {
	if status == 0 {
		if errors.Is(err, colly.ErrMissingURL) {
			return domain.PermanentFetch(fmt.Errorf("GET %s: %w", rawURL, err))
		}
		return domain.TransientFetch(fmt.Errorf("GET %s: %w", rawURL, err))
	}

	serr := &StatusError{URL: rawURL, StatusCode: status}
	switch {
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
		return domain.TransientFetch(serr)
	case status >= 400:
		return domain.PermanentFetch(serr)
	default:
		return domain.TransientFetch(serr)
	}
}
