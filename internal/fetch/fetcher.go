// Package fetch downloads a single media stream to disk with request
// pacing, retry/backoff for transient failures and a separate backoff
// budget for 412 anti-automation responses.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/bilifav/bilifavdl/internal/bili"
)

// Doer is the transport surface the fetcher needs, satisfied by
// *http.Client and by fakes in tests.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

type Options struct {
	// Generic retry budget for connection failures, HTTP errors and
	// interrupted streams.
	MaxRetries     int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// Separate budget for 412 precondition-failed responses. The two
	// budgets are independent: 412s signal throttling, not flakiness,
	// and must not eat into the generic budget.
	Retry412Max   int
	Retry412Delay time.Duration

	// Minimum delay between the start of consecutive fetch tasks.
	Interval time.Duration

	Headers      http.Header
	ShowProgress bool
}

type Fetcher struct {
	client Doer
	opts   Options
	logger *log.Logger

	sleep     func(ctx context.Context, d time.Duration) error
	lastStart time.Time
}

func New(client Doer, opts Options, logger *log.Logger) *Fetcher {
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = 2 * time.Second
	}
	if opts.RetryMaxDelay <= 0 {
		opts.RetryMaxDelay = 30 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Fetcher{
		client: client,
		opts:   opts,
		logger: logger.WithPrefix("fetch"),
		sleep: func(ctx context.Context, d time.Duration) error {
			if d <= 0 {
				return ctx.Err()
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
				return nil
			}
		},
	}
}

// NewHTTPClient returns the transport for media streams. Connect, TLS
// and response-header waits are bounded; the transfer itself is not — a
// whole-request timeout would abort any download longer than it.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 60 * time.Second,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

// Buffer pool shared across downloads to reduce GC pressure.
var bufPool = sync.Pool{
	New: func() any {
		buf := make([]byte, 32*1024)
		return &buf
	},
}

type fetchState int

const (
	stateAttempt fetchState = iota
	stateStreaming
	stateRetry
	stateBackoff412
	stateDone
	stateFailed
)

type task struct {
	url  string
	dest string

	attempts    int // generic budget consumed
	backoffs412 int // 412 budget consumed
	lastErr     error
	body        io.ReadCloser
	size        int64
}

// Fetch streams url to dest. It blocks until the task reaches a
// terminal state; a non-nil error means the task failed after
// exhausting its retry budgets.
func (f *Fetcher) Fetch(ctx context.Context, url, dest string) error {
	if err := f.pace(ctx); err != nil {
		return err
	}

	t := &task{url: url, dest: dest}
	st := stateAttempt
	for {
		switch st {
		case stateAttempt:
			st = f.attempt(ctx, t)
		case stateStreaming:
			st = f.streamBody(ctx, t)
		case stateRetry:
			t.attempts++
			if t.attempts > f.opts.MaxRetries {
				st = stateFailed
				continue
			}
			delay := f.retryDelay(t.attempts)
			f.logger.Warnf("download failed, retrying in %s (%d/%d): %v", delay, t.attempts, f.opts.MaxRetries, t.lastErr)
			if err := f.sleep(ctx, delay); err != nil {
				return err
			}
			st = stateAttempt
		case stateBackoff412:
			t.backoffs412++
			if t.backoffs412 > f.opts.Retry412Max {
				return bili.WrapError(bili.ErrKindRateLimited, fmt.Sprintf("412 backoff budget exhausted for %s", dest), t.lastErr)
			}
			f.logger.Warnf("got 412, waiting %s before retry (%d/%d)", f.opts.Retry412Delay, t.backoffs412, f.opts.Retry412Max)
			if err := f.sleep(ctx, f.opts.Retry412Delay); err != nil {
				return err
			}
			st = stateAttempt
		case stateDone:
			return nil
		case stateFailed:
			var kindErr *bili.Error
			if errors.As(t.lastErr, &kindErr) {
				return t.lastErr
			}
			return bili.WrapError(bili.ErrKindNetwork, fmt.Sprintf("download failed after %d retries", f.opts.MaxRetries), t.lastErr)
		}
	}
}

// pace enforces the request interval between the start of consecutive
// tasks, not between chunks or retries.
func (f *Fetcher) pace(ctx context.Context) error {
	if f.opts.Interval > 0 && !f.lastStart.IsZero() {
		if wait := f.opts.Interval - time.Since(f.lastStart); wait > 0 {
			if err := f.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
	f.lastStart = time.Now()
	return nil
}

func (f *Fetcher) retryDelay(attempt int) time.Duration {
	delay := f.opts.RetryBaseDelay
	if attempt > 1 {
		delay <<= uint(attempt - 1)
	}
	if delay > f.opts.RetryMaxDelay {
		delay = f.opts.RetryMaxDelay
	}
	return delay
}

func (f *Fetcher) attempt(ctx context.Context, t *task) fetchState {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.url, nil)
	if err != nil {
		t.lastErr = err
		return stateFailed
	}
	for name, values := range f.opts.Headers {
		req.Header[name] = values
	}

	resp, err := f.client.Do(req)
	if err != nil {
		t.lastErr = err
		return stateRetry
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusPartialContent:
		t.body = resp.Body
		t.size = resp.ContentLength
		return stateStreaming
	case http.StatusPreconditionFailed:
		_ = resp.Body.Close()
		t.lastErr = fmt.Errorf("unexpected status 412")
		return stateBackoff412
	default:
		_ = resp.Body.Close()
		t.lastErr = fmt.Errorf("unexpected status %d", resp.StatusCode)
		return stateRetry
	}
}

// streamBody copies the response body to the destination file in fixed
// size chunks. An interrupted stream discards the partial file and
// restarts from byte zero through the generic retry path.
func (f *Fetcher) streamBody(ctx context.Context, t *task) fetchState {
	defer func() {
		_ = t.body.Close()
		t.body = nil
	}()

	out, err := os.Create(t.dest)
	if err != nil {
		t.lastErr = bili.WrapError(bili.ErrKindFilesystem, "failed to create temp file", err)
		return stateFailed
	}

	src := io.Reader(t.body)
	var finish func(ok bool)
	if f.opts.ShowProgress {
		src, finish = f.progressReader(ctx, t.body, t.size, t.dest)
	}

	buf := bufPool.Get().(*[]byte)
	_, copyErr := io.CopyBuffer(out, src, *buf)
	bufPool.Put(buf)

	if finish != nil {
		finish(copyErr == nil)
	}
	if cerr := out.Close(); copyErr == nil && cerr != nil {
		copyErr = cerr
	}
	if copyErr != nil {
		_ = os.Remove(t.dest)
		t.lastErr = fmt.Errorf("stream interrupted: %w", copyErr)
		return stateRetry
	}
	return stateDone
}
