package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/bilifav/bilifavdl/internal/bili"
)

// scriptedDoer replays a fixed sequence of responses.
type scriptedDoer struct {
	responses []*http.Response
	errs      []error
	calls     int
}

func (d *scriptedDoer) Do(req *http.Request) (*http.Response, error) {
	i := d.calls
	d.calls++
	if i >= len(d.responses) {
		i = len(d.responses) - 1
	}
	if d.errs != nil && d.errs[i] != nil {
		return nil, d.errs[i]
	}
	resp := d.responses[i]
	if resp.Body == nil {
		resp.Body = io.NopCloser(strings.NewReader(""))
	}
	return resp, nil
}

func resp(status int, body string) *http.Response {
	return &http.Response{
		StatusCode:    status,
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}

// brokenReader fails partway through the body.
type brokenReader struct {
	data io.Reader
	read bool
}

func (r *brokenReader) Read(p []byte) (int, error) {
	if !r.read {
		r.read = true
		return r.data.Read(p)
	}
	return 0, errors.New("connection reset")
}

func newTestFetcher(d Doer, opts Options) (*Fetcher, *[]time.Duration) {
	f := New(d, opts, log.Default())
	var slept []time.Duration
	f.sleep = func(_ context.Context, dur time.Duration) error {
		slept = append(slept, dur)
		return nil
	}
	return f, &slept
}

func TestFetchSuccess(t *testing.T) {
	doer := &scriptedDoer{responses: []*http.Response{resp(200, "stream-bytes")}}
	f, _ := newTestFetcher(doer, Options{MaxRetries: 3})

	dest := filepath.Join(t.TempDir(), "video.m4s")
	if err := f.Fetch(context.Background(), "https://cdn.example.com/v", dest); err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("failed to read destination: %v", err)
	}
	if string(data) != "stream-bytes" {
		t.Errorf("destination content = %q", data)
	}
}

func TestFetchSucceedsAfter412Backoffs(t *testing.T) {
	doer := &scriptedDoer{responses: []*http.Response{
		resp(412, ""),
		resp(412, ""),
		resp(200, "payload"),
	}}
	delay := 120 * time.Second
	f, slept := newTestFetcher(doer, Options{MaxRetries: 3, Retry412Max: 3, Retry412Delay: delay})

	dest := filepath.Join(t.TempDir(), "audio.m4s")
	if err := f.Fetch(context.Background(), "https://cdn.example.com/a", dest); err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if doer.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", doer.calls)
	}
	if len(*slept) != 2 {
		t.Fatalf("expected exactly 2 backoff waits, got %d", len(*slept))
	}
	for _, d := range *slept {
		if d != delay {
			t.Errorf("backoff wait = %s, want %s", d, delay)
		}
	}
}

func TestFetchFailsAfter412BudgetWithoutGenericRetries(t *testing.T) {
	doer := &scriptedDoer{responses: []*http.Response{
		resp(412, ""), resp(412, ""), resp(412, ""), resp(412, ""),
	}}
	// Zero generic budget: any failure routed through the generic
	// path would surface as a network error, not rate_limited.
	f, slept := newTestFetcher(doer, Options{MaxRetries: 0, Retry412Max: 3, Retry412Delay: time.Second})

	err := f.Fetch(context.Background(), "https://cdn.example.com/a", filepath.Join(t.TempDir(), "a.m4s"))
	if !bili.IsKind(err, bili.ErrKindRateLimited) {
		t.Fatalf("expected rate_limited error, got %v", err)
	}
	if doer.calls != 4 {
		t.Errorf("expected 4 attempts, got %d", doer.calls)
	}
	if len(*slept) != 3 {
		t.Errorf("expected 3 backoff waits, got %d", len(*slept))
	}
}

func TestFetchRetriesOnHTTPError(t *testing.T) {
	doer := &scriptedDoer{responses: []*http.Response{
		resp(503, ""),
		resp(200, "ok"),
	}}
	f, slept := newTestFetcher(doer, Options{MaxRetries: 3, RetryBaseDelay: 2 * time.Second})

	dest := filepath.Join(t.TempDir(), "v.m4s")
	if err := f.Fetch(context.Background(), "https://cdn.example.com/v", dest); err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(*slept) != 1 || (*slept)[0] != 2*time.Second {
		t.Errorf("expected one 2s retry delay, got %v", *slept)
	}
}

func TestFetchExhaustsGenericBudget(t *testing.T) {
	doer := &scriptedDoer{responses: []*http.Response{resp(500, "")}}
	f, _ := newTestFetcher(doer, Options{MaxRetries: 2})

	err := f.Fetch(context.Background(), "https://cdn.example.com/v", filepath.Join(t.TempDir(), "v.m4s"))
	if !bili.IsKind(err, bili.ErrKindNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	// Initial attempt plus two retries.
	if doer.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", doer.calls)
	}
}

func TestFetchRetriesInterruptedStream(t *testing.T) {
	broken := &http.Response{
		StatusCode:    200,
		Body:          io.NopCloser(&brokenReader{data: strings.NewReader("partial")}),
		ContentLength: 100,
	}
	doer := &scriptedDoer{responses: []*http.Response{broken, resp(200, "complete")}}
	f, _ := newTestFetcher(doer, Options{MaxRetries: 3})

	dest := filepath.Join(t.TempDir(), "v.m4s")
	if err := f.Fetch(context.Background(), "https://cdn.example.com/v", dest); err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("failed to read destination: %v", err)
	}
	if string(data) != "complete" {
		t.Errorf("destination content = %q, want full restart from byte 0", data)
	}
}

func TestStreamClientDoesNotBoundTransferTime(t *testing.T) {
	if NewHTTPClient().Timeout != 0 {
		t.Fatal("stream client must not carry a whole-request timeout")
	}

	// A healthy stream delivered in slow chunks must complete even when
	// the total transfer outlasts any single read gap bound.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for i := 0; i < 5; i++ {
			if _, err := io.WriteString(w, "chunk"); err != nil {
				return
			}
			flusher.Flush()
			time.Sleep(50 * time.Millisecond)
		}
	}))
	defer server.Close()

	f := New(NewHTTPClient(), Options{}, nil)
	dest := filepath.Join(t.TempDir(), "slow.m4s")
	if err := f.Fetch(context.Background(), server.URL, dest); err != nil {
		t.Fatalf("slow stream should complete: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("failed to read destination: %v", err)
	}
	if string(data) != strings.Repeat("chunk", 5) {
		t.Errorf("destination content = %q", data)
	}
}

func TestFetchRetryDelayGrowsAndCaps(t *testing.T) {
	f := New(nil, Options{RetryBaseDelay: 2 * time.Second, RetryMaxDelay: 5 * time.Second}, nil)

	if d := f.retryDelay(1); d != 2*time.Second {
		t.Errorf("first delay = %s, want 2s", d)
	}
	if d := f.retryDelay(2); d != 4*time.Second {
		t.Errorf("second delay = %s, want 4s", d)
	}
	if d := f.retryDelay(3); d != 5*time.Second {
		t.Errorf("third delay = %s, want cap of 5s", d)
	}
}

func TestFetchPacesTaskStarts(t *testing.T) {
	doer := &scriptedDoer{responses: []*http.Response{resp(200, "one"), resp(200, "two")}}
	f, slept := newTestFetcher(doer, Options{MaxRetries: 1, Interval: time.Hour})

	dir := t.TempDir()
	if err := f.Fetch(context.Background(), "https://cdn.example.com/1", filepath.Join(dir, "1.m4s")); err != nil {
		t.Fatalf("first Fetch returned error: %v", err)
	}
	if len(*slept) != 0 {
		t.Fatalf("first task should start immediately, slept %v", *slept)
	}
	if err := f.Fetch(context.Background(), "https://cdn.example.com/2", filepath.Join(dir, "2.m4s")); err != nil {
		t.Fatalf("second Fetch returned error: %v", err)
	}
	if len(*slept) != 1 {
		t.Fatalf("second task should wait for the interval, slept %v", *slept)
	}
	if (*slept)[0] <= 0 || (*slept)[0] > time.Hour {
		t.Errorf("pacing wait = %s", (*slept)[0])
	}
}
