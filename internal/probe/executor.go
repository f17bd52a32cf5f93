// Package probe executes HTTP GET probes against targets and records their
// outcome on the target's counters.
//
// Each probe runs on its own goroutine, bounded only by its timeout. Probes
// are never retried and never cancelled from outside; shutdown waits for
// them via Wait.
package probe

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/http2"

	"github.com/randomizedcoder/go-http-probe-swarm/internal/stats"
)

const (
	// DefaultTimeout bounds a probe from dial to the last body byte.
	DefaultTimeout = 7 * time.Second

	// ReadBufferSize is the chunk size used when draining response bodies.
	ReadBufferSize = 16 * 1024

	// DefaultUserAgent mimics a desktop browser.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/98.0.4758.102 Safari/537.36"

	defaultIdleConnTimeout = 60 * time.Second
)

// Outcome is the terminal state of one probe.
type Outcome int

const (
	Success Outcome = iota
	TransportError
	Timeout
	ReadError

	numOutcomes = 4
)

// Outcomes lists every outcome in declaration order.
var Outcomes = [numOutcomes]Outcome{Success, TransportError, Timeout, ReadError}

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case TransportError:
		return "transport_error"
	case Timeout:
		return "timeout"
	case ReadError:
		return "read_error"
	default:
		return "unknown"
	}
}

// Options configures the executor's HTTP client.
type Options struct {
	// Timeout per probe (0 = DefaultTimeout)
	Timeout time.Duration

	// PoolSize caps idle connections across all hosts
	PoolSize int

	// PerHostConns caps idle connections per host (0 = PoolSize)
	PerHostConns int

	// Insecure skips TLS certificate verification
	Insecure bool

	// HTTP2 negotiates h2 over TLS when the server offers it
	HTTP2 bool

	// UserAgent overrides DefaultUserAgent when set
	UserAgent string

	// Headers are added to the browser header set, replacing same-named ones
	Headers http.Header
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Timeout:      DefaultTimeout,
		PoolSize:     1000,
		PerHostConns: 10,
		Insecure:     true,
		HTTP2:        true,
		UserAgent:    DefaultUserAgent,
	}
}

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, ReadBufferSize)
		return &b
	},
}

// Executor launches probes and tracks the ones still running.
type Executor struct {
	client  *http.Client
	headers http.Header
	timeout time.Duration
	totals  *stats.Totals
	logger  *slog.Logger

	wg       sync.WaitGroup
	active   atomic.Int64
	outcomes [numOutcomes]atomic.Int64
}

// NewExecutor creates an executor. totals receives the process-wide request
// count on every dispatch.
func NewExecutor(opts Options, totals *stats.Totals, logger *slog.Logger) (*Executor, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.PerHostConns <= 0 {
		opts.PerHostConns = opts.PoolSize
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   opts.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        opts.PoolSize,
		MaxIdleConnsPerHost: opts.PerHostConns,
		IdleConnTimeout:     defaultIdleConnTimeout,
		TLSHandshakeTimeout: opts.Timeout,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: opts.Insecure, //nolint:gosec // --insecure
		},
	}
	if opts.HTTP2 {
		if err := http2.ConfigureTransport(transport); err != nil {
			return nil, fmt.Errorf("configure http2 transport: %w", err)
		}
	}

	return &Executor{
		// no client timeout - each probe carries its own context deadline
		client: &http.Client{
			Transport: transport,
		},
		headers: browserHeaders(opts.UserAgent, opts.Headers),
		timeout: opts.Timeout,
		totals:  totals,
		logger:  logger,
	}, nil
}

func browserHeaders(userAgent string, extra http.Header) http.Header {
	h := make(http.Header)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.9")
	// An explicit Accept-Encoding turns off transparent decompression, so
	// counted bytes are wire bytes.
	h.Set("Accept-Encoding", "gzip, deflate, br")
	h.Set("Accept-Language", "ru-RU,ru;q=0.9")
	h.Set("Cache-Control", "max-age=0")
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("User-Agent", userAgent)
	for name, values := range extra {
		h[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
	}
	return h
}

// Dispatch starts one probe against t and returns immediately.
//
// The target's in-flight and request counters are incremented before
// Dispatch returns, so a following admission decision sees this probe.
func (e *Executor) Dispatch(t *stats.Target) {
	t.BeginProbe()
	if e.totals != nil {
		e.totals.Requests.Add(1)
	}
	e.active.Add(1)
	e.wg.Add(1)

	go func() {
		defer e.wg.Done()
		defer e.active.Add(-1)
		defer t.EndProbe()

		outcome := e.Probe(context.Background(), t)
		e.outcomes[outcome].Add(1)
	}()
}

// Probe performs one GET against t and records the result on t. It does not
// touch the in-flight counter; Dispatch owns that.
func (e *Executor) Probe(ctx context.Context, t *stats.Target) Outcome {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
	if err != nil {
		t.RecordTransportError(false)
		e.logger.Debug("probe_failed", "url", t.URL, "stage", "request", "error", err)
		return TransportError
	}
	req.Header = e.headers.Clone()

	resp, err := e.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			t.RecordTransportError(true)
			e.logger.Debug("probe_failed", "url", t.URL, "stage", "connect", "timeout", true, "error", err)
			return Timeout
		}
		t.RecordTransportError(false)
		e.logger.Debug("probe_failed", "url", t.URL, "stage", "connect", "error", err)
		return TransportError
	}
	defer func() { _ = resp.Body.Close() }()

	t.RecordLatency(time.Since(start))
	t.RecordStatus(resp.StatusCode)

	bufp := bufPool.Get().(*[]byte)
	defer bufPool.Put(bufp)
	buf := *bufp

	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			t.AddBytes(int64(n))
		}
		if err == io.EOF {
			return Success
		}
		if err != nil {
			t.RecordReadError()
			e.logger.Debug("probe_failed", "url", t.URL, "stage", "body", "status", resp.StatusCode, "error", err)
			return ReadError
		}
	}
}

// isTimeout reports whether err came from the probe deadline or a network
// level timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// InFlight returns the number of dispatched probes that have not finished.
func (e *Executor) InFlight() int64 {
	return e.active.Load()
}

// OutcomeCount returns how many finished probes ended with o.
func (e *Executor) OutcomeCount(o Outcome) int64 {
	if o < 0 || int(o) >= numOutcomes {
		return 0
	}
	return e.outcomes[o].Load()
}

// Wait blocks until every dispatched probe has finished or ctx is done.
// Probes still running when ctx expires are left to their own timeouts.
func (e *Executor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%d probes still in flight: %w", e.active.Load(), ctx.Err())
	}
}

// Close releases idle connections. Safe to call more than once.
func (e *Executor) Close() {
	if e == nil || e.client == nil {
		return
	}
	e.client.CloseIdleConnections()
}
