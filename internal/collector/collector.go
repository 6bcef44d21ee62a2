// Package collector implements the Collector's fetch and push background
// tasks, sharing a buffer and a global backoff deadline.
package collector

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ocx/qrng-diode/internal/apperr"
	"github.com/ocx/qrng-diode/internal/buffer"
	"github.com/ocx/qrng-diode/internal/circuitbreaker"
	"github.com/ocx/qrng-diode/internal/config"
	"github.com/ocx/qrng-diode/internal/fetcher"
	"github.com/ocx/qrng-diode/internal/metrics"
	"github.com/ocx/qrng-diode/internal/mixer"
	"github.com/ocx/qrng-diode/internal/protocol"
	"github.com/ocx/qrng-diode/internal/retry"
)

const maxPushBytes = 1 << 20 // 1 MiB

// Collector owns the fetch/push pipeline and the process-wide state
// process-wide: the sequence counter, the backoff deadline, and
// the current fetch-backoff duration.
type Collector struct {
	cfg        *config.CollectorConfig
	buf        *buffer.Buffer
	fetchers   []*fetcher.Fetcher
	fetchRetry retry.Policy
	signer     *protocol.Signer
	httpClient *http.Client
	breakers   *circuitbreaker.SourceBreakers
	metrics    *metrics.Metrics
	logger     *log.Logger

	sequence uint64

	mu               sync.Mutex
	backoffDeadline  time.Time
	fetchBackoff     time.Duration
	pushBackoffStage int // 0 = none yet, 1 = 1s applied, 2 = 5s applied
}

// New wires a Collector from validated configuration.
func New(cfg *config.CollectorConfig, m *metrics.Metrics) (*Collector, error) {
	key, err := cfg.HMACSecretKey()
	if err != nil {
		return nil, err
	}
	signer, err := protocol.NewSigner(key)
	if err != nil {
		return nil, err
	}

	fetchers := make([]*fetcher.Fetcher, len(cfg.ApplianceURLs))
	for i, u := range cfg.ApplianceURLs {
		fetchers[i] = fetcher.New(u, cfg.FetchChunkSize)
	}

	return &Collector{
		cfg:      cfg,
		buf:      buffer.New(cfg.BufferSize, buffer.WithOverflowPolicy(buffer.Replace)),
		fetchers: fetchers,
		fetchRetry: retry.Policy{
			MaxAttempts:    cfg.MaxRetries,
			InitialBackoff: cfg.InitialBackoff(),
			MaxBackoff:     cfg.MaxBackoff,
			Multiplier:     2,
			Jitter:         true,
		},
		signer:       signer,
		httpClient:   &http.Client{Timeout: cfg.PushTimeout},
		breakers:     circuitbreaker.NewSourceBreakers(3, 30*time.Second),
		metrics:      m,
		logger:       log.New(log.Writer(), "[COLLECTOR] ", log.LstdFlags),
		fetchBackoff: cfg.InitialBackoff(),
	}, nil
}

// Run starts the fetch and push loops and blocks until ctx is cancelled,
// at which point it performs exactly one final push before returning.
func (c *Collector) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		c.runFetchLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		c.runPushLoop(ctx)
	}()

	wg.Wait()
	c.finalPush(context.Background())
}

func (c *Collector) runFetchLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.FetchInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.fetchTick(ctx)
		}
	}
}

func (c *Collector) runPushLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PushInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.pushTick(ctx)
		}
	}
}

func (c *Collector) inBackoff(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.Before(c.backoffDeadline)
}

func (c *Collector) setBackoff(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backoffDeadline = time.Now().Add(d)
}

func (c *Collector) clearBackoff() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backoffDeadline = time.Time{}
	c.fetchBackoff = c.cfg.InitialBackoff()
}

// fetchTick implements the fetch task's per-cycle logic.
func (c *Collector) fetchTick(ctx context.Context) {
	now := time.Now()
	if c.inBackoff(now) {
		return
	}

	fill := c.buf.FillPercent()
	if fill >= 100 {
		return
	}
	if fill >= 98 {
		go c.pushTick(ctx)
	}

	chunks, anySuccess := c.fetchAllSources(ctx)
	if !anySuccess {
		c.recordFetchFailure()
		return
	}
	c.clearBackoff()

	var mixed []byte
	var err error
	if len(chunks) == 1 {
		mixed = chunks[0]
	} else {
		mixed, err = mixer.Mix(mixer.Strategy(c.cfg.MixingStrategy), chunks)
		if err != nil {
			c.logger.Printf("mix failed, skipping cycle: %v", err)
			return
		}
	}

	c.buf.Push(mixed)
	c.metrics.RecordFetch()
}

func (c *Collector) fetchAllSources(ctx context.Context) ([][]byte, bool) {
	type result struct {
		data []byte
		err  error
	}
	results := make([]result, len(c.fetchers))

	var wg sync.WaitGroup
	for i, f := range c.fetchers {
		wg.Add(1)
		go func(i int, f *fetcher.Fetcher, url string) {
			defer wg.Done()
			cb := c.breakers.Source(url)
			res, err := cb.ExecuteContext(ctx, func(ctx context.Context) (interface{}, error) {
				var data []byte
				retryErr := c.fetchRetry.Execute(ctx, func() error {
					d, fetchErr := f.Fetch(ctx)
					if fetchErr != nil {
						return fetchErr
					}
					data = d
					return nil
				})
				return data, retryErr
			})
			if err != nil {
				results[i] = result{err: err}
				return
			}
			results[i] = result{data: res.([]byte)}
		}(i, f, c.cfg.ApplianceURLs[i])
	}
	wg.Wait()

	chunks := make([][]byte, 0, len(results))
	anySuccess := false
	for _, r := range results {
		if r.err == nil {
			chunks = append(chunks, r.data)
			anySuccess = true
		}
	}
	return chunks, anySuccess
}

func (c *Collector) recordFetchFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics.RecordFailure()
	c.backoffDeadline = time.Now().Add(c.fetchBackoff)
	c.fetchBackoff *= 2
	if c.fetchBackoff > c.cfg.MaxBackoff {
		c.fetchBackoff = c.cfg.MaxBackoff
	}
}

// pushTick implements the push task's per-cycle logic.
func (c *Collector) pushTick(ctx context.Context) {
	now := time.Now()
	if c.inBackoff(now) {
		return
	}

	if c.buf.Len() == 0 || c.buf.FillPercent() < 1 {
		return
	}

	n := c.buf.Len()
	if n > maxPushBytes {
		n = maxPushBytes
	}
	data, ok := c.buf.Pop(n)
	if !ok {
		return
	}

	if err := c.send(ctx, data); err != nil {
		c.handlePushFailure(err, data)
		return
	}

	c.metrics.RecordPush()
	c.metrics.RecordBytesServed(len(data))
	c.mu.Lock()
	c.pushBackoffStage = 0
	c.mu.Unlock()
	c.clearBackoff()
}

func (c *Collector) send(ctx context.Context, data []byte) error {
	seq := atomic.AddUint64(&c.sequence, 1)

	p := protocol.New(seq, data)
	p.Checksum = protocol.CalculateChecksum(p.Data)
	if err := c.signer.SignPacket(p); err != nil {
		return err
	}

	wire, err := protocol.Marshal(p)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.PushURL, bytes.NewReader(wire))
	if err != nil {
		return apperr.Wrap(apperr.Internal, "build push request", err)
	}
	req.Header.Set("Content-Type", "application/msgpack")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.Network, "push request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == 507 {
		return apperr.New(apperr.Buffer, "gateway buffer full")
	}
	if resp.StatusCode != http.StatusOK {
		return apperr.New(apperr.Network, fmt.Sprintf("push rejected with status %d", resp.StatusCode))
	}
	return nil
}

func (c *Collector) handlePushFailure(err error, data []byte) {
	c.buf.Push(data)

	var ae *apperr.Error
	if errAs(err, &ae) && ae.Kind == apperr.Buffer {
		c.mu.Lock()
		c.pushBackoffStage++
		stage := c.pushBackoffStage
		c.mu.Unlock()

		delay := time.Second
		if stage > 1 {
			delay = 5 * time.Second
		}
		c.setBackoff(delay)
		c.logger.Printf("gateway full (507), backing off %s", delay)
		return
	}
	c.logger.Printf("push failed: %v", err)
}

func (c *Collector) finalPush(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.PushTimeout)
	defer cancel()
	c.pushTick(ctx)
}

func errAs(err error, target **apperr.Error) bool {
	e, ok := err.(*apperr.Error)
	if ok {
		*target = e
	}
	return ok
}
