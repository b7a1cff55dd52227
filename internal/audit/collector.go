package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// BatchInserter is the interface used by Collector to persist records.
// It exists to allow testing without a real database.
type BatchInserter interface {
	BatchInsert(ctx context.Context, records []Record) error
}

// CollectorMetrics is an optional interface for recording collector metrics.
type CollectorMetrics interface {
	SetAuditBufferSize(n int)
	ObserveAuditFlush(status string, seconds float64, records int)
}

// Collector buffers records in memory and periodically flushes them to the
// store in batches. It is safe for concurrent use and implements Sink.
type Collector struct {
	store         BatchInserter
	buffer        []Record
	mu            sync.Mutex
	batchSize     int
	flushInterval time.Duration
	done          chan struct{}
	stopOnce      sync.Once
	stopped       bool
	flushes       sync.WaitGroup
	metrics       CollectorMetrics
	logger        *slog.Logger
}

// NewCollector creates a Collector that flushes to store when the buffer
// reaches batchSize or every flushInterval, whichever comes first.
func NewCollector(store BatchInserter, batchSize int, flushInterval time.Duration) *Collector {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &Collector{
		store:         store,
		buffer:        make([]Record, 0, batchSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		done:          make(chan struct{}),
		logger:        slog.Default(),
	}
}

// SetMetrics sets the optional metrics recorder.
func (c *Collector) SetMetrics(m CollectorMetrics) {
	c.metrics = m
}

// Start flushes buffered records on a timer. It blocks until Stop is called
// or the context is cancelled.
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.flush()
		case <-ctx.Done():
			c.flush()
			return
		case <-c.done:
			return
		}
	}
}

// Write adds a record to the buffer. A full buffer is flushed in the
// background so the caller never waits on the database. After Stop, writes
// are flushed inline.
func (c *Collector) Write(_ context.Context, r Record) error {
	c.mu.Lock()
	c.buffer = append(c.buffer, r)
	n := len(c.buffer)
	stopped := c.stopped
	background := n >= c.batchSize && !stopped
	if background {
		c.flushes.Add(1)
	}
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.SetAuditBufferSize(n)
	}
	switch {
	case background:
		go func() {
			defer c.flushes.Done()
			c.flush()
		}()
	case stopped:
		c.flush()
	}
	return nil
}

// flush drains all buffered records and writes them to the store. It logs
// errors rather than returning them so callers are not blocked.
func (c *Collector) flush() {
	c.mu.Lock()
	if len(c.buffer) == 0 {
		c.mu.Unlock()
		return
	}
	batch := c.buffer
	c.buffer = make([]Record, 0, c.batchSize)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.SetAuditBufferSize(0)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	err := c.store.BatchInsert(ctx, batch)
	status := "success"
	if err != nil {
		status = "error"
		c.logger.Error("failed to flush audit records", "count", len(batch), "error", err)
	}
	if c.metrics != nil {
		c.metrics.ObserveAuditFlush(status, time.Since(start).Seconds(), len(batch))
	}
}

// Stop ends the background loop and returns once every buffered record,
// including batches already being flushed, has reached the store.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()

	c.flush()
	c.flushes.Wait()
}
