package features

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"candor/internal/model"
	rabbit "candor/pkg/rabbit/pkg"
)

const RoutingKeyVerdictFinalized = "verdict.finalized"

// VerdictEvent is published once per persisted verdict
type VerdictEvent struct {
	SessionID    string                `json:"session_id"`
	RecordID     string                `json:"record_id,omitempty"`
	Name         string                `json:"name"`
	Email        string                `json:"email"`
	Position     string                `json:"position"`
	OverallScore int                   `json:"overall_score"`
	Verdict      model.Verdict         `json:"verdict"`
	Quality      model.SpeakingQuality `json:"speaking_quality"`
	DecidedAt    time.Time             `json:"decided_at"`
	EnqueuedAt   time.Time             `json:"-"`
}

// Publisher hands verdict events to a bounded pool of workers that publish them to the queue
type Publisher struct {
	jobQueue        chan VerdictEvent
	rabbit          rabbit.Rabbit
	logger          *zap.Logger
	workerCount     int
	maxTaskWaitTime time.Duration
	publishTimeout  time.Duration
	wg              sync.WaitGroup
	stopOnce        sync.Once
	// Metrics
	totalJobsEnqueued  int64
	totalJobsProcessed int64
	totalJobsFailed    int64
	totalJobsDropped   int64
	activeWorkers      int64
}

type PublisherConfig struct {
	Workers         int
	QueueSize       int
	MaxTaskWaitTime time.Duration
	PublishTimeout  time.Duration
}

func NewPublisher(rb rabbit.Rabbit, cfg PublisherConfig, logger *zap.Logger) *Publisher {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 16
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	return &Publisher{
		jobQueue:        make(chan VerdictEvent, cfg.QueueSize),
		rabbit:          rb,
		logger:          logger,
		workerCount:     cfg.Workers,
		maxTaskWaitTime: cfg.MaxTaskWaitTime,
		publishTimeout:  cfg.PublishTimeout,
	}
}

func (p *Publisher) Start() {
	p.logger.Info("Starting verdict publisher",
		zap.Int("workerCount", p.workerCount),
		zap.Int("queueCapacity", cap(p.jobQueue)))

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop closes the queue and waits for the workers to drain it
func (p *Publisher) Stop() {
	p.stopOnce.Do(func() {
		close(p.jobQueue)
		p.wg.Wait()
	})
}

func (p *Publisher) worker(workerID int) {
	defer p.wg.Done()
	atomic.AddInt64(&p.activeWorkers, 1)
	defer atomic.AddInt64(&p.activeWorkers, -1)

	jobsProcessed := 0
	for ev := range p.jobQueue {
		p.publish(workerID, ev)
		atomic.AddInt64(&p.totalJobsProcessed, 1)
		jobsProcessed++
	}
	p.logger.Info("Worker stopping - job queue closed",
		zap.Int("workerID", workerID),
		zap.Int("jobsProcessed", jobsProcessed))
}

func (p *Publisher) publish(workerID int, ev VerdictEvent) {
	body, err := json.Marshal(ev)
	if err != nil {
		atomic.AddInt64(&p.totalJobsFailed, 1)
		p.logger.Error("Failed to marshal verdict event", zap.String("sessionId", ev.SessionID), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.publishTimeout)
	defer cancel()
	if err := p.rabbit.Publish(ctx, RoutingKeyVerdictFinalized, body); err != nil {
		atomic.AddInt64(&p.totalJobsFailed, 1)
		p.logger.Error("Failed to publish verdict event",
			zap.Int("workerID", workerID),
			zap.String("sessionId", ev.SessionID),
			zap.Error(err))
		return
	}
	p.logger.Debug("Worker published verdict event",
		zap.Int("workerID", workerID),
		zap.String("sessionId", ev.SessionID),
		zap.Duration("totalTime", time.Since(ev.EnqueuedAt)))
}

// Enqueue waits up to the configured wait time for queue space and drops the event after that
func (p *Publisher) Enqueue(ev VerdictEvent) (ok bool) {
	defer func() {
		// send on a queue closed by Stop
		if recover() != nil {
			atomic.AddInt64(&p.totalJobsDropped, 1)
			ok = false
		}
	}()
	ev.EnqueuedAt = time.Now()

	select {
	case p.jobQueue <- ev:
		atomic.AddInt64(&p.totalJobsEnqueued, 1)
		return true
	default:
	}

	if p.maxTaskWaitTime > 0 {
		t := time.NewTimer(p.maxTaskWaitTime)
		defer t.Stop()
		select {
		case p.jobQueue <- ev:
			atomic.AddInt64(&p.totalJobsEnqueued, 1)
			return true
		case <-t.C:
		}
	}

	atomic.AddInt64(&p.totalJobsDropped, 1)
	p.logger.Warn("Verdict queue is full, dropping event",
		zap.String("sessionId", ev.SessionID),
		zap.Int("queueSize", len(p.jobQueue)),
		zap.Int("queueCapacity", cap(p.jobQueue)),
		zap.Int64("activeWorkers", atomic.LoadInt64(&p.activeWorkers)))
	return false
}

// GetMetrics returns publisher counters
func (p *Publisher) GetMetrics() map[string]any {
	return map[string]any{
		"total_jobs_enqueued":  atomic.LoadInt64(&p.totalJobsEnqueued),
		"total_jobs_processed": atomic.LoadInt64(&p.totalJobsProcessed),
		"total_jobs_failed":    atomic.LoadInt64(&p.totalJobsFailed),
		"total_jobs_dropped":   atomic.LoadInt64(&p.totalJobsDropped),
		"active_workers":       atomic.LoadInt64(&p.activeWorkers),
		"queue_size":           len(p.jobQueue),
		"queue_capacity":       cap(p.jobQueue),
	}
}
