package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"tempiemail/backend/internal/monitoring"
	"tempiemail/backend/internal/security"
	"tempiemail/backend/internal/storage/memory"
)

// SweepResult 一次清理的结果
type SweepResult struct {
	Addresses    int `json:"addresses"`
	Messages     int `json:"messages"`
	RateCounters int `json:"rateCounters"`
}

// Sweeper 周期性回收过期地址、过期邮件和过期的频率计数。
type Sweeper struct {
	registry *memory.Registry
	store    *memory.Store
	filter   *security.Filter
	interval time.Duration
	metrics  *monitoring.Metrics
	log      *zap.Logger

	mu      sync.Mutex
	lastRun time.Time
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSweeper 创建清理任务，filter 可以为 nil。
func NewSweeper(registry *memory.Registry, store *memory.Store, filter *security.Filter, interval time.Duration, log *zap.Logger) *Sweeper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{
		registry: registry,
		store:    store,
		filter:   filter,
		interval: interval,
		log:      log,
	}
}

// SetMetrics 设置监控指标
func (s *Sweeper) SetMetrics(m *monitoring.Metrics) {
	s.metrics = m
}

// SweepNow 以 now 为基准执行一次完整清理。
func (s *Sweeper) SweepNow(now time.Time) SweepResult {
	result := SweepResult{
		Addresses: s.registry.Sweep(now),
		Messages:  s.store.Sweep(now),
	}
	if s.filter != nil {
		result.RateCounters = s.filter.PruneRateCounters(now)
	}

	s.mu.Lock()
	s.lastRun = now
	s.mu.Unlock()

	stats := s.registry.Stats()
	s.metrics.RecordSweep(result.Addresses, result.Messages)
	s.metrics.UpdateAddressesActive(stats.Active)
	s.metrics.UpdateMessagesStored(s.store.TotalMessages())

	s.log.Info("sweep completed",
		zap.Int("expired_addresses", result.Addresses),
		zap.Int("expired_messages", result.Messages),
		zap.Int("pruned_rate_counters", result.RateCounters),
		zap.Int("active_addresses", stats.Active),
	)
	return result
}

// LastRun 最近一次清理的时间，从未运行时为零值
func (s *Sweeper) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

// Interval 清理周期
func (s *Sweeper) Interval() time.Duration {
	return s.interval
}

// Start 启动后台清理，重复调用无副作用。
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)

	s.log.Info("sweeper started", zap.Duration("interval", s.interval))
}

// Stop 停止后台清理并等待当前一轮结束。
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.log.Info("sweeper stopped")
}

func (s *Sweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.SweepNow(now)
		}
	}
}
