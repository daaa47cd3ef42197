package health

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"
)

// goroutineThreshold 协程数量的存活上限
const goroutineThreshold = 10000

// HealthChecker 健康检查器
type HealthChecker struct {
	health healthcheck.Handler
	logger *zap.Logger

	mu     sync.RWMutex
	checks map[string]healthcheck.Check
}

// NewHealthChecker 创建健康检查器，默认带有协程数量的存活检查
func NewHealthChecker(logger *zap.Logger) *HealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	hc := &HealthChecker{
		health: healthcheck.NewHandler(),
		logger: logger,
		checks: make(map[string]healthcheck.Check),
	}
	hc.AddLivenessCheck("goroutines", healthcheck.GoroutineCountCheck(goroutineThreshold))
	return hc
}

// AddLivenessCheck 添加存活检查
func (hc *HealthChecker) AddLivenessCheck(name string, check healthcheck.Check) {
	hc.mu.Lock()
	hc.checks[name] = check
	hc.mu.Unlock()
	hc.health.AddLivenessCheck(name, check)
}

// AddReadinessCheck 添加就绪检查
func (hc *HealthChecker) AddReadinessCheck(name string, check healthcheck.Check) {
	hc.mu.Lock()
	hc.checks[name] = check
	hc.mu.Unlock()
	hc.health.AddReadinessCheck(name, check)
}

// LiveHandler 存活检查处理器
func (hc *HealthChecker) LiveHandler() http.Handler {
	return http.HandlerFunc(hc.health.LiveEndpoint)
}

// ReadyHandler 就绪检查处理器，同时包含存活检查
func (hc *HealthChecker) ReadyHandler() http.Handler {
	return http.HandlerFunc(hc.health.ReadyEndpoint)
}

// CheckHealth 执行全部检查，返回每项的结果和总体是否健康
func (hc *HealthChecker) CheckHealth() (map[string]string, bool) {
	hc.mu.RLock()
	names := make([]string, 0, len(hc.checks))
	for name := range hc.checks {
		names = append(names, name)
	}
	hc.mu.RUnlock()
	sort.Strings(names)

	healthy := true
	results := make(map[string]string, len(names)+1)
	for _, name := range names {
		hc.mu.RLock()
		check := hc.checks[name]
		hc.mu.RUnlock()

		if err := check(); err != nil {
			healthy = false
			results[name] = fmt.Sprintf("ERROR: %v", err)
			hc.logger.Warn("health check failed", zap.String("check", name), zap.Error(err))
			continue
		}
		results[name] = "OK"
	}
	results["timestamp"] = time.Now().Format(time.RFC3339)
	return results, healthy
}

// ListenerCheck 检查 TCP 监听地址是否可以连通
func ListenerCheck(addr string, timeout time.Duration) healthcheck.Check {
	return healthcheck.TCPDialCheck(addr, timeout)
}

// FreshnessCheck 在 last 返回的时间早于 maxAge 之前时失败。
// 尚未运行过（零值）视为正常。
func FreshnessCheck(last func() time.Time, maxAge time.Duration) healthcheck.Check {
	return func() error {
		at := last()
		if at.IsZero() {
			return nil
		}
		if age := time.Since(at); age > maxAge {
			return fmt.Errorf("last run %s ago exceeds %s", age.Truncate(time.Second), maxAge)
		}
		return nil
	}
}
