package security

import (
	"strings"
	"time"
)

// rateCounter 记录一个地址在当前窗口内收到的邮件数
type rateCounter struct {
	count   int
	resetAt time.Time
}

// allow 检查并更新地址的频率计数。窗口只在被访问时惰性重置，
// 计数与地址是否存在无关，防止通过无效地址探测。
func (f *Filter) allow(address string) bool {
	key := strings.ToLower(strings.TrimSpace(address))
	now := f.now()

	f.rateMu.Lock()
	defer f.rateMu.Unlock()

	c, ok := f.counters[key]
	if !ok {
		c = &rateCounter{}
		f.counters[key] = c
	}
	if now.After(c.resetAt) {
		c.count = 0
		c.resetAt = now.Add(f.cfg.Window)
	}
	if c.count >= f.cfg.MaxPerHour {
		return false
	}
	c.count++
	return true
}

// PruneRateCounters 删除窗口结束超过一个窗口长度的计数，返回删除数量
func (f *Filter) PruneRateCounters(now time.Time) int {
	cutoff := now.Add(-f.cfg.Window)

	f.rateMu.Lock()
	defer f.rateMu.Unlock()

	removed := 0
	for key, c := range f.counters {
		if c.resetAt.Before(cutoff) {
			delete(f.counters, key)
			removed++
		}
	}
	return removed
}
