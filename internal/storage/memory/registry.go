package memory

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"tempiemail/backend/internal/domain"
)

var (
	ErrAddressNotFound = fmt.Errorf("address %w", domain.ErrNotFound)
	ErrMessageNotFound = fmt.Errorf("message %w", domain.ErrNotFound)
	ErrAddressExists   = errors.New("address already exists")
)

// Registry 保存临时地址的登记记录。
//
// 记录字段只在持有对应地址锁时读写，mu 只保护 records 映射本身。
type Registry struct {
	mu      sync.RWMutex
	records map[string]*domain.AddressRecord
	locks   *stripedLocks
	store   *Store
	ttl     time.Duration
	now     func() time.Time
}

// RegistryStats 地址统计
type RegistryStats struct {
	Total  int `json:"totalAddresses"`
	Active int `json:"activeAddresses"`
}

// NewRegistry 创建地址登记表，ttl 为新地址的存活时间。
func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		records: make(map[string]*domain.AddressRecord),
		locks:   &stripedLocks{},
		ttl:     ttl,
		now:     time.Now,
	}
}

// SetClock 替换时钟，只应在启动前或测试中调用。
func (r *Registry) SetClock(now func() time.Time) {
	r.now = now
}

// TTL 返回新地址的存活时间。
func (r *Registry) TTL() time.Duration {
	return r.ttl
}

func (r *Registry) clock() time.Time {
	return r.now()
}

// Create 登记一个新地址。地址已存在且仍有效时返回 ErrAddressExists，
// 已过期的旧记录会被回收后重新登记。
func (r *Registry) Create(address string) (*domain.AddressRecord, error) {
	lock := r.locks.forKey(address)
	lock.Lock()
	defer lock.Unlock()

	now := r.clock()
	if r.liveLocked(address, now) != nil {
		return nil, ErrAddressExists
	}

	rec := &domain.AddressRecord{
		ID:           uuid.NewString(),
		Address:      address,
		CreatedAt:    now,
		ExpiresAt:    now.Add(r.ttl),
		LastActivity: now,
	}

	r.mu.Lock()
	r.records[address] = rec
	r.mu.Unlock()

	copied := *rec
	return &copied, nil
}

// IsLive 判断地址是否存在且未过期，观察到过期记录时立即回收。
func (r *Registry) IsLive(address string) bool {
	lock := r.locks.forKey(address)
	lock.RLock()
	rec := r.lookup(address)
	now := r.clock()
	live := rec != nil && !rec.ExpiredAt(now)
	lock.RUnlock()

	if rec != nil && !live {
		lock.Lock()
		r.liveLocked(address, r.clock())
		lock.Unlock()
	}
	return live
}

// Get 返回有效地址的记录副本。
func (r *Registry) Get(address string) (*domain.AddressRecord, error) {
	lock := r.locks.forKey(address)
	lock.RLock()
	rec := r.lookup(address)
	if rec != nil && !rec.ExpiredAt(r.clock()) {
		copied := *rec
		lock.RUnlock()
		return &copied, nil
	}
	lock.RUnlock()

	if rec != nil {
		r.IsLive(address)
	}
	return nil, ErrAddressNotFound
}

// Extend 在当前过期时间基础上累加 d。
func (r *Registry) Extend(address string, d time.Duration) (time.Time, error) {
	lock := r.locks.forKey(address)
	lock.Lock()
	defer lock.Unlock()

	rec := r.liveLocked(address, r.clock())
	if rec == nil {
		return time.Time{}, ErrAddressNotFound
	}
	rec.ExpiresAt = rec.ExpiresAt.Add(d)
	return rec.ExpiresAt, nil
}

// Touch 更新地址的最近活动时间，并把邮件数同步为邮件列表长度。
func (r *Registry) Touch(address string) error {
	lock := r.locks.forKey(address)
	lock.Lock()
	defer lock.Unlock()

	now := r.clock()
	rec := r.liveLocked(address, now)
	if rec == nil {
		return ErrAddressNotFound
	}

	count := rec.EmailCount + 1
	if r.store != nil {
		count = r.store.lenLocked(address)
	}
	touchLocked(rec, now, count)
	return nil
}

// Delete 删除地址并级联删除其所有邮件。
func (r *Registry) Delete(address string) error {
	lock := r.locks.forKey(address)
	lock.Lock()
	defer lock.Unlock()

	rec := r.lookup(address)
	if rec == nil {
		return ErrAddressNotFound
	}
	expired := rec.ExpiredAt(r.clock())
	r.evictLocked(address)
	if expired {
		return ErrAddressNotFound
	}
	return nil
}

// Sweep 回收所有在 now 之前过期的地址，返回回收数量。
func (r *Registry) Sweep(now time.Time) int {
	removed := 0
	for _, address := range r.addresses() {
		lock := r.locks.forKey(address)
		lock.Lock()
		if rec := r.lookup(address); rec != nil && rec.ExpiredAt(now) {
			r.evictLocked(address)
			removed++
		}
		lock.Unlock()
	}
	return removed
}

// Stats 返回地址总数和有效地址数。
func (r *Registry) Stats() RegistryStats {
	now := r.clock()
	stats := RegistryStats{}
	r.eachRecord(func(rec *domain.AddressRecord) {
		stats.Total++
		if !rec.ExpiredAt(now) {
			stats.Active++
		}
	})
	return stats
}

// RecentActivity 返回最近有活动的有效地址，按活动时间倒序。
func (r *Registry) RecentActivity(limit int) []domain.AddressActivity {
	now := r.clock()
	out := make([]domain.AddressActivity, 0)
	r.eachRecord(func(rec *domain.AddressRecord) {
		if rec.ExpiredAt(now) {
			return
		}
		out = append(out, domain.AddressActivity{
			Address:      rec.Address,
			LastActivity: rec.LastActivity,
			EmailCount:   rec.EmailCount,
		})
	})

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// eachRecord 在持有地址读锁的情况下逐个访问记录。
func (r *Registry) eachRecord(fn func(rec *domain.AddressRecord)) {
	for _, address := range r.addresses() {
		lock := r.locks.forKey(address)
		lock.RLock()
		if rec := r.lookup(address); rec != nil {
			fn(rec)
		}
		lock.RUnlock()
	}
}

func (r *Registry) addresses() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.records))
	for address := range r.records {
		keys = append(keys, address)
	}
	return keys
}

func (r *Registry) lookup(address string) *domain.AddressRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.records[address]
}

// liveLocked 返回有效记录，过期记录会被回收。调用方必须持有地址写锁。
func (r *Registry) liveLocked(address string, now time.Time) *domain.AddressRecord {
	rec := r.lookup(address)
	if rec == nil {
		return nil
	}
	if rec.ExpiredAt(now) {
		r.evictLocked(address)
		return nil
	}
	return rec
}

// peekLocked 只读地判断记录是否有效。调用方至少持有地址读锁。
func (r *Registry) peekLocked(address string, now time.Time) (*domain.AddressRecord, bool) {
	rec := r.lookup(address)
	if rec == nil || rec.ExpiredAt(now) {
		return rec, false
	}
	return rec, true
}

// evictLocked 删除记录与邮件列表。调用方必须持有地址写锁。
func (r *Registry) evictLocked(address string) {
	r.mu.Lock()
	delete(r.records, address)
	r.mu.Unlock()

	if r.store != nil {
		r.store.dropLocked(address)
	}
}

func touchLocked(rec *domain.AddressRecord, now time.Time, count int) {
	rec.LastActivity = now
	rec.EmailCount = count
}
