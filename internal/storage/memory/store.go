package memory

import (
	"strings"
	"sync"
	"time"

	"tempiemail/backend/internal/domain"
)

// Store 按地址保存邮件列表，列表按到达时间倒序排列。
//
// 每个地址的邮件列表与 Registry 中的记录共用同一把地址锁。
type Store struct {
	mu        sync.RWMutex
	lists     map[string][]*domain.Message
	registry  *Registry
	locks     *stripedLocks
	ttl       time.Duration
	retention int
}

// NewStore 创建邮件存储并挂接到地址登记表，删除地址时会级联清理邮件。
func NewStore(registry *Registry, ttl time.Duration, retention int) *Store {
	if retention <= 0 {
		retention = 100
	}
	s := &Store{
		lists:     make(map[string][]*domain.Message),
		registry:  registry,
		locks:     registry.locks,
		ttl:       ttl,
		retention: retention,
	}
	registry.store = s
	return s
}

// TTL 返回邮件存活时间。
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Retention 返回每个地址保留的最大邮件数。
func (s *Store) Retention() int {
	return s.retention
}

// Append 把邮件插入地址列表头部，超出保留上限时丢弃最旧的邮件。
func (s *Store) Append(address string, message *domain.Message) error {
	lock := s.locks.forKey(address)
	lock.Lock()
	defer lock.Unlock()

	now := s.registry.clock()
	rec := s.registry.liveLocked(address, now)
	if rec == nil {
		return ErrAddressNotFound
	}

	stored := message.Clone()
	stored.To = address

	s.mu.Lock()
	list := s.lists[address]
	next := make([]*domain.Message, 0, min(len(list)+1, s.retention))
	next = append(next, stored)
	for _, m := range list {
		if len(next) == s.retention {
			break
		}
		next = append(next, m)
	}
	s.lists[address] = next
	s.mu.Unlock()

	touchLocked(rec, now, len(next))
	return nil
}

// List 返回有效地址下所有未过期的邮件，最新的在前。
func (s *Store) List(address string) ([]*domain.Message, error) {
	var out []*domain.Message
	err := s.read(address, func(now time.Time, list []*domain.Message) {
		out = make([]*domain.Message, 0, len(list))
		for _, m := range list {
			if !m.ExpiredAt(now, s.ttl) {
				out = append(out, m.Clone())
			}
		}
	})
	return out, err
}

// Get 返回单封未过期的邮件。
func (s *Store) Get(address, id string) (*domain.Message, error) {
	var found *domain.Message
	err := s.read(address, func(now time.Time, list []*domain.Message) {
		if m := findLive(list, id, now, s.ttl); m != nil {
			found = m.Clone()
		}
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrMessageNotFound
	}
	return found, nil
}

// Search 在主题、发件人和正文中做不区分大小写的子串匹配。
func (s *Store) Search(address, query string) ([]*domain.Message, error) {
	messages, err := s.List(address)
	if err != nil {
		return nil, err
	}

	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return messages, nil
	}

	out := make([]*domain.Message, 0)
	for _, m := range messages {
		if strings.Contains(strings.ToLower(m.Subject), query) ||
			strings.Contains(strings.ToLower(m.From), query) ||
			strings.Contains(strings.ToLower(m.Text), query) ||
			strings.Contains(strings.ToLower(m.Body), query) {
			out = append(out, m)
		}
	}
	return out, nil
}

// Open 读取邮件并标记为已读，返回标记后的副本。
func (s *Store) Open(address, id string) (*domain.Message, error) {
	var opened *domain.Message
	err := s.write(address, func(now time.Time, _ *domain.AddressRecord) error {
		m := findLive(s.listLocked(address), id, now, s.ttl)
		if m == nil {
			return ErrMessageNotFound
		}
		m.IsRead = true
		opened = m.Clone()
		return nil
	})
	return opened, err
}

// MarkRead 把邮件标记为已读。重复标记或邮件不存在时不做任何事。
func (s *Store) MarkRead(address, id string) error {
	return s.write(address, func(now time.Time, _ *domain.AddressRecord) error {
		if m := findLive(s.listLocked(address), id, now, s.ttl); m != nil {
			m.IsRead = true
		}
		return nil
	})
}

// Delete 删除单封邮件并同步地址的邮件数。
func (s *Store) Delete(address, id string) error {
	return s.write(address, func(now time.Time, rec *domain.AddressRecord) error {
		s.mu.Lock()
		defer s.mu.Unlock()

		list := s.lists[address]
		for i, m := range list {
			if m.ID != id {
				continue
			}
			if m.ExpiredAt(now, s.ttl) {
				return ErrMessageNotFound
			}
			next := make([]*domain.Message, 0, len(list)-1)
			next = append(next, list[:i]...)
			next = append(next, list[i+1:]...)
			s.lists[address] = next
			rec.EmailCount = len(next)
			return nil
		}
		return ErrMessageNotFound
	})
}

// DeleteAll 清空有效地址下的全部邮件，返回删除数量，地址本身保留。
func (s *Store) DeleteAll(address string) (int, error) {
	lock := s.locks.forKey(address)
	lock.Lock()
	defer lock.Unlock()

	rec := s.registry.liveLocked(address, s.registry.clock())
	if rec == nil {
		return 0, ErrAddressNotFound
	}
	n := s.dropLocked(address)
	rec.EmailCount = 0
	return n, nil
}

// Sweep 删除所有在 now 时已过期的邮件，并同步地址记录的邮件数。
// 没有对应地址记录的列表会被整体删除。
func (s *Store) Sweep(now time.Time) int {
	removed := 0
	for _, address := range s.addresses() {
		lock := s.locks.forKey(address)
		lock.Lock()

		rec := s.registry.lookup(address)

		s.mu.Lock()
		list := s.lists[address]
		if rec == nil {
			removed += len(list)
			delete(s.lists, address)
		} else {
			kept := make([]*domain.Message, 0, len(list))
			for _, m := range list {
				if m.ExpiredAt(now, s.ttl) {
					removed++
					continue
				}
				kept = append(kept, m)
			}
			if len(kept) == 0 {
				delete(s.lists, address)
			} else {
				s.lists[address] = kept
			}
			rec.EmailCount = len(kept)
		}
		s.mu.Unlock()

		lock.Unlock()
	}
	return removed
}

// TotalMessages 返回存储中的邮件总数（包含尚未清理的过期邮件）。
func (s *Store) TotalMessages() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, list := range s.lists {
		total += len(list)
	}
	return total
}

// read 在地址读锁下访问邮件列表，地址无效时触发惰性回收。
func (s *Store) read(address string, fn func(now time.Time, list []*domain.Message)) error {
	lock := s.locks.forKey(address)
	lock.RLock()

	now := s.registry.clock()
	rec, live := s.registry.peekLocked(address, now)
	if !live {
		lock.RUnlock()
		if rec != nil {
			s.registry.IsLive(address)
		}
		return ErrAddressNotFound
	}

	s.mu.RLock()
	fn(now, s.lists[address])
	s.mu.RUnlock()

	lock.RUnlock()
	return nil
}

// write 在地址写锁下修改邮件列表。
func (s *Store) write(address string, fn func(now time.Time, rec *domain.AddressRecord) error) error {
	lock := s.locks.forKey(address)
	lock.Lock()
	defer lock.Unlock()

	now := s.registry.clock()
	rec := s.registry.liveLocked(address, now)
	if rec == nil {
		return ErrAddressNotFound
	}
	return fn(now, rec)
}

func (s *Store) listLocked(address string) []*domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lists[address]
}

func (s *Store) lenLocked(address string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.lists[address])
}

// dropLocked 删除地址的邮件列表。调用方必须持有地址写锁。
func (s *Store) dropLocked(address string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.lists[address])
	delete(s.lists, address)
	return n
}

func (s *Store) addresses() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.lists))
	for address := range s.lists {
		keys = append(keys, address)
	}
	return keys
}

func findLive(list []*domain.Message, id string, now time.Time, ttl time.Duration) *domain.Message {
	for _, m := range list {
		if m.ID == id {
			if m.ExpiredAt(now, ttl) {
				return nil
			}
			return m
		}
	}
	return nil
}
