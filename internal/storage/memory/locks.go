package memory

import (
	"hash/fnv"
	"sync"
)

const lockShards = 256

// stripedLocks 按地址分片的读写锁。
//
// 同一地址的登记记录和邮件列表共用一把锁，持有顺序固定为
// 地址锁 -> Registry.mu / Store.mu。
type stripedLocks struct {
	shards [lockShards]sync.RWMutex
}

func (l *stripedLocks) forKey(key string) *sync.RWMutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &l.shards[h.Sum32()%lockShards]
}
