package domain

import (
	"time"
)

// AddressRecord 表示一个临时邮箱地址的登记记录。
//
// 记录在 ExpiresAt 之后对所有读路径不可见，并可被回收。
type AddressRecord struct {
	ID           string    `json:"id"`
	Address      string    `json:"emailAddress"`
	CreatedAt    time.Time `json:"createdAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
	LastActivity time.Time `json:"lastActivity"`
	EmailCount   int       `json:"emailCount"`
}

// ExpiredAt 判断记录在给定时间点是否已过期。
func (r *AddressRecord) ExpiredAt(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// AddressInfo 是地址对外暴露的状态快照。
type AddressInfo struct {
	Address      string    `json:"emailAddress"`
	CreatedAt    time.Time `json:"createdAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
	LastActivity time.Time `json:"lastActivity"`
	EmailCount   int       `json:"emailCount"`
	IsLive       bool      `json:"isLive"`
	Fullness     float64   `json:"fullness"` // 邮件数占保留上限的比例
}

// AddressActivity 用于展示最近活跃的地址。
type AddressActivity struct {
	Address      string    `json:"emailAddress"`
	LastActivity time.Time `json:"lastActivity"`
	EmailCount   int       `json:"emailCount"`
}
