package domain

import "time"

// NoSubject 是缺少主题时记录的占位文本。
const NoSubject = "No Subject"

// Message 表示一封临时邮箱内的邮件。
type Message struct {
	ID          string        `json:"id"`
	To          string        `json:"to"`
	From        string        `json:"from"`
	Subject     string        `json:"subject"`
	Body        string        `json:"body"` // 原始邮件内容
	Text        string        `json:"text,omitempty"`
	HTML        string        `json:"html,omitempty"`
	Size        int64         `json:"size"`
	ReceivedAt  time.Time     `json:"timestamp"`
	IsRead      bool          `json:"read"`
	Attachments []*Attachment `json:"attachments,omitempty"` // 邮件附件列表
}

// ExpiredAt 判断邮件在给定时间点是否已超过存活时间。
func (m *Message) ExpiredAt(now time.Time, ttl time.Duration) bool {
	return !now.Before(m.ReceivedAt.Add(ttl))
}

// Summary 返回邮件列表中展示的摘要。
func (m *Message) Summary() MessageSummary {
	return MessageSummary{
		ID:         m.ID,
		From:       m.From,
		Subject:    m.Subject,
		ReceivedAt: m.ReceivedAt,
		IsRead:     m.IsRead,
	}
}

// Clone 返回邮件的副本，附件切片单独复制。
func (m *Message) Clone() *Message {
	out := *m
	if m.Attachments != nil {
		out.Attachments = make([]*Attachment, len(m.Attachments))
		for i, a := range m.Attachments {
			copied := *a
			out.Attachments[i] = &copied
		}
	}
	return &out
}

// MessageSummary 邮件摘要
type MessageSummary struct {
	ID         string    `json:"id"`
	From       string    `json:"from"`
	Subject    string    `json:"subject"`
	ReceivedAt time.Time `json:"timestamp"`
	IsRead     bool      `json:"read"`
}
