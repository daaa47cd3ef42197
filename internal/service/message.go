package service

import (
	"go.uber.org/zap"

	"tempiemail/backend/internal/domain"
	"tempiemail/backend/internal/monitoring"
	"tempiemail/backend/internal/storage/memory"
)

// MessageService 封装邮件读取和删除。
type MessageService struct {
	store   *memory.Store
	metrics *monitoring.Metrics
	log     *zap.Logger
}

// NewMessageService 创建邮件业务服务。
func NewMessageService(store *memory.Store, log *zap.Logger) *MessageService {
	if log == nil {
		log = zap.NewNop()
	}
	return &MessageService{store: store, log: log}
}

// SetMetrics 设置监控指标
func (s *MessageService) SetMetrics(m *monitoring.Metrics) {
	s.metrics = m
}

// List 返回有效地址的邮件摘要，新邮件在前。
func (s *MessageService) List(address string) ([]domain.MessageSummary, error) {
	normalized, err := domain.ValidateAddress(address)
	if err != nil {
		return nil, err
	}
	messages, err := s.store.List(normalized)
	if err != nil {
		return nil, err
	}
	return summarize(messages), nil
}

// Search 按关键字搜索邮件，空关键字返回全部。
func (s *MessageService) Search(address, query string) ([]domain.MessageSummary, error) {
	normalized, err := domain.ValidateAddress(address)
	if err != nil {
		return nil, err
	}
	messages, err := s.store.Search(normalized, query)
	if err != nil {
		return nil, err
	}
	return summarize(messages), nil
}

// Get 返回完整邮件并标记为已读。
func (s *MessageService) Get(address, id string) (*domain.Message, error) {
	normalized, err := domain.ValidateAddress(address)
	if err != nil {
		return nil, err
	}
	message, err := s.store.Open(normalized, id)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordMessageRead()
	return message, nil
}

// MarkRead 标记已读，邮件不存在时不报错。
func (s *MessageService) MarkRead(address, id string) error {
	normalized, err := domain.ValidateAddress(address)
	if err != nil {
		return err
	}
	return s.store.MarkRead(normalized, id)
}

// Delete 删除一封邮件。
func (s *MessageService) Delete(address, id string) error {
	normalized, err := domain.ValidateAddress(address)
	if err != nil {
		return err
	}
	if err := s.store.Delete(normalized, id); err != nil {
		return err
	}
	s.metrics.RecordMessageDeleted(1)
	s.log.Debug("message deleted", zap.String("address", normalized), zap.String("message_id", id))
	return nil
}

// DeleteAll 清空地址下的全部邮件，返回删除数量。
func (s *MessageService) DeleteAll(address string) (int, error) {
	normalized, err := domain.ValidateAddress(address)
	if err != nil {
		return 0, err
	}
	n, err := s.store.DeleteAll(normalized)
	if err != nil {
		return 0, err
	}
	s.metrics.RecordMessageDeleted(n)
	s.log.Info("inbox cleared", zap.String("address", normalized), zap.Int("deleted", n))
	return n, nil
}

func summarize(messages []*domain.Message) []domain.MessageSummary {
	out := make([]domain.MessageSummary, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.Summary())
	}
	return out
}
