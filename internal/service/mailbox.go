package service

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tempiemail/backend/internal/config"
	"tempiemail/backend/internal/domain"
	"tempiemail/backend/internal/monitoring"
	"tempiemail/backend/internal/storage/memory"
)

// maxGenerateAttempts 生成地址时遇到冲突的最大重试次数
const maxGenerateAttempts = 8

// recentActivityLimit 统计中展示的最近活跃地址数
const recentActivityLimit = 5

// MailboxService 封装地址相关业务操作。
type MailboxService struct {
	registry       *memory.Registry
	store          *memory.Store
	generator      *Generator
	maxExtendHours int
	maxBatch       int
	metrics        *monitoring.Metrics
	log            *zap.Logger
}

// NewMailboxService 创建地址业务服务。
func NewMailboxService(registry *memory.Registry, store *memory.Store, generator *Generator, cfg *config.Config, log *zap.Logger) *MailboxService {
	if log == nil {
		log = zap.NewNop()
	}
	return &MailboxService{
		registry:       registry,
		store:          store,
		generator:      generator,
		maxExtendHours: cfg.Mailbox.MaxExtendHours,
		maxBatch:       cfg.Provision.MaxBatch,
		log:            log,
	}
}

// SetMetrics 设置监控指标
func (s *MailboxService) SetMetrics(m *monitoring.Metrics) {
	s.metrics = m
}

// AddressDetail 地址信息加邮件摘要
type AddressDetail struct {
	domain.AddressInfo
	Emails []domain.MessageSummary `json:"emails"`
}

// ValidationResult 地址校验结果
type ValidationResult struct {
	EmailAddress string                `json:"emailAddress"`
	ValidFormat  bool                  `json:"isValidFormat"`
	Live         bool                  `json:"isValidAddress"`
	Metadata     *domain.AddressRecord `json:"metadata"`
}

// Overview 系统统计
type Overview struct {
	memory.RegistryStats
	TotalMessages          int                      `json:"totalEmails"`
	EmailExpirationHours   float64                  `json:"emailExpirationHours"`
	AddressExpirationHours float64                  `json:"addressExpirationHours"`
	Retention              int                      `json:"retention"`
	RecentActivity         []domain.AddressActivity `json:"recentActivity"`
}

// Provision 生成并登记一个新地址。
func (s *MailboxService) Provision(pattern string) (*domain.AddressRecord, error) {
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		address := s.generator.Generate(pattern)
		rec, err := s.registry.Create(address)
		if errors.Is(err, memory.ErrAddressExists) {
			s.log.Debug("generated address collided", zap.String("address", address), zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return nil, err
		}

		s.metrics.RecordAddressProvisioned()
		s.log.Info("address provisioned",
			zap.String("address", rec.Address),
			zap.Time("expires_at", rec.ExpiresAt),
		)
		return rec, nil
	}
	return nil, fmt.Errorf("no unique address after %d attempts: %w", maxGenerateAttempts, domain.ErrInternal)
}

// ProvisionMany 批量生成地址，数量限制在 1 到批量上限之间。
func (s *MailboxService) ProvisionMany(count int, pattern string) ([]*domain.AddressRecord, error) {
	count = min(max(count, 1), s.maxBatch)

	records := make([]*domain.AddressRecord, 0, count)
	for i := 0; i < count; i++ {
		rec, err := s.Provision(pattern)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// GetInfo 返回有效地址的状态和邮件摘要。
func (s *MailboxService) GetInfo(address string) (*AddressDetail, error) {
	normalized, err := domain.ValidateAddress(address)
	if err != nil {
		return nil, err
	}

	messages, err := s.store.List(normalized)
	if err != nil {
		return nil, err
	}
	rec, err := s.registry.Get(normalized)
	if err != nil {
		return nil, err
	}

	summaries := make([]domain.MessageSummary, 0, len(messages))
	for _, m := range messages {
		summaries = append(summaries, m.Summary())
	}

	return &AddressDetail{
		AddressInfo: domain.AddressInfo{
			Address:      rec.Address,
			CreatedAt:    rec.CreatedAt,
			ExpiresAt:    rec.ExpiresAt,
			LastActivity: rec.LastActivity,
			EmailCount:   len(messages),
			IsLive:       true,
			Fullness:     float64(len(messages)) / float64(s.store.Retention()),
		},
		Emails: summaries,
	}, nil
}

// Extend 延长地址有效期，hours 必须在 1 到上限之间。
func (s *MailboxService) Extend(address string, hours int) (time.Time, error) {
	normalized, err := domain.ValidateAddress(address)
	if err != nil {
		return time.Time{}, err
	}
	if hours < 1 || hours > s.maxExtendHours {
		return time.Time{}, fmt.Errorf("hours must be between 1 and %d: %w", s.maxExtendHours, domain.ErrInvalid)
	}

	expiresAt, err := s.registry.Extend(normalized, time.Duration(hours)*time.Hour)
	if err != nil {
		return time.Time{}, err
	}
	s.log.Info("address extended",
		zap.String("address", normalized),
		zap.Int("hours", hours),
		zap.Time("expires_at", expiresAt),
	)
	return expiresAt, nil
}

// Delete 删除地址及其全部邮件。
func (s *MailboxService) Delete(address string) error {
	normalized, err := domain.ValidateAddress(address)
	if err != nil {
		return err
	}
	if err := s.registry.Delete(normalized); err != nil {
		return err
	}
	s.metrics.RecordAddressDeleted()
	s.log.Info("address deleted", zap.String("address", normalized))
	return nil
}

// Validate 检查地址格式以及是否有效，格式错误不视为错误。
func (s *MailboxService) Validate(address string) ValidationResult {
	result := ValidationResult{EmailAddress: address}

	normalized, err := domain.ValidateAddress(address)
	if err != nil {
		return result
	}
	result.ValidFormat = true

	if rec, err := s.registry.Get(normalized); err == nil {
		result.Live = true
		result.Metadata = rec
	}
	return result
}

// Domains 返回可用域名。
func (s *MailboxService) Domains() []string {
	return s.generator.Domains()
}

// AddDomain 添加可用域名。
func (s *MailboxService) AddDomain(name string) error {
	if err := s.generator.AddDomain(name); err != nil {
		return err
	}
	s.log.Info("domain added", zap.String("domain", name))
	return nil
}

// RemoveDomain 移除可用域名。已生成的地址不受影响。
func (s *MailboxService) RemoveDomain(name string) error {
	if err := s.generator.RemoveDomain(name); err != nil {
		return err
	}
	s.log.Info("domain removed", zap.String("domain", name))
	return nil
}

// GeneratorStats 返回生成器词表统计。
func (s *MailboxService) GeneratorStats() GeneratorStats {
	return s.generator.Stats()
}

// Stats 返回地址和邮件的整体统计。
func (s *MailboxService) Stats() Overview {
	return Overview{
		RegistryStats:          s.registry.Stats(),
		TotalMessages:          s.store.TotalMessages(),
		EmailExpirationHours:   s.store.TTL().Hours(),
		AddressExpirationHours: s.registry.TTL().Hours(),
		Retention:              s.store.Retention(),
		RecentActivity:         s.registry.RecentActivity(recentActivityLimit),
	}
}
