package service

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tempiemail/backend/internal/domain"
	"tempiemail/backend/internal/mailparse"
	"tempiemail/backend/internal/monitoring"
	"tempiemail/backend/internal/security"
	"tempiemail/backend/internal/storage/memory"
)

// Publisher 接收新入库邮件的通知方
type Publisher interface {
	Publish(address string, message *domain.Message)
}

// DeliveryService 把收到的原始邮件经过滤后写入邮箱并推送通知。
type DeliveryService struct {
	registry  *memory.Registry
	store     *memory.Store
	filter    *security.Filter
	publisher Publisher
	metrics   *monitoring.Metrics
	log       *zap.Logger
	now       func() time.Time
}

// NewDeliveryService 创建投递服务，publisher 可以为 nil。
func NewDeliveryService(registry *memory.Registry, store *memory.Store, filter *security.Filter, publisher Publisher, log *zap.Logger) *DeliveryService {
	if log == nil {
		log = zap.NewNop()
	}
	return &DeliveryService{
		registry:  registry,
		store:     store,
		filter:    filter,
		publisher: publisher,
		log:       log,
		now:       time.Now,
	}
}

// SetMetrics 设置监控指标
func (s *DeliveryService) SetMetrics(m *monitoring.Metrics) {
	s.metrics = m
}

// SetClock 替换邮件到达时间的时钟
func (s *DeliveryService) SetClock(now func() time.Time) {
	s.now = now
}

// Accepts 判断地址当前是否可以收信。
func (s *DeliveryService) Accepts(address string) bool {
	return s.registry.IsLive(domain.NormalizeAddress(address))
}

// Deliver 过滤一封发往 to 的邮件，准入后入库并推送。
//
// 拒收只通过 Verdict 返回；error 仅表示准入后入库失败，
// 例如地址在收信过程中过期。
func (s *DeliveryService) Deliver(from, to string, raw []byte) (security.Verdict, error) {
	start := time.Now()
	address := domain.NormalizeAddress(to)

	verdict := s.filter.Admit(address, raw)
	if !verdict.Admitted {
		s.metrics.RecordMessageRejected(string(verdict.Reason))
		return verdict, nil
	}

	message := s.build(from, address, raw)
	if err := s.store.Append(address, message); err != nil {
		return verdict, err
	}

	s.metrics.RecordMessageDelivered(message.Size, time.Since(start))
	s.log.Info("message stored",
		zap.String("address", address),
		zap.String("message_id", message.ID),
		zap.String("from", message.From),
		zap.Int64("size", message.Size),
	)

	if s.publisher != nil {
		s.publisher.Publish(address, message)
	}
	return verdict, nil
}

// build 构造邮件记录，解析失败时退回到头部扫描
func (s *DeliveryService) build(from, to string, raw []byte) *domain.Message {
	message := &domain.Message{
		ID:          uuid.NewString(),
		To:          to,
		From:        from,
		Size:        int64(len(raw)),
		ReceivedAt:  s.now(),
		Attachments: make([]*domain.Attachment, 0),
	}

	_, body := mailparse.SplitHeader(raw)
	message.Body = string(body)

	parsed, err := mailparse.Parse(raw)
	if err != nil {
		s.log.Debug("falling back to header scan", zap.String("address", to), zap.Error(err))
		message.Subject = mailparse.ScanSubject(raw)
		message.Text = message.Body
		return message
	}

	message.Subject = parsed.Subject
	message.Text = parsed.Text
	message.HTML = parsed.HTML
	message.Attachments = parsed.Attachments
	if header := strings.TrimSpace(parsed.From); header != "" {
		message.From = header
	}
	return message
}
