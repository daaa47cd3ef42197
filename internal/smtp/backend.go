package smtp

import (
	"errors"
	"io"

	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"tempiemail/backend/internal/domain"
	"tempiemail/backend/internal/monitoring"
	"tempiemail/backend/internal/security"
)

// Deliverer 是收信会话依赖的投递管道
type Deliverer interface {
	// Accepts 判断地址当前是否可以收信
	Accepts(address string) bool
	// Deliver 对一封邮件执行过滤、入库和推送
	Deliver(from, to string, raw []byte) (security.Verdict, error)
}

// Backend 实现 go-smtp 的 Backend 接口。
//
// 这是一个只接收邮件的服务器：收件人必须是当前有效的临时地址，
// RCPT 阶段即拒绝无效地址，不会读取发往它们的正文；
// 服务器不提供任何中继能力。
type Backend struct {
	delivery Deliverer
	limiter  *ConnectionLimiter
	maxBytes int64
	metrics  *monitoring.Metrics
	log      *zap.Logger
}

// NewBackend 创建 SMTP Backend。
//
// maxBytes 是过滤器允许的最大邮件体积，会话最多缓冲 maxBytes+1 字节，
// 多余的数据会被读取丢弃，由过滤器给出超限结论。
func NewBackend(delivery Deliverer, limiter *ConnectionLimiter, maxBytes int64, log *zap.Logger) *Backend {
	if log == nil {
		log = zap.NewNop()
	}
	return &Backend{
		delivery: delivery,
		limiter:  limiter,
		maxBytes: maxBytes,
		log:      log,
	}
}

// SetMetrics 设置监控指标
func (b *Backend) SetMetrics(m *monitoring.Metrics) {
	b.metrics = m
}

// NewSession 创建新的 SMTP 会话，超过连接限制时返回 421。
func (b *Backend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	remote := ""
	if c != nil && c.Conn() != nil {
		remote = c.Conn().RemoteAddr().String()
	}

	if b.limiter != nil && !b.limiter.Acquire() {
		b.log.Warn("smtp session refused by connection limiter", zap.String("remote", remote))
		b.metrics.RecordSMTPSession("limited")
		return nil, &gosmtp.SMTPError{
			Code:         421,
			EnhancedCode: gosmtp.EnhancedCode{4, 7, 0},
			Message:      "too many connections, try again later",
		}
	}

	b.metrics.RecordSMTPSession("accepted")
	b.metrics.SMTPSessionOpened()
	return &session{backend: b, remote: remote}, nil
}

type session struct {
	backend    *Backend
	remote     string
	from       string
	recipients []string
	closed     bool
}

// Mail 处理 MAIL 命令。
func (s *session) Mail(from string, _ *gosmtp.MailOptions) error {
	s.from = domain.NormalizeAddress(from)
	return nil
}

// Rcpt 处理 RCPT 命令，只接受当前有效的临时地址。
func (s *session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	address, err := domain.ValidateAddress(to)
	if err != nil {
		s.backend.metrics.RecordRecipient("invalid")
		return &gosmtp.SMTPError{
			Code:         501,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 3},
			Message:      "invalid recipient address",
		}
	}

	if !s.backend.delivery.Accepts(address) {
		s.backend.metrics.RecordRecipient("unknown")
		s.backend.log.Debug("recipient rejected",
			zap.String("remote", s.remote),
			zap.String("to", address),
		)
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 1},
			Message:      "recipient mailbox not found",
		}
	}

	for _, existing := range s.recipients {
		if existing == address {
			return nil
		}
	}
	s.recipients = append(s.recipients, address)
	s.backend.metrics.RecordRecipient("accepted")
	return nil
}

// Data 读取完整正文后逐个收件人投递。
//
// 读取出错时会话中止，不会投递任何邮件；过滤器拒收的邮件静默丢弃，
// 对发件方仍返回成功。
func (s *session) Data(r io.Reader) error {
	raw, err := readMessage(r, s.backend.maxBytes)
	if err != nil {
		s.backend.metrics.RecordDataAborted()
		s.backend.log.Warn("smtp data stream aborted",
			zap.String("remote", s.remote),
			zap.Error(err),
		)
		return err
	}

	for _, to := range s.recipients {
		verdict, err := s.backend.delivery.Deliver(s.from, to, raw)
		switch {
		case err != nil:
			s.backend.log.Warn("delivery failed",
				zap.String("to", to),
				zap.Error(err),
			)
		case !verdict.Admitted:
			s.backend.log.Info("message rejected",
				zap.String("address", to),
				zap.String("reason", string(verdict.Reason)),
				zap.String("detail", verdict.Detail),
				zap.String("remote", s.remote),
			)
		}
	}
	return nil
}

// Reset 重置状态。
func (s *session) Reset() {
	s.from = ""
	s.recipients = nil
}

// Logout 会话结束，释放连接许可。
func (s *session) Logout() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.backend.limiter != nil {
		s.backend.limiter.Release()
	}
	s.backend.metrics.SMTPSessionClosed()
	return nil
}

// readMessage 最多缓冲 limit+1 字节，剩余部分读取后丢弃
func readMessage(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return nil, errors.New("invalid message size limit")
	}
	raw, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(io.Discard, r); err != nil {
		return nil, err
	}
	return raw, nil
}
