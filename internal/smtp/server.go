package smtp

import (
	gosmtp "github.com/emersion/go-smtp"

	"tempiemail/backend/internal/config"
)

// NewServer 按配置创建监听服务器。
//
// 协议层消息上限放宽为过滤上限的两倍，正常的超限邮件由过滤器拒收，
// 协议层只截断明显异常的数据流。
func NewServer(be *Backend, cfg config.SMTPConfig) *gosmtp.Server {
	server := gosmtp.NewServer(be)
	server.Addr = cfg.BindAddr
	server.Domain = cfg.Domain
	server.ReadTimeout = cfg.ReadTimeout
	server.WriteTimeout = cfg.WriteTimeout
	server.MaxRecipients = cfg.MaxRecipients
	server.MaxMessageBytes = be.maxBytes * 2
	return server
}
