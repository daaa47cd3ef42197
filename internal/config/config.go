package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host string // 监听地址，默认 "0.0.0.0"
	Port int    // 监听端口，默认 5000
}

// SMTPConfig 定义 SMTP 收信服务器的配置
type SMTPConfig struct {
	BindAddr          string        // SMTP 服务监听地址，格式 "host:port"，默认 ":2525"
	Domain            string        // SMTP 服务器域名，用于 HELO/EHLO 响应
	ReadTimeout       time.Duration // 单次读取超时
	WriteTimeout      time.Duration // 单次写入超时
	MaxRecipients     int           // 单个会话允许的最大收件人数量
	MaxConnections    int           // 最大并发会话数
	MaxConnectionRate int           // 每秒允许新建的会话数
}

// MailboxConfig 定义临时邮箱及其邮件的生命周期配置
type MailboxConfig struct {
	Domains        []string      // 可用于生成地址的域名列表
	AddressTTL     time.Duration // 地址有效期，默认 48 小时
	MessageTTL     time.Duration // 单封邮件有效期，默认 24 小时
	Retention      int           // 每个地址最多保留的邮件数
	SweepInterval  time.Duration // 后台清理周期
	MaxExtendHours int           // 单次延期允许的最大小时数
}

// AbuseConfig 定义反滥用过滤器的阈值
type AbuseConfig struct {
	MaxMessageBytes int      // 单封邮件最大字节数
	MaxPerHour      int      // 每个地址每小时最多接收的邮件数
	MaxLinks        int      // 单封邮件允许的最大链接数
	BlockedDomains  []string // 初始发件域名黑名单
}

// ProvisionConfig 定义地址生成接口的限流参数
type ProvisionConfig struct {
	PerMinute int // 每个 IP 每分钟允许生成的次数
	Burst     int // 令牌桶突发容量
	MaxBatch  int // 批量生成的最大数量
}

// NotifyConfig 定义实时推送的工作池参数
type NotifyConfig struct {
	Workers   int // 推送协程数量
	QueueSize int // 推送任务队列长度
}

// MonitoringConfig 定义告警检查参数
type MonitoringConfig struct {
	AlertInterval      time.Duration // 告警规则检查周期
	MemoryThresholdMB  uint64        // 内存告警阈值（MB）
	RejectionThreshold uint64        // 单个检查周期内拒收数量告警阈值
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 启用彩色输出和详细堆栈信息
	File        string // 日志文件路径，留空只输出到控制台
	MaxSizeMB   int    // 单个日志文件最大体积
	MaxBackups  int    // 保留的旧日志文件数量
	MaxAgeDays  int    // 旧日志保留天数
	Compress    bool   // 是否压缩旧日志
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Server     ServerConfig
	SMTP       SMTPConfig
	Mailbox    MailboxConfig
	Abuse      AbuseConfig
	Provision  ProvisionConfig
	Notify     NotifyConfig
	Monitoring MonitoringConfig
	CORS       CORSConfig
	Log        LogConfig
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: TEMPIE_，例如 TEMPIE_SMTP_BIND_ADDR、TEMPIE_MAILBOX_ADDRESS_TTL
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetEnvPrefix("tempie")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Server: ServerConfig{
			Host: v.GetString("server.host"),
			Port: positive(v.GetInt("server.port"), 5000),
		},
		SMTP: SMTPConfig{
			BindAddr:          v.GetString("smtp.bind_addr"),
			Domain:            v.GetString("smtp.domain"),
			MaxRecipients:     positive(v.GetInt("smtp.max_recipients"), 50),
			MaxConnections:    positive(v.GetInt("smtp.max_connections"), 200),
			MaxConnectionRate: positive(v.GetInt("smtp.max_connection_rate"), 50),
		},
		Mailbox: MailboxConfig{
			Domains:        parseDomains(v.GetString("mailbox.domains")),
			Retention:      positive(v.GetInt("mailbox.retention"), 100),
			MaxExtendHours: positive(v.GetInt("mailbox.max_extend_hours"), 168),
		},
		Abuse: AbuseConfig{
			MaxMessageBytes: positive(v.GetInt("abuse.max_message_bytes"), 10<<20),
			MaxPerHour:      positive(v.GetInt("abuse.max_per_hour"), 50),
			MaxLinks:        positive(v.GetInt("abuse.max_links"), 10),
			BlockedDomains:  parseDomains(v.GetString("abuse.blocked_domains")),
		},
		Provision: ProvisionConfig{
			PerMinute: positive(v.GetInt("provision.per_minute"), 10),
			Burst:     positive(v.GetInt("provision.burst"), 10),
			MaxBatch:  positive(v.GetInt("provision.max_batch"), 10),
		},
		Notify: NotifyConfig{
			Workers:   positive(v.GetInt("notify.workers"), 4),
			QueueSize: positive(v.GetInt("notify.queue"), 1024),
		},
		Monitoring: MonitoringConfig{
			MemoryThresholdMB:  v.GetUint64("monitoring.memory_threshold_mb"),
			RejectionThreshold: v.GetUint64("monitoring.rejection_threshold"),
		},
		CORS: CORSConfig{
			AllowedOrigins: parseList(v.GetString("cors.allowed_origins")),
		},
		Log: LogConfig{
			Level:       v.GetString("log.level"),
			Development: v.GetBool("log.development"),
			File:        v.GetString("log.file"),
			MaxSizeMB:   positive(v.GetInt("log.max_size_mb"), 100),
			MaxBackups:  positive(v.GetInt("log.max_backups"), 3),
			MaxAgeDays:  positive(v.GetInt("log.max_age_days"), 28),
			Compress:    v.GetBool("log.compress"),
		},
	}

	durations := []struct {
		key    string
		target *time.Duration
	}{
		{"smtp.read_timeout", &cfg.SMTP.ReadTimeout},
		{"smtp.write_timeout", &cfg.SMTP.WriteTimeout},
		{"mailbox.address_ttl", &cfg.Mailbox.AddressTTL},
		{"mailbox.message_ttl", &cfg.Mailbox.MessageTTL},
		{"mailbox.sweep_interval", &cfg.Mailbox.SweepInterval},
		{"monitoring.alert_interval", &cfg.Monitoring.AlertInterval},
	}
	for _, d := range durations {
		parsed, err := time.ParseDuration(v.GetString(d.key))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		if parsed <= 0 {
			return nil, fmt.Errorf("invalid %s: must be positive", d.key)
		}
		*d.target = parsed
	}

	if len(cfg.Mailbox.Domains) == 0 {
		return nil, fmt.Errorf("mailbox.domains must not be empty")
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		cfg.CORS.AllowedOrigins = []string{"*"}
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5000)

	v.SetDefault("smtp.bind_addr", ":2525")
	v.SetDefault("smtp.domain", "tempiemail.com")
	v.SetDefault("smtp.read_timeout", "10s")
	v.SetDefault("smtp.write_timeout", "10s")
	v.SetDefault("smtp.max_recipients", 50)
	v.SetDefault("smtp.max_connections", 200)
	v.SetDefault("smtp.max_connection_rate", 50)

	v.SetDefault("mailbox.domains", "tempiemail.com,disposable.email,throwaway.mail,quick.email,instant.email")
	v.SetDefault("mailbox.address_ttl", "48h")
	v.SetDefault("mailbox.message_ttl", "24h")
	v.SetDefault("mailbox.retention", 100)
	v.SetDefault("mailbox.sweep_interval", "1h")
	v.SetDefault("mailbox.max_extend_hours", 168)

	v.SetDefault("abuse.max_message_bytes", 10<<20)
	v.SetDefault("abuse.max_per_hour", 50)
	v.SetDefault("abuse.max_links", 10)
	v.SetDefault("abuse.blocked_domains", "spam.com,malware.com,virus.com,phishing.com")

	v.SetDefault("provision.per_minute", 10)
	v.SetDefault("provision.burst", 10)
	v.SetDefault("provision.max_batch", 10)

	v.SetDefault("notify.workers", 4)
	v.SetDefault("notify.queue", 1024)

	v.SetDefault("monitoring.alert_interval", "1m")
	v.SetDefault("monitoring.memory_threshold_mb", 512)
	v.SetDefault("monitoring.rejection_threshold", 500)

	v.SetDefault("cors.allowed_origins", "*")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", true)
}

// positive 在配置值非正数时回退到默认值
func positive(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

// parseDomains 将逗号分隔的域名字符串解析为小写域名数组
func parseDomains(value string) []string {
	out := parseList(value)
	for i := range out {
		out[i] = strings.ToLower(out[i])
	}
	return out
}

// parseList 将逗号分隔的字符串解析为字符串切片，已去除空白字符
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载 .env 文件
//
// 加载顺序：当前目录的 .env，然后是父目录的 .env。
// 文件不存在时静默跳过，已存在的环境变量不会被覆盖。
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
