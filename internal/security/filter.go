package security

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"tempiemail/backend/internal/domain"
	"tempiemail/backend/internal/mailparse"
)

// Config 反滥用过滤器配置
type Config struct {
	MaxMessageBytes int           // 单封邮件最大字节数
	MaxPerHour      int           // 每个地址每个窗口内最多接收的邮件数
	MaxLinks        int           // 单封邮件允许的最大链接数
	BlockedDomains  []string      // 初始发件域名黑名单
	Window          time.Duration // 频率统计窗口，默认 1 小时
}

// Filter 在邮件入库前依次执行体积、频率和内容检查。
//
// 黑名单和内容规则可在运行时修改，修改与检查通过 mu 串行化；
// 频率计数由 rateMu 保护，同一地址的计数更新不会并发交错。
type Filter struct {
	cfg Config

	mu                sync.RWMutex
	spamPatterns      []pattern
	blockedDomains    map[string]struct{}
	suspiciousHeaders map[string]struct{}
	extensions        []string
	checks            []check

	rateMu   sync.Mutex
	counters map[string]*rateCounter

	admitted   atomic.Uint64
	rejections map[Reason]*atomic.Uint64

	now func() time.Time
	log *zap.Logger
}

// Stats 过滤器状态
type Stats struct {
	BlockedDomains     []string          `json:"blockedDomains"`
	SpamPatterns       int               `json:"spamPatterns"`
	MaxMessageBytes    int               `json:"maxMessageBytes"`
	MaxPerHour         int               `json:"maxEmailsPerHour"`
	MaxLinks           int               `json:"maxLinks"`
	ActiveRateCounters int               `json:"activeRateLimits"`
	Admitted           uint64            `json:"admitted"`
	Rejected           uint64            `json:"rejected"`
	RejectedByReason   map[Reason]uint64 `json:"rejectedByReason"`
}

// inspection 是一次检查所需的邮件视图
type inspection struct {
	raw    []byte
	header []byte
	body   []byte
	parsed *mailparse.Parsed // 解析失败时为 nil
}

// check 是有序检查链中的一环，返回拒收详情和是否拒收
type check struct {
	reason Reason
	run    func(f *Filter, in *inspection) (string, bool)
}

// NewFilter 创建过滤器
func NewFilter(cfg Config, log *zap.Logger) *Filter {
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = 10 << 20
	}
	if cfg.MaxPerHour <= 0 {
		cfg.MaxPerHour = 50
	}
	if cfg.MaxLinks <= 0 {
		cfg.MaxLinks = 10
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Hour
	}
	if log == nil {
		log = zap.NewNop()
	}

	f := &Filter{
		cfg:               cfg,
		blockedDomains:    make(map[string]struct{}),
		suspiciousHeaders: make(map[string]struct{}),
		extensions:        append([]string(nil), defaultDangerousExtensions...),
		counters:          make(map[string]*rateCounter),
		rejections:        make(map[Reason]*atomic.Uint64, len(Reasons)),
		now:               time.Now,
		log:               log,
	}
	for _, source := range defaultSpamPatterns {
		p, err := compilePattern(source)
		if err != nil {
			panic(err)
		}
		f.spamPatterns = append(f.spamPatterns, p)
	}
	for _, name := range defaultSuspiciousHeaders {
		f.suspiciousHeaders[name] = struct{}{}
	}
	for _, d := range cfg.BlockedDomains {
		f.blockedDomains[strings.ToLower(strings.TrimSpace(d))] = struct{}{}
	}
	for _, reason := range Reasons {
		f.rejections[reason] = &atomic.Uint64{}
	}

	f.checks = []check{
		{ReasonSpamContent, checkContent},
		{ReasonSuspiciousHeader, checkHeaders},
		{ReasonBlockedSender, checkSender},
		{ReasonExcessiveLinks, checkLinks},
		{ReasonDangerousAttachment, checkAttachments},
		{ReasonMarkupInjection, checkMarkup},
		{ReasonScriptInjection, checkScripts},
	}
	return f
}

// SetClock 替换时钟，只应在启动前或测试中调用。
func (f *Filter) SetClock(now func() time.Time) {
	f.now = now
}

// Admit 判断一封发往 address 的原始邮件能否入库。
//
// 检查顺序：体积、频率、内容词汇、可疑头部、发件域名、链接数量、
// 附件扩展名、标记注入、脚本注入，命中第一条即返回。
// 检查过程中的任何异常都按拒收处理。
func (f *Filter) Admit(address string, raw []byte) (v Verdict) {
	defer func() {
		if r := recover(); r != nil {
			f.log.Error("abuse check failed",
				zap.String("address", address),
				zap.Any("panic", r),
			)
			v = Reject(ReasonInternal, "internal error during abuse check")
		}
		f.record(v)
	}()

	if len(raw) > f.cfg.MaxMessageBytes {
		return Reject(ReasonTooLarge, fmt.Sprintf("%d bytes exceeds %d", len(raw), f.cfg.MaxMessageBytes))
	}

	if !f.allow(address) {
		return Reject(ReasonRateLimited, fmt.Sprintf("more than %d messages within %s", f.cfg.MaxPerHour, f.cfg.Window))
	}

	in := inspect(raw)

	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, c := range f.checks {
		if detail, rejected := c.run(f, in); rejected {
			return Reject(c.reason, detail)
		}
	}
	return Admit()
}

func inspect(raw []byte) *inspection {
	header, body := mailparse.SplitHeader(raw)
	in := &inspection{raw: raw, header: header, body: body}
	if parsed, err := mailparse.Parse(raw); err == nil {
		in.parsed = parsed
	}
	return in
}

func (f *Filter) record(v Verdict) {
	if v.Admitted {
		f.admitted.Add(1)
		return
	}
	if counter, ok := f.rejections[v.Reason]; ok {
		counter.Add(1)
	}
}

// AddBlockedDomain 把发件域名加入黑名单
func (f *Filter) AddBlockedDomain(name string) error {
	normalized, err := domain.ValidateDomain(name)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.blockedDomains[normalized] = struct{}{}
	f.mu.Unlock()

	f.log.Info("blocked sender domain added", zap.String("domain", normalized))
	return nil
}

// RemoveBlockedDomain 从黑名单移除域名，返回域名原本是否存在
func (f *Filter) RemoveBlockedDomain(name string) bool {
	normalized := strings.ToLower(strings.TrimSpace(name))

	f.mu.Lock()
	_, ok := f.blockedDomains[normalized]
	delete(f.blockedDomains, normalized)
	f.mu.Unlock()

	if ok {
		f.log.Info("blocked sender domain removed", zap.String("domain", normalized))
	}
	return ok
}

// BlockedDomains 返回排序后的黑名单
func (f *Filter) BlockedDomains() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]string, 0, len(f.blockedDomains))
	for d := range f.blockedDomains {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// AddPattern 增加一条不区分大小写的内容规则
func (f *Filter) AddPattern(source string) error {
	source = strings.TrimSpace(source)
	if source == "" {
		return domain.ErrInvalid
	}
	p, err := compilePattern(source)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalid, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.spamPatterns {
		if existing.source == source {
			return nil
		}
	}
	f.spamPatterns = append(f.spamPatterns, p)
	return nil
}

// RemovePattern 删除一条内容规则，返回规则原本是否存在
func (f *Filter) RemovePattern(source string) bool {
	source = strings.TrimSpace(source)

	f.mu.Lock()
	defer f.mu.Unlock()

	for i, existing := range f.spamPatterns {
		if existing.source == source {
			f.spamPatterns = append(f.spamPatterns[:i:i], f.spamPatterns[i+1:]...)
			return true
		}
	}
	return false
}

// Patterns 返回当前内容规则
func (f *Filter) Patterns() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]string, len(f.spamPatterns))
	for i, p := range f.spamPatterns {
		out[i] = p.source
	}
	return out
}

// RejectedTotal 返回累计拒收数量
func (f *Filter) RejectedTotal() uint64 {
	var total uint64
	for _, counter := range f.rejections {
		total += counter.Load()
	}
	return total
}

// Stats 返回过滤器状态
func (f *Filter) Stats() Stats {
	f.mu.RLock()
	patterns := len(f.spamPatterns)
	f.mu.RUnlock()

	f.rateMu.Lock()
	active := len(f.counters)
	f.rateMu.Unlock()

	byReason := make(map[Reason]uint64, len(f.rejections))
	for reason, counter := range f.rejections {
		byReason[reason] = counter.Load()
	}

	return Stats{
		BlockedDomains:     f.BlockedDomains(),
		SpamPatterns:       patterns,
		MaxMessageBytes:    f.cfg.MaxMessageBytes,
		MaxPerHour:         f.cfg.MaxPerHour,
		MaxLinks:           f.cfg.MaxLinks,
		ActiveRateCounters: active,
		Admitted:           f.admitted.Load(),
		Rejected:           f.RejectedTotal(),
		RejectedByReason:   byReason,
	}
}
