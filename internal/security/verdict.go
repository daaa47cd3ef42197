package security

// Reason 拒收原因
type Reason string

const (
	ReasonTooLarge            Reason = "too_large"
	ReasonRateLimited         Reason = "rate_limited"
	ReasonSpamContent         Reason = "spam_content"
	ReasonSuspiciousHeader    Reason = "suspicious_header"
	ReasonBlockedSender       Reason = "blocked_sender"
	ReasonExcessiveLinks      Reason = "excessive_links"
	ReasonDangerousAttachment Reason = "dangerous_attachment"
	ReasonMarkupInjection     Reason = "markup_injection"
	ReasonScriptInjection     Reason = "script_injection"
	ReasonInternal            Reason = "internal_error"
)

// Reasons 列出全部拒收原因，用于统计初始化
var Reasons = []Reason{
	ReasonTooLarge,
	ReasonRateLimited,
	ReasonSpamContent,
	ReasonSuspiciousHeader,
	ReasonBlockedSender,
	ReasonExcessiveLinks,
	ReasonDangerousAttachment,
	ReasonMarkupInjection,
	ReasonScriptInjection,
	ReasonInternal,
}

// Verdict 是过滤结果：要么放行，要么带原因拒收。
// 原因只用于日志和指标，不会返回给发件方。
type Verdict struct {
	Admitted bool
	Reason   Reason
	Detail   string
}

// Admit 构造放行结果
func Admit() Verdict {
	return Verdict{Admitted: true}
}

// Reject 构造拒收结果
func Reject(reason Reason, detail string) Verdict {
	return Verdict{Reason: reason, Detail: detail}
}

func (v Verdict) String() string {
	if v.Admitted {
		return "admitted"
	}
	if v.Detail == "" {
		return "rejected: " + string(v.Reason)
	}
	return "rejected: " + string(v.Reason) + " (" + v.Detail + ")"
}
