package security

import (
	"bytes"
	"regexp"
	"strings"

	"tempiemail/backend/internal/domain"
	"tempiemail/backend/internal/mailparse"
)

// checkContent 在主题和正文中匹配垃圾内容词汇。
// 能解析时检查所有非附件部分的解码正文，附件的编码内容不参与匹配。
func checkContent(f *Filter, in *inspection) (string, bool) {
	var text strings.Builder
	if in.parsed != nil {
		text.WriteString(in.parsed.Subject)
		for _, body := range in.parsed.Bodies {
			text.WriteByte('\n')
			text.WriteString(body)
		}
	} else {
		text.WriteString(mailparse.ScanSubject(in.raw))
		text.WriteByte('\n')
		text.Write(in.body)
	}

	content := text.String()
	for _, p := range f.spamPatterns {
		if p.re.MatchString(content) {
			return "matched " + p.source, true
		}
	}
	return "", false
}

// checkHeaders 检查头部区域是否出现可疑的头部名称
func checkHeaders(f *Filter, in *inspection) (string, bool) {
	for _, raw := range bytes.Split(in.header, []byte("\n")) {
		line := strings.TrimRight(string(raw), "\r")
		if line == "" || line[0] == ' ' || line[0] == '\t' {
			continue
		}
		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(line[:colon]))
		if _, ok := f.suspiciousHeaders[name]; ok {
			return "header " + name, true
		}
	}
	return "", false
}

// checkSender 检查 From 头的域名及其上级域名是否在黑名单中
func checkSender(f *Filter, in *inspection) (string, bool) {
	from := ""
	if in.parsed != nil {
		from = in.parsed.FromAddress
	}
	if from == "" {
		from = mailparse.ScanFromAddress(in.raw)
	}

	host := domain.DomainOf(from)
	for host != "" {
		if _, ok := f.blockedDomains[host]; ok {
			return "sender domain " + host, true
		}
		dot := strings.IndexByte(host, '.')
		if dot < 0 {
			break
		}
		host = host[dot+1:]
	}
	return "", false
}

// checkLinks 统计整封邮件中的链接数量
func checkLinks(f *Filter, in *inspection) (string, bool) {
	links := linkPattern.FindAllIndex(in.raw, f.cfg.MaxLinks+1)
	if len(links) > f.cfg.MaxLinks {
		return "more than the allowed number of links", true
	}
	return "", false
}

// checkMarkup 检查正文中的危险标签和内联事件属性
func checkMarkup(_ *Filter, in *inspection) (string, bool) {
	for _, re := range markupPatterns {
		if matchBody(re, in) {
			return "markup " + re.String(), true
		}
	}
	return "", false
}

// checkScripts 检查正文中的脚本调用
func checkScripts(_ *Filter, in *inspection) (string, bool) {
	for _, re := range scriptPatterns {
		if matchBody(re, in) {
			return "script " + re.String(), true
		}
	}
	return "", false
}

// matchBody 在原始正文和每个解码后的非附件部分中匹配
func matchBody(re *regexp.Regexp, in *inspection) bool {
	if re.Match(in.body) {
		return true
	}
	if in.parsed == nil {
		return false
	}
	for _, body := range in.parsed.Bodies {
		if re.MatchString(body) {
			return true
		}
	}
	return false
}
