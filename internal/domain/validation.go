package domain

import (
	"regexp"
	"strings"
)

// 验证常量
const (
	MaxEmailLength  = 254 // 整个邮箱地址最大长度
	MaxDomainLength = 253 // 域名最大长度
)

var (
	addressRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	domainRegex  = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]{0,61}[a-zA-Z0-9]?(\.[a-zA-Z0-9][a-zA-Z0-9-]{0,61}[a-zA-Z0-9]?)*\.[a-zA-Z]{2,}$`)
)

// NormalizeAddress 去掉空白和尖括号并转为小写
func NormalizeAddress(address string) string {
	address = strings.TrimSpace(address)
	address = strings.TrimPrefix(address, "<")
	address = strings.TrimSuffix(address, ">")
	return strings.ToLower(strings.TrimSpace(address))
}

// ValidateAddress 校验地址格式，返回规范化后的地址
func ValidateAddress(address string) (string, error) {
	normalized := NormalizeAddress(address)
	if normalized == "" || len(normalized) > MaxEmailLength {
		return "", ErrInvalid
	}
	if !addressRegex.MatchString(normalized) {
		return "", ErrInvalid
	}
	return normalized, nil
}

// ValidateDomain 校验域名格式，返回小写域名
func ValidateDomain(domain string) (string, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" || len(domain) > MaxDomainLength {
		return "", ErrInvalid
	}
	if strings.Contains(domain, "..") || !domainRegex.MatchString(domain) {
		return "", ErrInvalid
	}
	return domain, nil
}

// DomainOf 返回地址 @ 之后的部分
func DomainOf(address string) string {
	at := strings.LastIndex(address, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(address[at+1:])
}
