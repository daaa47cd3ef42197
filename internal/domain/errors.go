package domain

import "errors"

// 错误分类，调用方通过 errors.Is 判断。
var (
	// ErrNotFound 地址或邮件不存在，过期与不存在同等对待
	ErrNotFound = errors.New("not found")
	// ErrInvalid 输入格式不合法
	ErrInvalid = errors.New("invalid input")
	// ErrRateLimited 请求被限流
	ErrRateLimited = errors.New("rate limited")
	// ErrInternal 内部错误
	ErrInternal = errors.New("internal error")
)
