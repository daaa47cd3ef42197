package httptransport

import (
	"errors"

	"github.com/gin-gonic/gin"

	"tempiemail/backend/internal/domain"
	"tempiemail/backend/internal/storage/memory"
)

// 错误消息映射表（业务错误 -> 中文消息），按顺序匹配
var errorMessages = []struct {
	err error
	msg string
}{
	{memory.ErrAddressNotFound, MsgAddressNotFound},
	{memory.ErrMessageNotFound, MsgMessageNotFound},
	{domain.ErrNotFound, "资源不存在"},
	{domain.ErrInvalid, MsgInvalidRequest},
	{domain.ErrRateLimited, MsgRateLimited},
}

// GetErrorMessage 获取错误的中文消息
func GetErrorMessage(err error) string {
	for _, m := range errorMessages {
		if errors.Is(err, m.err) {
			return m.msg
		}
	}
	return MsgInternalError
}

// writeError 按错误类型写出响应：不存在 404，参数错误 400，限流 429，其余 500
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		NotFound(c, GetErrorMessage(err))
	case errors.Is(err, domain.ErrInvalid):
		BadRequest(c, invalidMessage(err))
	case errors.Is(err, domain.ErrRateLimited):
		TooManyRequests(c, MsgRateLimited)
	default:
		_ = c.Error(err)
		InternalError(c, MsgInternalError)
	}
}

// invalidMessage 参数错误时附带具体原因
func invalidMessage(err error) string {
	if errors.Is(err, domain.ErrInvalid) && err.Error() != domain.ErrInvalid.Error() {
		return MsgInvalidRequest + ": " + err.Error()
	}
	return MsgInvalidRequest
}

// 通用错误消息
const (
	MsgInvalidRequest = "请求参数格式错误"
	MsgRateLimited    = "请求过于频繁，请稍后再试"

	MsgAddressNotFound = "邮箱地址不存在或已过期"
	MsgMessageNotFound = "邮件不存在或已过期"
	MsgDomainNotFound  = "域名不在列表中"
	MsgPatternNotFound = "规则不存在"

	MsgInternalError = "服务器内部错误，请稍后重试"
)
