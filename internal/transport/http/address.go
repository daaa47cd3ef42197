package httptransport

import (
	"errors"
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"tempiemail/backend/internal/domain"
	"tempiemail/backend/internal/service"
)

// defaultExtendHours 未指定时的延期小时数
const defaultExtendHours = 24

type generateRequest struct {
	Pattern string `json:"pattern"`
}

type generateMultipleRequest struct {
	Count   int    `json:"count"`
	Pattern string `json:"pattern"`
}

type addressMetadata struct {
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
	EmailCount int       `json:"emailCount"`
}

type addressResponse struct {
	EmailAddress string          `json:"emailAddress"`
	Metadata     addressMetadata `json:"metadata"`
}

type addressListResponse struct {
	Addresses []addressResponse `json:"addresses"`
	Count     int               `json:"count"`
}

type extendRequest struct {
	Hours *int `json:"hours"`
}

type extendResponse struct {
	EmailAddress string    `json:"emailAddress"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

type validateRequest struct {
	EmailAddress string `json:"emailAddress" binding:"required"`
}

type domainRequest struct {
	Domain string `json:"domain" binding:"required"`
}

type domainListResponse struct {
	Domains []string `json:"domains"`
	Count   int      `json:"count"`
}

type patternListResponse struct {
	Patterns []string               `json:"patterns"`
	Stats    service.GeneratorStats `json:"stats"`
}

// bindOptionalJSON 绑定可以为空的请求体
func bindOptionalJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(c, MsgInvalidRequest)
		return false
	}
	return true
}

func toAddressResponse(rec *domain.AddressRecord) addressResponse {
	return addressResponse{
		EmailAddress: rec.Address,
		Metadata: addressMetadata{
			CreatedAt:  rec.CreatedAt,
			ExpiresAt:  rec.ExpiresAt,
			EmailCount: rec.EmailCount,
		},
	}
}

// generateAddress 生成一个临时地址
func (h *Handler) generateAddress(c *gin.Context) {
	var req generateRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	rec, err := h.mailboxes.Provision(req.Pattern)
	if err != nil {
		writeError(c, err)
		return
	}
	Created(c, toAddressResponse(rec))
}

// generateMultiple 批量生成临时地址
func (h *Handler) generateMultiple(c *gin.Context) {
	var req generateMultipleRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	records, err := h.mailboxes.ProvisionMany(req.Count, req.Pattern)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]addressResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toAddressResponse(rec))
	}
	Created(c, addressListResponse{Addresses: out, Count: len(out)})
}

// getAddress 返回地址状态和邮件摘要
func (h *Handler) getAddress(c *gin.Context) {
	detail, err := h.mailboxes.GetInfo(c.Param("address"))
	if err != nil {
		writeError(c, err)
		return
	}
	Success(c, detail)
}

// deleteAddress 删除地址及其邮件
func (h *Handler) deleteAddress(c *gin.Context) {
	if err := h.mailboxes.Delete(c.Param("address")); err != nil {
		writeError(c, err)
		return
	}
	SuccessWithMsg(c, "删除成功", nil)
}

// extendAddress 延长地址有效期
func (h *Handler) extendAddress(c *gin.Context) {
	var req extendRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	hours := defaultExtendHours
	if req.Hours != nil {
		hours = *req.Hours
	}

	address := c.Param("address")
	expiresAt, err := h.mailboxes.Extend(address, hours)
	if err != nil {
		writeError(c, err)
		return
	}
	Success(c, extendResponse{
		EmailAddress: domain.NormalizeAddress(address),
		ExpiresAt:    expiresAt,
	})
}

// validateAddress 校验地址格式和有效性
func (h *Handler) validateAddress(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	Success(c, h.mailboxes.Validate(req.EmailAddress))
}

// listDomains 返回可用域名
func (h *Handler) listDomains(c *gin.Context) {
	domains := h.mailboxes.Domains()
	Success(c, domainListResponse{Domains: domains, Count: len(domains)})
}

// addDomain 添加可用域名
func (h *Handler) addDomain(c *gin.Context) {
	var req domainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	if err := h.mailboxes.AddDomain(req.Domain); err != nil {
		writeError(c, err)
		return
	}
	domains := h.mailboxes.Domains()
	Created(c, domainListResponse{Domains: domains, Count: len(domains)})
}

// removeDomain 移除可用域名
func (h *Handler) removeDomain(c *gin.Context) {
	err := h.mailboxes.RemoveDomain(c.Param("domain"))
	switch {
	case errors.Is(err, domain.ErrNotFound):
		NotFound(c, MsgDomainNotFound)
		return
	case err != nil:
		writeError(c, err)
		return
	}
	domains := h.mailboxes.Domains()
	Success(c, domainListResponse{Domains: domains, Count: len(domains)})
}

// listPatterns 返回支持的生成模式
func (h *Handler) listPatterns(c *gin.Context) {
	Success(c, patternListResponse{
		Patterns: service.Patterns,
		Stats:    h.mailboxes.GeneratorStats(),
	})
}

// statsOverview 返回整体统计
func (h *Handler) statsOverview(c *gin.Context) {
	Success(c, h.mailboxes.Stats())
}
