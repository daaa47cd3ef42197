package httptransport

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type patternRequest struct {
	Pattern string `json:"pattern" binding:"required"`
}

type patternsResponse struct {
	Patterns []string `json:"patterns"`
	Count    int      `json:"count"`
}

func (h *Handler) abuseStats(c *gin.Context) {
	Success(c, h.filter.Stats())
}

// blockDomain 把发件域名加入黑名单
func (h *Handler) blockDomain(c *gin.Context) {
	var req domainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	if err := h.filter.AddBlockedDomain(req.Domain); err != nil {
		writeError(c, err)
		return
	}
	blocked := h.filter.BlockedDomains()
	Created(c, domainListResponse{Domains: blocked, Count: len(blocked)})
}

// unblockDomain 从黑名单移除域名
func (h *Handler) unblockDomain(c *gin.Context) {
	if !h.filter.RemoveBlockedDomain(c.Param("domain")) {
		NotFound(c, MsgDomainNotFound)
		return
	}
	blocked := h.filter.BlockedDomains()
	Success(c, domainListResponse{Domains: blocked, Count: len(blocked)})
}

func (h *Handler) listAbusePatterns(c *gin.Context) {
	patterns := h.filter.Patterns()
	Success(c, patternsResponse{Patterns: patterns, Count: len(patterns)})
}

// addAbusePattern 增加内容规则，规则是不区分大小写的正则表达式
func (h *Handler) addAbusePattern(c *gin.Context) {
	var req patternRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	if err := h.filter.AddPattern(req.Pattern); err != nil {
		writeError(c, err)
		return
	}
	h.log.Info("spam pattern added", zap.String("pattern", req.Pattern))

	patterns := h.filter.Patterns()
	Created(c, patternsResponse{Patterns: patterns, Count: len(patterns)})
}

func (h *Handler) removeAbusePattern(c *gin.Context) {
	var req patternRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	if !h.filter.RemovePattern(req.Pattern) {
		NotFound(c, MsgPatternNotFound)
		return
	}
	h.log.Info("spam pattern removed", zap.String("pattern", req.Pattern))

	patterns := h.filter.Patterns()
	Success(c, patternsResponse{Patterns: patterns, Count: len(patterns)})
}
