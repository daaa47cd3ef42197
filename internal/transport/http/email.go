package httptransport

import (
	"github.com/gin-gonic/gin"

	"tempiemail/backend/internal/domain"
)

type clearResponse struct {
	Deleted int `json:"deleted"`
}

type emailListResponse struct {
	Emails []domain.MessageSummary `json:"emails"`
	Count  int                     `json:"count"`
}

// listEmails 返回地址下的邮件摘要，新邮件在前
func (h *Handler) listEmails(c *gin.Context) {
	list, err := h.messages.List(c.Param("address"))
	if err != nil {
		writeError(c, err)
		return
	}
	Success(c, emailListResponse{Emails: list, Count: len(list)})
}

// searchEmails 按关键字搜索主题、发件人和正文
func (h *Handler) searchEmails(c *gin.Context) {
	list, err := h.messages.Search(c.Param("address"), c.Query("q"))
	if err != nil {
		writeError(c, err)
		return
	}
	Success(c, emailListResponse{Emails: list, Count: len(list)})
}

// getEmail 返回完整邮件，同时标记为已读
func (h *Handler) getEmail(c *gin.Context) {
	message, err := h.messages.Get(c.Param("address"), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	Success(c, message)
}

// deleteEmail 删除一封邮件
func (h *Handler) deleteEmail(c *gin.Context) {
	if err := h.messages.Delete(c.Param("address"), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	SuccessWithMsg(c, "删除成功", nil)
}

// clearEmails 清空地址下的全部邮件
func (h *Handler) clearEmails(c *gin.Context) {
	n, err := h.messages.DeleteAll(c.Param("address"))
	if err != nil {
		writeError(c, err)
		return
	}
	SuccessWithMsg(c, "清空成功", clearResponse{Deleted: n})
}

// markEmailRead 标记已读
func (h *Handler) markEmailRead(c *gin.Context) {
	if err := h.messages.MarkRead(c.Param("address"), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	SuccessWithMsg(c, "已标记为已读", nil)
}
