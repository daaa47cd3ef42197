package domain

// Attachment 表示邮件附件的描述信息，内容不随邮件保存。
type Attachment struct {
	Filename    string `json:"filename"`    // 文件名
	ContentType string `json:"contentType"` // MIME类型
	Size        int64  `json:"size"`        // 大小（字节）
}
