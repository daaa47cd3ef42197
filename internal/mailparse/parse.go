// Package mailparse 负责把原始邮件解析为主题、正文和附件描述。
package mailparse

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/k3a/html2text"

	"tempiemail/backend/internal/domain"
)

// 嵌套 multipart 的最大深度
const maxDepth = 16

var (
	subjectLine = regexp.MustCompile(`(?mi)^Subject:[ \t]*(.*?)\r?$`)
	fromLine    = regexp.MustCompile(`(?mi)^From:[ \t]*(.*?)\r?$`)
	angleAddr   = regexp.MustCompile(`<([^>]+)>`)
)

// Parsed 表示解析后的邮件内容。
type Parsed struct {
	Subject     string
	From        string // From 头原文
	FromAddress string // From 头中的邮箱地址
	To          string
	Text        string
	HTML        string
	Bodies      []string // 所有非附件部分的解码正文，按出现顺序
	Attachments []*domain.Attachment
}

// Parse 解析邮件，提取头部、文本、HTML 和附件描述。
//
// 字符集或传输编码无法识别时保留原始字节继续解析，只有头部本身
// 无法读取时才返回错误。
func Parse(raw []byte) (*Parsed, error) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !tolerable(err) {
		return nil, fmt.Errorf("parse mail: %w", err)
	}

	header := mail.Header{Header: entity.Header}
	parsed := &Parsed{
		Subject:     subjectOf(&header),
		From:        header.Get("From"),
		To:          header.Get("To"),
		Bodies:      make([]string, 0, 2),
		Attachments: make([]*domain.Attachment, 0),
	}
	if list, err := header.AddressList("From"); err == nil && len(list) > 0 {
		parsed.FromAddress = strings.ToLower(list[0].Address)
	} else {
		parsed.FromAddress = addressFromHeader(parsed.From)
	}

	walk(entity, parsed, 0)
	return parsed, nil
}

// ScanSubject 在头部区域内查找 Subject 行，找不到时返回占位文本。
func ScanSubject(raw []byte) string {
	head, _ := SplitHeader(raw)
	if m := subjectLine.FindSubmatch(head); m != nil {
		if subject := strings.TrimSpace(string(m[1])); subject != "" {
			return subject
		}
	}
	return domain.NoSubject
}

// ScanFromAddress 在头部区域内查找 From 行并提取邮箱地址。
func ScanFromAddress(raw []byte) string {
	head, _ := SplitHeader(raw)
	if m := fromLine.FindSubmatch(head); m != nil {
		return addressFromHeader(string(m[1]))
	}
	return ""
}

// SplitHeader 按第一个空行把邮件分为头部与正文。
func SplitHeader(raw []byte) (header, body []byte) {
	crlf := bytes.Index(raw, []byte("\r\n\r\n"))
	lf := bytes.Index(raw, []byte("\n\n"))
	switch {
	case crlf >= 0 && (lf < 0 || crlf < lf):
		return raw[:crlf], raw[crlf+4:]
	case lf >= 0:
		return raw[:lf], raw[lf+2:]
	}
	return raw, nil
}

// Preview 返回用于通知展示的正文摘要，优先使用纯文本。
func Preview(text, html string, limit int) string {
	preview := strings.TrimSpace(text)
	if preview == "" && html != "" {
		preview = strings.TrimSpace(html2text.HTML2Text(html))
	}
	preview = strings.Join(strings.Fields(preview), " ")

	runes := []rune(preview)
	if limit > 0 && len(runes) > limit {
		return string(runes[:limit]) + "..."
	}
	return preview
}

func walk(entity *message.Entity, parsed *Parsed, depth int) {
	if depth > maxDepth {
		return
	}

	if mr := entity.MultipartReader(); mr != nil {
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return
			}
			if err != nil && !tolerable(err) {
				return
			}
			walk(part, parsed, depth+1)
		}
	}

	mediaType, params, err := entity.Header.ContentType()
	if err != nil || mediaType == "" {
		mediaType = "text/plain"
	}

	if name, ok := attachmentName(entity, mediaType, params); ok {
		size, _ := io.Copy(io.Discard, entity.Body)
		parsed.Attachments = append(parsed.Attachments, &domain.Attachment{
			Filename:    name,
			ContentType: mediaType,
			Size:        size,
		})
		return
	}

	body, err := io.ReadAll(entity.Body)
	if err != nil {
		return
	}
	parsed.Bodies = append(parsed.Bodies, string(body))

	switch mediaType {
	case "text/html":
		if parsed.HTML == "" {
			parsed.HTML = string(body)
		}
	case "text/plain":
		if parsed.Text == "" {
			parsed.Text = string(body)
		}
	}
}

// attachmentName 判断实体是否为附件并返回文件名
func attachmentName(entity *message.Entity, mediaType string, params map[string]string) (string, bool) {
	disposition, _, _ := entity.Header.ContentDisposition()
	ah := mail.AttachmentHeader{Header: entity.Header}
	filename, _ := ah.Filename()
	if filename == "" {
		filename = params["name"]
	}

	switch {
	case disposition == "attachment":
	case disposition == "inline" && filename != "":
	case !strings.HasPrefix(mediaType, "text/") && filename != "":
	default:
		return "", false
	}

	if filename == "" {
		filename = "unnamed"
	}
	return filename, true
}

func subjectOf(header *mail.Header) string {
	subject, err := header.Subject()
	if err != nil {
		subject = header.Get("Subject")
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return domain.NoSubject
	}
	return subject
}

// addressFromHeader 从 From 头取出地址：优先尖括号内的部分，其次第一个词
func addressFromHeader(value string) string {
	value = strings.TrimSpace(value)
	if m := angleAddr.FindStringSubmatch(value); m != nil {
		return strings.ToLower(strings.TrimSpace(m[1]))
	}
	if fields := strings.Fields(value); len(fields) > 0 {
		return strings.ToLower(strings.Trim(fields[0], `"'`))
	}
	return ""
}

func tolerable(err error) bool {
	return message.IsUnknownCharset(err) || message.IsUnknownEncoding(err)
}
