package security

import (
	"strings"
)

// checkAttachments 检查附件文件名是否为可执行文件或脚本。
// 解析出的附件和原文中的 Content-Disposition 都会被检查。
func checkAttachments(f *Filter, in *inspection) (string, bool) {
	names := make([]string, 0)
	if in.parsed != nil {
		for _, a := range in.parsed.Attachments {
			names = append(names, a.Filename)
		}
	}
	for _, m := range attachmentFilenamePattern.FindAllSubmatch(in.raw, -1) {
		names = append(names, string(m[1]))
	}

	for _, name := range names {
		if ext, ok := f.dangerousExtension(name); ok {
			return "attachment extension " + ext, true
		}
	}
	return "", false
}

func (f *Filter) dangerousExtension(filename string) (string, bool) {
	lower := strings.ToLower(strings.TrimSpace(filename))
	for _, ext := range f.extensions {
		if strings.HasSuffix(lower, ext) {
			return ext, true
		}
	}
	return "", false
}
