package security

import "regexp"

// 默认垃圾内容词汇
var defaultSpamPatterns = []string{
	"viagra", "casino", "loan", "credit", "weight loss", "diet pill",
	"make money fast", "work from home", "enlarge", "penis", "sex", "porn",
	"adult", "nude", "xxx", "free money", "lottery", "inheritance",
	"nigerian prince", "urgent action required", "account suspended",
	"verify your account", "click here to claim", "limited time offer",
	"act now", "don't miss out", "exclusive offer", "guaranteed",
	"risk-free", "no obligation",
}

// 垃圾邮件扫描器标记和群发软件指纹
var defaultSuspiciousHeaders = []string{
	"x-spam-flag", "x-spam-status", "x-spam-score", "x-virus-scanned",
	"x-authentication-warning", "x-mailer", "x-priority", "x-msmail-priority",
}

// 可执行文件和脚本的扩展名
var defaultDangerousExtensions = []string{
	".exe", ".bat", ".cmd", ".com", ".pif", ".scr", ".vbs", ".js",
	".jar", ".msi", ".dmg", ".app", ".deb", ".rpm",
}

var (
	linkPattern = regexp.MustCompile(`https?://[^\s<>"]+`)

	attachmentFilenamePattern = regexp.MustCompile(`(?is)content-disposition:\s*attachment.*?filename\*?\s*=\s*["']?([^"'\r\n;]+)`)

	markupPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)<script`),
		regexp.MustCompile(`(?i)javascript:`),
		regexp.MustCompile(`(?i)<[^>]+\son[a-z]+\s*=`),
		regexp.MustCompile(`(?i)<iframe`),
		regexp.MustCompile(`(?i)<object`),
		regexp.MustCompile(`(?i)<embed`),
		regexp.MustCompile(`(?i)<form`),
		regexp.MustCompile(`(?i)<input`),
		regexp.MustCompile(`(?i)<textarea`),
		regexp.MustCompile(`(?i)<select`),
	}

	scriptPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\beval\s*\(`),
		regexp.MustCompile(`(?i)\bsetTimeout\s*\(`),
		regexp.MustCompile(`(?i)\bsetInterval\s*\(`),
		regexp.MustCompile(`(?i)\bFunction\s*\(`),
		regexp.MustCompile(`(?i)document\.write`),
		regexp.MustCompile(`(?i)innerHTML\s*=`),
		regexp.MustCompile(`(?i)outerHTML\s*=`),
		regexp.MustCompile(`(?i)insertAdjacentHTML`),
	}
)

// pattern 是可在运行时增删的内容规则
type pattern struct {
	source string
	re     *regexp.Regexp
}

func compilePattern(source string) (pattern, error) {
	re, err := regexp.Compile("(?i)" + source)
	if err != nil {
		return pattern{}, err
	}
	return pattern{source: source, re: re}, nil
}
